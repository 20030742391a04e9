package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"intar.dev/intar/internal/config"
)

var listFlags = struct {
	stateDir string
}{}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known runs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listFlags.stateDir, "dir", "", "root directory for run state (default: XDG state dir)")
}

func runList(cmd *cobra.Command, args []string) error {
	root, err := stateRoot(listFlags.stateDir)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(stdout, "no runs found")
			return nil
		}
		return err
	}

	type row struct {
		id    string
		run   *config.Run
	}
	var rows []row
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := config.Read(root + "/" + e.Name() + "/run.json")
		if err != nil {
			continue
		}
		rows = append(rows, row{id: e.Name(), run: run})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].run.CreatedAt.Before(rows[j].run.CreatedAt) })

	for _, r := range rows {
		fmt.Fprintf(stdout, "%-38s  %-16s  %-12s  %s\n", r.id, r.run.State, r.run.CreatedAt.Format("2006-01-02 15:04:05"), r.run.Scenario)
	}
	return nil
}
