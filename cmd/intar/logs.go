package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"intar.dev/intar"
	"intar.dev/intar/internal/config"
)

var logsFlags = struct {
	stateDir string
	runID    string
	vm       string
	logType  string
}{}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print a VM's console log, SSH log, or cloud-init user-data from a run",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsFlags.stateDir, "dir", "", "root directory for run state (default: XDG state dir)")
	logsCmd.Flags().StringVar(&logsFlags.runID, "run", "", "run id (default: most recent run)")
	logsCmd.Flags().StringVar(&logsFlags.vm, "vm", "", "VM name")
	logsCmd.Flags().StringVar(&logsFlags.logType, "log-type", "console", "console, ssh, or system")
	logsCmd.MarkFlagRequired("vm")
}

func runLogs(cmd *cobra.Command, args []string) error {
	root, err := stateRoot(logsFlags.stateDir)
	if err != nil {
		return err
	}
	runDir, err := resolveRunDir(root, logsFlags.runID)
	if err != nil {
		return err
	}

	dirs := config.Dirs{Root: runDir}

	var kind intar.LogKind
	switch logsFlags.logType {
	case "console":
		kind = intar.LogConsole
	case "ssh":
		kind = intar.LogSSH
	case "system":
		kind = intar.LogSystem
	default:
		return fmt.Errorf("unknown log type %q", logsFlags.logType)
	}

	path, err := intar.NewVM(logsFlags.vm, dirs).Logs(kind)
	if err != nil {
		return err
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = stdout.Write(bs)
	return err
}
