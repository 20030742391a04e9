package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"intar.dev/intar"
	"intar.dev/intar/internal/config"
)

var startFlags = struct {
	stateDir  string
	imageDir  string
}{}

var startCmd = &cobra.Command{
	Use:   "start <scenario.hcl>",
	Short: "Parse, boot, and run a scenario until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startFlags.stateDir, "state-dir", "", "root directory for run state (default: XDG state dir)")
	startCmd.Flags().StringVar(&startFlags.imageDir, "image-cache", "", "directory to cache downloaded VM images (default: <state-dir>/images)")
}

func runStart(cmd *cobra.Command, args []string) error {
	scenarioPath := args[0]

	scenario, err := intar.ParseScenario(scenarioPath)
	if err != nil {
		return err
	}

	root, err := stateRoot(startFlags.stateDir)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	dirs, err := config.NewDirs(root, runID)
	if err != nil {
		return err
	}

	run := &config.Run{
		ID:        runID,
		Dir:       dirs.Root,
		Scenario:  scenarioPath,
		CreatedAt: time.Now(),
		State:     string(intar.StateParsed),
		VMs:       make(map[string]*config.VM),
	}
	if err := config.Write(dirs.RunFile(), run); err != nil {
		return err
	}

	imageDir := startFlags.imageDir
	if imageDir == "" {
		imageDir = root + "/images"
	}

	fmt.Fprintf(stdout, "intar: run %s (%s)\n", runID, dirs.Root)

	orch := intar.NewOrchestrator(scenario, dirs, run, imageDir)

	go reportState(orch)

	ctx, cancel := runWithSignals()
	defer cancel()

	runErr := orch.Run(ctx)

	run.State = string(orch.State())
	if writeErr := config.Write(dirs.RunFile(), run); writeErr != nil {
		fmt.Fprintf(stderr, "intar: persist final run state: %v\n", writeErr)
	}

	return runErr
}

// reportState prints probe transitions to stdout as they arrive, skipping
// repeats of the last-observed outcome.
func reportState(orch *intar.Orchestrator) {
	var stream <-chan intar.ProbeEvent
	for stream == nil {
		stream = orch.ResultStream()
		if stream == nil {
			time.Sleep(200 * time.Millisecond)
		}
	}
	for ev := range stream {
		if ev.Repeat {
			continue
		}
		status := "FAIL"
		if ev.Passed {
			status = "PASS"
		}
		fmt.Fprintf(stdout, "[%s] %s/%s: %s\n", status, ev.VMName, ev.ProbeID, ev.Message)
	}
}
