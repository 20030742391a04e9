package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"intar.dev/intar"
	"intar.dev/intar/internal/config"
)

// runWithSignals returns a context cancelled on the first SIGINT/SIGTERM.
func runWithSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitCodeFor(err error) int {
	return intar.ExitCode(err)
}

// resolveRunDir returns the run directory for runID under root, or the
// most recently created run if runID is empty.
func resolveRunDir(root, runID string) (string, error) {
	if runID != "" {
		return root + "/" + runID, nil
	}
	return config.LatestRun(root)
}

func stateRoot(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return config.StateRoot()
}
