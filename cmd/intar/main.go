package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// stdout/stderr are go-colorable wrappers: ANSI codes are translated for
// Windows consoles, and output passes through unchanged everywhere else.
var (
	stdout = colorable.NewColorable(os.Stdout)
	stderr = colorable.NewColorable(os.Stderr)
)

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var rootCmd = &cobra.Command{
	Use:   "intar",
	Short: "Run declarative infrastructure scenarios against disposable VMs",
}
