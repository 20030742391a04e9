package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// evalCommandMsg runs spec.Cmd through sh -c and checks its exit code and,
// if requested, a substring of stdout.
func evalCommandMsg(ctx context.Context, spec Spec) string {
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Cmd)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	code := exitCode(err)

	if code != spec.ExitCode {
		return fmt.Sprintf("command '%s' exited with code %d, want %d", spec.Cmd, code, spec.ExitCode)
	}

	if spec.StdoutContains != nil && !strings.Contains(stdout.String(), *spec.StdoutContains) {
		return fmt.Sprintf("command '%s' stdout does not contain '%s'", spec.Cmd, *spec.StdoutContains)
	}

	return ""
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := isExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
