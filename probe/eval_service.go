package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// evalServiceMsg shells out to systemctl is-active / is-enabled, dispatching
// on the requested state.
func evalServiceMsg(ctx context.Context, spec Spec) string {
	switch spec.ServiceState {
	case ServiceRunning:
		return systemctlCheck(ctx, "is-active", spec.Service, "active")
	case ServiceStopped:
		out, err := systemctlOutput(ctx, "is-active", spec.Service)
		if err == nil && out == "active" {
			return fmt.Sprintf("service '%s' is active, want stopped", spec.Service)
		}
		return ""
	case ServiceEnabled:
		return systemctlCheck(ctx, "is-enabled", spec.Service, "enabled")
	case ServiceDisabled:
		out, err := systemctlOutput(ctx, "is-enabled", spec.Service)
		if err == nil && out == "enabled" {
			return fmt.Sprintf("service '%s' is enabled, want disabled", spec.Service)
		}
		return ""
	default:
		return fmt.Sprintf("unknown service state %q", spec.ServiceState)
	}
}

func systemctlCheck(ctx context.Context, verb, service, want string) string {
	out, err := systemctlOutput(ctx, verb, service)
	if out == want {
		return ""
	}
	if err != nil && out == "" {
		return fmt.Sprintf("service '%s' %s: %s", service, verb, err)
	}
	return fmt.Sprintf("service '%s' %s is %q, want %q", service, verb, out, want)
}

func systemctlOutput(ctx context.Context, verb, service string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "systemctl", verb, service)
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}
