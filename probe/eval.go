package probe

import (
	"context"
	"time"
)

// EvalTimeout is the hard wall-clock ceiling for a single probe evaluation.
// Exceeding it fails the probe with "timeout".
const EvalTimeout = 30 * time.Second

// Evaluate runs spec to completion (or EvalTimeout) and returns its Result.
// It never panics and never returns an error: a failing probe is reported
// as Result{Passed: false}, never as a Go error, since a probe failure is
// a normal evaluation outcome, not an exceptional one.
func Evaluate(id string, spec Spec) Result {
	ctx, cancel := context.WithTimeout(context.Background(), EvalTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- Result{ID: id, Passed: false, Message: evaluate(ctx, spec)}
	}()

	select {
	case r := <-done:
		if r.Message == "" {
			return Pass(id, "")
		}
		return r
	case <-ctx.Done():
		return Fail(id, "timeout")
	}
}

// evaluate dispatches on kind and returns "" on pass, or the failure message
// on fail. Kept as a single dispatch point, one branch per kind.
func evaluate(ctx context.Context, spec Spec) string {
	switch spec.Kind {
	case KindFileContent:
		return evalFileContentMsg(spec)
	case KindFileExists:
		return evalFileExistsMsg(spec)
	case KindService:
		return evalServiceMsg(ctx, spec)
	case KindPort:
		return evalPortMsg(spec)
	case KindCommand:
		return evalCommandMsg(ctx, spec)
	case KindHTTP:
		return evalHTTPMsg(ctx, spec)
	case KindK8sNodesReady:
		return evalK8sNodesReadyMsg(ctx, spec)
	case KindK8sEndpointsNonEmpty:
		return evalK8sEndpointsNonEmptyMsg(ctx, spec)
	case KindTCPPing:
		return evalTCPPingMsg(spec)
	default:
		return "unknown probe kind"
	}
}
