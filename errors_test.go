package intar

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(NewError(ScenarioInvalid, "bad hcl")))
	assert.Equal(t, 2, ExitCode(NewError(BootFailure, "no ssh")))
	assert.Equal(t, 2, ExitCode(NewError(ImageUnavailable, "404")))
	assert.Equal(t, 3, ExitCode(NewError(Internal, "oops")))
	assert.Equal(t, 3, ExitCode(NewError(TransportError, "eof")))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Wrap(StepFailure, "step failed", errors.New("exit 1")))
	assert.True(t, errors.Is(err, ErrKind(StepFailure)))
	assert.False(t, errors.Is(err, ErrKind(BootFailure)))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(TransportError, "agent dial failed", cause)
	assert.ErrorIs(t, err, cause)
}
