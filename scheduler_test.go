package intar

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/internal/config"
	"intar.dev/intar/probe"
)

func TestBoolLabel(t *testing.T) {
	assert.Equal(t, "true", boolLabel(true))
	assert.Equal(t, "false", boolLabel(false))
}

func TestAppendResultLineCreatesFileAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.ndjson")

	line1 := config.ProbeResultLine{ProbeID: "a", VMName: "web", Passed: true}
	line2 := config.ProbeResultLine{ProbeID: "b", VMName: "web", Passed: false, Message: "down"}

	require.NoError(t, appendResultLine(path, line1))
	require.NoError(t, appendResultLine(path, line2))

	bs, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []config.ProbeResultLine
	dec := json.NewDecoder(bytes.NewReader(bs))
	for {
		var l config.ProbeResultLine
		if err := dec.Decode(&l); err != nil {
			break
		}
		decoded = append(decoded, l)
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, "a", decoded[0].ProbeID)
	assert.Equal(t, "b", decoded[1].ProbeID)
	assert.False(t, decoded[1].Passed)
}

func TestSchedulerEmitDedupsRepeatedOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.ndjson")
	s := NewScheduler(map[string]*AgentChannel{}, path)

	s.emit("web", []probe.Result{probe.Pass("svc-up", "")})
	s.emit("web", []probe.Result{probe.Pass("svc-up", "")})

	bs, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines int
	dec := json.NewDecoder(bytes.NewReader(bs))
	for {
		var l config.ProbeResultLine
		if err := dec.Decode(&l); err != nil {
			break
		}
		lines++
	}
	assert.Equal(t, 1, lines, "a repeated identical outcome should not append a new ndjson line")
}

func TestSchedulerEmitPublishesToResultStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.ndjson")
	s := NewScheduler(map[string]*AgentChannel{}, path)

	s.emit("web", []probe.Result{probe.Fail("svc-up", "not active")})

	select {
	case ev := <-s.ResultStream():
		assert.Equal(t, "svc-up", ev.ProbeID)
		assert.False(t, ev.Passed)
		assert.False(t, ev.Repeat)
	default:
		t.Fatal("expected an event on the result stream")
	}
}

func TestCheckAllWithRetryFailsFastWithNoChannel(t *testing.T) {
	s := NewScheduler(map[string]*AgentChannel{}, filepath.Join(t.TempDir(), "results.ndjson"))

	err := s.checkAllWithRetry(context.Background(), "ghost", []ScheduledProbe{
		{VM: "ghost", ID: "p1", Spec: probe.Spec{Kind: probe.KindFileExists, Path: "/tmp", Exists: true}},
	})
	assert.Error(t, err)
}
