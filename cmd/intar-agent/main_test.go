package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/probe"
)

func TestHandlePing(t *testing.T) {
	req := probe.PingRequest()
	line, err := json.Marshal(req)
	require.NoError(t, err)

	resp := handle(line, logr.Discard())
	bs, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Type       string `json:"type"`
		UptimeSecs uint64 `json:"uptime_secs"`
	}
	require.NoError(t, json.Unmarshal(bs, &decoded))
	assert.Equal(t, "pong", decoded.Type)
}

func TestHandleCheckProbeFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	req := probe.CheckProbeRequest("f1", probe.Spec{Kind: probe.KindFileExists, Path: path, Exists: true})
	line, err := json.Marshal(req)
	require.NoError(t, err)

	resp := handle(line, logr.Discard())
	assert.Equal(t, "probe_result", resp.Type)
	assert.True(t, resp.Passed)
	assert.Equal(t, "f1", resp.ID)
}

func TestHandleCheckProbeFileMissingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")

	req := probe.CheckProbeRequest("f1", probe.Spec{Kind: probe.KindFileExists, Path: path, Exists: true})
	line, err := json.Marshal(req)
	require.NoError(t, err)

	resp := handle(line, logr.Discard())
	assert.Equal(t, "probe_result", resp.Type)
	assert.False(t, resp.Passed)
}

func TestHandleCheckAllReturnsOneResultPerProbe(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	req := probe.CheckAllRequest([]probe.IDSpec{
		{ID: "a", Spec: probe.Spec{Kind: probe.KindFileExists, Path: present, Exists: true}},
		{ID: "b", Spec: probe.Spec{Kind: probe.KindFileExists, Path: "/does/not/exist", Exists: true}},
	})
	line, err := json.Marshal(req)
	require.NoError(t, err)

	resp := handle(line, logr.Discard())
	require.Equal(t, "all_results", resp.Type)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Passed)
	assert.False(t, resp.Results[1].Passed)
}

func TestHandleUnknownRequestTypeReturnsError(t *testing.T) {
	resp := handle([]byte(`{"type":"bogus"}`), logr.Discard())
	assert.True(t, resp.IsError())
}

func TestWriteReplySplicesReqID(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	writeReply(w, 42, probe.PongResponse(7), logr.Discard())

	var decoded struct {
		Type       string `json:"type"`
		UptimeSecs uint64 `json:"uptime_secs"`
		ReqID      uint64 `json:"req_id"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, uint64(42), decoded.ReqID)
	assert.Equal(t, uint64(7), decoded.UptimeSecs)
}

func TestUptimeSecondsIsNonNegative(t *testing.T) {
	assert.GreaterOrEqual(t, uptimeSeconds(), uint64(0))
}
