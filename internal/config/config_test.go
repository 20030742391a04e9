package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirsLayout(t *testing.T) {
	root := t.TempDir()
	d, err := NewDirs(root, "run-1")
	require.NoError(t, err)

	assert.DirExists(t, d.Root)
	assert.DirExists(t, d.LogDir("web"))
	assert.DirExists(t, d.VMDir("web"))
	assert.Equal(t, d.Root+"/run.json", d.RunFile())
	assert.Equal(t, d.Root+"/id_ed25519", d.KeyFile())
}

func TestProbeResultLineRoundTrip(t *testing.T) {
	line := ProbeResultLine{
		ProbeID:     "svc-up",
		VMName:      "web",
		Passed:      false,
		Message:     "service nginx is not active",
		EvaluatedAt: time.Unix(1700000000, 0).UTC(),
	}

	bs, err := json.Marshal(line)
	require.NoError(t, err)

	var decoded ProbeResultLine
	require.NoError(t, json.Unmarshal(bs, &decoded))
	assert.Equal(t, line, decoded)
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, err := NewDirs(root, "run-1")
	require.NoError(t, err)

	run := &Run{
		ID:        "run-1",
		Dir:       d.Root,
		Scenario:  "scenario.hcl",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		State:     "Booting",
		VMs: map[string]*VM{
			"web": {Name: "web", IPv4: "10.77.0.2", State: "Running"},
		},
	}
	require.NoError(t, Write(d.RunFile(), run))

	loaded, err := Read(d.RunFile())
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, "10.77.0.2", loaded.VMs["web"].IPv4)
}

func TestLatestRunPicksNewestCreatedAt(t *testing.T) {
	root := t.TempDir()

	older, err := NewDirs(root, "run-old")
	require.NoError(t, err)
	require.NoError(t, Write(older.RunFile(), &Run{
		ID: "run-old", CreatedAt: time.Unix(1000, 0).UTC(),
	}))

	newer, err := NewDirs(root, "run-new")
	require.NoError(t, err)
	require.NoError(t, Write(newer.RunFile(), &Run{
		ID: "run-new", CreatedAt: time.Unix(2000, 0).UTC(),
	}))

	latest, err := LatestRun(root)
	require.NoError(t, err)
	assert.Equal(t, newer.Root, latest)
}
