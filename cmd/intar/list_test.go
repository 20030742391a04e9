package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/internal/config"
)

func TestRunListPrintsKnownRuns(t *testing.T) {
	root := t.TempDir()

	d, err := config.NewDirs(root, "run-1")
	require.NoError(t, err)
	require.NoError(t, config.Write(d.RunFile(), &config.Run{
		ID:        "run-1",
		Scenario:  "demo.hcl",
		State:     "Running",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}))

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()

	listFlags.stateDir = root
	defer func() { listFlags.stateDir = "" }()

	require.NoError(t, runList(listCmd, nil))
	assert.Contains(t, buf.String(), "run-1")
	assert.Contains(t, buf.String(), "demo.hcl")
}

func TestRunListNoRunsDirPrintsMessage(t *testing.T) {
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()

	listFlags.stateDir = t.TempDir() + "/does-not-exist"
	defer func() { listFlags.stateDir = "" }()

	require.NoError(t, runList(listCmd, nil))
	assert.Contains(t, buf.String(), "no runs found")
}
