package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/internal/config"
)

func TestResolveRunDirWithExplicitRunID(t *testing.T) {
	dir, err := resolveRunDir("/state/runs", "run-42")
	require.NoError(t, err)
	assert.Equal(t, "/state/runs/run-42", dir)
}

func TestResolveRunDirDefaultsToLatest(t *testing.T) {
	root := t.TempDir()

	older, err := config.NewDirs(root, "run-old")
	require.NoError(t, err)
	require.NoError(t, config.Write(older.RunFile(), &config.Run{
		ID: "run-old", CreatedAt: time.Unix(1000, 0).UTC(),
	}))

	newer, err := config.NewDirs(root, "run-new")
	require.NoError(t, err)
	require.NoError(t, config.Write(newer.RunFile(), &config.Run{
		ID: "run-new", CreatedAt: time.Unix(2000, 0).UTC(),
	}))

	dir, err := resolveRunDir(root, "")
	require.NoError(t, err)
	assert.Equal(t, newer.Root, dir)
}

func TestStateRootPrefersOverride(t *testing.T) {
	root, err := stateRoot("/custom/state")
	require.NoError(t, err)
	assert.Equal(t, "/custom/state", root)
}

func TestStateRootFallsBackToXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/xdg-state")

	root, err := stateRoot("")
	require.NoError(t, err)
	assert.Equal(t, "/xdg-state/intar/runs", root)
}
