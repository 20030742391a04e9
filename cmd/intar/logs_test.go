package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/internal/config"
)

func TestRunLogsPrintsConsoleLog(t *testing.T) {
	root := t.TempDir()
	d, err := config.NewDirs(root, "run-1")
	require.NoError(t, err)

	consolePath := d.ConsoleLog("web")
	require.NoError(t, os.WriteFile(consolePath, []byte("boot ok\n"), 0o644))

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()

	logsFlags.stateDir = root
	logsFlags.runID = "run-1"
	logsFlags.vm = "web"
	logsFlags.logType = "console"
	defer func() { logsFlags = struct {
		stateDir string
		runID    string
		vm       string
		logType  string
	}{} }()

	require.NoError(t, runLogs(logsCmd, nil))
	assert.Equal(t, "boot ok\n", buf.String())
}

func TestRunLogsUnknownLogTypeFails(t *testing.T) {
	root := t.TempDir()
	_, err := config.NewDirs(root, "run-1")
	require.NoError(t, err)

	logsFlags.stateDir = root
	logsFlags.runID = "run-1"
	logsFlags.vm = "web"
	logsFlags.logType = "bogus"
	defer func() { logsFlags = struct {
		stateDir string
		runID    string
		vm       string
		logType  string
	}{} }()

	err = runLogs(logsCmd, nil)
	assert.Error(t, err)
}

func TestRunLogsMissingFileFails(t *testing.T) {
	root := t.TempDir()
	_, err := config.NewDirs(root, "run-1")
	require.NoError(t, err)

	logsFlags.stateDir = root
	logsFlags.runID = "run-1"
	logsFlags.vm = "web"
	logsFlags.logType = "console"
	defer func() { logsFlags = struct {
		stateDir string
		runID    string
		vm       string
		logType  string
	}{} }()

	err = runLogs(logsCmd, nil)
	assert.True(t, os.IsNotExist(err))
}
