// Package config persists and reloads the state of an intar run: the
// parsed scenario, per-VM runtime metadata, and the run directory layout
// itself. It has no knowledge of qemu or SSH; callers populate the
// structures as they boot VMs and run steps, and save them so `intar logs`
// and `intar ssh` can rediscover a run after `start` exits.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Run is the top-level record written once at run creation to
// <run-dir>/run.json, then rewritten as VM state changes.
type Run struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	Scenario  string    `json:"scenario_path"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state"`

	VMs map[string]*VM `json:"vms"`
}

// VM is the per-VM runtime record embedded in Run.VMs.
type VM struct {
	Name       string `json:"name"`
	DiskFile   string `json:"disk_file"`
	SeedFile   string `json:"seed_file"`
	SerialSock string `json:"serial_sock"`
	SSHPort    int    `json:"ssh_port"`
	IPv4       string `json:"ipv4"`
	MAC        string `json:"mac"`
	PID        int    `json:"pid,omitempty"`
	State      string `json:"state"`
}

// Dirs is the directory layout for a single run, rooted at Root:
// "<state>/intar/runs/<run_id>/".
type Dirs struct {
	Root string
}

// StateRoot returns <XDG_STATE_HOME or HOME/.local/state>/intar/runs.
func StateRoot() (string, error) {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "intar", "runs"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state root: %w", err)
	}
	return filepath.Join(home, ".local", "state", "intar", "runs"), nil
}

// NewDirs creates the full directory skeleton for runID under root and
// returns a Dirs rooted at it.
func NewDirs(root, runID string) (Dirs, error) {
	d := Dirs{Root: filepath.Join(root, runID)}
	for _, sub := range []string{"logs"} {
		if err := os.MkdirAll(filepath.Join(d.Root, sub), 0o755); err != nil {
			return Dirs{}, fmt.Errorf("create run directory: %w", err)
		}
	}
	return d, nil
}

// ProbeResultLine is one row of results.ndjson: a single probe
// observation for a single VM at a point in time.
type ProbeResultLine struct {
	ProbeID     string    `json:"probe_id"`
	VMName      string    `json:"vm"`
	Passed      bool      `json:"passed"`
	Message     string    `json:"message"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

func (d Dirs) RunFile() string      { return filepath.Join(d.Root, "run.json") }
func (d Dirs) ScenarioCopy() string { return filepath.Join(d.Root, "scenario.hcl") }
func (d Dirs) ResultsFile() string  { return filepath.Join(d.Root, "results.ndjson") }
func (d Dirs) KeyFile() string      { return filepath.Join(d.Root, "id_ed25519") }

func (d Dirs) VMDir(vm string) string {
	dir := filepath.Join(d.Root, vm)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func (d Dirs) DiskFile(vm string) string { return filepath.Join(d.VMDir(vm), "disk.qcow2") }
func (d Dirs) SeedFile(vm string) string { return filepath.Join(d.VMDir(vm), "seed.img") }

func (d Dirs) SerialSock(vm string) string {
	return filepath.Join(d.Root, fmt.Sprintf("%s-serial.sock", vm))
}

func (d Dirs) SSHPortFile(vm string) string {
	return filepath.Join(d.Root, fmt.Sprintf("%s-ssh.port", vm))
}

func (d Dirs) LogDir(vm string) string {
	dir := filepath.Join(d.Root, "logs", vm)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func (d Dirs) ConsoleLog(vm string) string  { return filepath.Join(d.LogDir(vm), "console.log") }
func (d Dirs) SSHLog(vm string) string      { return filepath.Join(d.LogDir(vm), "ssh.log") }
func (d Dirs) UserDataCopy(vm string) string { return filepath.Join(d.LogDir(vm), "user-data.yaml") }

// Read loads a Run from its run.json.
func Read(path string) (*Run, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(bs, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Write atomically persists run to path: the top-level run file can be
// rewritten while per-VM tasks are still writing their own subdirectories,
// so this writes to a temp file and renames into place rather than
// truncating in place.
func Write(path string, run *Run) error {
	bs, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LatestRun returns the run directory with the most recent CreatedAt under
// root, for commands invoked without an explicit --run.
func LatestRun(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	var best string
	var bestTime time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := Read(filepath.Join(root, e.Name(), "run.json"))
		if err != nil {
			continue
		}
		if run.CreatedAt.After(bestTime) {
			bestTime = run.CreatedAt
			best = filepath.Join(root, e.Name())
		}
	}
	if best == "" {
		return "", fmt.Errorf("no runs found under %s", root)
	}
	return best, nil
}
