package intar

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/internal/config"
	"intar.dev/intar/probe"
)

func testScenario() *Scenario {
	s := &Scenario{
		Name: "sample",
		VMs: []VMBlock{
			{Name: "web", Image: "ubuntu", Probes: []string{"svc-up", "tcp-up"}},
		},
	}
	s.imagesByID = map[string]Image{
		"ubuntu": {ID: "ubuntu", Sources: map[string]ImageSource{"amd64": {Arch: "amd64", URL: "http://example.invalid/x.img", Hash: ""}}},
	}
	s.probesByID = map[string]ProbeDefinition{
		"svc-up": {ID: "svc-up", Phase: PhaseBoot, Spec: probe.Spec{Kind: probe.KindService, Service: "nginx", ServiceState: probe.ServiceRunning}},
		"tcp-up": {ID: "tcp-up", Phase: PhasePost, Spec: probe.Spec{Kind: probe.KindTCPPing, Host: "10.11.0.10", Port: 80, Reachability: probe.Reachable}},
	}
	for i := range s.VMs {
		if s.VMs[i].CPU == 0 {
			s.VMs[i].CPU = defaultCPU
		}
		if s.VMs[i].MemoryMiB == 0 {
			s.VMs[i].MemoryMiB = defaultMemoryMiB
		}
	}
	return s
}

func TestNewOrchestratorStartsInParsed(t *testing.T) {
	dirs := config.Dirs{Root: t.TempDir()}
	o := NewOrchestrator(testScenario(), dirs, &config.Run{ID: "run-1"}, t.TempDir())
	assert.Equal(t, StateParsed, o.State())
}

func TestProbesByPhaseSplitsBootAndPost(t *testing.T) {
	dirs := config.Dirs{Root: t.TempDir()}
	o := NewOrchestrator(testScenario(), dirs, &config.Run{ID: "run-1"}, t.TempDir())

	boot := o.probesByPhase(PhaseBoot)
	require.Len(t, boot["web"], 1)
	assert.Equal(t, "svc-up", boot["web"][0].ID)

	post := o.probesByPhase(PhasePost)
	require.Len(t, post["web"], 1)
	assert.Equal(t, "tcp-up", post["web"][0].ID)
}

func TestProbesByPhaseOmitsVMWithNoMatchingProbes(t *testing.T) {
	s := testScenario()
	s.VMs[0].Probes = []string{"svc-up"}
	dirs := config.Dirs{Root: t.TempDir()}
	o := NewOrchestrator(s, dirs, &config.Run{ID: "run-1"}, t.TempDir())

	post := o.probesByPhase(PhasePost)
	assert.Empty(t, post)
}

func TestVerifyChecksumAcceptsMatchingHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.raw")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum := sha256.Sum256([]byte("hello world"))
	want := "sha256:" + hex.EncodeToString(sum[:])

	assert.NoError(t, verifyChecksum(path, want))
}

func TestVerifyChecksumRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.raw")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	assert.Error(t, verifyChecksum(path, "sha256:deadbeef"))
}

func TestVerifyChecksumAcceptsEmptyWant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.raw")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	assert.NoError(t, verifyChecksum(path, ""))
}

func TestFreeTCPPortReturnsUsablePort(t *testing.T) {
	port, err := freeTCPPort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}
