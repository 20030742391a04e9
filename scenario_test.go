package intar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intar.dev/intar/probe"
)

const sampleScenario = `
name = "k3s-selector-bug"
description = "single-node k3s with a broken service selector"

image "ubuntu-2204" {
  source "amd64" {
    url  = "https://cloud-images.example/ubuntu-22.04-amd64.img"
    hash = "sha256:deadbeef"
  }
}

probe "web-service-running" {
  type        = "service"
  description = "nginx should be running"
  phase       = "post"
  service     = "nginx"
  state       = "running"
}

probe "web-reachable" {
  type = "tcp_ping"
  host = "web.intar"
  port = 80
}

vm "web" {
  cpu        = 1
  memory_mib = 1024
  image      = "ubuntu-2204"
  probes     = ["web-service-running", "web-reachable"]

  step "install" {
    action "command" {
      cmd = "apt-get install -y nginx"
    }
    action "systemctl" {
      unit   = "nginx"
      action = "start"
    }
  }
}
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseScenarioResolvesReferences(t *testing.T) {
	path := writeScenario(t, sampleScenario)

	s, err := ParseScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "k3s-selector-bug", s.Name)

	img, ok := s.Image("ubuntu-2204")
	require.True(t, ok)
	assert.Contains(t, img.Sources, "amd64")

	probeDef, ok := s.Probe("web-service-running")
	require.True(t, ok)
	assert.Equal(t, probe.KindService, probeDef.Spec.Kind)
	assert.Equal(t, PhasePost, probeDef.Phase)

	vms := s.VMDefinitions()
	require.Len(t, vms, 1)
	assert.Equal(t, "web", vms[0].Name)
	assert.Equal(t, 1, vms[0].CPU)
	assert.ElementsMatch(t, []string{"web-service-running", "web-reachable"}, vms[0].ProbeIDs)
	require.Len(t, vms[0].Steps, 1)
	assert.Equal(t, "install", vms[0].Steps[0].Name)
	require.Len(t, vms[0].Steps[0].Actions, 2)
	assert.Equal(t, ActionCommand, vms[0].Steps[0].Actions[0].Kind)
	assert.Equal(t, ActionSystemctl, vms[0].Steps[0].Actions[1].Kind)
}

func TestParseScenarioRejectsUndeclaredImage(t *testing.T) {
	path := writeScenario(t, `
name = "broken"
vm "lonely" {
  image = "does-not-exist"
}
`)
	_, err := ParseScenario(path)
	require.Error(t, err)
	assert.Equal(t, ScenarioInvalid, KindOf(err))
}

func TestParseScenarioRejectsUndeclaredProbe(t *testing.T) {
	path := writeScenario(t, `
name = "broken"

image "img" {
  source "amd64" {
    url  = "https://example/img"
    hash = "sha256:aaaa"
  }
}

vm "lonely" {
  image  = "img"
  probes = ["missing-probe"]
}
`)
	_, err := ParseScenario(path)
	require.Error(t, err)
	assert.Equal(t, ScenarioInvalid, KindOf(err))
}

func TestParseScenarioAppliesVMDefaults(t *testing.T) {
	path := writeScenario(t, `
name = "defaults"

image "img" {
  source "amd64" {
    url  = "https://example/img"
    hash = "sha256:aaaa"
  }
}

vm "bare" {
  image = "img"
}
`)
	s, err := ParseScenario(path)
	require.NoError(t, err)

	vms := s.VMDefinitions()
	require.Len(t, vms, 1)
	assert.Equal(t, defaultCPU, vms[0].CPU)
	assert.Equal(t, defaultMemoryMiB, vms[0].MemoryMiB)
	assert.Equal(t, defaultDiskGiB, vms[0].DiskGiB)
}
