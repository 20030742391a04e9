// Package intar runs declarative infrastructure scenarios against
// throwaway qemu/KVM virtual machines, evaluates pass/fail probes against
// them, and reports the results.
//
// The top-level object is a Scenario, parsed from an HCL file naming a set
// of VM images, provisioning steps, and probes. ParseScenario validates
// every cross-reference (a VM's image must be declared, a VM's probe ids
// must be declared) before an Orchestrator ever boots anything.
//
// Orchestrator drives one run of a Scenario through a fixed sequence:
// resolve and verify VM images, boot every VM in parallel, wait for both
// an SSH session and the guest probe agent to answer on each, run a
// one-shot sweep of boot-phase probes, execute each VM's provisioning
// steps, then hand off to a Scheduler that re-evaluates post-phase probes
// on a ticking interval until the run is torn down.
//
// VMs
//
// Each VM gets two network interfaces: a qemu user-mode NAT segment used
// for the host's SSH and probe-agent connections, and a shared LAN segment
// the VMs in a scenario use to reach each other. Addresses on both are
// assigned sequentially as VMs appear in the scenario file, and installed
// into every VM's cloud-init network-config and /etc/hosts.
//
// Probes
//
// A probe checks one fact about a VM: a file's contents, a systemd unit's
// state, whether a TCP port is reachable, the exit code of a command, an
// HTTP response, or the state of a Kubernetes cluster reachable from
// within the VM. Probes run inside the guest via a small agent
// (cmd/intar-agent) reachable over a virtio-serial channel, never by SSHing
// in per-check.
package intar // import "intar.dev/intar"
