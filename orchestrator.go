package intar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"intar.dev/intar/internal/config"
	"intar.dev/intar/internal/netplan"
	"intar.dev/intar/internal/sshkey"
)

// RunState is the orchestrator's named state machine, advancing
// left-to-right and never backward except into Failed.
type RunState string

const (
	StateParsed         RunState = "parsed"
	StatePrepared       RunState = "prepared"
	StateBooting        RunState = "booting"
	StateAgentHandshake RunState = "agent_handshake"
	StateBootProbes     RunState = "boot_probes"
	StateSteps          RunState = "steps"
	StatePostProbes     RunState = "post_probes"
	StateRunning        RunState = "running"
	StateTearingDown    RunState = "tearing_down"
	StateDone           RunState = "done"
	StateFailed         RunState = "failed"
)

// handshakeDeadline bounds how long the orchestrator waits for a VM's SSH
// and agent channel to both answer.
const handshakeDeadline = 10 * time.Minute

// Orchestrator drives one scenario run through its full lifecycle: image
// fetch, parallel VM boot, agent handshake, boot-phase probes, steps,
// post-phase probes, and teardown, as a named state machine driven by
// errgroup fan-out.
type Orchestrator struct {
	scenario *Scenario
	dirs     config.Dirs
	run      *config.Run

	mu    sync.Mutex
	state RunState

	imageCacheDir string
	key           *sshkey.Pair

	vms      map[string]*VM
	ssh      map[string]*SSHChannel
	agents   map[string]*AgentChannel
	assigns  map[string]netplan.Assignment

	scheduler *Scheduler
}

// NewOrchestrator builds an Orchestrator for scenario, persisting state
// into run (already written to dirs.RunFile() by the caller).
// imageCacheDir is where downloaded disk images are cached across runs.
func NewOrchestrator(scenario *Scenario, dirs config.Dirs, run *config.Run, imageCacheDir string) *Orchestrator {
	return &Orchestrator{
		scenario:      scenario,
		dirs:          dirs,
		run:           run,
		state:         StateParsed,
		imageCacheDir: imageCacheDir,
		vms:           make(map[string]*VM),
		ssh:           make(map[string]*SSHChannel),
		agents:        make(map[string]*AgentChannel),
		assigns:       make(map[string]netplan.Assignment),
	}
}

func (o *Orchestrator) setState(s RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// State returns the orchestrator's current RunState.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run drives the full lifecycle to Running, then blocks serving the
// post-phase probe scheduler until ctx is cancelled, at which point it
// tears down and returns. It is the single entry point cmd/intar's `start`
// command calls.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()
		o.teardown(teardownCtx)
	}()

	if err := o.prepare(ctx); err != nil {
		o.setState(StateFailed)
		return err
	}
	o.setState(StatePrepared)

	if err := o.boot(ctx); err != nil {
		o.setState(StateFailed)
		return err
	}
	o.setState(StateBooting)

	if err := o.handshake(ctx); err != nil {
		o.setState(StateFailed)
		return err
	}
	o.setState(StateAgentHandshake)

	bootProbes := o.probesByPhase(PhaseBoot)
	if err := o.scheduler.RunBootPhase(ctx, bootProbes); err != nil {
		o.setState(StateFailed)
		return err
	}
	o.setState(StateBootProbes)

	if err := o.runSteps(ctx); err != nil {
		o.setState(StateFailed)
		return err
	}
	o.setState(StateSteps)

	postProbes := o.probesByPhase(PhasePost)
	o.setState(StatePostProbes)
	go o.scheduler.RunPostPhase(ctx, postProbes)

	o.setState(StateRunning)
	<-ctx.Done()

	o.setState(StateTearingDown)
	return nil
}

// prepare resolves image downloads, generates the run's ed25519 key, and
// allocates per-VM network addressing, all before any VM boots.
func (o *Orchestrator) prepare(ctx context.Context) error {
	key, err := sshkey.Generate()
	if err != nil {
		return Wrap(Internal, "generate run ssh key", err)
	}
	if err := key.WritePrivateKey(o.dirs.KeyFile()); err != nil {
		return Wrap(Internal, "persist run ssh key", err)
	}
	o.key = key

	vmDefs := o.scenario.VMDefinitions()
	names := make([]string, len(vmDefs))
	for i, vm := range vmDefs {
		names[i] = vm.Name
	}
	assignments, err := netplan.Allocate(names)
	if err != nil {
		return Wrap(ScenarioInvalid, "allocate vm addressing", err)
	}
	for _, a := range assignments {
		o.assigns[a.Name] = a
	}

	imageIDs := make(map[string]struct{})
	for _, vm := range vmDefs {
		imageIDs[vm.Image] = struct{}{}
	}
	for id := range imageIDs {
		img, ok := o.scenario.Image(id)
		if !ok {
			continue
		}
		if err := o.ensureImage(ctx, img); err != nil {
			return err
		}
	}

	return nil
}

// ensureImage downloads img's source for the host architecture into the
// image cache if it is not already present, then verifies its sha256
// against the declared hash. Checksum verification is the only integrity
// boundary; there is no signature chain.
func (o *Orchestrator) ensureImage(ctx context.Context, img Image) error {
	arch := runtime.GOARCH
	src, ok := img.Sources[arch]
	if !ok {
		return NewError(ImageUnavailable, fmt.Sprintf("image %q has no %s source", img.ID, arch))
	}

	dest := filepath.Join(o.imageCacheDir, img.ID+".img")
	if _, err := os.Stat(dest); err == nil {
		if err := verifyChecksum(dest, src.Hash); err == nil {
			return nil
		}
	}

	if err := os.MkdirAll(o.imageCacheDir, 0o755); err != nil {
		return Wrap(Internal, "create image cache dir", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Wrap(ImageUnavailable, fmt.Sprintf("build request for image %q", img.ID), err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Wrap(ImageUnavailable, fmt.Sprintf("download image %q", img.ID), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewError(ImageUnavailable, fmt.Sprintf("download image %q: http %d", img.ID, resp.StatusCode))
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Wrap(Internal, "create image download temp file", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return Wrap(ImageUnavailable, fmt.Sprintf("write image %q", img.ID), err)
	}
	f.Close()

	if err := verifyChecksum(tmp, src.Hash); err != nil {
		os.Remove(tmp)
		return Wrap(ImageUnavailable, fmt.Sprintf("image %q failed checksum verification", img.ID), err)
	}

	return os.Rename(tmp, dest)
}

func verifyChecksum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := "sha256:" + hex.EncodeToString(h.Sum(nil))
	if want != "" && got != want {
		return fmt.Errorf("checksum mismatch: want %s, got %s", want, got)
	}
	return nil
}

// boot creates cloud-init seeds and boots every VM in parallel via
// errgroup.
func (o *Orchestrator) boot(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, vmDef := range o.scenario.VMDefinitions() {
		vmDef := vmDef
		g.Go(func() error { return o.bootOne(ctx, vmDef) })
	}

	return g.Wait()
}

func (o *Orchestrator) bootOne(ctx context.Context, vmDef VMDefinition) error {
	assign := o.assigns[vmDef.Name]
	mgmtMAC := randomMAC()
	lanMAC := randomMAC()

	allAssignments := make([]netplan.Assignment, 0, len(o.assigns))
	for _, a := range o.assigns {
		allAssignments = append(allAssignments, a)
	}
	sort.Slice(allAssignments, func(i, j int) bool { return allAssignments[i].Name < allAssignments[j].Name })

	in := CloudInitInput{
		RunID:          o.run.ID,
		VM:             vmDef,
		Key:            o.key,
		Assignment:     assign,
		AllAssignments: allAssignments,
		LAN:            &netplan.LANInterface{MAC: lanMAC, IP4: assign.LANIP4},
		MgmtMAC:        mgmtMAC,
	}
	agentBinary, err := os.ReadFile(agentBinaryPath(runtime.GOARCH))
	if err == nil {
		in.AgentBinary = agentBinary
	}

	seedPath := o.dirs.SeedFile(vmDef.Name)
	if err := GenerateSeed(in, seedPath, o.dirs.LogDir(vmDef.Name)); err != nil {
		return err
	}

	vm := NewVM(vmDef.Name, o.dirs)
	sshPort, err := freeTCPPort()
	if err != nil {
		return Wrap(BootFailure, "allocate ssh forward port", err)
	}

	spec := VMBootSpec{
		Name:       vmDef.Name,
		CPU:        vmDef.CPU,
		MemoryMiB:  vmDef.MemoryMiB,
		DiskPath:   o.dirs.DiskFile(vmDef.Name),
		SeedPath:   seedPath,
		MgmtMAC:    mgmtMAC,
		LANMAC:     lanMAC,
		SSHPort:    sshPort,
		SerialSock: o.dirs.SerialSock(vmDef.Name),
	}
	if err := vm.Boot(spec); err != nil {
		return err
	}

	o.mu.Lock()
	o.vms[vmDef.Name] = vm
	if o.run.VMs == nil {
		o.run.VMs = make(map[string]*config.VM)
	}
	o.run.VMs[vmDef.Name] = &config.VM{
		Name:       vmDef.Name,
		DiskFile:   spec.DiskPath,
		SeedFile:   spec.SeedPath,
		SerialSock: spec.SerialSock,
		SSHPort:    sshPort,
		IPv4:       assign.MgmtIP4,
		MAC:        mgmtMAC,
		State:      string(VMBooting),
	}
	err = config.Write(o.dirs.RunFile(), o.run)
	o.mu.Unlock()
	return err
}

// handshake waits, per VM, for both SSH and the agent channel to answer,
// bounded by handshakeDeadline.
func (o *Orchestrator) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, handshakeDeadline)
	defer cancel()

	g, hctx := errgroup.WithContext(hctx)

	channels := make(map[string]*AgentChannel, len(o.vms))
	sshChannels := make(map[string]*SSHChannel, len(o.vms))
	var mu sync.Mutex

	for name, vm := range o.vms {
		name, vm := name, vm
		g.Go(func() error {
			if err := vm.WaitDiskReady(hctx); err != nil {
				return err
			}

			ch := NewSSHChannel(fmt.Sprintf("127.0.0.1:%d", vm.SSHPort()), o.key, "user")
			if err := ch.Dial(hctx); err != nil {
				return err
			}

			ac := NewAgentChannel(o.dirs.SerialSock(name))
			if err := ac.Connect(hctx, ctx); err != nil {
				return err
			}
			if _, err := ac.Ping(hctx, 30*time.Second); err != nil {
				return err
			}

			mu.Lock()
			channels[name] = ac
			sshChannels[name] = ch
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Wrap(BootFailure, "agent handshake", err)
	}

	o.mu.Lock()
	o.agents = channels
	o.ssh = sshChannels
	o.mu.Unlock()

	o.scheduler = NewScheduler(channels, o.dirs.ResultsFile())
	return nil
}

// runSteps executes every VM's steps in parallel, and within a VM,
// sequentially in declaration order.
func (o *Orchestrator) runSteps(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, vmDef := range o.scenario.VMDefinitions() {
		vmDef := vmDef
		ch := o.ssh[vmDef.Name]
		g.Go(func() error {
			for _, step := range vmDef.Steps {
				if err := RunStep(ctx, ch, vmDef.Name, step); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// probesByPhase groups each VM's probes that match phase into
// ScheduledProbes the scheduler can dispatch.
func (o *Orchestrator) probesByPhase(phase Phase) map[string][]ScheduledProbe {
	out := make(map[string][]ScheduledProbe)
	for _, vmDef := range o.scenario.VMDefinitions() {
		var probes []ScheduledProbe
		for _, pid := range vmDef.ProbeIDs {
			def, ok := o.scenario.Probe(pid)
			if !ok || def.Phase != phase {
				continue
			}
			probes = append(probes, ScheduledProbe{VM: vmDef.Name, ID: def.ID, Spec: def.Spec})
		}
		if len(probes) > 0 {
			out[vmDef.Name] = probes
		}
	}
	return out
}

// teardown closes every VM's agent and SSH channels, then shuts each VM
// down, graceful first. It does not copy or snapshot any log files. A run
// already in Failed stays Failed; any other run ends in Done.
func (o *Orchestrator) teardown(ctx context.Context) {
	o.mu.Lock()
	vms := make([]*VM, 0, len(o.vms))
	for _, vm := range o.vms {
		vms = append(vms, vm)
	}
	agents := o.agents
	sshChannels := o.ssh
	o.mu.Unlock()

	for _, ac := range agents {
		ac.Close()
	}
	for _, ch := range sshChannels {
		ch.Close()
	}

	var wg sync.WaitGroup
	for _, vm := range vms {
		wg.Add(1)
		go func(vm *VM) {
			defer wg.Done()
			vm.Shutdown(ctx, true)
		}(vm)
	}
	wg.Wait()

	o.mu.Lock()
	if o.state != StateFailed {
		o.state = StateDone
	}
	o.mu.Unlock()
}

// ResultStream exposes the scheduler's probe observation channel once the
// agent handshake has completed and the scheduler exists; nil beforehand.
func (o *Orchestrator) ResultStream() <-chan ProbeEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scheduler == nil {
		return nil
	}
	return o.scheduler.ResultStream()
}

// freeTCPPort asks the kernel for an ephemeral port and releases it
// immediately.
func freeTCPPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// agentBinaryPath resolves the embedded-agent binary to copy into a guest
// of the given architecture (amd64 or arm64, matching the guest's declared
// image source). INTAR_AGENT_BINARY overrides the lookup entirely for
// single-arch dev setups; otherwise the binary is expected alongside the
// orchestrator binary as intar-agent-<arch>.
func agentBinaryPath(arch string) string {
	if p := os.Getenv("INTAR_AGENT_BINARY"); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(os.Args[0]), fmt.Sprintf("intar-agent-%s", arch))
}
