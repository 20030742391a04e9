package intar

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"intar.dev/intar/probe"
)

// Scenario is the parsed, validated top-level scenario file. It is
// immutable after ParseScenario returns; no component mutates it.
type Scenario struct {
	Name        string          `hcl:"name,attr"`
	Description string          `hcl:"description,optional"`
	Images      []ImageBlock    `hcl:"image,block"`
	Probes      []ProbeBlock    `hcl:"probe,block"`
	VMs         []VMBlock       `hcl:"vm,block"`

	imagesByID map[string]Image
	probesByID map[string]ProbeDefinition
}

// ImageBlock is the raw HCL shape of an `image` block.
type ImageBlock struct {
	ID      string        `hcl:"id,label"`
	Sources []SourceBlock `hcl:"source,block"`
}

// SourceBlock is one architecture's download source for an image.
type SourceBlock struct {
	Arch string `hcl:"arch,label"`
	URL  string `hcl:"url,attr"`
	Hash string `hcl:"hash,attr"`
}

// ProbeBlock is the raw HCL shape of a `probe` block. Kind-specific fields
// are decoded from the block's remaining body by probe.Parse after the
// body is flattened to JSON-ish attributes.
type ProbeBlock struct {
	ID          string   `hcl:"id,label"`
	Description string   `hcl:"description,optional"`
	Phase       string   `hcl:"phase,optional"`
	Type        string   `hcl:"type,attr"`
	Remain      hcl.Body `hcl:",remain"`
}

// VMBlock is the raw HCL shape of a `vm` block.
type VMBlock struct {
	Name      string       `hcl:"name,label"`
	CPU       int          `hcl:"cpu,optional"`
	MemoryMiB int          `hcl:"memory_mib,optional"`
	DiskGiB   int          `hcl:"disk_gib,optional"`
	Image     string       `hcl:"image,attr"`
	Probes    []string     `hcl:"probes,optional"`
	Steps     []StepBlock  `hcl:"step,block"`
}

// StepBlock is an ordered unit of provisioning.
type StepBlock struct {
	Name    string        `hcl:"name,label"`
	Actions []ActionBlock `hcl:"action,block"`
}

// ActionBlock is a tagged Action variant (file_write, file_delete, command,
// systemctl, k8s_namespace, k8s_deployment, k8s_service).
type ActionBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

// Image is the resolved, per-architecture download source set for one
// declared image.
type Image struct {
	ID      string
	Sources map[string]ImageSource // keyed by normalized arch: amd64, arm64
}

// ImageSource is one architecture's download URL and content hash.
type ImageSource struct {
	Arch string
	URL  string
	Hash string // "sha256:..."
}

// ProbeDefinition is a resolved probe: its identifier, human-readable
// description, evaluation phase, and typed Spec.
type ProbeDefinition struct {
	ID          string
	Description string
	Phase       Phase
	Spec        probe.Spec
}

// Phase is when a probe is first evaluated relative to the step runner.
type Phase string

const (
	PhaseBoot Phase = "boot"
	PhasePost Phase = "post"
)

// VMDefinition is a resolved VM: its resources, image reference, the
// subset of declared probes it is checked against, and its ordered Steps.
type VMDefinition struct {
	Name      string
	CPU       int
	MemoryMiB int
	DiskGiB   int
	Image     string
	ProbeIDs  []string
	Steps     []Step
}

// Step is a named, ordered sequence of Actions executed sequentially.
type Step struct {
	Name    string
	Actions []Action
}

// ActionKind tags an Action variant.
type ActionKind string

const (
	ActionFileWrite     ActionKind = "file_write"
	ActionFileDelete    ActionKind = "file_delete"
	ActionCommand       ActionKind = "command"
	ActionSystemctl     ActionKind = "systemctl"
	ActionK8sNamespace  ActionKind = "k8s_namespace"
	ActionK8sDeployment ActionKind = "k8s_deployment"
	ActionK8sService    ActionKind = "k8s_service"
)

// Action is a tagged union over the provisioning action kinds.
type Action struct {
	Kind ActionKind

	// file_write
	Path        string
	Content     string
	Permissions string // e.g. "0644"; defaults applied by the step runner

	// file_delete (reuses Path)

	// command
	Cmd string

	// systemctl
	Unit             string
	SystemctlVerb    string // start|stop|restart|enable|disable

	// k8s_namespace (reuses Name)
	Name string

	// k8s_deployment
	Image     string
	Replicas  int
	Port      int

	// k8s_service
	Selector     map[string]string
	ServicePort  int
	TargetPort   int
}

const defaultCPU = 2
const defaultMemoryMiB = 2048
const defaultDiskGiB = 10

// ParseScenario reads and validates path, producing an immutable Scenario.
// It returns an *Error of Kind ScenarioInvalid on any
// structural or referential problem: every VM's image must name a
// declared Image, and every probe identifier a VM references must be
// declared.
func ParseScenario(path string) (*Scenario, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ScenarioInvalid, fmt.Sprintf("read scenario: %s", err))
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, NewError(ScenarioInvalid, diags.Error())
	}

	var s Scenario
	if diags := gohcl.DecodeBody(file.Body, nil, &s); diags.HasErrors() {
		return nil, NewError(ScenarioInvalid, diags.Error())
	}

	if err := s.resolve(); err != nil {
		return nil, err
	}

	return &s, nil
}

// resolve flattens the raw HCL blocks into the typed lookup tables and
// enforces the scenario's referential invariants.
func (s *Scenario) resolve() error {
	s.imagesByID = make(map[string]Image, len(s.Images))
	for _, img := range s.Images {
		sources := make(map[string]ImageSource, len(img.Sources))
		for _, src := range img.Sources {
			sources[normalizeArch(src.Arch)] = ImageSource{
				Arch: normalizeArch(src.Arch),
				URL:  src.URL,
				Hash: src.Hash,
			}
		}
		if len(sources) == 0 {
			return NewError(ScenarioInvalid, fmt.Sprintf("image %q declares no sources", img.ID))
		}
		s.imagesByID[img.ID] = Image{ID: img.ID, Sources: sources}
	}

	s.probesByID = make(map[string]ProbeDefinition, len(s.Probes))
	for _, pb := range s.Probes {
		raw, err := probeBlockToJSON(pb)
		if err != nil {
			return NewError(ScenarioInvalid, fmt.Sprintf("probe %q: %s", pb.ID, err))
		}
		spec, err := probe.Parse(raw)
		if err != nil {
			return NewError(ScenarioInvalid, fmt.Sprintf("probe %q: %s", pb.ID, err))
		}

		phase := PhasePost
		if pb.Phase != "" {
			phase = Phase(pb.Phase)
		}
		if phase != PhaseBoot && phase != PhasePost {
			return NewError(ScenarioInvalid, fmt.Sprintf("probe %q: phase must be boot or post, got %q", pb.ID, pb.Phase))
		}

		s.probesByID[pb.ID] = ProbeDefinition{
			ID:          pb.ID,
			Description: pb.Description,
			Phase:       phase,
			Spec:        spec,
		}
	}

	for i := range s.VMs {
		vm := &s.VMs[i]
		if vm.CPU == 0 {
			vm.CPU = defaultCPU
		}
		if vm.MemoryMiB == 0 {
			vm.MemoryMiB = defaultMemoryMiB
		}
		if vm.DiskGiB == 0 {
			vm.DiskGiB = defaultDiskGiB
		}

		if _, ok := s.imagesByID[vm.Image]; !ok {
			return NewError(ScenarioInvalid, fmt.Sprintf("vm %q references undeclared image %q", vm.Name, vm.Image))
		}
		for _, pid := range vm.Probes {
			if _, ok := s.probesByID[pid]; !ok {
				return NewError(ScenarioInvalid, fmt.Sprintf("vm %q references undeclared probe %q", vm.Name, pid))
			}
		}
	}

	return nil
}

// Image looks up a declared image by id.
func (s *Scenario) Image(id string) (Image, bool) {
	img, ok := s.imagesByID[id]
	return img, ok
}

// Probe looks up a declared probe by id.
func (s *Scenario) Probe(id string) (ProbeDefinition, bool) {
	p, ok := s.probesByID[id]
	return p, ok
}

// VMDefinitions returns the resolved VM list in declaration order.
func (s *Scenario) VMDefinitions() []VMDefinition {
	out := make([]VMDefinition, 0, len(s.VMs))
	for _, vm := range s.VMs {
		steps := make([]Step, 0, len(vm.Steps))
		for _, sb := range vm.Steps {
			actions := make([]Action, 0, len(sb.Actions))
			for _, ab := range sb.Actions {
				actions = append(actions, actionBlockToAction(ab))
			}
			steps = append(steps, Step{Name: sb.Name, Actions: actions})
		}
		out = append(out, VMDefinition{
			Name:      vm.Name,
			CPU:       vm.CPU,
			MemoryMiB: vm.MemoryMiB,
			DiskGiB:   vm.DiskGiB,
			Image:     vm.Image,
			ProbeIDs:  vm.Probes,
			Steps:     steps,
		})
	}
	return out
}

// normalizeArch maps qemu's arch spellings ("x86_64", "aarch64") onto Go's
// GOARCH spellings.
func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
