// Package probe defines the probe spec and wire protocol shared by the host
// orchestrator and the guest agent. It has no knowledge of qemu, SSH, or
// cloud-init; it only knows how to describe, validate, and (on the guest
// side, see cmd/intar-agent) evaluate a probe.
package probe

import (
	"encoding/json"
	"fmt"
)

// Kind tags the variant of a Spec.
type Kind string

const (
	KindFileContent         Kind = "file_content"
	KindFileExists          Kind = "file_exists"
	KindService             Kind = "service"
	KindPort                Kind = "port"
	KindCommand              Kind = "command"
	KindHTTP                 Kind = "http"
	KindK8sNodesReady        Kind = "k8s_nodes_ready"
	KindK8sEndpointsNonEmpty Kind = "k8s_endpoints_nonempty"
	KindTCPPing              Kind = "tcp_ping"
)

// ServiceState is the expected systemd unit state for a Service probe.
type ServiceState string

const (
	ServiceRunning  ServiceState = "running"
	ServiceStopped  ServiceState = "stopped"
	ServiceEnabled  ServiceState = "enabled"
	ServiceDisabled ServiceState = "disabled"
)

// PortState is the expected listen state for a Port probe.
type PortState string

const (
	PortListening PortState = "listening"
	PortClosed    PortState = "closed"
)

// Protocol is the transport a Port probe checks.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ReachabilityState is the expected outcome of a TcpPing probe.
type ReachabilityState string

const (
	Reachable   ReachabilityState = "reachable"
	Unreachable ReachabilityState = "unreachable"
)

// Spec is a tagged union over the probe kinds. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Spec struct {
	Kind Kind

	// file_content
	Path     string
	Contains *string
	Regex    *string

	// file_exists (reuses Path)
	Exists bool

	// service
	Service      string
	ServiceState ServiceState

	// port
	Port     uint16
	PortSt   PortState
	Protocol Protocol

	// command
	Cmd            string
	ExitCode       int
	StdoutContains *string

	// http
	URL          string
	Status       int
	BodyContains *string

	// k8s_nodes_ready
	ExpectedReady int
	Kubeconfig    *string
	Context       *string

	// k8s_endpoints_nonempty
	Namespace string
	Name      string

	// tcp_ping
	Host            string
	TimeoutMS       int
	Reachability    ReachabilityState
}

// jsonSpec is the wire shape: a flat object with a "type" discriminant.
type jsonSpec struct {
	Type string `json:"type"`

	Path     string  `json:"path,omitempty"`
	Contains *string `json:"contains,omitempty"`
	Regex    *string `json:"regex,omitempty"`
	Exists   *bool   `json:"exists,omitempty"`

	Service string `json:"service,omitempty"`
	State   string `json:"state,omitempty"`

	Port     *int   `json:"port,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	Cmd            string  `json:"cmd,omitempty"`
	ExitCode       *int    `json:"exit_code,omitempty"`
	StdoutContains *string `json:"stdout_contains,omitempty"`

	URL          string  `json:"url,omitempty"`
	Status       *int    `json:"status,omitempty"`
	BodyContains *string `json:"body_contains,omitempty"`

	ExpectedReady *int    `json:"expected_ready,omitempty"`
	Kubeconfig    *string `json:"kubeconfig,omitempty"`
	Context       *string `json:"context,omitempty"`

	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name,omitempty"`

	Host      string `json:"host,omitempty"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

// MarshalJSON encodes the Spec in its tagged wire form.
func (s Spec) MarshalJSON() ([]byte, error) {
	j := jsonSpec{Type: string(s.Kind)}

	switch s.Kind {
	case KindFileContent:
		j.Path = s.Path
		j.Contains = s.Contains
		j.Regex = s.Regex
	case KindFileExists:
		j.Path = s.Path
		exists := s.Exists
		j.Exists = &exists
	case KindService:
		j.Service = s.Service
		j.State = string(s.ServiceState)
	case KindPort:
		port := int(s.Port)
		j.Port = &port
		j.State = string(s.PortSt)
		j.Protocol = string(s.Protocol)
	case KindCommand:
		j.Cmd = s.Cmd
		code := s.ExitCode
		j.ExitCode = &code
		j.StdoutContains = s.StdoutContains
	case KindHTTP:
		j.URL = s.URL
		status := s.Status
		j.Status = &status
		j.BodyContains = s.BodyContains
	case KindK8sNodesReady:
		ready := s.ExpectedReady
		j.ExpectedReady = &ready
		j.Kubeconfig = s.Kubeconfig
		j.Context = s.Context
	case KindK8sEndpointsNonEmpty:
		j.Namespace = s.Namespace
		j.Name = s.Name
		j.Kubeconfig = s.Kubeconfig
		j.Context = s.Context
	case KindTCPPing:
		j.Host = s.Host
		port := int(s.Port)
		j.Port = &port
		timeout := s.TimeoutMS
		j.TimeoutMS = &timeout
		j.State = string(s.Reachability)
	default:
		return nil, fmt.Errorf("probe: unknown kind %q", s.Kind)
	}

	return json.Marshal(j)
}

// UnmarshalJSON decodes the tagged wire form into a Spec, applying
// kind-specific defaults (e.g. tcp_ping defaults to port 1, timeout
// 2000ms, state reachable).
func (s *Spec) UnmarshalJSON(data []byte) error {
	var j jsonSpec
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	kind := Kind(j.Type)
	switch kind {
	case KindFileContent:
		*s = Spec{Kind: kind, Path: j.Path, Contains: j.Contains, Regex: j.Regex}
	case KindFileExists:
		exists := true
		if j.Exists != nil {
			exists = *j.Exists
		}
		*s = Spec{Kind: kind, Path: j.Path, Exists: exists}
	case KindService:
		*s = Spec{Kind: kind, Service: j.Service, ServiceState: ServiceState(j.State)}
	case KindPort:
		port := 0
		if j.Port != nil {
			port = *j.Port
		}
		protocol := ProtocolTCP
		if j.Protocol != "" {
			protocol = Protocol(j.Protocol)
		}
		*s = Spec{Kind: kind, Port: uint16(port), PortSt: PortState(j.State), Protocol: protocol}
	case KindCommand:
		code := 0
		if j.ExitCode != nil {
			code = *j.ExitCode
		}
		*s = Spec{Kind: kind, Cmd: j.Cmd, ExitCode: code, StdoutContains: j.StdoutContains}
	case KindHTTP:
		status := 0
		if j.Status != nil {
			status = *j.Status
		}
		*s = Spec{Kind: kind, URL: j.URL, Status: status, BodyContains: j.BodyContains}
	case KindK8sNodesReady:
		ready := 0
		if j.ExpectedReady != nil {
			ready = *j.ExpectedReady
		}
		*s = Spec{Kind: kind, ExpectedReady: ready, Kubeconfig: j.Kubeconfig, Context: j.Context}
	case "k8s_endpoints_nonempty":
		*s = Spec{Kind: KindK8sEndpointsNonEmpty, Namespace: j.Namespace, Name: j.Name, Kubeconfig: j.Kubeconfig, Context: j.Context}
	case KindTCPPing:
		port := 1
		if j.Port != nil {
			port = *j.Port
		}
		timeout := 2000
		if j.TimeoutMS != nil {
			timeout = *j.TimeoutMS
		}
		state := Reachable
		if j.State != "" {
			state = ReachabilityState(j.State)
		}
		*s = Spec{Kind: kind, Host: j.Host, Port: uint16(port), TimeoutMS: timeout, Reachability: state}
	default:
		return fmt.Errorf("probe: unknown kind %q", j.Type)
	}

	return nil
}
