package probe

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports a single invalid field on a probe definition, with
// enough path information for a scenario author to find it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldErr(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Parse decodes and strictly validates a raw probe definition (the JSON
// object produced after flattening an HCL probe block). It rejects unknown
// kinds, missing required fields, and invalid combinations
// (e.g. a file_content probe with neither contains nor regex).
//
// No default is applied to raw before validation; defaults are filled in by
// UnmarshalJSON and only affect the returned Spec, never raw.
func Parse(raw json.RawMessage) (Spec, error) {
	var probe Spec
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Spec{}, fieldErr("type", "%s", err)
	}

	if err := validate(probe); err != nil {
		return Spec{}, err
	}

	return probe, nil
}

func validate(s Spec) error {
	switch s.Kind {
	case KindFileContent:
		if s.Path == "" {
			return fieldErr("path", "is required")
		}
		if s.Contains == nil && s.Regex == nil {
			return fieldErr("contains/regex", "at least one of contains or regex is required")
		}
	case KindFileExists:
		if s.Path == "" {
			return fieldErr("path", "is required")
		}
	case KindService:
		if s.Service == "" {
			return fieldErr("service", "is required")
		}
		switch s.ServiceState {
		case ServiceRunning, ServiceStopped, ServiceEnabled, ServiceDisabled:
		default:
			return fieldErr("state", "must be one of running, stopped, enabled, disabled, got %q", s.ServiceState)
		}
	case KindPort:
		if s.Port == 0 {
			return fieldErr("port", "is required")
		}
		switch s.PortSt {
		case PortListening, PortClosed:
		default:
			return fieldErr("state", "must be listening or closed, got %q", s.PortSt)
		}
		switch s.Protocol {
		case ProtocolTCP, ProtocolUDP:
		default:
			return fieldErr("protocol", "must be tcp or udp, got %q", s.Protocol)
		}
	case KindCommand:
		if s.Cmd == "" {
			return fieldErr("cmd", "is required")
		}
	case KindHTTP:
		if s.URL == "" {
			return fieldErr("url", "is required")
		}
		if s.Status == 0 {
			return fieldErr("status", "is required")
		}
	case KindK8sNodesReady:
		if s.ExpectedReady <= 0 {
			return fieldErr("expected_ready", "must be positive")
		}
	case KindK8sEndpointsNonEmpty:
		if s.Namespace == "" {
			return fieldErr("namespace", "is required")
		}
		if s.Name == "" {
			return fieldErr("name", "is required")
		}
	case KindTCPPing:
		if s.Host == "" {
			return fieldErr("host", "is required")
		}
		switch s.Reachability {
		case Reachable, Unreachable:
		default:
			return fieldErr("state", "must be reachable or unreachable, got %q", s.Reachability)
		}
	default:
		return fieldErr("type", "unknown probe kind %q", s.Kind)
	}

	return nil
}

// KindOf returns the dispatch tag for a Spec, for callers that only need to
// branch on kind without inspecting every field.
func KindOf(s Spec) Kind {
	return s.Kind
}
