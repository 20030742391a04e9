package probe

import (
	"encoding/json"
	"fmt"
)

// Request is one line of the host→guest virtio-serial wire protocol.
// Exactly one Request* constructor should be used to build a well-formed
// value; the zero value is not a valid request.
type Request struct {
	Type string `json:"type"`

	// check_probe
	ID   string `json:"id,omitempty"`
	Spec *Spec  `json:"spec,omitempty"`

	// check_all
	Probes []IDSpec `json:"probes,omitempty"`
}

// IDSpec pairs a probe identifier with its spec, used in check_all requests
// and all_results responses.
type IDSpec struct {
	ID   string `json:"id"`
	Spec Spec   `json:"spec"`
}

func PingRequest() Request { return Request{Type: "ping"} }

func CheckProbeRequest(id string, spec Spec) Request {
	return Request{Type: "check_probe", ID: id, Spec: &spec}
}

func CheckAllRequest(probes []IDSpec) Request {
	return Request{Type: "check_all", Probes: probes}
}

// Result is the outcome of evaluating a single probe.
type Result struct {
	ID      string `json:"id"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

func Pass(id, message string) Result { return Result{ID: id, Passed: true, Message: message} }
func Fail(id, message string) Result { return Result{ID: id, Passed: false, Message: message} }

// Response is one line of the guest→host wire protocol. Only the fields
// relevant to Type are populated; MarshalJSON emits just those.
type Response struct {
	Type string

	// probe_result
	ID      string
	Passed  bool
	Message string

	// all_results
	Results []Result

	// pong
	UptimeSecs uint64
}

func PongResponse(uptimeSecs uint64) Response {
	return Response{Type: "pong", UptimeSecs: uptimeSecs}
}

func ProbeResultResponse(r Result) Response {
	return Response{Type: "probe_result", ID: r.ID, Passed: r.Passed, Message: r.Message}
}

func AllResultsResponse(results []Result) Response {
	return Response{Type: "all_results", Results: results}
}

func ErrorResponse(message string) Response {
	return Response{Type: "error", Message: message}
}

// IsError reports whether r is an {"type":"error",...} response.
func (r Response) IsError() bool { return r.Type == "error" }

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case "pong":
		return json.Marshal(struct {
			Type       string `json:"type"`
			UptimeSecs uint64 `json:"uptime_secs"`
		}{r.Type, r.UptimeSecs})
	case "probe_result":
		return json.Marshal(struct {
			Type    string `json:"type"`
			ID      string `json:"id"`
			Passed  bool   `json:"passed"`
			Message string `json:"message"`
		}{r.Type, r.ID, r.Passed, r.Message})
	case "all_results":
		results := r.Results
		if results == nil {
			results = []Result{}
		}
		return json.Marshal(struct {
			Type    string   `json:"type"`
			Results []Result `json:"results"`
		}{r.Type, results})
	case "error":
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{r.Type, r.Message})
	default:
		return nil, fmt.Errorf("probe: unknown response type %q", r.Type)
	}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       string   `json:"type"`
		ID         string   `json:"id"`
		Passed     bool     `json:"passed"`
		Message    string   `json:"message"`
		Results    []Result `json:"results"`
		UptimeSecs uint64   `json:"uptime_secs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Response{
		Type:       raw.Type,
		ID:         raw.ID,
		Passed:     raw.Passed,
		Message:    raw.Message,
		Results:    raw.Results,
		UptimeSecs: raw.UptimeSecs,
	}
	return nil
}

// DecodeRequest parses a single ndjson line into a Request, validating its
// embedded Spec (for check_probe/check_all) with Parse's rules.
func DecodeRequest(line []byte) (Request, error) {
	var raw struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Spec   json.RawMessage `json:"spec"`
		Probes []struct {
			ID   string          `json:"id"`
			Spec json.RawMessage `json:"spec"`
		} `json:"probes"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Request{}, err
	}

	switch raw.Type {
	case "ping":
		return PingRequest(), nil
	case "check_probe":
		spec, err := Parse(raw.Spec)
		if err != nil {
			return Request{}, err
		}
		return CheckProbeRequest(raw.ID, spec), nil
	case "check_all":
		probes := make([]IDSpec, 0, len(raw.Probes))
		for _, p := range raw.Probes {
			spec, err := Parse(p.Spec)
			if err != nil {
				return Request{}, err
			}
			probes = append(probes, IDSpec{ID: p.ID, Spec: spec})
		}
		return CheckAllRequest(probes), nil
	default:
		return Request{}, fmt.Errorf("probe: unknown request type %q", raw.Type)
	}
}
