package probe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestPing(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Type)
}

func TestDecodeRequestCheckProbeValidatesEmbeddedSpec(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"check_probe","id":"1","spec":{"type":"file_content","path":"/x"}}`))
	assert.Error(t, err, "missing contains/regex should fail embedded validation")
}

func TestDecodeRequestCheckAll(t *testing.T) {
	line := []byte(`{"type":"check_all","probes":[
		{"id":"a","spec":{"type":"file_exists","path":"/etc/hosts"}},
		{"id":"b","spec":{"type":"tcp_ping","host":"127.0.0.1"}}
	]}`)
	req, err := DecodeRequest(line)
	require.NoError(t, err)
	require.Len(t, req.Probes, 2)
	assert.Equal(t, "a", req.Probes[0].ID)
	assert.Equal(t, KindTCPPing, req.Probes[1].Spec.Kind)
}

func TestResponseMarshalOmitsIrrelevantFields(t *testing.T) {
	data, err := json.Marshal(PongResponse(0))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "uptime_secs", "uptime_secs=0 must not be dropped")
	assert.NotContains(t, raw, "passed")
	assert.NotContains(t, raw, "results")
}

func TestResponseMarshalProbeResultKeepsFalsePassed(t *testing.T) {
	data, err := json.Marshal(ProbeResultResponse(Fail("x", "nope")))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	passed, ok := raw["passed"]
	require.True(t, ok, "passed=false must still be present on the wire")
	assert.Equal(t, false, passed)
}

func TestResponseMarshalAllResultsNeverEmitsNull(t *testing.T) {
	data, err := json.Marshal(AllResultsResponse(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"all_results","results":[]}`, string(data))
}

func TestResponseUnmarshalRoundTrip(t *testing.T) {
	original := ProbeResultResponse(Pass("x", "looks good"))
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}
