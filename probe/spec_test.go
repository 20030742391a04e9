package probe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesTCPPingDefaults(t *testing.T) {
	spec, err := Parse(json.RawMessage(`{"type":"tcp_ping","host":"10.0.0.5"}`))
	require.NoError(t, err)

	assert.Equal(t, uint16(1), spec.Port)
	assert.Equal(t, 2000, spec.TimeoutMS)
	assert.Equal(t, Reachable, spec.Reachability)
}

func TestParseDoesNotMutateDefaultsIntoZeroValueFields(t *testing.T) {
	raw := json.RawMessage(`{"type":"tcp_ping","host":"10.0.0.5","port":22}`)
	spec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(22), spec.Port)

	// raw itself must be untouched by default application.
	var echo map[string]any
	require.NoError(t, json.Unmarshal(raw, &echo))
	_, hasTimeout := echo["timeout_ms"]
	assert.False(t, hasTimeout)
}

func TestParseRejectsFileContentWithoutContainsOrRegex(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"type":"file_content","path":"/etc/hosts"}`))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "contains/regex", verr.Field)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"type":"frobnicate"}`))
	assert.Error(t, err)
}

func TestParseRejectsInvalidServiceState(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"type":"service","service":"sshd","state":"sideways"}`))
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "state", verr.Field)
}

func TestSpecRoundTripPreservesKindSpecificFields(t *testing.T) {
	contains := "ok"
	original := Spec{Kind: KindFileContent, Path: "/etc/motd", Contains: &contains}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Spec
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.Equal(t, original.Path, decoded.Path)
	require.NotNil(t, decoded.Contains)
	assert.Equal(t, contains, *decoded.Contains)
}

func TestParseK8sEndpointsNonEmpty(t *testing.T) {
	spec, err := Parse(json.RawMessage(`{"type":"k8s_endpoints_nonempty","namespace":"default","name":"web"}`))
	require.NoError(t, err)
	assert.Equal(t, KindK8sEndpointsNonEmpty, spec.Kind)
	assert.Equal(t, "default", spec.Namespace)
}
