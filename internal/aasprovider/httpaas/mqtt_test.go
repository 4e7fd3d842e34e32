package httpaas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopicExtractsSubmodelAndIDShort(t *testing.T) {
	encoded := "dXJuOmV4YW1wbGU6c206MQ" // base64url("urn:example:sm:1")
	topic := "aas/submodels/" + encoded + "/submodelElements/Temperature/value"

	submodelID, idShort := parseTopic(topic)
	assert.Equal(t, "urn:example:sm:1", submodelID)
	assert.Equal(t, "Temperature", idShort)
}

func TestParseTopicHandlesNestedIDShortPath(t *testing.T) {
	encoded := "dXJuOmV4YW1wbGU6c206MQ"
	topic := "aas/submodels/" + encoded + "/submodelElements/Group/Temperature/$value"

	_, idShort := parseTopic(topic)
	assert.Equal(t, "Temperature", idShort)
}

func TestParseTopicNoMatchReturnsEmpty(t *testing.T) {
	submodelID, idShort := parseTopic("some/unrelated/topic")
	assert.Empty(t, submodelID)
	assert.Empty(t, idShort)
}

func TestParsePayloadExplicitObject(t *testing.T) {
	payload := []byte(`{"idShort":"Temperature","submodelId":"sm1","value":21.5}`)
	candidates, err := parsePayload(payload, &MQTTConfig{}, "", "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "sm1", candidates[0].SubmodelID)
	assert.Equal(t, "Temperature", candidates[0].IDShort)
	assert.Equal(t, 21.5, candidates[0].Value)
}

func TestParsePayloadObjectFallsBackToTopicHints(t *testing.T) {
	payload := []byte(`{"value":21.5}`)
	candidates, err := parsePayload(payload, &MQTTConfig{}, "sm-from-topic", "idshort-from-topic")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "sm-from-topic", candidates[0].SubmodelID)
	assert.Equal(t, "idshort-from-topic", candidates[0].IDShort)
}

func TestParsePayloadPatchArray(t *testing.T) {
	payload := []byte(`{"patches":[{"idShort":"A","value":1},{"idShort":"B","value":2}]}`)
	candidates, err := parsePayload(payload, &MQTTConfig{}, "sm1", "")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "A", candidates[0].IDShort)
	assert.Equal(t, "sm1", candidates[0].SubmodelID)
	assert.Equal(t, "B", candidates[1].IDShort)
}

func TestParsePayloadScalarUsesTopicHints(t *testing.T) {
	payload := []byte(`21.5`)
	candidates, err := parsePayload(payload, &MQTTConfig{}, "sm1", "Temperature")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "sm1", candidates[0].SubmodelID)
	assert.Equal(t, "Temperature", candidates[0].IDShort)
	assert.Equal(t, 21.5, candidates[0].Value)
}

func TestParsePayloadInvalidJSON(t *testing.T) {
	_, err := parsePayload([]byte("not json"), &MQTTConfig{}, "", "")
	assert.Error(t, err)
}

func TestParsePayloadCustomKeyAliases(t *testing.T) {
	cfg := &MQTTConfig{
		PayloadIDShortKeys:  []string{"element"},
		PayloadSubmodelKeys: []string{"sm"},
		PayloadValueKeys:    []string{"val"},
	}
	payload := []byte(`{"element":"Temperature","sm":"sm1","val":21.5}`)
	candidates, err := parsePayload(payload, cfg, "", "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "sm1", candidates[0].SubmodelID)
	assert.Equal(t, "Temperature", candidates[0].IDShort)
	assert.Equal(t, 21.5, candidates[0].Value)
}
