package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/typeconv"
)

func ptr(f float64) *float64 { return &f }

func sampleRule() MappingRule {
	return MappingRule{
		NodeID:     "ns=2;s=Temperature",
		SubmodelID: "urn:sm:1",
		IDShort:    "Temperature",
		XSDType:    typeconv.XSDDouble,
		Direction:  aasmodel.DirectionBidirectional,
		Transform:  "value * 1.8 + 32",
		MinValue:   ptr(-40),
		MaxValue:   ptr(250),
	}
}

func TestRegisterSubmodelIdempotent(t *testing.T) {
	e := NewEngine()
	rules := []MappingRule{sampleRule()}
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", rules))
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", rules))

	rm, err := e.lookupByNode("ns=2;s=Temperature")
	require.NoError(t, err)
	assert.Equal(t, "Temperature", rm.Rule.IDShort)
}

func TestRegisterSubmodelRejectsDuplicateNode(t *testing.T) {
	e := NewEngine()
	rule1 := sampleRule()
	rule2 := sampleRule()
	rule2.IDShort = "Temperature2"
	err := e.RegisterSubmodel("urn:sm:1", []MappingRule{rule1, rule2})
	require.Error(t, err)
}

func TestRegisterSubmodelReplacesPreviousRules(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{sampleRule()}))

	replacement := sampleRule()
	replacement.NodeID = "ns=2;s=NewTemp"
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{replacement}))

	_, err := e.lookupByNode("ns=2;s=Temperature")
	assert.Error(t, err, "stale node mapping should be gone after re-registration")

	rm, err := e.lookupByNode("ns=2;s=NewTemp")
	require.NoError(t, err)
	assert.Equal(t, "Temperature", rm.Rule.IDShort)
}

func TestTransformToAASAppliesForwardTransform(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{sampleRule()}))

	event := &aasmodel.DataChangeEvent{
		NodeID:      "ns=2;s=Temperature",
		Value:       20.0,
		VariantType: typeconv.VariantDouble,
	}
	submodelID, idShort, value, err := e.TransformToAAS(event)
	require.NoError(t, err)
	assert.Equal(t, "urn:sm:1", submodelID)
	assert.Equal(t, "Temperature", idShort)
	assert.Equal(t, 68.0, value) // 20C -> 68F
}

func TestTransformToAASDoesNotEnforceRange(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{sampleRule()}))

	event := &aasmodel.DataChangeEvent{
		NodeID:      "ns=2;s=Temperature",
		Value:       999.0,
		VariantType: typeconv.VariantDouble,
	}
	_, _, value, err := e.TransformToAAS(event)
	require.NoError(t, err)
	assert.Equal(t, 999.0*1.8+32, value) // outside [min,max], still accepted
}

func TestTransformToAASUnknownNode(t *testing.T) {
	e := NewEngine()
	event := &aasmodel.DataChangeEvent{NodeID: "ns=2;s=Unregistered", Value: 1.0, VariantType: typeconv.VariantDouble}
	_, _, _, err := e.TransformToAAS(event)
	require.Error(t, err)
	var merr *MappingError
	require.ErrorAs(t, err, &merr)
}

func TestTransformToOPCUAUsesSynthesizedInverse(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{sampleRule()}))

	nodeID, opcuaValue, variantTag, err := e.TransformToOPCUA("urn:sm:1", "Temperature", 68.0)
	require.NoError(t, err)
	assert.Equal(t, "ns=2;s=Temperature", nodeID)
	assert.Equal(t, typeconv.VariantDouble, variantTag)
	assert.InDelta(t, 20.0, opcuaValue.(float64), 1e-9)
}

func TestTransformToOPCUARangeViolationOnDeviceValue(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{sampleRule()}))

	// Inverts to (1000-32)/1.8 ~= 537.8, outside the rule's device-side
	// range [-40, 250], even though 1000 alone looks plausible in AAS units.
	_, _, _, err := e.TransformToOPCUA("urn:sm:1", "Temperature", 1000.0)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTransformToOPCUADirectionEnforced(t *testing.T) {
	e := NewEngine()
	rule := sampleRule()
	rule.Direction = aasmodel.DirectionOPCUAToAAS
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{rule}))

	_, _, _, err := e.TransformToOPCUA("urn:sm:1", "Temperature", 68.0)
	require.Error(t, err)
}

func TestTransformToOPCUANonInvertibleTransformFails(t *testing.T) {
	e := NewEngine()
	rule := sampleRule()
	rule.Transform = "abs(value)"
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []MappingRule{rule}))

	_, _, _, err := e.TransformToOPCUA("urn:sm:1", "Temperature", 20.0)
	require.Error(t, err)
}
