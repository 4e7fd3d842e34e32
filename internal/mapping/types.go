package mapping

import "github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"

// MappingRule binds one OPC UA node to one AAS submodel element, per
// spec.md §3. Transform is an optional expression over `value`; when empty
// the value passes through unchanged.
type MappingRule struct {
	NodeID       string
	SubmodelID   string
	IDShort      string
	XSDType      string
	Direction    aasmodel.Direction
	Transform    string
	SemanticID   string
	MinValue     *float64
	MaxValue     *float64

	// Name is an optional human label carried over from the configuration;
	// no code path reads it and it is never part of identity (spec.md §4
	// "Added for completeness").
	Name string
	// EndpointRef selects which configured OPC UA endpoint this rule binds
	// to, by name or URL; empty means "the single endpoint, or every
	// endpoint when multiple" per spec.md §4.4. The mapping engine itself
	// is endpoint-agnostic; EndpointRef is read by the wiring layer that
	// groups mappings per endpoint for subscription creation.
	EndpointRef string
}

// ResolvedMapping is a MappingRule after its node id and transform
// expression have been parsed and compiled, ready for repeated use by the
// engine without re-parsing on every sync tick.
type ResolvedMapping struct {
	Rule      MappingRule
	Node      NodeID
	Transform *Transform
}

func resolve(rule MappingRule) (*ResolvedMapping, error) {
	node, err := ParseNodeID(rule.NodeID)
	if err != nil {
		return nil, err
	}
	transform, err := CompileTransform(rule.Transform)
	if err != nil {
		return nil, err
	}
	return &ResolvedMapping{Rule: rule, Node: node, Transform: transform}, nil
}

func (m *ResolvedMapping) checkRange(value float64) error {
	if m.Rule.MinValue != nil && value < *m.Rule.MinValue {
		return &ValidationError{NodeID: m.Rule.NodeID, Value: value, Min: *m.Rule.MinValue, Max: rangeMaxOrZero(m.Rule.MaxValue)}
	}
	if m.Rule.MaxValue != nil && value > *m.Rule.MaxValue {
		return &ValidationError{NodeID: m.Rule.NodeID, Value: value, Min: rangeMinOrZero(m.Rule.MinValue), Max: *m.Rule.MaxValue}
	}
	return nil
}

func rangeMaxOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func rangeMinOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
