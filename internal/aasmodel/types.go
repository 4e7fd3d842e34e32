// Package aasmodel holds the AAS-side domain types shared by the mapping
// engine, the control/monitoring pipelines, and both AAS provider
// implementations: submodels, properties, and the in-flight event/request
// records that flow between the OPC UA and AAS sides of the bridge.
package aasmodel

import "time"

// Submodel is a named collection of SubmodelElements identified globally by
// Identifier. Within a Submodel, idShort is unique among its Elements.
type Submodel struct {
	Identifier string
	IDShort    string
	Elements   map[string]*Property // keyed by idShort
}

// NewSubmodel creates an empty submodel.
func NewSubmodel(identifier, idShort string) *Submodel {
	return &Submodel{
		Identifier: identifier,
		IDShort:    idShort,
		Elements:   make(map[string]*Property),
	}
}

// Element returns the property with the given idShort, or nil.
func (s *Submodel) Element(idShort string) *Property {
	return s.Elements[idShort]
}

// Property is a SubmodelElement carrying a single typed scalar value.
// ModelType is fixed to "Property" for this bridge (spec.md Design Note:
// the AAS element hierarchy is reduced to the tagged variant {Property}).
type Property struct {
	IDShort     string      `json:"idShort"`
	ModelType   string      `json:"modelType"`
	ValueType   string      `json:"valueType"` // xs:* type name
	Value       interface{} `json:"value"`
	SemanticID  string      `json:"semanticId,omitempty"`
	Description string      `json:"description,omitempty"`
}

// SetValue assigns the property's value in place.
func (p *Property) SetValue(v interface{}) {
	p.Value = v
}

// DataChangeEvent is an in-flight record produced by an OPC UA data-change
// notification, queued by the Monitoring Manager before dispatch.
type DataChangeEvent struct {
	NodeID      string
	Value       interface{}
	VariantType string // OPC UA type tag, e.g. "Double"; may be empty (inferred)
	SourceTime  time.Time
	EndpointURL string
}

// WriteRequest is an in-flight record describing a value to be written back
// into OPC UA, queued by the Control Manager.
type WriteRequest struct {
	NodeID        string
	Value         interface{}
	VariantType   string // OPC UA type tag the value has already been coerced to
	UserID        string // empty means "system"
	CorrelationID string
	SubmittedAt   time.Time
}

// Direction enumerates the allowed synchronization directions for a rule.
type Direction string

const (
	DirectionOPCUAToAAS    Direction = "opcua_to_aas"
	DirectionAASToOPCUA    Direction = "aas_to_opcua"
	DirectionBidirectional Direction = "bidirectional"
)

// AllowsOPCUAToAAS reports whether values may flow from OPC UA into AAS.
func (d Direction) AllowsOPCUAToAAS() bool {
	return d == DirectionOPCUAToAAS || d == DirectionBidirectional
}

// AllowsAASToOPCUA reports whether values may flow from AAS into OPC UA.
func (d Direction) AllowsAASToOPCUA() bool {
	return d == DirectionAASToOPCUA || d == DirectionBidirectional
}

// AuditEntry is one WRITE audit record per spec.md §6.
type AuditEntry struct {
	Timestamp     time.Time   `json:"timestamp"`
	EventType     string      `json:"event_type"`
	NodeID        string      `json:"node_id"`
	UserID        string      `json:"user_id"`
	PreviousValue interface{} `json:"previous_value"`
	NewValue      interface{} `json:"new_value"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}
