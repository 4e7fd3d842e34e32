package mapping

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/typeconv"
)

// Engine compiles mapping rules and performs bidirectional transforms
// between OPC UA data-change values and AAS submodel element values, per
// spec.md §4.2 (Mapping Engine).
//
// Range checks only apply on the AAS -> OPC UA path, against the
// device-side value: the inverse transform runs first, then the range
// check validates its result, before the Type Converter coerces it to the
// OPC UA wire type. OPC UA -> AAS values are not range-checked; the
// configured range constrains writes back to the device, not inbound
// telemetry.
type Engine struct {
	mu sync.RWMutex

	// byNode indexes resolved mappings by canonical node id string.
	byNode map[string]*ResolvedMapping
	// byElement indexes resolved mappings by (submodelID, idShort).
	byElement map[string]*ResolvedMapping
}

// NewEngine constructs an empty mapping engine.
func NewEngine() *Engine {
	return &Engine{
		byNode:    make(map[string]*ResolvedMapping),
		byElement: make(map[string]*ResolvedMapping),
	}
}

func elementKey(submodelID, idShort string) string {
	return submodelID + "\x00" + idShort
}

// RegisterSubmodel resolves and installs the mapping rules for one
// submodel. Calling it again with the same submodel id replaces the
// previous rule set, so registration is idempotent with respect to the
// engine's externally visible behavior.
func (e *Engine) RegisterSubmodel(submodelID string, rules []MappingRule) error {
	byNode := make(map[string]*ResolvedMapping, len(rules))
	byElement := make(map[string]*ResolvedMapping, len(rules))

	for _, rule := range rules {
		rule.SubmodelID = submodelID
		rm, err := resolve(rule)
		if err != nil {
			return err
		}
		nodeKey := rm.Node.String()
		if _, dup := byNode[nodeKey]; dup {
			return &MappingError{NodeID: rule.NodeID, Reason: "duplicate node id within submodel"}
		}
		elKey := elementKey(submodelID, rule.IDShort)
		if _, dup := byElement[elKey]; dup {
			return &MappingError{NodeID: rule.NodeID, Reason: fmt.Sprintf("duplicate idShort %q within submodel", rule.IDShort)}
		}
		byNode[nodeKey] = rm
		byElement[elKey] = rm
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// drop this submodel's previous rule set entirely before installing
	// the new one, so re-registration is idempotent even when node ids
	// or idShorts changed between calls.
	for k, existing := range e.byElement {
		if existing.Rule.SubmodelID == submodelID {
			delete(e.byElement, k)
		}
	}
	for k, existing := range e.byNode {
		if existing.Rule.SubmodelID == submodelID {
			delete(e.byNode, k)
		}
	}
	for k, v := range byNode {
		e.byNode[k] = v
	}
	for k, v := range byElement {
		e.byElement[k] = v
	}
	return nil
}

func (e *Engine) lookupByNode(raw string) (*ResolvedMapping, error) {
	node, err := ParseNodeID(raw)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	rm, ok := e.byNode[node.String()]
	e.mu.RUnlock()
	if !ok {
		return nil, &MappingError{NodeID: raw, Reason: "no mapping registered for node"}
	}
	return rm, nil
}

func (e *Engine) lookupByElement(submodelID, idShort string) (*ResolvedMapping, error) {
	e.mu.RLock()
	rm, ok := e.byElement[elementKey(submodelID, idShort)]
	e.mu.RUnlock()
	if !ok {
		return nil, &MappingError{NodeID: fmt.Sprintf("%s/%s", submodelID, idShort), Reason: "no mapping registered for submodel element"}
	}
	return rm, nil
}

// TransformToAAS converts an OPC UA data-change value into an AAS submodel
// element value, applying the registered forward transform. It returns the
// owning submodel id, the element's idShort, and the value ready to assign
// into that element.
func (e *Engine) TransformToAAS(event *aasmodel.DataChangeEvent) (submodelID, idShort string, aasValue interface{}, err error) {
	rm, err := e.lookupByNode(event.NodeID)
	if err != nil {
		return "", "", nil, err
	}
	if !rm.Rule.Direction.AllowsOPCUAToAAS() {
		return "", "", nil, &MappingError{NodeID: event.NodeID, Reason: "direction does not allow OPC UA -> AAS sync"}
	}

	value := event.Value
	if f, ok := toFloat64(value); ok && rm.Transform != nil {
		transformed, terr := rm.Transform.Forward(f)
		if terr != nil {
			return "", "", nil, &MappingError{NodeID: event.NodeID, Reason: terr.Error()}
		}
		value = transformed
	}

	aasValue, _, err = typeconv.ToAAS(value, event.VariantType, rm.Rule.XSDType)
	if err != nil {
		return "", "", nil, err
	}
	return rm.Rule.SubmodelID, rm.Rule.IDShort, aasValue, nil
}

// TransformToOPCUA converts an AAS submodel element value into an OPC UA
// write value, applying the registered inverse transform and then the
// range check against the resulting device-side value. It fails with a
// *MappingError if the element has no registered mapping, the mapping's
// direction forbids AAS -> OPC UA sync, or the mapping's transform has no
// synthesized inverse.
func (e *Engine) TransformToOPCUA(submodelID, idShort string, aasValue interface{}) (nodeID string, opcuaValue interface{}, variantTag string, err error) {
	rm, err := e.lookupByElement(submodelID, idShort)
	if err != nil {
		return "", nil, "", err
	}
	if !rm.Rule.Direction.AllowsAASToOPCUA() {
		return "", nil, "", &MappingError{NodeID: rm.Node.String(), Reason: "direction does not allow AAS -> OPC UA sync"}
	}

	value := aasValue
	if f, ok := toFloat64(value); ok {
		if rm.Transform != nil {
			if rm.Transform.Inverse == nil {
				return "", nil, "", &MappingError{NodeID: rm.Node.String(), Reason: fmt.Sprintf("transform %q has no inverse", rm.Transform.Source)}
			}
			inv, terr := rm.Transform.Inverse(f)
			if terr != nil {
				return "", nil, "", &MappingError{NodeID: rm.Node.String(), Reason: terr.Error()}
			}
			f = inv
			value = inv
		}
		if verr := rm.checkRange(f); verr != nil {
			return "", nil, "", verr
		}
	}

	opcuaValue, variantTag, err = typeconv.ToOPCUA(value, rm.Rule.XSDType)
	if err != nil {
		return "", nil, "", err
	}
	return rm.Node.String(), opcuaValue, variantTag, nil
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), true
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), true
		}
		return 0, false
	}
}
