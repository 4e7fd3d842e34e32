package bridgeconfig

import (
	"fmt"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
)

// ToMappingRule converts a YAML mapping entry into the mapping engine's
// MappingRule. Direction strings are validated against the three allowed
// values; anything else is a mapping error surfaced at load time, matching
// spec.md §4.2's "malformed IDs fail with a mapping error" stance for rule
// parsing in general.
func (m MappingRuleConfig) ToMappingRule() (mapping.MappingRule, error) {
	var direction aasmodel.Direction
	switch m.Direction {
	case "opcua_to_aas":
		direction = aasmodel.DirectionOPCUAToAAS
	case "aas_to_opcua":
		direction = aasmodel.DirectionAASToOPCUA
	case "bidirectional", "":
		direction = aasmodel.DirectionBidirectional
	default:
		return mapping.MappingRule{}, fmt.Errorf("bridgeconfig: mapping %q: unknown direction %q", m.NodeID, m.Direction)
	}

	return mapping.MappingRule{
		Name:        m.Name,
		NodeID:      m.NodeID,
		SubmodelID:  m.SubmodelID,
		IDShort:     m.IDShort,
		XSDType:     m.XSDType,
		Direction:   direction,
		Transform:   m.Transform,
		SemanticID:  m.SemanticID,
		MinValue:    m.Min,
		MaxValue:    m.Max,
		EndpointRef: m.Endpoint,
	}, nil
}

// EnabledRulesBySubmodel groups every enabled mapping rule by submodel id,
// ready to hand one submodel's slice at a time to mapping.Engine's
// RegisterSubmodel, and converts each to a mapping.MappingRule.
func (c *Config) EnabledRulesBySubmodel() (map[string][]mapping.MappingRule, error) {
	out := make(map[string][]mapping.MappingRule)
	for _, m := range c.Mappings {
		if !m.IsEnabled() {
			continue
		}
		rule, err := m.ToMappingRule()
		if err != nil {
			return nil, err
		}
		out[m.SubmodelID] = append(out[m.SubmodelID], rule)
	}
	return out, nil
}

// Submodels builds one aasmodel.Submodel per distinct submodel id named by
// an enabled mapping rule, with a Property element per rule (spec.md
// §4.2's "finds the existing element by idShort or creates a Property
// with the XSD-derived AAS datatype and optional external semantic
// reference"). The wiring layer hands these to both the mapping engine
// (RegisterSubmodel) and the AAS provider (RegisterSubmodel) so the two
// stay in lockstep at startup.
func (c *Config) Submodels() []*aasmodel.Submodel {
	byID := make(map[string]*aasmodel.Submodel)
	order := make([]string, 0)

	for _, m := range c.Mappings {
		if !m.IsEnabled() {
			continue
		}
		sm, ok := byID[m.SubmodelID]
		if !ok {
			sm = aasmodel.NewSubmodel(m.SubmodelID, m.SubmodelID)
			byID[m.SubmodelID] = sm
			order = append(order, m.SubmodelID)
		}
		if _, exists := sm.Elements[m.IDShort]; exists {
			continue
		}
		sm.Elements[m.IDShort] = &aasmodel.Property{
			IDShort:    m.IDShort,
			ModelType:  "Property",
			ValueType:  m.XSDType,
			SemanticID: m.SemanticID,
		}
	}

	out := make([]*aasmodel.Submodel, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// ResolveEndpointURL implements spec.md §4.3's resolve_endpoint_url: it
// matches ref against every configured endpoint's name or URL, and returns
// the first configured endpoint's URL when ref is empty.
func (c *Config) ResolveEndpointURL(ref string) (string, error) {
	if len(c.OPCUA.Endpoints) == 0 {
		return "", fmt.Errorf("bridgeconfig: no opcua endpoints configured")
	}
	if ref == "" {
		return c.OPCUA.Endpoints[0].URL, nil
	}
	for _, ep := range c.OPCUA.Endpoints {
		if ep.Name == ref || ep.URL == ref {
			return ep.URL, nil
		}
	}
	return "", fmt.Errorf("bridgeconfig: no endpoint matches reference %q", ref)
}

// NodeIDsByEndpoint groups the node ids of every enabled, resolvable
// mapping rule by the endpoint URL it subscribes against, per spec.md
// §4.4: "explicit endpoint reference on the rule -> that endpoint;
// otherwise the single endpoint, or every endpoint when multiple."
func (c *Config) NodeIDsByEndpoint() (map[string][]string, error) {
	out := make(map[string][]string)
	for _, m := range c.Mappings {
		if !m.IsEnabled() {
			continue
		}
		if m.Endpoint != "" {
			url, err := c.ResolveEndpointURL(m.Endpoint)
			if err != nil {
				return nil, err
			}
			out[url] = append(out[url], m.NodeID)
			continue
		}
		if len(c.OPCUA.Endpoints) == 1 {
			out[c.OPCUA.Endpoints[0].URL] = append(out[c.OPCUA.Endpoints[0].URL], m.NodeID)
			continue
		}
		for _, ep := range c.OPCUA.Endpoints {
			out[ep.URL] = append(out[ep.URL], m.NodeID)
		}
	}
	return out, nil
}
