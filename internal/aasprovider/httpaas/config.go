package httpaas

import "time"

// Config configures the HTTP/MQTT AAS Provider (spec.md §4.7).
type Config struct {
	BaseURL string        // normalized to <base>/aas on construction
	Timeout time.Duration // per-request HTTP timeout

	EncodeIdentifiers   bool // base64url-encode submodel identifiers without padding
	AutoCreateSubmodels bool
	AutoCreateElements  bool

	PollInterval time.Duration // 0 disables polling

	DedupEnabled    bool
	DedupTTL        time.Duration
	DedupMaxEntries int

	MQTT *MQTTConfig // nil disables MQTT ingestion
}

// MQTTConfig configures the optional MQTT event-ingestion mode.
type MQTTConfig struct {
	BrokerURL string // mqtt:// or mqtts://
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte

	TLSInsecureSkipVerify bool

	// PayloadIDShortKeys/PayloadSubmodelKeys/PayloadValueKeys name the
	// JSON object fields tried, in order, to extract each component from
	// an explicit-field payload. An empty list selects the defaults
	// (idShort/id_short, submodelId/submodelIdentifier, value); a
	// non-empty list replaces them.
	PayloadIDShortKeys   []string
	PayloadSubmodelKeys  []string
	PayloadValueKeys     []string
	PayloadPatchArrayKey []string
}

// DefaultConfig returns a Config with spec.md's stated defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:             baseURL,
		Timeout:             5 * time.Second,
		EncodeIdentifiers:   true,
		AutoCreateSubmodels: true,
		AutoCreateElements:  true,
		PollInterval:        2 * time.Second,
		DedupEnabled:        true,
		DedupTTL:            30 * time.Second,
		DedupMaxEntries:     10000,
	}
}

func (c *MQTTConfig) idShortKeys() []string {
	if c == nil || len(c.PayloadIDShortKeys) == 0 {
		return []string{"idShort", "id_short"}
	}
	return c.PayloadIDShortKeys
}

func (c *MQTTConfig) submodelKeys() []string {
	if c == nil || len(c.PayloadSubmodelKeys) == 0 {
		return []string{"submodelId", "submodelIdentifier"}
	}
	return c.PayloadSubmodelKeys
}

func (c *MQTTConfig) valueKeys() []string {
	if c == nil || len(c.PayloadValueKeys) == 0 {
		return []string{"value"}
	}
	return c.PayloadValueKeys
}

func (c *MQTTConfig) patchArrayKeys() []string {
	if c == nil || len(c.PayloadPatchArrayKey) == 0 {
		return []string{"patches", "operations", "patch"}
	}
	return c.PayloadPatchArrayKey
}
