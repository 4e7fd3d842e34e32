// Package bridgeconfig loads the bridge's YAML configuration (spec.md §6),
// following the teacher's cmd/gateway/main.go:loadConfig shape: a
// DefaultConfig populates every field, then yaml.Unmarshal overlays
// whatever the file specifies.
package bridgeconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bridge configuration, matching spec.md §6's
// section list: opcua, security, mappings, aas, observability, semantic,
// conflict_resolution.
type Config struct {
	OPCUA         OPCUAConfig         `yaml:"opcua"`
	Security      SecurityConfig      `yaml:"security"`
	Mappings      []MappingRuleConfig `yaml:"mappings"`
	AAS           AASConfig           `yaml:"aas"`
	Observability ObservabilityConfig `yaml:"observability"`
	Semantic      SemanticConfig      `yaml:"semantic"`

	// ConflictResolution is parsed but not consulted by any code path, per
	// spec.md Open Question (b) — a documented policy hook, not a bug.
	ConflictResolution string `yaml:"conflict_resolution"`
}

// OPCUAConfig is spec.md §6's `opcua{}` section.
type OPCUAConfig struct {
	Endpoints             []EndpointConfig `yaml:"endpoints"`
	ConnectionPoolSize    int              `yaml:"connection_pool_size"`
	SubscriptionIntervalMS int             `yaml:"subscription_interval_ms"`
	MonitorQueueMaxSize   int              `yaml:"monitor_queue_maxsize"`
	Encoding              string           `yaml:"encoding"`
}

// EndpointConfig describes one OPC UA server endpoint.
type EndpointConfig struct {
	Name              string        `yaml:"name"`
	URL               string        `yaml:"url"`
	SecurityPolicy    string        `yaml:"security_policy"`
	SecurityMode      string        `yaml:"security_mode"`
	AuthPolicy        string        `yaml:"auth_policy"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	CertificateFile   string        `yaml:"certificate_file"`
	PrivateKeyFile    string        `yaml:"private_key_file"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// SecurityConfig is spec.md §6's `security{}` section. AuditEnabled and
// AuditLogPath select the audit log that cmd/bridge hands to the Control
// Manager. TrustDir is parsed but not read by any code path. Identity
// propagation is parsed for completeness (original_source carries the
// field) but, like conflict_resolution, has no core code path — the bridge
// has no inbound HTTP API whose identity would propagate anywhere.
type SecurityConfig struct {
	TrustDir            string `yaml:"trust_dir"`
	IdentityPropagation bool   `yaml:"identity_propagation"`
	AuditEnabled        bool   `yaml:"audit"`
	AuditLogPath        string `yaml:"audit_log_path"`
}

// MappingRuleConfig is the YAML shape of spec.md §3's MappingRule.
type MappingRuleConfig struct {
	Name        string   `yaml:"name"`
	NodeID      string   `yaml:"node_id"`
	IDShort     string   `yaml:"id_short"`
	SubmodelID  string   `yaml:"submodel_id"`
	Endpoint    string   `yaml:"endpoint"`
	SemanticID  string   `yaml:"semantic_id"`
	Direction   string   `yaml:"direction"` // opcua_to_aas | aas_to_opcua | bidirectional
	XSDType     string   `yaml:"xsd_type"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Unit        string   `yaml:"unit"`
	Transform   string   `yaml:"transform"`
	Enabled     *bool    `yaml:"enabled"`
}

// IsEnabled reports whether the rule should be resolved, defaulting to
// true when the YAML omits the field.
func (m MappingRuleConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// AASConfig is spec.md §6's `aas{}` section.
type AASConfig struct {
	Type                string            `yaml:"type"` // memory | basyx | aasx-server
	URL                 string            `yaml:"url"`
	EnableEvents        bool              `yaml:"enable_events"`
	PollIntervalSeconds float64           `yaml:"poll_interval_seconds"`
	EncodeIdentifiers   bool              `yaml:"encode_identifiers"`
	AutoCreateSubmodels bool              `yaml:"auto_create_submodels"`
	AutoCreateElements  bool              `yaml:"auto_create_elements"`
	Timeout             time.Duration     `yaml:"timeout"`
	QueueCapacity       int               `yaml:"queue_capacity"`
	Events              AASEventsConfig   `yaml:"events"`
}

// AASEventsConfig is spec.md §6's `aas.events{}` subsection.
type AASEventsConfig struct {
	Enabled             bool     `yaml:"enabled"`
	MQTTURL             string   `yaml:"mqtt_url"`
	MQTTTopic           string   `yaml:"mqtt_topic"`
	MQTTQoS             byte     `yaml:"mqtt_qos"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	ClientID            string   `yaml:"client_id"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
	PayloadIDShortKeys  []string `yaml:"payload_id_short_keys"`
	PayloadSubmodelKeys []string `yaml:"payload_submodel_keys"`
	PayloadValueKeys    []string `yaml:"payload_value_keys"`
	PayloadPatchArrayKeys []string `yaml:"payload_patch_array_keys"`
	DedupEnabled        bool     `yaml:"dedup_enabled"`
	DedupTTLSeconds     float64  `yaml:"dedup_ttl_seconds"`
	DedupMaxEntries     int      `yaml:"dedup_max_entries"`
}

// ObservabilityConfig is spec.md §6's `observability{}` section.
type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPort    int    `yaml:"metrics_port"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	TracingSampler string `yaml:"tracing_sampler"`
	LogLevel       string `yaml:"log_level"`
}

// SemanticConfig is spec.md §6's `semantic{}` section: per-rule semantic
// reference IRIs are read from MappingRuleConfig.SemanticID; this section
// carries a bridge-wide DefaultNamespace, which is parsed but not read by
// any code path (a rule without a SemanticID gets no semantic reference).
type SemanticConfig struct {
	DefaultNamespace string `yaml:"default_namespace"`
}

// DefaultConfig returns a Config with every field populated to a sane
// default, before any YAML file is overlaid on top of it.
func DefaultConfig() *Config {
	return &Config{
		OPCUA: OPCUAConfig{
			ConnectionPoolSize:     4,
			SubscriptionIntervalMS: 1000,
			MonitorQueueMaxSize:    10000,
			Encoding:               "utf-8",
		},
		Security: SecurityConfig{
			AuditEnabled: true,
			AuditLogPath: "audit.jsonl",
		},
		AAS: AASConfig{
			Type:                "memory",
			EncodeIdentifiers:   true,
			AutoCreateSubmodels: true,
			AutoCreateElements:  true,
			PollIntervalSeconds: 2,
			Timeout:             5 * time.Second,
			QueueCapacity:       1000,
			Events: AASEventsConfig{
				DedupEnabled:    true,
				DedupTTLSeconds: 30,
				DedupMaxEntries: 10000,
				MQTTQoS:         1,
			},
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPort:    9464,
			LogLevel:       "info",
		},
		ConflictResolution: "opcua_wins",
	}
}

// Load reads and parses the YAML configuration file at path, overlaying it
// onto DefaultConfig(). A missing file is not an error: the defaults are
// returned as-is, matching the teacher's loadConfig tolerance for a
// missing gateway.yaml.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("bridgeconfig: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("bridgeconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}
