package bridgeconfig

import (
	"time"

	"github.com/hadijannat/basyx-opcua-bridge/internal/opcuapool"
)

// ToEndpointConfigs converts the configured OPC UA endpoints into the
// Connection Pool's EndpointConfig, applying the shared subscription
// interval to every endpoint.
func (c *Config) ToEndpointConfigs() []opcuapool.EndpointConfig {
	interval := time.Duration(c.OPCUA.SubscriptionIntervalMS) * time.Millisecond
	out := make([]opcuapool.EndpointConfig, 0, len(c.OPCUA.Endpoints))
	for _, ep := range c.OPCUA.Endpoints {
		out = append(out, opcuapool.EndpointConfig{
			URL:               ep.URL,
			SecurityPolicy:    ep.SecurityPolicy,
			SecurityMode:      ep.SecurityMode,
			AuthPolicy:        ep.AuthPolicy,
			Username:          ep.Username,
			Password:          ep.Password,
			CertificateFile:   ep.CertificateFile,
			PrivateKeyFile:    ep.PrivateKeyFile,
			SessionTimeout:    ep.SessionTimeout,
			RequestTimeout:    ep.RequestTimeout,
			SubscribeInterval: interval,
		})
	}
	return out
}

// SubscriptionInterval returns the shared OPC UA publishing interval.
func (c *Config) SubscriptionInterval() time.Duration {
	return time.Duration(c.OPCUA.SubscriptionIntervalMS) * time.Millisecond
}
