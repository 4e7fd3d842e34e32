// Package opcuapool implements the Connection Pool component (spec.md §4.3):
// per-endpoint OPC UA client lifecycle, circuit-breaker-guarded reconnects,
// and a background maintenance loop, generalized from the teacher's
// internal/performance.ConnectionPool (device-keyed pooling) and
// internal/cloud.HealthChecker (ticker-driven reconnect-if-unhealthy).
package opcuapool

import (
	"context"
	"time"

	"github.com/gopcua/opcua"
)

// EndpointConfig describes one OPC UA server endpoint the pool maintains a
// connection to, per spec.md §6 `opcua.endpoints[]`.
type EndpointConfig struct {
	URL               string
	SecurityPolicy    string
	SecurityMode      string
	AuthPolicy        string // "Anonymous", "UserName", or "Certificate"
	Username          string
	Password          string
	CertificateFile   string
	PrivateKeyFile    string
	SessionTimeout    time.Duration
	RequestTimeout    time.Duration
	SubscribeInterval time.Duration
}

// Client is the subset of *opcua.Client behavior the pool depends on. Tests
// substitute a fake implementation so the package never needs a live OPC UA
// server.
type Client interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsConnected() bool
}

// ClientFactory constructs a Client for one endpoint. Production code uses
// NewGopcuaClient; tests inject a fake factory.
type ClientFactory func(cfg EndpointConfig) (Client, error)

// gopcuaClient adapts *opcua.Client to the Client interface.
type gopcuaClient struct {
	inner *opcua.Client
}

func (c *gopcuaClient) Connect(ctx context.Context) error { return c.inner.Connect(ctx) }
func (c *gopcuaClient) Close(ctx context.Context) error    { return c.inner.Close(ctx) }
func (c *gopcuaClient) IsConnected() bool                  { return c.inner.State() == opcua.Connected }

// Underlying exposes the real *opcua.Client for callers (e.g. the monitor
// package) that need to create subscriptions directly. It returns nil for
// non-gopcua clients such as test fakes.
func Underlying(c Client) *opcua.Client {
	if g, ok := c.(*gopcuaClient); ok {
		return g.inner
	}
	return nil
}

// NewGopcuaClient builds the default ClientFactory, constructing a real
// *opcua.Client with security options assembled the way the teacher's
// createSecureClient does: security policy/mode as client options, then
// user/certificate auth layered on top.
func NewGopcuaClient(cfg EndpointConfig) (Client, error) {
	opts := []opcua.Option{
		opcua.SecurityPolicy(cfg.SecurityPolicy),
		opcua.SecurityModeString(cfg.SecurityMode),
	}

	switch cfg.AuthPolicy {
	case "UserName":
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	case "Certificate":
		if cfg.CertificateFile != "" && cfg.PrivateKeyFile != "" {
			opts = append(opts,
				opcua.CertificateFile(cfg.CertificateFile),
				opcua.PrivateKeyFile(cfg.PrivateKeyFile))
		}
	}

	if cfg.SessionTimeout > 0 {
		opts = append(opts, opcua.SessionTimeout(cfg.SessionTimeout))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, opcua.RequestTimeout(cfg.RequestTimeout))
	}

	inner, err := opcua.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &gopcuaClient{inner: inner}, nil
}
