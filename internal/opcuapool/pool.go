package opcuapool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// PoolConfig tunes the circuit breaker and maintenance cadence shared by
// every endpoint in the pool.
type PoolConfig struct {
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRate  float64
}

// DefaultPoolConfig mirrors the teacher's PoolConfig defaults, scaled for a
// small number of long-lived OPC UA endpoints rather than many short-lived
// device connections.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		HealthCheckInterval: 30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		BreakerMaxRequests:  1,
		BreakerInterval:     60 * time.Second,
		BreakerTimeout:      30 * time.Second,
		BreakerMinRequests:  3,
		BreakerFailureRate:  0.5,
	}
}

type endpointConn struct {
	mu      sync.Mutex
	cfg     EndpointConfig
	client  Client
	breaker *gobreaker.CircuitBreaker
}

// Pool maintains one Client per configured OPC UA endpoint, reconnecting
// transparently through a per-endpoint circuit breaker, per spec.md §4.3.
type Pool struct {
	logger  *zap.Logger
	factory ClientFactory
	config  PoolConfig

	mu    sync.RWMutex
	conns map[string]*endpointConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool constructs a pool that uses factory to create clients and logs
// through logger. Passing a nil factory defaults to NewGopcuaClient.
func NewPool(logger *zap.Logger, factory ClientFactory, config PoolConfig) *Pool {
	if factory == nil {
		factory = NewGopcuaClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:  logger,
		factory: factory,
		config:  config,
		conns:   make(map[string]*endpointConn),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ResolveEndpointURL normalizes a configured endpoint address into a full
// opc.tcp:// URL, defaulting the scheme when the caller supplied only a
// host:port pair.
func ResolveEndpointURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty endpoint URL")
	}
	if hasScheme(raw) {
		return raw, nil
	}
	return "opc.tcp://" + raw, nil
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			return i > 0 && i+2 < len(s) && s[i+1] == '/' && s[i+2] == '/'
		case '/', ' ':
			return false
		}
	}
	return false
}

// Connect establishes connections to every configured endpoint concurrently.
// Per spec.md §4.3, startup succeeds as long as at least one endpoint
// connects; failures for the rest are logged and left for the maintenance
// loop to retry. Connect also starts that maintenance loop.
func (p *Pool) Connect(ctx context.Context, endpoints []EndpointConfig) error {
	if len(endpoints) == 0 {
		return fmt.Errorf("opcuapool: no endpoints configured")
	}

	var wg sync.WaitGroup
	results := make([]error, len(endpoints))

	for i, cfg := range endpoints {
		url, err := ResolveEndpointURL(cfg.URL)
		if err != nil {
			results[i] = err
			continue
		}
		cfg.URL = url

		ec := p.register(cfg)

		wg.Add(1)
		go func(i int, ec *endpointConn) {
			defer wg.Done()
			results[i] = p.connectEndpoint(ctx, ec)
		}(i, ec)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		p.logger.Warn("failed to connect endpoint", zap.String("endpoint", endpoints[i].URL), zap.Error(err))
	}
	if succeeded == 0 {
		return fmt.Errorf("opcuapool: all %d endpoint connections failed", len(endpoints))
	}

	p.wg.Add(1)
	go p.maintainConnections()

	return nil
}

func (p *Pool) register(cfg EndpointConfig) *endpointConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ec, ok := p.conns[cfg.URL]; ok {
		return ec
	}
	ec := &endpointConn{
		cfg: cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        fmt.Sprintf("opcua-endpoint-%s", cfg.URL),
			MaxRequests: p.config.BreakerMaxRequests,
			Interval:    p.config.BreakerInterval,
			Timeout:     p.config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < p.config.BreakerMinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= p.config.BreakerFailureRate
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.logger.Warn("circuit breaker state changed",
					zap.String("endpoint", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
	p.conns[cfg.URL] = ec
	return ec
}

func (p *Pool) connectEndpoint(ctx context.Context, ec *endpointConn) error {
	_, err := ec.breaker.Execute(func() (interface{}, error) {
		ec.mu.Lock()
		defer ec.mu.Unlock()

		if ec.client != nil && ec.client.IsConnected() {
			return nil, nil
		}

		client, err := p.factory(ec.cfg)
		if err != nil {
			return nil, fmt.Errorf("create client for %s: %w", ec.cfg.URL, err)
		}

		connectCtx := ctx
		var cancel context.CancelFunc
		if p.config.ConnectTimeout > 0 {
			connectCtx, cancel = context.WithTimeout(ctx, p.config.ConnectTimeout)
			defer cancel()
		}
		if err := client.Connect(connectCtx); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", ec.cfg.URL, err)
		}

		ec.client = client
		return nil, nil
	})
	return err
}

// GetConnection returns the Client for endpointURL, transparently
// reconnecting through the circuit breaker if it has gone stale.
func (p *Pool) GetConnection(endpointURL string) (Client, error) {
	url, err := ResolveEndpointURL(endpointURL)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	ec, ok := p.conns[url]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("opcuapool: no connection registered for endpoint %s", url)
	}

	ec.mu.Lock()
	healthy := ec.client != nil && ec.client.IsConnected()
	client := ec.client
	ec.mu.Unlock()
	if healthy {
		return client, nil
	}

	if err := p.connectEndpoint(p.ctx, ec); err != nil {
		return nil, err
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.client, nil
}

// Endpoints returns the URLs of every endpoint registered with the pool.
func (p *Pool) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	urls := make([]string, 0, len(p.conns))
	for url := range p.conns {
		urls = append(urls, url)
	}
	return urls
}

// maintainConnections periodically reconnects any endpoint whose client has
// dropped, generalized from the teacher's health.HealthChecker ticker loop.
func (p *Pool) maintainConnections() {
	defer p.wg.Done()

	interval := p.config.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reconnectUnhealthy()
		}
	}
}

func (p *Pool) reconnectUnhealthy() {
	p.mu.RLock()
	endpoints := make([]*endpointConn, 0, len(p.conns))
	for _, ec := range p.conns {
		endpoints = append(endpoints, ec)
	}
	p.mu.RUnlock()

	for _, ec := range endpoints {
		ec.mu.Lock()
		healthy := ec.client != nil && ec.client.IsConnected()
		url := ec.cfg.URL
		ec.mu.Unlock()
		if healthy {
			continue
		}
		if err := p.connectEndpoint(p.ctx, ec); err != nil {
			p.logger.Warn("reconnect attempt failed", zap.String("endpoint", url), zap.Error(err))
		} else {
			p.logger.Info("endpoint reconnected", zap.String("endpoint", url))
		}
	}
}

// Shutdown cancels the maintenance loop and closes every connected client.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
	p.wg.Wait()

	p.mu.RLock()
	endpoints := make([]*endpointConn, 0, len(p.conns))
	for _, ec := range p.conns {
		endpoints = append(endpoints, ec)
	}
	p.mu.RUnlock()

	var firstErr error
	for _, ec := range endpoints {
		ec.mu.Lock()
		client := ec.client
		ec.mu.Unlock()
		if client == nil {
			continue
		}
		if err := client.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
