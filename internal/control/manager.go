// Package control implements the Control Manager (spec.md §4.5): it accepts
// AAS-side write requests, transforms and range-checks them through the
// mapping engine, queues them in a bounded drop-newest FIFO, and dispatches
// them to OPC UA with a bounded number of writes in flight at once, auditing
// every attempt.
package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/auditlog"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
	"github.com/hadijannat/basyx-opcua-bridge/internal/telemetry"
)

// Writer performs the actual OPC UA write. The connection pool's client
// wrapper implements it.
type Writer interface {
	WriteNodeValue(ctx context.Context, nodeID string, value interface{}, variantType string) error
}

// Reader is an optional capability a Writer may also implement to supply
// the "previous value" audit field (spec.md §4.5: "read the previous value
// (best-effort, for audit)"). The connection pool implements it; a test
// fake that doesn't is fine, the audit entry just carries no previous
// value.
type Reader interface {
	ReadNodeValue(ctx context.Context, nodeID string) (interface{}, error)
}

// Config tunes the queue capacity, dispatch cadence, and write concurrency.
type Config struct {
	QueueCapacity       int
	DispatchPeriod      time.Duration
	MaxConcurrentWrites int
}

// DefaultConfig matches spec.md §4.5's defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:       1000,
		DispatchPeriod:      time.Second,
		MaxConcurrentWrites: 10,
	}
}

// Manager is the Control Manager component.
type Manager struct {
	logger  *zap.Logger
	engine  *mapping.Engine
	writer  Writer
	audit   *auditlog.Logger
	metrics *telemetry.Metrics
	queue   *writeQueue
	sem     chan struct{}
	config  Config
}

// NewManager constructs a Control Manager. audit and metrics may be nil.
func NewManager(logger *zap.Logger, engine *mapping.Engine, writer Writer, audit *auditlog.Logger, metrics *telemetry.Metrics, config Config) *Manager {
	if config.QueueCapacity <= 0 || config.MaxConcurrentWrites <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		logger:  logger,
		engine:  engine,
		writer:  writer,
		audit:   audit,
		metrics: metrics,
		queue:   newWriteQueue(config.QueueCapacity),
		sem:     make(chan struct{}, config.MaxConcurrentWrites),
		config:  config,
	}
}

// Submit resolves an AAS-side write (submodelID/idShort/value) to its OPC
// UA node and queues it. Mapping failures (unknown element, unsupported
// direction, non-invertible transform, out-of-range value) are rejected
// immediately and never reach the queue. A full queue drops the *new*
// request, per spec.md §4.5's overflow policy, and is reported to the
// caller as an error rather than silently swallowed.
func (m *Manager) Submit(submodelID, idShort string, aasValue interface{}, userID, correlationID string) error {
	nodeID, opcuaValue, variantTag, err := m.engine.TransformToOPCUA(submodelID, idShort, aasValue)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordSyncEvent(telemetry.DirectionAASToOPCUA, telemetry.StatusError)
		}
		return err
	}

	req := &aasmodel.WriteRequest{
		NodeID:        nodeID,
		Value:         opcuaValue,
		VariantType:   variantTag,
		UserID:        userID,
		CorrelationID: correlationID,
		SubmittedAt:   time.Now(),
	}

	if dropped := m.queue.push(req); dropped {
		m.logger.Warn("control queue full, dropped new write request",
			zap.String("node_id", nodeID), zap.String("correlation_id", correlationID))
		if m.metrics != nil {
			m.metrics.RecordQueueDrop("control")
			m.metrics.RecordSyncEvent(telemetry.DirectionAASToOPCUA, telemetry.StatusDropped)
		}
		return fmt.Errorf("control: queue full, write to %s dropped", nodeID)
	}

	if m.metrics != nil {
		m.metrics.SetQueueDepth("control", m.queue.len())
	}
	return nil
}

// QueueDepth reports the number of write requests currently queued.
func (m *Manager) QueueDepth() int { return m.queue.len() }

// DroppedCount reports how many new write requests have been dropped for
// overflow over the manager's lifetime.
func (m *Manager) DroppedCount() int { return m.queue.droppedCount() }

// Run drains the queue once per DispatchPeriod until ctx is canceled,
// executing up to MaxConcurrentWrites writes concurrently.
func (m *Manager) Run(ctx context.Context) error {
	period := m.config.DispatchPeriod
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.dispatchOnce(context.Background())
			return ctx.Err()
		case <-ticker.C:
			m.dispatchOnce(ctx)
		}
	}
}

func (m *Manager) dispatchOnce(ctx context.Context) {
	requests := m.queue.drain()
	if m.metrics != nil {
		m.metrics.SetQueueDepth("control", 0)
	}

	done := make(chan struct{}, len(requests))
	for _, req := range requests {
		req := req
		m.sem <- struct{}{}
		go func() {
			defer func() { <-m.sem; done <- struct{}{} }()
			m.executeWrite(ctx, req)
		}()
	}
	for range requests {
		<-done
	}
}

func (m *Manager) executeWrite(ctx context.Context, req *aasmodel.WriteRequest) {
	start := time.Now()

	var previous interface{}
	if reader, ok := m.writer.(Reader); ok {
		if v, err := reader.ReadNodeValue(ctx, req.NodeID); err == nil {
			previous = v
		}
	}

	err := m.writer.WriteNodeValue(ctx, req.NodeID, req.Value, req.VariantType)

	result := "success"
	if err != nil {
		result = "error"
		m.logger.Warn("control write failed", zap.String("node_id", req.NodeID), zap.Error(err))
	}

	if m.audit != nil {
		auditErr := m.audit.LogWrite(aasmodel.AuditEntry{
			Timestamp:     time.Now(),
			EventType:     "control_write_" + result,
			NodeID:        req.NodeID,
			UserID:        userIDOrSystem(req.UserID),
			PreviousValue: previous,
			NewValue:      req.Value,
			CorrelationID: req.CorrelationID,
		})
		if auditErr != nil {
			m.logger.Warn("failed to write audit entry", zap.Error(auditErr))
		}
	}

	if m.metrics != nil {
		status := telemetry.StatusSuccess
		if err != nil {
			status = telemetry.StatusError
		}
		m.metrics.RecordSyncEvent(telemetry.DirectionAASToOPCUA, status)
		m.metrics.ObserveSyncLatency(telemetry.DirectionAASToOPCUA, time.Since(start))
	}
}

func userIDOrSystem(userID string) string {
	if userID == "" {
		return "system"
	}
	return userID
}
