// Package monitor implements the Monitoring Manager (spec.md §4.4): it
// receives OPC UA data-change notifications, holds them in a bounded
// drop-oldest queue, and dispatches them through the mapping engine into
// the AAS side of the bridge once a second.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
	"github.com/hadijannat/basyx-opcua-bridge/internal/telemetry"
	"github.com/hadijannat/basyx-opcua-bridge/internal/typeconv"
)

// Sink receives the AAS-side result of one synchronized data-change event.
// The Memory and HTTP AAS providers both implement it.
type Sink interface {
	WriteElement(ctx context.Context, submodelID, idShort string, value interface{}) error
}

// Config tunes the manager's queue capacity and dispatch cadence.
type Config struct {
	QueueCapacity  int
	DispatchPeriod time.Duration
}

// DefaultConfig matches spec.md §4.4's defaults: a bounded queue drained
// once a second.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  10000,
		DispatchPeriod: time.Second,
	}
}

// Manager is the Monitoring Manager component.
type Manager struct {
	logger  *zap.Logger
	engine  *mapping.Engine
	sink    Sink
	metrics *telemetry.Metrics
	queue   *eventQueue
	config  Config
}

// NewManager constructs a Monitoring Manager. metrics may be nil, in which
// case no metrics are recorded.
func NewManager(logger *zap.Logger, engine *mapping.Engine, sink Sink, metrics *telemetry.Metrics, config Config) *Manager {
	if config.QueueCapacity <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		logger:  logger,
		engine:  engine,
		sink:    sink,
		metrics: metrics,
		queue:   newEventQueue(config.QueueCapacity),
		config:  config,
	}
}

// OnDataChange is the callback installed against an OPC UA subscription's
// notification channel. It infers a variant tag when the caller didn't
// supply one and enqueues the event, dropping the oldest queued event if
// the queue is full.
func (m *Manager) OnDataChange(event *aasmodel.DataChangeEvent) {
	if event.VariantType == "" {
		event.VariantType = inferVariantTag(event.Value)
	}
	if event.SourceTime.IsZero() {
		event.SourceTime = time.Now()
	}

	dropped := m.queue.push(event)
	if dropped {
		m.logger.Warn("monitor queue full, dropped oldest event", zap.String("node_id", event.NodeID))
		if m.metrics != nil {
			m.metrics.RecordQueueDrop("monitor")
		}
	}
	if m.metrics != nil {
		m.metrics.SetQueueDepth("monitor", m.queue.len())
	}
}

// QueueDepth reports the number of events currently queued, for tests and
// diagnostics.
func (m *Manager) QueueDepth() int { return m.queue.len() }

// DroppedCount reports how many events have been dropped for overflow over
// the manager's lifetime.
func (m *Manager) DroppedCount() int { return m.queue.droppedCount() }

// Run drains the queue once per DispatchPeriod until ctx is canceled,
// transforming and forwarding each event to the sink. It returns once a
// final drain after cancellation completes.
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
	events := m.queue.drain()
	if m.metrics != nil {
		m.metrics.SetQueueDepth("monitor", 0)
	}
	for _, event := range events {
		m.dispatch(ctx, event)
	}
}

func (m *Manager) dispatch(ctx context.Context, event *aasmodel.DataChangeEvent) {
	start := time.Now()
	submodelID, idShort, value, err := m.engine.TransformToAAS(event)
	if err != nil {
		m.logger.Warn("mapping failed for data-change event", zap.String("node_id", event.NodeID), zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordSyncEvent(telemetry.DirectionOPCUAToAAS, telemetry.StatusError)
		}
		return
	}

	if err := m.sink.WriteElement(ctx, submodelID, idShort, value); err != nil {
		m.logger.Warn("failed to write AAS element", zap.String("submodel_id", submodelID), zap.String("id_short", idShort), zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordSyncEvent(telemetry.DirectionOPCUAToAAS, telemetry.StatusError)
		}
		return
	}

	if m.metrics != nil {
		m.metrics.RecordSyncEvent(telemetry.DirectionOPCUAToAAS, telemetry.StatusSuccess)
		m.metrics.ObserveSyncLatency(telemetry.DirectionOPCUAToAAS, time.Since(start))
	}
}

// inferVariantTag guesses an OPC UA variant type tag from a Go value's
// dynamic type, for data-change notifications that don't carry an explicit
// type tag.
func inferVariantTag(value interface{}) string {
	switch value.(type) {
	case bool:
		return typeconv.VariantBoolean
	case int8:
		return typeconv.VariantSByte
	case uint8:
		return typeconv.VariantByte
	case int16:
		return typeconv.VariantInt16
	case uint16:
		return typeconv.VariantUInt16
	case int32:
		return typeconv.VariantInt32
	case uint32:
		return typeconv.VariantUInt32
	case int64:
		return typeconv.VariantInt64
	case uint64:
		return typeconv.VariantUInt64
	case float32:
		return typeconv.VariantFloat
	case float64:
		return typeconv.VariantDouble
	case string:
		return typeconv.VariantString
	case []byte:
		return typeconv.VariantByteString
	default:
		return typeconv.VariantString
	}
}
