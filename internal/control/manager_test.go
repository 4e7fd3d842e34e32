package control

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/auditlog"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
	"github.com/hadijannat/basyx-opcua-bridge/internal/typeconv"
)

type fakeWriter struct {
	mu      sync.Mutex
	writes  []string
	fail    bool
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (w *fakeWriter) WriteNodeValue(ctx context.Context, nodeID string, value interface{}, variantType string) error {
	cur := atomic.AddInt32(&w.inFlight, 1)
	defer atomic.AddInt32(&w.inFlight, -1)
	for {
		max := atomic.LoadInt32(&w.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&w.maxSeen, max, cur) {
			break
		}
	}
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return assert.AnError
	}
	w.writes = append(w.writes, nodeID)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

// fakeReadWriter additionally implements Reader, exercising executeWrite's
// optional previous-value lookup.
type fakeReadWriter struct {
	fakeWriter
	previous    interface{}
	readErr     error
	readCalled  int32
}

func (w *fakeReadWriter) ReadNodeValue(ctx context.Context, nodeID string) (interface{}, error) {
	atomic.AddInt32(&w.readCalled, 1)
	if w.readErr != nil {
		return nil, w.readErr
	}
	return w.previous, nil
}

func newTestEngine(t *testing.T) *mapping.Engine {
	t.Helper()
	e := mapping.NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []mapping.MappingRule{{
		NodeID:    "ns=2;s=Setpoint",
		IDShort:   "Setpoint",
		XSDType:   typeconv.XSDDouble,
		Direction: aasmodel.DirectionBidirectional,
	}}))
	return e
}

func TestQueueDropsNewestOnOverflow(t *testing.T) {
	q := newWriteQueue(1)
	assert.False(t, q.push(&aasmodel.WriteRequest{NodeID: "a"}))
	assert.True(t, q.push(&aasmodel.WriteRequest{NodeID: "b"}))

	items := q.drain()
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].NodeID)
	assert.Equal(t, 1, q.droppedCount())
}

func TestSubmitRejectsUnmappedElement(t *testing.T) {
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeWriter{}, nil, nil, DefaultConfig())
	err := m.Submit("urn:sm:1", "Unknown", 1.0, "", "")
	require.Error(t, err)
}

func TestSubmitQueuesValidWrite(t *testing.T) {
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeWriter{}, nil, nil, DefaultConfig())
	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 42.0, "op1", "corr-1"))
	assert.Equal(t, 1, m.QueueDepth())
}

func TestSubmitDropsNewestWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeWriter{}, nil, nil, cfg)

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 1.0, "", ""))
	err := m.Submit("urn:sm:1", "Setpoint", 2.0, "", "")
	require.Error(t, err)
	assert.Equal(t, 1, m.DroppedCount())
}

func TestRunDispatchesAndWrites(t *testing.T) {
	writer := &fakeWriter{}
	cfg := Config{QueueCapacity: 10, DispatchPeriod: 10 * time.Millisecond, MaxConcurrentWrites: 2}
	m := NewManager(zap.NewNop(), newTestEngine(t), writer, nil, nil, cfg)

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 10.0, "", ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunBoundsConcurrentWrites(t *testing.T) {
	writer := &fakeWriter{delay: 20 * time.Millisecond}
	cfg := Config{QueueCapacity: 20, DispatchPeriod: time.Hour, MaxConcurrentWrites: 2}
	m := NewManager(zap.NewNop(), newTestEngine(t), writer, nil, nil, cfg)

	for i := 0; i < 6; i++ {
		require.NoError(t, m.Submit("urn:sm:1", "Setpoint", float64(i), "", ""))
	}

	m.dispatchOnce(context.Background())
	assert.LessOrEqual(t, int(writer.maxSeen), 2)
	assert.Equal(t, 6, writer.count())
}

func TestExecuteWriteEmitsAuditEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := auditlog.NewWithZap(zap.New(core))
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeWriter{}, audit, nil, DefaultConfig())

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 5.0, "operator", "corr-9"))
	m.dispatchOnce(context.Background())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "operator", fields["user_id"])
	assert.Equal(t, "corr-9", fields["correlation_id"])
}

func TestExecuteWriteAuditsFailureDistinctly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := auditlog.NewWithZap(zap.New(core))
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeWriter{fail: true}, audit, nil, DefaultConfig())

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 5.0, "operator", ""))
	m.dispatchOnce(context.Background())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "control_write_error", fields["event_type"])
}

func TestExecuteWriteCapturesPreviousValueWhenWriterIsReader(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := auditlog.NewWithZap(zap.New(core))
	writer := &fakeReadWriter{previous: 3.5}
	m := NewManager(zap.NewNop(), newTestEngine(t), writer, audit, nil, DefaultConfig())

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 5.0, "operator", "corr-9"))
	m.dispatchOnce(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&writer.readCalled))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, 3.5, fields["previous_value"])
}

func TestExecuteWriteToleratesReadFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := auditlog.NewWithZap(zap.New(core))
	writer := &fakeReadWriter{readErr: assert.AnError}
	m := NewManager(zap.NewNop(), newTestEngine(t), writer, audit, nil, DefaultConfig())

	require.NoError(t, m.Submit("urn:sm:1", "Setpoint", 5.0, "operator", ""))
	m.dispatchOnce(context.Background())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Nil(t, fields["previous_value"])
	assert.Equal(t, 1, writer.count())
}
