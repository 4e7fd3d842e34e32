package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
	"github.com/hadijannat/basyx-opcua-bridge/internal/typeconv"
)

type fakeSink struct {
	mu     sync.Mutex
	writes []write
	fail   bool
}

type write struct {
	submodelID, idShort string
	value               interface{}
}

func (s *fakeSink) WriteElement(ctx context.Context, submodelID, idShort string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.writes = append(s.writes, write{submodelID, idShort, value})
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func newTestEngine(t *testing.T) *mapping.Engine {
	t.Helper()
	e := mapping.NewEngine()
	require.NoError(t, e.RegisterSubmodel("urn:sm:1", []mapping.MappingRule{{
		NodeID:     "ns=2;s=Temp",
		IDShort:    "Temperature",
		XSDType:    typeconv.XSDDouble,
		Direction:  aasmodel.DirectionBidirectional,
	}}))
	return e
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := newEventQueue(2)
	assert.False(t, q.push(&aasmodel.DataChangeEvent{NodeID: "a"}))
	assert.False(t, q.push(&aasmodel.DataChangeEvent{NodeID: "b"}))
	assert.True(t, q.push(&aasmodel.DataChangeEvent{NodeID: "c"}))

	items := q.drain()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].NodeID)
	assert.Equal(t, "c", items[1].NodeID)
	assert.Equal(t, 1, q.droppedCount())
}

func TestInferVariantTag(t *testing.T) {
	assert.Equal(t, typeconv.VariantDouble, inferVariantTag(3.14))
	assert.Equal(t, typeconv.VariantInt32, inferVariantTag(int32(1)))
	assert.Equal(t, typeconv.VariantBoolean, inferVariantTag(true))
	assert.Equal(t, typeconv.VariantString, inferVariantTag("x"))
}

func TestOnDataChangeInfersTagAndTimestamp(t *testing.T) {
	m := NewManager(zap.NewNop(), newTestEngine(t), &fakeSink{}, nil, DefaultConfig())
	event := &aasmodel.DataChangeEvent{NodeID: "ns=2;s=Temp", Value: 21.5}
	m.OnDataChange(event)
	require.Equal(t, 1, m.QueueDepth())
	assert.Equal(t, typeconv.VariantDouble, event.VariantType)
	assert.False(t, event.SourceTime.IsZero())
}

func TestRunDispatchesQueuedEvents(t *testing.T) {
	sink := &fakeSink{}
	cfg := Config{QueueCapacity: 10, DispatchPeriod: 10 * time.Millisecond}
	m := NewManager(zap.NewNop(), newTestEngine(t), sink, nil, cfg)

	m.OnDataChange(&aasmodel.DataChangeEvent{NodeID: "ns=2;s=Temp", Value: 21.5, VariantType: typeconv.VariantDouble})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunFinalDrainOnCancel(t *testing.T) {
	sink := &fakeSink{}
	cfg := Config{QueueCapacity: 10, DispatchPeriod: time.Hour}
	m := NewManager(zap.NewNop(), newTestEngine(t), sink, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.OnDataChange(&aasmodel.DataChangeEvent{NodeID: "ns=2;s=Temp", Value: 5.0, VariantType: typeconv.VariantDouble})
	cancel()
	<-done

	assert.Equal(t, 1, sink.count())
}

func TestDispatchRecordsErrorOnSinkFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	m := NewManager(zap.NewNop(), newTestEngine(t), sink, nil, DefaultConfig())
	m.OnDataChange(&aasmodel.DataChangeEvent{NodeID: "ns=2;s=Temp", Value: 1.0, VariantType: typeconv.VariantDouble})
	m.dispatchOnce(context.Background())
	assert.Equal(t, 0, sink.count())
}
