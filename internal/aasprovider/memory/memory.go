// Package memory implements an in-process AAS Provider (spec.md §4.6),
// backing the bridge with a plain map instead of a real AAS repository.
// It exists for tests, demos, and small deployments where standing up a
// BaSyx server is unnecessary overhead.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider"
)

// Provider is a thread-safe, in-memory implementation of aasprovider.Provider.
type Provider struct {
	mu        sync.RWMutex
	submodels map[string]*aasmodel.Submodel

	writeEvents chan aasprovider.WriteEvent
	closeOnce   sync.Once
}

// New constructs an empty Memory AAS Provider. queueCapacity bounds the
// pending AAS -> OPC UA write queue; SubmitWrite drops the newest request
// (mirroring the Control Manager's own overflow policy) once it fills.
func New(queueCapacity int) *Provider {
	if queueCapacity <= 0 {
		queueCapacity = 100
	}
	return &Provider{
		submodels:   make(map[string]*aasmodel.Submodel),
		writeEvents: make(chan aasprovider.WriteEvent, queueCapacity),
	}
}

// RegisterSubmodel stores sm, replacing any prior submodel with the same
// identifier.
func (p *Provider) RegisterSubmodel(ctx context.Context, sm *aasmodel.Submodel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submodels[sm.Identifier] = sm
	return nil
}

// WriteElement applies value to the named submodel element.
func (p *Provider) WriteElement(ctx context.Context, submodelID, idShort string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sm, ok := p.submodels[submodelID]
	if !ok {
		return fmt.Errorf("memory provider: unknown submodel %q", submodelID)
	}
	el := sm.Element(idShort)
	if el == nil {
		return fmt.Errorf("memory provider: unknown element %q in submodel %q", idShort, submodelID)
	}
	el.SetValue(value)
	return nil
}

// Element returns the current value of a submodel element, for tests and
// callers inspecting provider state directly.
func (p *Provider) Element(submodelID, idShort string) (*aasmodel.Property, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sm, ok := p.submodels[submodelID]
	if !ok {
		return nil, false
	}
	el := sm.Element(idShort)
	if el == nil {
		return nil, false
	}
	return el, true
}

// FindByIDShort searches every registered submodel for an element with the
// given idShort. Per spec.md's Open Question (a), an idShort that is
// ambiguous across more than one submodel (and was not qualified by a
// submodel id) resolves to no match: FindByIDShort returns ok=false and the
// caller is expected to log a warning rather than guess.
func (p *Provider) FindByIDShort(idShort string) (submodelID string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var found string
	matches := 0
	for id, sm := range p.submodels {
		if sm.Element(idShort) != nil {
			found = id
			matches++
		}
	}
	if matches != 1 {
		return "", false
	}
	return found, true
}

// SubmitWrite enqueues an AAS -> OPC UA write request, simulating an
// external actor (a REST PATCH, a UI action) changing a submodel element's
// value. It drops the request if the queue is full, reporting the drop to
// the caller rather than blocking.
func (p *Provider) SubmitWrite(submodelID, idShort string, value interface{}, userID, correlationID string) error {
	event := aasprovider.WriteEvent{
		SubmodelID:    submodelID,
		IDShort:       idShort,
		Value:         value,
		UserID:        userID,
		CorrelationID: correlationID,
	}
	select {
	case p.writeEvents <- event:
		return nil
	default:
		return fmt.Errorf("memory provider: write queue full, dropped write to %s/%s", submodelID, idShort)
	}
}

// WriteRequests returns the channel of pending AAS -> OPC UA writes.
func (p *Provider) WriteRequests() <-chan aasprovider.WriteEvent {
	return p.writeEvents
}

// Close closes the write-request channel. It is safe to call more than
// once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() { close(p.writeEvents) })
	return nil
}
