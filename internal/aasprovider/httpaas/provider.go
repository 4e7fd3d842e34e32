// Package httpaas implements the HTTP/MQTT-backed AAS Provider (spec.md
// §4.7): a REST client for a BaSyx-style AAS repository, with optional MQTT
// event ingestion, grounded in the teacher's internal/messaging/mqtt.go and
// internal/cloud/connectors/*.go.
package httpaas

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider"
)

// Provider is the HTTP/MQTT AAS Provider.
type Provider struct {
	cfg    Config
	rest   *restClient
	dedup  *dedupCache
	logger *zap.Logger

	mu            sync.Mutex
	elementTypes  map[string]string // dedupKey -> xsd valueType, for writes
	pollable      []*pollableElement
	writeEvents   chan aasprovider.WriteEvent
	mqttClient    mqttPublisher
	stopPolling   context.CancelFunc
	closeOnce     sync.Once
}

type pollableElement struct {
	submodelID string
	idShort    string
	xsdType    string

	mu       sync.Mutex
	hasLast  bool
	lastSeen interface{}
}

// New constructs an HTTP/MQTT AAS Provider. queueCapacity bounds the
// pending AAS -> OPC UA write queue fed by polling and MQTT ingestion.
func New(cfg Config, logger *zap.Logger, queueCapacity int) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueCapacity <= 0 {
		queueCapacity = 100
	}
	return &Provider{
		cfg:          cfg,
		rest:         newRESTClient(cfg),
		dedup:        newDedupCache(cfg.DedupEnabled, cfg.DedupTTL, cfg.DedupMaxEntries),
		logger:       logger,
		elementTypes: make(map[string]string),
		writeEvents:  make(chan aasprovider.WriteEvent, queueCapacity),
	}
}

// RegisterSubmodel provisions sm with the AAS repository (GET-then-POST for
// the submodel, then POST for each element, per spec.md §4.7) when
// auto-creation is enabled, and records each element's value type so later
// writes know which xs:* type to send.
func (p *Provider) RegisterSubmodel(ctx context.Context, sm *aasmodel.Submodel) error {
	if p.cfg.AutoCreateSubmodels {
		if err := p.rest.ensureSubmodel(ctx, sm.Identifier, sm.IDShort); err != nil {
			p.logger.Warn("failed to provision submodel", zap.String("submodel_id", sm.Identifier), zap.Error(err))
		}
	}

	p.mu.Lock()
	for _, el := range sm.Elements {
		p.elementTypes[dedupKey(sm.Identifier, el.IDShort)] = el.ValueType
	}
	p.mu.Unlock()

	if p.cfg.AutoCreateElements {
		for _, el := range sm.Elements {
			if err := p.rest.ensureElement(ctx, sm.Identifier, el); err != nil {
				p.logger.Warn("failed to provision element",
					zap.String("submodel_id", sm.Identifier),
					zap.String("id_short", el.IDShort),
					zap.Error(err))
			}
		}
	}
	return nil
}

// WriteElement publishes value to submodelID/idShort using the PATCH/PUT
// fan-out, then remembers the write in the dedup cache so polling and MQTT
// ingestion don't echo it back as an AAS-originated change.
func (p *Provider) WriteElement(ctx context.Context, submodelID, idShort string, value interface{}) error {
	p.mu.Lock()
	xsdType := p.elementTypes[dedupKey(submodelID, idShort)]
	p.mu.Unlock()

	if err := p.rest.updateProperty(ctx, submodelID, idShort, value, xsdType); err != nil {
		return err
	}
	p.dedup.Remember(submodelID, idShort, value)
	return nil
}

// EnablePolling marks (submodelID, idShort) as control-direction: the
// polling loop will GET its value and, on change, emit a WriteRequest.
// Called by cmd/bridge for every enabled mapping whose direction allows
// AAS -> OPC UA.
func (p *Provider) EnablePolling(submodelID, idShort, xsdType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollable = append(p.pollable, &pollableElement{
		submodelID: submodelID,
		idShort:    idShort,
		xsdType:    xsdType,
	})
}

// Start launches the polling loop (if configured) and the MQTT subscriber
// (if configured). It returns once both are running; background work
// continues until ctx is cancelled.
func (p *Provider) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.stopPolling = cancel
	hasPollable := len(p.pollable) > 0
	p.mu.Unlock()

	if p.cfg.PollInterval > 0 && hasPollable {
		go p.runPollLoop(pollCtx)
	}

	if p.cfg.MQTT != nil {
		if err := p.startMQTT(ctx); err != nil {
			return fmt.Errorf("httpaas: starting MQTT ingestion: %w", err)
		}
	}
	return nil
}

// Close stops background work and closes the write-request channel.
func (p *Provider) Close() error {
	p.mu.Lock()
	stop := p.stopPolling
	client := p.mqttClient
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	if client != nil {
		client.Disconnect(250)
	}
	p.closeOnce.Do(func() { close(p.writeEvents) })
	return nil
}

// WriteRequests returns the channel of pending AAS -> OPC UA writes
// discovered by polling or MQTT ingestion.
func (p *Provider) WriteRequests() <-chan aasprovider.WriteEvent {
	return p.writeEvents
}

// enqueueWrite pushes a discovered AAS-side change onto the write queue,
// suppressing it if the dedup cache shows this provider itself produced
// the value.
func (p *Provider) enqueueWrite(submodelID, idShort string, value interface{}) {
	if p.dedup.Seen(submodelID, idShort, value) {
		return
	}
	event := aasprovider.WriteEvent{SubmodelID: submodelID, IDShort: idShort, Value: value}
	select {
	case p.writeEvents <- event:
	default:
		p.logger.Warn("httpaas write queue full, dropping discovered change",
			zap.String("submodel_id", submodelID), zap.String("id_short", idShort))
	}
}

// mqttPublisher is the subset of paho.mqtt.golang's Client used here,
// narrowed for testability.
type mqttPublisher interface {
	Disconnect(quiesce uint)
}
