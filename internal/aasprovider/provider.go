// Package aasprovider defines the AAS Provider abstraction shared by the
// two concrete implementations (spec.md §4.6/§4.7): an in-memory store for
// local testing and small deployments, and an HTTP/MQTT-backed client for a
// real BaSyx AAS repository.
package aasprovider

import (
	"context"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
)

// WriteEvent describes a pending AAS -> OPC UA write: some actor (a REST
// client PATCHing a submodel element, or an MQTT command message) changed
// an element's value and that change must be propagated back to the OPC
// UA side through the Control Manager.
type WriteEvent struct {
	SubmodelID    string
	IDShort       string
	Value         interface{}
	UserID        string
	CorrelationID string
}

// Provider is implemented by both the Memory and HTTP AAS providers. It
// satisfies monitor.Sink directly, so either provider can be used as the
// Monitoring Manager's dispatch target.
type Provider interface {
	// RegisterSubmodel provisions a submodel with the provider, creating it
	// if absent.
	RegisterSubmodel(ctx context.Context, sm *aasmodel.Submodel) error

	// WriteElement applies an OPC UA -> AAS synchronized value to the named
	// submodel element.
	WriteElement(ctx context.Context, submodelID, idShort string, value interface{}) error

	// WriteRequests returns a channel of pending AAS -> OPC UA writes. The
	// channel is closed when the provider is closed.
	WriteRequests() <-chan WriteEvent

	// Close releases any background resources (pollers, MQTT clients,
	// queues) and closes the WriteRequests channel.
	Close() error
}

// Starter is implemented by providers with background work to run (the
// HTTP provider's polling loop and MQTT subscriber). The Memory provider
// has no such work and does not implement it; callers should type-assert
// before calling Start.
type Starter interface {
	Start(ctx context.Context) error
}
