package opcuapool

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// WriteNodeValue writes value (already coerced to its OPC UA representation
// by the mapping engine) to nodeID, wrapping it with ua.NewVariant so an
// unsupported value type is returned as an error. A node id is not itself qualified with an
// endpoint, so, per the Open Question decision in DESIGN.md, the pool tries
// every currently connected endpoint in turn and succeeds on the first one
// that accepts the write — adequate for the common single-server
// deployment and for multi-server deployments where node ids don't
// collide across servers.
func (p *Pool) WriteNodeValue(ctx context.Context, nodeID string, value interface{}, variantType string) error {
	parsedNodeID, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return fmt.Errorf("opcuapool: invalid node id %q: %w", nodeID, err)
	}

	variant, err := ua.NewVariant(value)
	if err != nil {
		return fmt.Errorf("opcuapool: cannot build variant for node %q: %w", nodeID, err)
	}

	request := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			{
				NodeID:      parsedNodeID,
				AttributeID: ua.AttributeIDValue,
				Value:       &ua.DataValue{Value: variant},
			},
		},
	}

	endpoints := p.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("opcuapool: no endpoints registered, cannot write node %q", nodeID)
	}

	var lastErr error
	for _, endpoint := range endpoints {
		client, err := p.GetConnection(endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		inner := Underlying(client)
		if inner == nil {
			lastErr = fmt.Errorf("endpoint %s has no writable OPC UA connection", endpoint)
			continue
		}

		response, err := inner.Write(ctx, request)
		if err != nil {
			lastErr = err
			continue
		}
		if len(response.Results) == 0 {
			lastErr = fmt.Errorf("no results returned for write to node %q at %s", nodeID, endpoint)
			continue
		}
		if response.Results[0] != ua.StatusOK {
			lastErr = fmt.Errorf("bad status for write to node %q at %s: %s", nodeID, endpoint, response.Results[0])
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("opcuapool: write to node %q failed on all endpoints", nodeID)
	}
	return lastErr
}

// ReadNodeValue reads nodeID's current value, trying every currently
// connected endpoint in turn (same routing caveat as WriteNodeValue). It
// exists solely to populate the "previous value" field of a write audit
// entry (spec.md §4.5) and is best-effort: callers should treat a failure
// as "previous value unknown" rather than aborting the write.
func (p *Pool) ReadNodeValue(ctx context.Context, nodeID string) (interface{}, error) {
	parsedNodeID, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("opcuapool: invalid node id %q: %w", nodeID, err)
	}

	request := &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: parsedNodeID, AttributeID: ua.AttributeIDValue},
		},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	}

	endpoints := p.Endpoints()
	var lastErr error
	for _, endpoint := range endpoints {
		client, err := p.GetConnection(endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		inner := Underlying(client)
		if inner == nil {
			lastErr = fmt.Errorf("endpoint %s has no readable OPC UA connection", endpoint)
			continue
		}

		response, err := inner.Read(ctx, request)
		if err != nil {
			lastErr = err
			continue
		}
		if len(response.Results) == 0 || response.Results[0].Status != ua.StatusOK {
			lastErr = fmt.Errorf("bad read result for node %q at %s", nodeID, endpoint)
			continue
		}
		return response.Results[0].Value.Value(), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("opcuapool: read of node %q failed, no endpoints available", nodeID)
	}
	return nil, lastErr
}
