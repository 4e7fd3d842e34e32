package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
	"github.com/hadijannat/basyx-opcua-bridge/internal/opcuapool"
)

// Subscribe creates one OPC UA subscription against client covering
// nodeIDs, grouped per endpoint per spec.md §4.4, and wires its
// notification channel into m.OnDataChange. It follows the teacher's
// CreateSubscription shape: a single subscription per endpoint with one
// monitored item per node, discarding the oldest queued sample per item
// when the server-side monitored item queue overflows.
func (m *Manager) Subscribe(ctx context.Context, client opcuapool.Client, endpointURL string, nodeIDs []string, publishingInterval time.Duration) error {
	inner := opcuapool.Underlying(client)
	if inner == nil {
		return fmt.Errorf("monitor: client for %s does not expose a subscribable OPC UA connection", endpointURL)
	}

	notifCh := make(chan *opcua.PublishNotificationData, 100)
	params := &opcua.SubscriptionParameters{
		Interval:                   publishingInterval,
		Priority:                   1,
		MaxNotificationsPerPublish: 1000,
	}

	sub, err := inner.Subscribe(ctx, params, notifCh)
	if err != nil {
		return fmt.Errorf("monitor: create subscription for %s: %w", endpointURL, err)
	}

	var items []*ua.MonitoredItemCreateRequest
	handleToNode := make(map[uint32]string, len(nodeIDs))
	for i, raw := range nodeIDs {
		nodeID, err := ua.ParseNodeID(raw)
		if err != nil {
			m.logger.Warn("skipping invalid node id for subscription", zap.String("node_id", raw), zap.Error(err))
			continue
		}
		handle := uint32(i)
		handleToNode[handle] = raw
		items = append(items, &ua.MonitoredItemCreateRequest{
			ItemToMonitor: &ua.ReadValueID{
				NodeID:      nodeID,
				AttributeID: ua.AttributeIDValue,
			},
			MonitoringMode: ua.MonitoringModeReporting,
			RequestedParameters: &ua.MonitoringParameters{
				ClientHandle:     handle,
				SamplingInterval: float64(publishingInterval.Milliseconds()) / 2,
				QueueSize:        10,
				DiscardOldest:    true,
			},
		})
	}
	if len(items) == 0 {
		return fmt.Errorf("monitor: no valid node ids for subscription against %s", endpointURL)
	}

	if _, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, items...); err != nil {
		return fmt.Errorf("monitor: create monitored items for %s: %w", endpointURL, err)
	}

	go m.pumpNotifications(ctx, notifCh, handleToNode, endpointURL)
	return nil
}

func (m *Manager) pumpNotifications(ctx context.Context, notifCh chan *opcua.PublishNotificationData, handleToNode map[uint32]string, endpointURL string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-notifCh:
			if !ok {
				return
			}
			if msg.Error != nil {
				m.logger.Warn("subscription notification error", zap.String("endpoint", endpointURL), zap.Error(msg.Error))
				continue
			}
			event, ok := msg.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, item := range event.MonitoredItems {
				nodeID, known := handleToNode[item.ClientHandle]
				if !known {
					continue
				}
				m.OnDataChange(&aasmodel.DataChangeEvent{
					NodeID:      nodeID,
					Value:       item.Value.Value.Value(),
					SourceTime:  item.Value.SourceTimestamp,
					EndpointURL: endpointURL,
				})
			}
		}
	}
}
