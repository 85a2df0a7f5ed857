package api

import (
	"github.com/vectorquant/strategy-engine/internal/collab"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// HubNotifier adapts the WebSocket hub to the collab.Notifier
// interface, chaining to a fallback notifier so events still reach the
// log when no client is connected.
type HubNotifier struct {
	hub      *Hub
	fallback collab.Notifier
}

// NewHubNotifier creates a notifier publishing through the hub.
// fallback may be nil.
func NewHubNotifier(hub *Hub, fallback collab.Notifier) *HubNotifier {
	return &HubNotifier{hub: hub, fallback: fallback}
}

// Notify publishes the event to WebSocket subscribers. Delivery is
// best-effort.
func (n *HubNotifier) Notify(event types.NotificationEvent, session *types.TradingSession) {
	n.hub.BroadcastSessionEvent(event, session)
	if n.fallback != nil {
		n.fallback.Notify(event, session)
	}
}
