package websocket

import (
	"context"

	"auction-engine/internal/domain"
)

// WebSocketNotifier adapts the connection manager to the notifier and
// broadcaster ports used by the event listener.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) NotifyParticipant(ctx context.Context, participant domain.ParticipantRef, message interface{}) error {
	return n.connManager.NotifyParticipant(participant, message)
}

func (n *WebSocketNotifier) BroadcastToAuction(ctx context.Context, auctionID int64, message interface{}) error {
	return n.connManager.BroadcastToAuction(auctionID, message)
}
