package services

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// EventListener fans engine events out to realtime clients: room broadcasts
// for bids and extensions, direct messages for outbid, won and lost.
type EventListener struct {
	broadcaster domain.AuctionBroadcaster
	notifier    domain.UserNotifier
	log         logger.Logger
}

func NewEventListener(broadcaster domain.AuctionBroadcaster, notifier domain.UserNotifier, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToEvents(ctx, el.HandleEvent)
}

func (el *EventListener) HandleEvent(event *domain.Event) error {
	el.log.Debug("Handling event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.EventBidPlaced:
		return el.handleBidPlaced(event)
	case domain.EventAuctionExtended:
		return el.handleAuctionExtended(event)
	case domain.EventAuctionWon, domain.EventAuctionLost:
		return el.handleOutcome(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidPlaced(event *domain.Event) error {
	ctx := context.Background()

	if err := el.broadcaster.BroadcastToAuction(ctx, event.AuctionID, map[string]interface{}{
		"type":       "bid_update",
		"auction_id": event.AuctionID,
		"bid":        event.Bid,
		"highest":    event.Highest,
		"end_time":   event.EndTime,
		"timestamp":  event.Timestamp,
	}); err != nil {
		return err
	}

	if event.Highest == nil {
		return nil
	}

	// The previous leader and the manual bidder both lose the lead when the
	// cascade ends with someone else on top.
	outbid := make(map[domain.ParticipantRef]bool)
	if event.PreviousLeader != nil {
		outbid[*event.PreviousLeader] = true
	}
	if event.Bid != nil {
		outbid[event.Bid.Bidder] = true
	}
	delete(outbid, event.Highest.Bidder)

	for participant := range outbid {
		if err := el.notifier.NotifyParticipant(ctx, participant, map[string]interface{}{
			"type":        "outbid",
			"auction_id":  event.AuctionID,
			"current_bid": event.Highest.Amount,
			"timestamp":   event.Timestamp,
		}); err != nil {
			el.log.Error("Failed to send outbid notice", "participant", participant.String(), "error", err)
		}
	}
	return nil
}

func (el *EventListener) handleAuctionExtended(event *domain.Event) error {
	return el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":       "auction_extended",
		"auction_id": event.AuctionID,
		"end_time":   event.EndTime,
		"timestamp":  event.Timestamp,
	})
}

func (el *EventListener) handleOutcome(event *domain.Event) error {
	if event.Participant == nil {
		return fmt.Errorf("%s event for auction %d has no participant", event.Type, event.AuctionID)
	}
	return el.notifier.NotifyParticipant(context.Background(), *event.Participant, map[string]interface{}{
		"type":       string(event.Type),
		"auction_id": event.AuctionID,
		"amount":     event.Amount,
		"timestamp":  event.Timestamp,
	})
}
