package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	auctionID   int64
	participant domain.ParticipantRef
	message     map[string]interface{}
}

type recordingNotifier struct {
	mu         sync.Mutex
	broadcasts []sentMessage
	direct     []sentMessage
}

func (n *recordingNotifier) BroadcastToAuction(_ context.Context, auctionID int64, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, sentMessage{auctionID: auctionID, message: message.(map[string]interface{})})
	return nil
}

func (n *recordingNotifier) NotifyParticipant(_ context.Context, participant domain.ParticipantRef, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, sentMessage{participant: participant, message: message.(map[string]interface{})})
	return nil
}

func TestEventListener_BidPlaced(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice, bob, carol := domain.UserRef(2), domain.UserRef(3), domain.CustomerRef(4)

	tests := []struct {
		name   string
		event  *domain.Event
		outbid []domain.ParticipantRef
	}{
		{
			name: "first_bid",
			event: &domain.Event{Type: domain.EventBidPlaced, AuctionID: 7,
				Bid:     &domain.BidView{ID: 1, Bidder: alice, Amount: dec("110")},
				Highest: &domain.BidView{ID: 1, Bidder: alice, Amount: dec("110")}},
		},
		{
			name: "leader_changes",
			event: &domain.Event{Type: domain.EventBidPlaced, AuctionID: 7, PreviousLeader: &alice,
				Bid:     &domain.BidView{ID: 2, Bidder: bob, Amount: dec("120")},
				Highest: &domain.BidView{ID: 2, Bidder: bob, Amount: dec("120")}},
			outbid: []domain.ParticipantRef{alice},
		},
		{
			name: "proxy_answers_manual_bid",
			event: &domain.Event{Type: domain.EventBidPlaced, AuctionID: 7, PreviousLeader: &carol,
				Bid:     &domain.BidView{ID: 3, Bidder: bob, Amount: dec("130")},
				Highest: &domain.BidView{ID: 4, Bidder: carol, Amount: dec("140"), IsAuto: true}},
			outbid: []domain.ParticipantRef{bob},
		},
		{
			name: "self_raise",
			event: &domain.Event{Type: domain.EventBidPlaced, AuctionID: 7, PreviousLeader: &alice,
				Bid:     &domain.BidView{ID: 5, Bidder: alice, Amount: dec("150")},
				Highest: &domain.BidView{ID: 5, Bidder: alice, Amount: dec("150")}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := &recordingNotifier{}
			listener := NewEventListener(n, n, logger.NewNop())
			tc.event.Timestamp = now

			require.NoError(t, listener.HandleEvent(tc.event))

			require.Len(t, n.broadcasts, 1)
			require.Equal(t, int64(7), n.broadcasts[0].auctionID)
			require.Equal(t, "bid_update", n.broadcasts[0].message["type"])

			var notified []domain.ParticipantRef
			for _, m := range n.direct {
				require.Equal(t, "outbid", m.message["type"])
				notified = append(notified, m.participant)
			}
			require.ElementsMatch(t, tc.outbid, notified)
		})
	}
}

func TestEventListener_OutcomesAndExtension(t *testing.T) {
	n := &recordingNotifier{}
	listener := NewEventListener(n, n, logger.NewNop())
	winner := domain.UserRef(2)
	amount := dec("300")
	end := time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC)

	require.NoError(t, listener.HandleEvent(&domain.Event{Type: domain.EventAuctionWon, AuctionID: 7, Participant: &winner, Amount: &amount}))
	require.NoError(t, listener.HandleEvent(&domain.Event{Type: domain.EventAuctionExtended, AuctionID: 7, EndTime: &end}))

	require.Len(t, n.direct, 1)
	require.Equal(t, winner, n.direct[0].participant)
	require.Equal(t, "auction_won", n.direct[0].message["type"])

	require.Len(t, n.broadcasts, 1)
	require.Equal(t, "auction_extended", n.broadcasts[0].message["type"])

	require.Error(t, listener.HandleEvent(&domain.Event{Type: domain.EventAuctionLost, AuctionID: 7}))
	require.Error(t, listener.HandleEvent(&domain.Event{Type: "mystery", AuctionID: 7}))
}
