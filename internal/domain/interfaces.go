package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID int64) (*Auction, error)
	// ListDueAuctions returns approved auctions with no winner and no recorded outcome
	// whose end time is at or before now.
	ListDueAuctions(ctx context.Context, now time.Time) ([]*Auction, error)
	UpdateEndTime(ctx context.Context, auctionID int64, endTime time.Time) error
	// CloseAuction records the terminal outcome. It reports false when the auction
	// was already closed.
	CloseAuction(ctx context.Context, auctionID int64, outcome Outcome, winner *ParticipantRef, at time.Time) (bool, error)
}

type BidRepository interface {
	// GetBid returns ErrBidNotFound for an unknown id.
	GetBid(ctx context.Context, bidID int64) (*Bid, error)
	// HighestBid returns ErrNoBids when the auction has no bids.
	HighestBid(ctx context.Context, auctionID int64) (*Bid, error)
	// InsertBid persists bid only if the current highest bid id still equals
	// expectedHighestID (0 meaning "no bids"); otherwise it returns ErrStaleSnapshot.
	InsertBid(ctx context.Context, bid *Bid, expectedHighestID int64) error
	// LatestAutoBids returns the most recent auto bid of every distinct bidder.
	LatestAutoBids(ctx context.Context, auctionID int64) ([]*Bid, error)
	ListBids(ctx context.Context, auctionID int64) ([]*Bid, error)
	ListBidsByBidder(ctx context.Context, bidder ParticipantRef) ([]*Bid, error)
}

// Lock interfaces
type Lease struct {
	AuctionID  int64
	Token      string
	AcquiredAt time.Time
}

type AuctionLock interface {
	// Acquire blocks until the auction is free or the wait budget is spent,
	// in which case it returns ErrLockTimeout.
	Acquire(ctx context.Context, auctionID int64) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

// Cache interfaces
type BidCache interface {
	SetHighest(ctx context.Context, snapshot *HighestBidSnapshot) error
	GetHighest(ctx context.Context, auctionID int64) (*HighestBidSnapshot, error)
}

// Event interfaces
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *Event) error
}

type EventSubscriber interface {
	SubscribeToEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *Event) error

// Notification interfaces
type UserNotifier interface {
	NotifyParticipant(ctx context.Context, participant ParticipantRef, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID int64, message interface{}) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	Participant() ParticipantRef
	AuctionID() int64
}

type ConnectionManager interface {
	RegisterConnection(participant ParticipantRef, auctionID int64, conn WebSocketConnection) error
	// UnregisterConnection is a no-op when conn was already replaced by a newer one.
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForAuction(auctionID int64) []WebSocketConnection
	GetConnectionsForParticipant(participant ParticipantRef) []WebSocketConnection
	BroadcastToAuction(auctionID int64, message interface{}) error
	NotifyParticipant(participant ParticipantRef, message interface{}) error
	CloseAndUnregisterConnections(auctionID int64) error
}
