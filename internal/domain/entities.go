package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Auction struct {
	ID           int64
	Title        string
	StartTime    time.Time
	EndTime      time.Time
	StartingBid  decimal.Decimal
	ReservePrice *decimal.Decimal
	Status       AuctionStatus
	Creator      ParticipantRef
	Winner       *ParticipantRef
	Outcome      Outcome
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether bids may be accepted at now.
func (a *Auction) IsOpen(now time.Time) bool {
	return a.Status == AuctionApproved && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// IsDue reports whether the auction is waiting for finalization at now.
func (a *Auction) IsDue(now time.Time) bool {
	return a.Status == AuctionApproved && a.Winner == nil && a.Outcome == OutcomeOpen && !a.EndTime.After(now)
}

type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionApproved  AuctionStatus = "approved"
	AuctionRejected  AuctionStatus = "rejected"
	AuctionCancelled AuctionStatus = "cancelled"
	AuctionSuspended AuctionStatus = "suspended"
)

// CanTransitionTo enforces pending→approved/rejected and approved→cancelled/suspended.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case AuctionPending:
		return next == AuctionApproved || next == AuctionRejected
	case AuctionApproved:
		return next == AuctionCancelled || next == AuctionSuspended
	default:
		return false
	}
}

type Bid struct {
	ID            int64
	AuctionID     int64
	Bidder        ParticipantRef
	Amount        decimal.Decimal
	IsAuto        bool
	AutoMaxBid    *decimal.Decimal
	AutoIncrement *decimal.Decimal
	CreatedAt     time.Time
}

// Outranks reports whether b is the higher bid under the canonical ordering:
// amount first, then earliest creation, then lowest id.
func (b *Bid) Outranks(other *Bid) bool {
	if c := b.Amount.Cmp(other.Amount); c != 0 {
		return c > 0
	}
	if !b.CreatedAt.Equal(other.CreatedAt) {
		return b.CreatedAt.Before(other.CreatedAt)
	}
	return b.ID < other.ID
}

type AutoBidParams struct {
	MaxBid    decimal.Decimal
	Increment decimal.Decimal
}

type PlaceBidRequest struct {
	AuctionID int64
	Bidder    ParticipantRef
	Amount    decimal.Decimal
	Auto      *AutoBidParams
}

// Outcome is the terminal state recorded when an auction is finalized.
type Outcome string

const (
	OutcomeOpen           Outcome = ""
	OutcomeNoBids         Outcome = "no_bids"
	OutcomeReserveNotMet  Outcome = "reserve_not_met"
	OutcomeWinnerDeclared Outcome = "winner_declared"
)

type SweepResult struct {
	AuctionID int64            `json:"auction_id"`
	Outcome   Outcome          `json:"outcome"`
	Winner    *ParticipantRef  `json:"winner,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

type CascadeResult struct {
	Escalations int
	Rounds      int
	CapReached  bool
	Highest     *Bid
}

type Event struct {
	Type           EventType        `json:"type"`
	AuctionID      int64            `json:"auction_id"`
	Bid            *BidView         `json:"bid,omitempty"`
	Highest        *BidView         `json:"highest,omitempty"`
	PreviousLeader *ParticipantRef  `json:"previous_leader,omitempty"`
	Participant    *ParticipantRef  `json:"participant,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

type EventType string

const (
	EventBidPlaced       EventType = "bid_placed"
	EventAuctionExtended EventType = "auction_extended"
	EventAuctionWon      EventType = "auction_won"
	EventAuctionLost     EventType = "auction_lost"
)

type BidView struct {
	ID        int64           `json:"id"`
	Bidder    ParticipantRef  `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	IsAuto    bool            `json:"is_auto"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewBidView(b *Bid) *BidView {
	if b == nil {
		return nil
	}
	return &BidView{
		ID:        b.ID,
		Bidder:    b.Bidder,
		Amount:    b.Amount,
		IsAuto:    b.IsAuto,
		CreatedAt: b.CreatedAt,
	}
}

type PublicBid struct {
	Identity  string          `json:"identity"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type PublicBidHistory struct {
	AuctionID          int64       `json:"auction_id"`
	Title              string      `json:"title"`
	TotalActiveBidders int         `json:"total_active_bidders"`
	HighestBid         *PublicBid  `json:"highest_bid"`
	Bids               []PublicBid `json:"bids"`
}

type HighestBidSnapshot struct {
	AuctionID int64           `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Leader    *ParticipantRef `json:"leader,omitempty"`
	EndTime   time.Time       `json:"end_time"`
}
