package services

import (
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// BidValidator checks a candidate bid against an auction snapshot. It has no
// side effects and holds no state.
type BidValidator struct{}

func NewBidValidator() *BidValidator {
	return &BidValidator{}
}

// Validate runs the checks in order and returns the first rejection, or nil.
// highest may be nil when the auction has no bids yet.
func (v *BidValidator) Validate(auction *domain.Auction, highest *domain.Bid, req *domain.PlaceBidRequest, now time.Time) error {
	if !auction.IsOpen(now) {
		return domain.ErrAuctionNotOpen
	}

	if req.Bidder == auction.Creator {
		return domain.ErrSelfBidForbidden
	}

	minimum := v.MinimumExclusive(auction, highest)
	if !req.Amount.GreaterThan(minimum) {
		return domain.NewBidTooLow(minimum)
	}

	if req.Auto != nil {
		if req.Auto.MaxBid.LessThan(req.Amount) || !req.Auto.Increment.IsPositive() {
			return domain.ErrInvalidAutoBidParameters
		}
	}

	return nil
}

// MinimumExclusive is the amount a new bid has to exceed: the current highest
// bid, or the starting bid when nobody has bid yet.
func (v *BidValidator) MinimumExclusive(auction *domain.Auction, highest *domain.Bid) decimal.Decimal {
	if highest == nil {
		return auction.StartingBid
	}
	return highest.Amount
}

// CheckRequest rejects requests that are malformed regardless of auction state.
func (v *BidValidator) CheckRequest(req *domain.PlaceBidRequest) error {
	if !req.Bidder.CanBid() {
		return domain.ErrBidderNotEligible
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(2)) {
		return domain.ErrInvalidAmount
	}
	if req.Auto != nil {
		if !req.Auto.MaxBid.Equal(req.Auto.MaxBid.Truncate(2)) || !req.Auto.Increment.Equal(req.Auto.Increment.Truncate(2)) {
			return domain.ErrInvalidAutoBidParameters
		}
	}
	return nil
}
