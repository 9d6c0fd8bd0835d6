package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// AutoBidResolver plays out proxy bidding for one auction until no standing
// auto bid can beat the current price. It runs inside the caller's lock and
// re-reads the highest bid every round.
type AutoBidResolver struct {
	bidRepo   domain.BidRepository
	extender  *AntiSnipeExtender
	maxRounds int
	log       logger.Logger
}

func NewAutoBidResolver(bidRepo domain.BidRepository, extender *AntiSnipeExtender, maxRounds int, log logger.Logger) *AutoBidResolver {
	return &AutoBidResolver{
		bidRepo:   bidRepo,
		extender:  extender,
		maxRounds: maxRounds,
		log:       log,
	}
}

// Resolve escalates at most one proxy bidder per round. Reaching the round cap
// is logged and reported through CapReached, never as an error. A storage
// error aborts the cascade; bids already written stay.
func (r *AutoBidResolver) Resolve(ctx context.Context, auction *domain.Auction, now func() time.Time) (*domain.CascadeResult, error) {
	result := &domain.CascadeResult{}

	for result.Rounds < r.maxRounds {
		current, err := r.bidRepo.HighestBid(ctx, auction.ID)
		if errors.Is(err, domain.ErrNoBids) {
			return result, nil
		}
		if err != nil {
			return result, storageError("load highest bid", err)
		}
		result.Highest = current

		autoBids, err := r.bidRepo.LatestAutoBids(ctx, auction.ID)
		if err != nil {
			return result, storageError("load auto bids", err)
		}

		next := nextEscalation(current, autoBids)
		if next == nil {
			return result, nil
		}
		result.Rounds++

		next.CreatedAt = now()
		if err := r.bidRepo.InsertBid(ctx, next, current.ID); err != nil {
			return result, storageError("insert auto bid", err)
		}
		result.Escalations++
		result.Highest = next

		r.log.Debug("Auto bid placed",
			"auction_id", auction.ID, "bidder", next.Bidder.String(), "amount", next.Amount.String())

		if r.extender != nil {
			if _, err := r.extender.MaybeExtend(ctx, auction, next.CreatedAt); err != nil {
				return result, err
			}
		}
	}

	result.CapReached = true
	r.log.Warn("Auto bid cascade hit round cap",
		"auction_id", auction.ID, "rounds", result.Rounds, "escalations", result.Escalations)
	return result, nil
}

// nextEscalation picks the first proxy bidder, ordered by participant id,
// that can top current within its max. It returns nil at equilibrium.
func nextEscalation(current *domain.Bid, autoBids []*domain.Bid) *domain.Bid {
	candidates := make([]*domain.Bid, 0, len(autoBids))
	for _, b := range autoBids {
		if b.Bidder == current.Bidder || b.AutoMaxBid == nil || b.AutoIncrement == nil {
			continue
		}
		if !b.AutoIncrement.IsPositive() {
			continue
		}
		candidates = append(candidates, b)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Bidder.Less(candidates[j].Bidder)
	})

	for _, c := range candidates {
		amount := current.Amount.Add(*c.AutoIncrement)
		if amount.GreaterThan(*c.AutoMaxBid) {
			continue
		}
		maxBid, increment := *c.AutoMaxBid, *c.AutoIncrement
		return &domain.Bid{
			AuctionID:     current.AuctionID,
			Bidder:        c.Bidder,
			Amount:        amount,
			IsAuto:        true,
			AutoMaxBid:    &maxBid,
			AutoIncrement: &increment,
		}
	}
	return nil
}
