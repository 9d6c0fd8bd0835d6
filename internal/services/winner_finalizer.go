package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// WinnerFinalizer closes auctions whose end time has passed. Each auction moves
// from open to exactly one terminal outcome.
type WinnerFinalizer struct {
	auctionRepo domain.AuctionRepository
	bidRepo     domain.BidRepository
	auctionLock domain.AuctionLock
	eventPub    domain.EventPublisher
	log         logger.Logger
}

func NewWinnerFinalizer(
	auctionRepo domain.AuctionRepository,
	bidRepo domain.BidRepository,
	auctionLock domain.AuctionLock,
	eventPub domain.EventPublisher,
	log logger.Logger,
) *WinnerFinalizer {
	return &WinnerFinalizer{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		auctionLock: auctionLock,
		eventPub:    eventPub,
		log:         log,
	}
}

// RunSweep finalizes every auction due at now. Auctions that could not be
// locked or read are skipped and reported through the joined error; they stay
// due and are picked up by the next sweep.
func (f *WinnerFinalizer) RunSweep(ctx context.Context, now time.Time) ([]domain.SweepResult, error) {
	due, err := f.auctionRepo.ListDueAuctions(ctx, now)
	if err != nil {
		return nil, storageError("list due auctions", err)
	}

	f.log.Debug("Finalization sweep", "due", len(due), "now", now)

	var (
		results []domain.SweepResult
		errs    []error
	)
	for _, auction := range due {
		result, err := f.finalize(ctx, auction.ID, now)
		if err != nil {
			f.log.Error("Failed to finalize auction", "auction_id", auction.ID, "error", err)
			errs = append(errs, fmt.Errorf("auction %d: %w", auction.ID, err))
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	return results, errors.Join(errs...)
}

// finalize returns nil, nil when the auction is no longer due once locked.
func (f *WinnerFinalizer) finalize(ctx context.Context, auctionID int64, now time.Time) (*domain.SweepResult, error) {
	lease, err := f.auctionLock.Acquire(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.auctionLock.Release(context.Background(), lease); err != nil {
			f.log.Error("Failed to release auction lock", "auction_id", auctionID, "error", err)
		}
	}()

	auction, err := f.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storageError("load auction", err)
	}
	if !auction.IsDue(now) {
		f.log.Info("Auction no longer due, skipping", "auction_id", auctionID, "end_time", auction.EndTime)
		return nil, nil
	}

	result := &domain.SweepResult{AuctionID: auctionID}

	highest, err := f.bidRepo.HighestBid(ctx, auctionID)
	switch {
	case errors.Is(err, domain.ErrNoBids):
		result.Outcome = domain.OutcomeNoBids
	case err != nil:
		return nil, storageError("load highest bid", err)
	case highest.Amount.LessThan(auction.StartingBid),
		auction.ReservePrice != nil && highest.Amount.LessThan(*auction.ReservePrice):
		result.Outcome = domain.OutcomeReserveNotMet
	default:
		winner, amount := highest.Bidder, highest.Amount
		result.Outcome = domain.OutcomeWinnerDeclared
		result.Winner = &winner
		result.Amount = &amount
	}

	closed, err := f.auctionRepo.CloseAuction(ctx, auctionID, result.Outcome, result.Winner, now)
	if err != nil {
		return nil, storageError("close auction", err)
	}
	if !closed {
		return nil, nil
	}

	f.log.Info("Auction finalized", "auction_id", auctionID, "outcome", result.Outcome)

	if result.Outcome == domain.OutcomeWinnerDeclared {
		f.notifyParticipants(ctx, auctionID, *result.Winner, *result.Amount, now)
	}
	return result, nil
}

// notifyParticipants is fire-and-forget: failures are logged and never undo
// the winner assignment.
func (f *WinnerFinalizer) notifyParticipants(ctx context.Context, auctionID int64, winner domain.ParticipantRef, amount decimal.Decimal, now time.Time) {
	if f.eventPub == nil {
		return
	}

	f.publish(ctx, &domain.Event{
		Type:        domain.EventAuctionWon,
		AuctionID:   auctionID,
		Participant: &winner,
		Amount:      &amount,
		Timestamp:   now,
	})

	bids, err := f.bidRepo.ListBids(ctx, auctionID)
	if err != nil {
		f.log.Error("Failed to list bidders for loss notifications", "auction_id", auctionID, "error", err)
		return
	}

	seen := map[domain.ParticipantRef]bool{winner: true}
	for _, b := range bids {
		if seen[b.Bidder] {
			continue
		}
		seen[b.Bidder] = true

		loser := b.Bidder
		f.publish(ctx, &domain.Event{
			Type:        domain.EventAuctionLost,
			AuctionID:   auctionID,
			Participant: &loser,
			Amount:      &amount,
			Timestamp:   now,
		})
	}
}

func (f *WinnerFinalizer) publish(ctx context.Context, event *domain.Event) {
	if err := f.eventPub.PublishEvent(ctx, event); err != nil {
		f.log.Error("Failed to publish notification", "type", event.Type,
			"auction_id", event.AuctionID, "participant", event.Participant.String(), "error", err)
	}
}
