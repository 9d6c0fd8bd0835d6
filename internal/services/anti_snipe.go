package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// AntiSnipeExtender pushes back the close of an auction when a bid lands
// inside the snipe window. Callers must hold the auction lock.
type AntiSnipeExtender struct {
	auctionRepo domain.AuctionRepository
	eventPub    domain.EventPublisher
	window      time.Duration
	extension   time.Duration
	log         logger.Logger
}

func NewAntiSnipeExtender(auctionRepo domain.AuctionRepository, eventPub domain.EventPublisher,
	window, extension time.Duration, log logger.Logger) *AntiSnipeExtender {
	return &AntiSnipeExtender{
		auctionRepo: auctionRepo,
		eventPub:    eventPub,
		window:      window,
		extension:   extension,
		log:         log,
	}
}

// MaybeExtend extends auction.EndTime by the configured extension when
// end - at <= window, persists it and updates auction in place. It reports
// whether an extension happened.
func (e *AntiSnipeExtender) MaybeExtend(ctx context.Context, auction *domain.Auction, at time.Time) (bool, error) {
	if auction.EndTime.Sub(at) > e.window {
		return false, nil
	}

	newEndTime := auction.EndTime.Add(e.extension)
	if err := e.auctionRepo.UpdateEndTime(ctx, auction.ID, newEndTime); err != nil {
		return false, storageError("extend auction", err)
	}
	auction.EndTime = newEndTime

	e.log.Info("Auction extended", "auction_id", auction.ID, "new_end_time", newEndTime)

	if e.eventPub != nil {
		if err := e.eventPub.PublishEvent(ctx, &domain.Event{
			Type:      domain.EventAuctionExtended,
			AuctionID: auction.ID,
			EndTime:   &newEndTime,
			Timestamp: at,
		}); err != nil {
			e.log.Error("Failed to publish extension event", "auction_id", auction.ID, "error", err)
		}
	}

	return true, nil
}

// storageError tags err as a storage failure unless it already carries a
// classification the caller should see as is.
func storageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrAuctionNotFound) ||
		errors.Is(err, domain.ErrBidNotFound) || errors.Is(err, domain.ErrStaleSnapshot) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
