package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

const afterCommitTimeout = 10 * time.Second

// BidService is the bid engine: it serializes every mutation of an auction
// behind the auction lock, validates against fresh state, persists the bid and
// then runs the anti-snipe extension and the auto bid cascade.
type BidService struct {
	auctionRepo        domain.AuctionRepository
	bidRepo            domain.BidRepository
	auctionLock        domain.AuctionLock
	validator          *BidValidator
	extender           *AntiSnipeExtender
	resolver           *AutoBidResolver
	eventPub           domain.EventPublisher
	bidCache           domain.BidCache
	maxSnapshotRetries int
	now                func() time.Time
	log                logger.Logger
}

func NewBidService(
	auctionRepo domain.AuctionRepository,
	bidRepo domain.BidRepository,
	auctionLock domain.AuctionLock,
	validator *BidValidator,
	extender *AntiSnipeExtender,
	resolver *AutoBidResolver,
	eventPub domain.EventPublisher,
	maxSnapshotRetries int,
	log logger.Logger,
) *BidService {
	return &BidService{
		auctionRepo:        auctionRepo,
		bidRepo:            bidRepo,
		auctionLock:        auctionLock,
		validator:          validator,
		extender:           extender,
		resolver:           resolver,
		eventPub:           eventPub,
		maxSnapshotRetries: maxSnapshotRetries,
		now:                time.Now,
		log:                log,
	}
}

// SetBidCache enables the highest bid snapshot kept for realtime clients.
func (s *BidService) SetBidCache(bidCache domain.BidCache) {
	s.bidCache = bidCache
}

func (s *BidService) SetClock(now func() time.Time) {
	s.now = now
}

type placement struct {
	bid            *domain.Bid
	auction        *domain.Auction
	previousLeader *domain.ParticipantRef
	cascade        *domain.CascadeResult
}

// PlaceBid accepts a manual bid. Rejections are returned as *domain.BidRejection,
// lock contention as a wrapped domain.ErrLockTimeout and persistence failures
// as a wrapped domain.ErrStorage. Exactly one bid placed event is published
// per accepted call.
func (s *BidService) PlaceBid(ctx context.Context, req *domain.PlaceBidRequest) (*domain.Bid, error) {
	if err := s.validator.CheckRequest(req); err != nil {
		return nil, err
	}

	lease, err := s.auctionLock.Acquire(ctx, req.AuctionID)
	if err != nil {
		s.log.Warn("Failed to acquire auction lock", "auction_id", req.AuctionID, "error", err)
		return nil, err
	}

	p, err := s.placeLocked(ctx, req)
	if err == nil {
		// Published under the lock so room updates keep acceptance order.
		s.publishBidPlaced(ctx, p)
	}

	if relErr := s.auctionLock.Release(context.Background(), lease); relErr != nil {
		s.log.Error("Failed to release auction lock", "auction_id", req.AuctionID, "error", relErr)
	}

	if err != nil {
		if !domain.IsRejection(err) {
			s.log.Error("Failed to place bid", "auction_id", req.AuctionID, "bidder", req.Bidder.String(), "error", err)
		}
		return nil, err
	}
	return p.bid, nil
}

// committed returns a context for work that follows a committed bid. It keeps
// the caller's values but outlives a cancelled request.
func committed(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
}

func (s *BidService) placeLocked(ctx context.Context, req *domain.PlaceBidRequest) (*placement, error) {
	for attempt := 0; ; attempt++ {
		now := s.now()

		auction, err := s.auctionRepo.GetAuction(ctx, req.AuctionID)
		if err != nil {
			return nil, storageError("load auction", err)
		}

		highest, err := s.highestBid(ctx, req.AuctionID)
		if err != nil {
			return nil, err
		}

		if err := s.validator.Validate(auction, highest, req, now); err != nil {
			return nil, err
		}

		bid := &domain.Bid{
			AuctionID: req.AuctionID,
			Bidder:    req.Bidder,
			Amount:    req.Amount,
			CreatedAt: now,
		}
		if req.Auto != nil {
			maxBid, increment := req.Auto.MaxBid, req.Auto.Increment
			bid.IsAuto = true
			bid.AutoMaxBid = &maxBid
			bid.AutoIncrement = &increment
		}

		var expectedID int64
		var previousLeader *domain.ParticipantRef
		if highest != nil {
			expectedID = highest.ID
			leader := highest.Bidder
			previousLeader = &leader
		}

		err = s.bidRepo.InsertBid(ctx, bid, expectedID)
		if errors.Is(err, domain.ErrStaleSnapshot) && attempt < s.maxSnapshotRetries {
			s.log.Warn("Highest bid moved under lock, revalidating", "auction_id", req.AuctionID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, storageError("insert bid", err)
		}

		s.log.Info("Bid accepted", "auction_id", bid.AuctionID, "bid_id", bid.ID,
			"bidder", bid.Bidder.String(), "amount", bid.Amount.String(), "auto", bid.IsAuto)

		p := &placement{bid: bid, auction: auction, previousLeader: previousLeader}
		s.afterInsert(ctx, p, now)
		return p, nil
	}
}

// afterInsert runs the follow-up steps of an accepted bid. The bid is already
// committed, so failures here are logged and never undo it.
func (s *BidService) afterInsert(ctx context.Context, p *placement, now time.Time) {
	ctx, cancel := committed(ctx)
	defer cancel()

	if _, err := s.extender.MaybeExtend(ctx, p.auction, now); err != nil {
		s.log.Error("Failed to apply anti-snipe extension", "auction_id", p.auction.ID, "error", err)
	}

	cascade, err := s.resolver.Resolve(ctx, p.auction, s.now)
	if err != nil {
		s.log.Error("Auto bid cascade aborted", "auction_id", p.auction.ID, "error", err)
	}
	p.cascade = cascade

	if s.bidCache != nil {
		highest := p.bid
		if cascade != nil && cascade.Highest != nil {
			highest = cascade.Highest
		}
		leader := highest.Bidder
		if err := s.bidCache.SetHighest(ctx, &domain.HighestBidSnapshot{
			AuctionID: p.auction.ID,
			Amount:    highest.Amount,
			Leader:    &leader,
			EndTime:   p.auction.EndTime,
		}); err != nil {
			s.log.Warn("Failed to cache highest bid", "auction_id", p.auction.ID, "error", err)
		}
	}
}

func (s *BidService) publishBidPlaced(ctx context.Context, p *placement) {
	if s.eventPub == nil {
		return
	}

	highest := p.bid
	if p.cascade != nil && p.cascade.Highest != nil {
		highest = p.cascade.Highest
	}
	endTime := p.auction.EndTime

	event := &domain.Event{
		Type:           domain.EventBidPlaced,
		AuctionID:      p.bid.AuctionID,
		Bid:            domain.NewBidView(p.bid),
		Highest:        domain.NewBidView(highest),
		PreviousLeader: p.previousLeader,
		EndTime:        &endTime,
		Timestamp:      s.now(),
	}
	ctx, cancel := committed(ctx)
	defer cancel()
	if err := s.eventPub.PublishEvent(ctx, event); err != nil {
		s.log.Error("Failed to publish bid placed event", "auction_id", p.bid.AuctionID, "error", err)
	}
}

func (s *BidService) highestBid(ctx context.Context, auctionID int64) (*domain.Bid, error) {
	highest, err := s.bidRepo.HighestBid(ctx, auctionID)
	if errors.Is(err, domain.ErrNoBids) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load highest bid", err)
	}
	return highest, nil
}

// HighestSnapshot returns the current price and leader of an auction. With no
// bids the amount is the starting bid and the leader is nil.
func (s *BidService) HighestSnapshot(ctx context.Context, auctionID int64) (*domain.HighestBidSnapshot, error) {
	if s.bidCache != nil {
		if snapshot, err := s.bidCache.GetHighest(ctx, auctionID); err == nil {
			return snapshot, nil
		}
	}

	auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storageError("load auction", err)
	}
	snapshot := &domain.HighestBidSnapshot{
		AuctionID: auctionID,
		Amount:    auction.StartingBid,
		EndTime:   auction.EndTime,
	}

	highest, err := s.highestBid(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if highest != nil {
		leader := highest.Bidder
		snapshot.Amount = highest.Amount
		snapshot.Leader = &leader
	}
	return snapshot, nil
}

func (s *BidService) GetBid(ctx context.Context, bidID int64) (*domain.Bid, error) {
	bid, err := s.bidRepo.GetBid(ctx, bidID)
	if err != nil {
		return nil, storageError("get bid", err)
	}
	return bid, nil
}

// BidHistory lists all bids of an auction, newest first.
func (s *BidService) BidHistory(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	if _, err := s.auctionRepo.GetAuction(ctx, auctionID); err != nil {
		return nil, storageError("load auction", err)
	}
	bids, err := s.bidRepo.ListBids(ctx, auctionID)
	if err != nil {
		return nil, storageError("list bids", err)
	}
	return newestFirst(bids), nil
}

// BidsByBidder lists every bid placed by one participant, newest first.
func (s *BidService) BidsByBidder(ctx context.Context, bidder domain.ParticipantRef) ([]*domain.Bid, error) {
	bids, err := s.bidRepo.ListBidsByBidder(ctx, bidder)
	if err != nil {
		return nil, storageError("list bids by bidder", err)
	}
	return newestFirst(bids), nil
}

// PublicBidHistory hides bidder identities behind Bidder#n labels, numbered in
// order of appearance in the newest-first list.
func (s *BidService) PublicBidHistory(ctx context.Context, auctionID int64) (*domain.PublicBidHistory, error) {
	auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storageError("load auction", err)
	}
	bids, err := s.bidRepo.ListBids(ctx, auctionID)
	if err != nil {
		return nil, storageError("list bids", err)
	}
	bids = newestFirst(bids)

	labels := make(map[domain.ParticipantRef]string)
	history := &domain.PublicBidHistory{
		AuctionID: auction.ID,
		Title:     auction.Title,
		Bids:      make([]domain.PublicBid, 0, len(bids)),
	}

	var highest *domain.Bid
	for _, b := range bids {
		label, ok := labels[b.Bidder]
		if !ok {
			label = fmt.Sprintf("Bidder#%d", len(labels)+1)
			labels[b.Bidder] = label
		}
		history.Bids = append(history.Bids, domain.PublicBid{
			Identity:  label,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		})
		if highest == nil || b.Outranks(highest) {
			highest = b
		}
	}

	history.TotalActiveBidders = len(labels)
	if highest != nil {
		history.HighestBid = &domain.PublicBid{
			Identity:  labels[highest.Bidder],
			Amount:    highest.Amount,
			CreatedAt: highest.CreatedAt,
		}
	}
	return history, nil
}

func newestFirst(bids []*domain.Bid) []*domain.Bid {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].ID > bids[j].ID
	})
	return bids
}
