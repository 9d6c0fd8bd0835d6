package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
)

// Store is a concurrency-safe in-memory implementation of the auction and bid repositories.
// Every read returns copies so callers never alias stored rows.
type Store struct {
	mu            sync.RWMutex
	auctions      map[int64]*domain.Auction
	bids          map[int64][]*domain.Bid // key: auctionID -> bids in insertion order
	nextAuctionID int64
	nextBidID     int64
}

func NewStore() *Store {
	return &Store{
		auctions: make(map[int64]*domain.Auction),
		bids:     make(map[int64][]*domain.Bid),
	}
}

func (s *Store) CreateAuction(_ context.Context, auction *domain.Auction) error {
	if !auction.EndTime.After(auction.StartTime) {
		return fmt.Errorf("create auction: end time must be after start time")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if auction.ID == 0 {
		s.nextAuctionID++
		auction.ID = s.nextAuctionID
	} else if auction.ID > s.nextAuctionID {
		s.nextAuctionID = auction.ID
	}
	if _, exists := s.auctions[auction.ID]; exists {
		return fmt.Errorf("create auction %d: already exists", auction.ID)
	}
	s.auctions[auction.ID] = copyAuction(auction)
	return nil
}

func (s *Store) GetAuction(_ context.Context, auctionID int64) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("get auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return copyAuction(a), nil
}

func (s *Store) ListDueAuctions(_ context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*domain.Auction
	for _, a := range s.auctions {
		if a.IsDue(now) {
			due = append(due, copyAuction(a))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].EndTime.Equal(due[j].EndTime) {
			return due[i].EndTime.Before(due[j].EndTime)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (s *Store) UpdateEndTime(_ context.Context, auctionID int64, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update end time %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if !endTime.After(a.StartTime) {
		return fmt.Errorf("update end time %d: end time must be after start time", auctionID)
	}
	a.EndTime = endTime
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CloseAuction(_ context.Context, auctionID int64, outcome domain.Outcome, winner *domain.ParticipantRef, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return false, fmt.Errorf("close auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if a.Outcome != domain.OutcomeOpen || a.Winner != nil {
		return false, nil
	}
	a.Outcome = outcome
	if winner != nil {
		w := *winner
		a.Winner = &w
	}
	closedAt := at
	a.ClosedAt = &closedAt
	a.UpdatedAt = at
	return true, nil
}

func (s *Store) HighestBid(_ context.Context, auctionID int64) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := s.highestLocked(auctionID)
	if highest == nil {
		return nil, fmt.Errorf("highest bid for auction %d: %w", auctionID, domain.ErrNoBids)
	}
	return copyBid(highest), nil
}

func (s *Store) highestLocked(auctionID int64) *domain.Bid {
	var highest *domain.Bid
	for _, b := range s.bids[auctionID] {
		if highest == nil || b.Outranks(highest) {
			highest = b
		}
	}
	return highest
}

func (s *Store) GetBid(_ context.Context, bidID int64) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bids := range s.bids {
		for _, b := range bids {
			if b.ID == bidID {
				return copyBid(b), nil
			}
		}
	}
	return nil, fmt.Errorf("get bid %d: %w", bidID, domain.ErrBidNotFound)
}

func (s *Store) InsertBid(_ context.Context, bid *domain.Bid, expectedHighestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("insert bid for auction %d: %w", bid.AuctionID, domain.ErrAuctionNotFound)
	}

	var currentID int64
	if highest := s.highestLocked(bid.AuctionID); highest != nil {
		currentID = highest.ID
	}
	if currentID != expectedHighestID {
		return fmt.Errorf("insert bid for auction %d: %w", bid.AuctionID, domain.ErrStaleSnapshot)
	}

	s.nextBidID++
	bid.ID = s.nextBidID
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	s.bids[bid.AuctionID] = append(s.bids[bid.AuctionID], copyBid(bid))
	return nil
}

func (s *Store) LatestAutoBids(_ context.Context, auctionID int64) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[domain.ParticipantRef]*domain.Bid)
	for _, b := range s.bids[auctionID] {
		if !b.IsAuto {
			continue
		}
		if prev, ok := latest[b.Bidder]; !ok || b.ID > prev.ID {
			latest[b.Bidder] = b
		}
	}

	out := make([]*domain.Bid, 0, len(latest))
	for _, b := range latest {
		out = append(out, copyBid(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bidder.Less(out[j].Bidder) })
	return out, nil
}

func (s *Store) ListBids(_ context.Context, auctionID int64) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.bids[auctionID]
	out := make([]*domain.Bid, 0, len(bids))
	for _, b := range bids {
		out = append(out, copyBid(b))
	}
	return out, nil
}

func (s *Store) ListBidsByBidder(_ context.Context, bidder domain.ParticipantRef) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Bid
	for _, bids := range s.bids {
		for _, b := range bids {
			if b.Bidder == bidder {
				out = append(out, copyBid(b))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyAuction(a *domain.Auction) *domain.Auction {
	c := *a
	if a.ReservePrice != nil {
		r := *a.ReservePrice
		c.ReservePrice = &r
	}
	if a.Winner != nil {
		w := *a.Winner
		c.Winner = &w
	}
	if a.ClosedAt != nil {
		t := *a.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func copyBid(b *domain.Bid) *domain.Bid {
	c := *b
	if b.AutoMaxBid != nil {
		m := *b.AutoMaxBid
		c.AutoMaxBid = &m
	}
	if b.AutoIncrement != nil {
		i := *b.AutoIncrement
		c.AutoIncrement = &i
	}
	return &c
}
