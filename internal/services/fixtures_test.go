package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/lock"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) ofType(t domain.EventType) []*domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*domain.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	lock      *lock.LocalLock
	pub       *recordingPublisher
	clock     *fakeClock
	extender  *AntiSnipeExtender
	resolver  *AutoBidResolver
	bids      *BidService
	finalizer *WinnerFinalizer
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRounds(t, 100)
}

func newFixtureWithRounds(t *testing.T, maxRounds int) *fixture {
	t.Helper()

	log := logger.NewNop()
	f := &fixture{
		store: memory.NewStore(),
		lock:  lock.NewLocalLock(5 * time.Second),
		pub:   &recordingPublisher{},
		clock: newFakeClock(),
	}
	f.extender = NewAntiSnipeExtender(f.store, f.pub, 60*time.Second, 120*time.Second, log)
	f.resolver = NewAutoBidResolver(f.store, f.extender, maxRounds, log)
	f.bids = NewBidService(f.store, f.store, f.lock, NewBidValidator(), f.extender, f.resolver, f.pub, 3, log)
	f.bids.SetClock(f.clock.Now)
	f.finalizer = NewWinnerFinalizer(f.store, f.store, f.lock, f.pub, log)
	return f
}

// createAuction opens an approved auction running from an hour ago to an hour
// from now with a starting bid of 100.
func (f *fixture) createAuction(t *testing.T, mutate ...func(*domain.Auction)) *domain.Auction {
	t.Helper()

	now := f.clock.Now()
	auction := &domain.Auction{
		Title:       "Vintage camera",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
		StartingBid: dec("100"),
		Status:      domain.AuctionApproved,
		Creator:     domain.AdminRef(1),
		CreatedAt:   now.Add(-2 * time.Hour),
	}
	for _, m := range mutate {
		m(auction)
	}
	require.NoError(t, f.store.CreateAuction(context.Background(), auction))
	return auction
}

func (f *fixture) bid(t *testing.T, auctionID int64, bidder domain.ParticipantRef, amount string) *domain.Bid {
	t.Helper()

	bid, err := f.bids.PlaceBid(context.Background(), &domain.PlaceBidRequest{
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    dec(amount),
	})
	require.NoError(t, err)
	return bid
}

func (f *fixture) autoBid(t *testing.T, auctionID int64, bidder domain.ParticipantRef, amount, maxBid, increment string) *domain.Bid {
	t.Helper()

	bid, err := f.bids.PlaceBid(context.Background(), &domain.PlaceBidRequest{
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    dec(amount),
		Auto:      &domain.AutoBidParams{MaxBid: dec(maxBid), Increment: dec(increment)},
	})
	require.NoError(t, err)
	return bid
}

func (f *fixture) highest(t *testing.T, auctionID int64) *domain.Bid {
	t.Helper()

	bid, err := f.store.HighestBid(context.Background(), auctionID)
	require.NoError(t, err)
	return bid
}

func (f *fixture) allBids(t *testing.T, auctionID int64) []*domain.Bid {
	t.Helper()

	bids, err := f.store.ListBids(context.Background(), auctionID)
	require.NoError(t, err)
	return bids
}

func newShortLock() *lock.LocalLock {
	return lock.NewLocalLock(20 * time.Millisecond)
}
