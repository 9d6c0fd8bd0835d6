package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/domain"

	"github.com/google/uuid"
)

type entry struct {
	sem     chan struct{}
	token   string
	waiters int
}

// LocalLock is an in-process keyed mutex. Waiters on one auction never block
// acquirers of another.
type LocalLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
	timeout time.Duration
}

func NewLocalLock(timeout time.Duration) *LocalLock {
	return &LocalLock{
		entries: make(map[int64]*entry),
		timeout: timeout,
	}
}

func (l *LocalLock) Acquire(ctx context.Context, auctionID int64) (*domain.Lease, error) {
	l.mu.Lock()
	e, ok := l.entries[auctionID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[auctionID] = e
	}
	e.waiters++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-timer.C:
		l.drop(auctionID, e)
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrLockTimeout)
	case <-ctx.Done():
		l.drop(auctionID, e)
		return nil, ctx.Err()
	}

	token := uuid.NewString()
	l.mu.Lock()
	e.token = token
	l.mu.Unlock()

	return &domain.Lease{AuctionID: auctionID, Token: token, AcquiredAt: time.Now()}, nil
}

func (l *LocalLock) Release(_ context.Context, lease *domain.Lease) error {
	if lease == nil {
		return domain.ErrLockNotHeld
	}

	l.mu.Lock()
	e, ok := l.entries[lease.AuctionID]
	if !ok || e.token != lease.Token {
		l.mu.Unlock()
		return fmt.Errorf("auction %d: %w", lease.AuctionID, domain.ErrLockNotHeld)
	}
	e.token = ""
	l.mu.Unlock()

	<-e.sem
	l.drop(lease.AuctionID, e)
	return nil
}

// drop forgets the entry once nobody holds or waits on it.
func (l *LocalLock) drop(auctionID int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.waiters--
	if e.waiters == 0 {
		delete(l.entries, auctionID)
	}
}
