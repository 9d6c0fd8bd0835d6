package redis

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Deletes the key only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    else
        return 0
    end
`)

// AuctionLock is a cross-process keyed lock: one Redis key per auction holding a
// random token with a TTL, so a crashed holder cannot wedge the auction forever.
type AuctionLock struct {
	client        *redis.Client
	ttl           time.Duration
	timeout       time.Duration
	retryInterval time.Duration
}

func NewAuctionLock(client *redis.Client, ttl, timeout, retryInterval time.Duration) *AuctionLock {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &AuctionLock{
		client:        client,
		ttl:           ttl,
		timeout:       timeout,
		retryInterval: retryInterval,
	}
}

func lockKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d:lock", auctionID)
}

func (l *AuctionLock) Acquire(ctx context.Context, auctionID int64) (*domain.Lease, error) {
	key := lockKey(auctionID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock for auction %d: %w: %w", auctionID, domain.ErrStorage, err)
		}
		if ok {
			return &domain.Lease{AuctionID: auctionID, Token: token, AcquiredAt: time.Now()}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrLockTimeout)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *AuctionLock) Release(ctx context.Context, lease *domain.Lease) error {
	if lease == nil {
		return domain.ErrLockNotHeld
	}

	n, err := releaseScript.Run(ctx, l.client, []string{lockKey(lease.AuctionID)}, lease.Token).Int64()
	if err != nil {
		return fmt.Errorf("release lock for auction %d: %w", lease.AuctionID, err)
	}
	if n == 0 {
		return fmt.Errorf("auction %d: %w", lease.AuctionID, domain.ErrLockNotHeld)
	}
	return nil
}
