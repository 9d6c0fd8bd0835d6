package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// RedisBidCache keeps a read-side copy of each auction's leading bid for room snapshots.
// The store stays authoritative; the engine never reads this cache while deciding bids.
type RedisBidCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBidCache(client *redis.Client, ttl time.Duration) *RedisBidCache {
	return &RedisBidCache{client: client, ttl: ttl}
}

func highestKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d:highest", auctionID)
}

func (r *RedisBidCache) SetHighest(ctx context.Context, snapshot *domain.HighestBidSnapshot) error {
	key := highestKey(snapshot.AuctionID)

	fields := map[string]interface{}{
		"amount":      snapshot.Amount.StringFixed(2),
		"end_time":    snapshot.EndTime.UnixMilli(),
		"leader_kind": "",
		"leader_id":   0,
	}
	if snapshot.Leader != nil {
		fields["leader_kind"] = snapshot.Leader.Kind.String()
		fields["leader_id"] = snapshot.Leader.ID
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetHighest returns redis.Nil when nothing is cached for the auction.
func (r *RedisBidCache) GetHighest(ctx context.Context, auctionID int64) (*domain.HighestBidSnapshot, error) {
	result, err := r.client.HGetAll(ctx, highestKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, redis.Nil
	}

	amount, err := decimal.NewFromString(result["amount"])
	if err != nil {
		return nil, err
	}
	endMillis, err := strconv.ParseInt(result["end_time"], 10, 64)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.HighestBidSnapshot{
		AuctionID: auctionID,
		Amount:    amount,
		EndTime:   time.UnixMilli(endMillis),
	}
	if kind := result["leader_kind"]; kind != "" {
		leader, err := domain.ParseParticipantRef(kind, result["leader_id"])
		if err != nil {
			return nil, err
		}
		snapshot.Leader = &leader
	}
	return snapshot, nil
}
