package leader

import (
	"context"
	"testing"
	"time"

	"auction-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisLeaderElection_SingleLeader(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	election := NewRedisLeaderElection(client, "finalizer_leader", 30*time.Second, logger.NewNop())

	became, err := election.BecomeLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, became)

	became, err = election.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	require.False(t, became)

	isLeader, err := election.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, isLeader)

	isLeader, err = election.IsLeader(ctx, "node-b")
	require.NoError(t, err)
	require.False(t, isLeader)

	// Releasing on behalf of a non-leader must not drop the key.
	require.NoError(t, election.ReleaseLeadership(ctx, "node-b"))
	require.True(t, mr.Exists("finalizer_leader"))

	require.NoError(t, election.ReleaseLeadership(ctx, "node-a"))
	require.False(t, mr.Exists("finalizer_leader"))
}
