package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeLeaderElection struct {
	mu     sync.Mutex
	leader string
	err    error
}

func (l *fakeLeaderElection) BecomeLeader(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.leader == "" {
		l.leader = instanceID
	}
	return l.leader == instanceID, nil
}

func (l *fakeLeaderElection) IsLeader(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader == instanceID, l.err
}

func (l *fakeLeaderElection) ReleaseLeadership(_ context.Context, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leader == instanceID {
		l.leader = ""
	}
	return nil
}

func TestSweepScheduler_OnlyLeaderSweeps(t *testing.T) {
	tests := []struct {
		name     string
		election *fakeLeaderElection
		sweeps   bool
	}{
		{name: "no_election", sweeps: true},
		{name: "becomes_leader", election: &fakeLeaderElection{}, sweeps: true},
		{name: "already_leader", election: &fakeLeaderElection{leader: "node-a"}, sweeps: true},
		{name: "other_leader", election: &fakeLeaderElection{leader: "node-b"}, sweeps: false},
		{name: "election_error", election: &fakeLeaderElection{err: errors.New("redis down")}, sweeps: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			auction := f.createAuction(t)
			f.bid(t, auction.ID, domain.UserRef(2), "150")
			f.clock.Advance(2 * time.Hour)

			var election domain.LeaderElection
			if tc.election != nil {
				election = tc.election
			}
			scheduler := NewSweepScheduler("@every 1m", f.finalizer, election, "node-a", logger.NewNop())
			scheduler.now = f.clock.Now

			scheduler.tick(context.Background())

			stored, err := f.store.GetAuction(context.Background(), auction.ID)
			require.NoError(t, err)
			if tc.sweeps {
				require.Equal(t, domain.OutcomeWinnerDeclared, stored.Outcome)
			} else {
				require.Equal(t, domain.OutcomeOpen, stored.Outcome)
			}
		})
	}
}

func TestSweepScheduler_RunOnce(t *testing.T) {
	f := newFixture(t)
	f.createAuction(t)
	f.clock.Advance(2 * time.Hour)

	scheduler := NewSweepScheduler("@every 1m", f.finalizer, &fakeLeaderElection{leader: "node-b"}, "node-a", logger.NewNop())
	scheduler.now = f.clock.Now

	results, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, domain.OutcomeNoBids, results[0].Outcome)
}

func TestSweepScheduler_StartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	scheduler := NewSweepScheduler("every minute please", f.finalizer, nil, "node-a", logger.NewNop())
	require.Error(t, scheduler.Start(context.Background()))

	good := NewSweepScheduler("@every 1m", f.finalizer, nil, "node-a", logger.NewNop())
	require.NoError(t, good.Start(context.Background()))
	require.NoError(t, good.Stop())
}
