package services

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

func TestWinnerFinalizer_Outcomes(t *testing.T) {
	reserve := dec("500")

	tests := []struct {
		name    string
		reserve bool
		bids    []string
		outcome domain.Outcome
		winner  *domain.ParticipantRef
		amount  string
	}{
		{name: "no_bids", outcome: domain.OutcomeNoBids},
		{name: "reserve_not_met", reserve: true, bids: []string{"150", "480"}, outcome: domain.OutcomeReserveNotMet},
		{name: "reserve_met_exactly", reserve: true, bids: []string{"150", "500"}, outcome: domain.OutcomeWinnerDeclared,
			winner: ptrRef(domain.UserRef(3)), amount: "500"},
		{name: "no_reserve", bids: []string{"150", "160"}, outcome: domain.OutcomeWinnerDeclared,
			winner: ptrRef(domain.UserRef(3)), amount: "160"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			auction := f.createAuction(t, func(a *domain.Auction) {
				if tc.reserve {
					a.ReservePrice = &reserve
				}
			})

			bidders := []domain.ParticipantRef{domain.UserRef(2), domain.UserRef(3)}
			for i, amount := range tc.bids {
				f.bid(t, auction.ID, bidders[i%2], amount)
			}

			f.clock.Advance(2 * time.Hour)
			results, err := f.finalizer.RunSweep(context.Background(), f.clock.Now())
			require.NoError(t, err)
			require.Len(t, results, 1)
			require.Equal(t, auction.ID, results[0].AuctionID)
			require.Equal(t, tc.outcome, results[0].Outcome)

			stored, err := f.store.GetAuction(context.Background(), auction.ID)
			require.NoError(t, err)
			require.Equal(t, tc.outcome, stored.Outcome)
			require.NotNil(t, stored.ClosedAt)

			if tc.winner == nil {
				require.Nil(t, results[0].Winner)
				require.Nil(t, stored.Winner)
				require.Empty(t, f.pub.ofType(domain.EventAuctionWon))
				require.Empty(t, f.pub.ofType(domain.EventAuctionLost))
				return
			}

			require.Equal(t, *tc.winner, *results[0].Winner)
			require.True(t, results[0].Amount.Equal(dec(tc.amount)))
			require.Equal(t, *tc.winner, *stored.Winner)
		})
	}
}

func TestWinnerFinalizer_BelowStartingBid(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t)

	// Written directly to the store, bypassing validation.
	require.NoError(t, f.store.InsertBid(context.Background(), &domain.Bid{
		AuctionID: auction.ID, Bidder: domain.UserRef(2), Amount: dec("50"), CreatedAt: f.clock.Now(),
	}, 0))

	f.clock.Advance(2 * time.Hour)
	results, err := f.finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, domain.OutcomeReserveNotMet, results[0].Outcome)
}

func TestWinnerFinalizer_NotifiesWinnerAndLosers(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t)

	winner := domain.CustomerRef(4)
	f.bid(t, auction.ID, domain.UserRef(2), "110")
	f.bid(t, auction.ID, domain.UserRef(3), "120")
	f.bid(t, auction.ID, domain.UserRef(2), "130")
	f.bid(t, auction.ID, winner, "140")

	f.clock.Advance(2 * time.Hour)
	_, err := f.finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)

	won := f.pub.ofType(domain.EventAuctionWon)
	require.Len(t, won, 1)
	require.Equal(t, winner, *won[0].Participant)
	require.True(t, won[0].Amount.Equal(dec("140")))

	lost := f.pub.ofType(domain.EventAuctionLost)
	require.Len(t, lost, 2)
	losers := []domain.ParticipantRef{*lost[0].Participant, *lost[1].Participant}
	require.ElementsMatch(t, []domain.ParticipantRef{domain.UserRef(2), domain.UserRef(3)}, losers)
}

func TestWinnerFinalizer_SecondSweepIsNoop(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t)
	f.bid(t, auction.ID, domain.UserRef(2), "150")

	f.clock.Advance(2 * time.Hour)
	results, err := f.finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)

	f.clock.Advance(time.Minute)
	results, err = f.finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, results)
	require.Len(t, f.pub.ofType(domain.EventAuctionWon), 1)

	stored, err := f.store.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserRef(2), *stored.Winner)
}

func TestWinnerFinalizer_SkipsOpenAndUnapproved(t *testing.T) {
	f := newFixture(t)
	open := f.createAuction(t, func(a *domain.Auction) { a.EndTime = f.clock.Now().Add(3 * time.Hour) })
	f.createAuction(t, func(a *domain.Auction) { a.Status = domain.AuctionSuspended })
	f.bid(t, open.ID, domain.UserRef(2), "150")

	f.clock.Advance(2 * time.Hour)
	results, err := f.finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, results)
}

// staleDue hands the finalizer a due list captured before an extension.
type staleDue struct {
	*memory.Store
	due []*domain.Auction
}

func (s staleDue) ListDueAuctions(context.Context, time.Time) ([]*domain.Auction, error) {
	return s.due, nil
}

func TestWinnerFinalizer_RechecksEndTimeUnderLock(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t)
	f.bid(t, auction.ID, domain.UserRef(2), "150")

	f.clock.Advance(2 * time.Hour)
	snapshot, err := f.store.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)

	// A late extension lands between selection and locking.
	require.NoError(t, f.store.UpdateEndTime(context.Background(), auction.ID, f.clock.Now().Add(time.Minute)))

	finalizer := NewWinnerFinalizer(staleDue{Store: f.store, due: []*domain.Auction{snapshot}}, f.store, f.lock, f.pub, logger.NewNop())
	results, err := finalizer.RunSweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, results)

	stored, err := f.store.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Winner)
	require.Equal(t, domain.OutcomeOpen, stored.Outcome)
}

func TestWinnerFinalizer_LockTimeoutIsReported(t *testing.T) {
	f := newFixture(t)
	busy := f.createAuction(t)
	free := f.createAuction(t)
	f.bid(t, busy.ID, domain.UserRef(2), "150")
	f.bid(t, free.ID, domain.UserRef(2), "150")

	f.clock.Advance(2 * time.Hour)

	shortLock := newShortLock()
	finalizer := NewWinnerFinalizer(f.store, f.store, shortLock, f.pub, logger.NewNop())
	lease, err := shortLock.Acquire(context.Background(), busy.ID)
	require.NoError(t, err)
	defer shortLock.Release(context.Background(), lease)

	results, err := finalizer.RunSweep(context.Background(), f.clock.Now())
	require.ErrorIs(t, err, domain.ErrLockTimeout)
	require.Len(t, results, 1)
	require.Equal(t, free.ID, results[0].AuctionID)

	stored, err := f.store.GetAuction(context.Background(), busy.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDue(f.clock.Now()), "busy auction stays due for the next sweep")
}
