package services

import (
	"context"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SweepScheduler runs the finalization sweep on a cron schedule. When a leader
// election is configured only the current leader sweeps.
type SweepScheduler struct {
	cron           *cron.Cron
	schedule       string
	finalizer      *WinnerFinalizer
	leaderElection domain.LeaderElection
	instanceID     string
	now            func() time.Time
	log            logger.Logger
}

func NewSweepScheduler(schedule string, finalizer *WinnerFinalizer, leaderElection domain.LeaderElection,
	instanceID string, log logger.Logger) *SweepScheduler {
	return &SweepScheduler{
		cron:           cron.New(cron.WithSeconds()),
		schedule:       schedule,
		finalizer:      finalizer,
		leaderElection: leaderElection,
		instanceID:     instanceID,
		now:            time.Now,
		log:            log,
	}
}

func (s *SweepScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting sweep scheduler", "schedule", s.schedule)

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *SweepScheduler) Stop() error {
	s.log.Info("Stopping sweep scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce sweeps immediately regardless of leadership.
func (s *SweepScheduler) RunOnce(ctx context.Context) ([]domain.SweepResult, error) {
	return s.finalizer.RunSweep(ctx, s.now())
}

func (s *SweepScheduler) tick(ctx context.Context) {
	if !s.shouldSweep(ctx) {
		return
	}

	results, err := s.RunOnce(ctx)
	if err != nil {
		// Failed auctions stay due and are retried on the next tick.
		s.log.Error("Finalization sweep finished with errors", "error", err)
	}
	if len(results) > 0 {
		s.log.Info("Finalization sweep", "finalized", len(results))
	}
}

func (s *SweepScheduler) shouldSweep(ctx context.Context) bool {
	if s.leaderElection == nil {
		return true
	}

	isLeader, err := s.leaderElection.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return false
	}
	if isLeader {
		return true
	}

	became, err := s.leaderElection.BecomeLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to attempt leadership", "error", err)
		return false
	}
	if became {
		s.log.Info("Became finalizer leader", "instance_id", s.instanceID)
	}
	return became
}
