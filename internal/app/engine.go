package app

import (
	"context"
	"database/sql"
	"fmt"

	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/lock"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/infrastructure/mysql"
	infraRedis "auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/go-redis/redis/v8"
)

// Engine holds the bid resolution components shared by both service binaries.
type Engine struct {
	Config      *config.Config
	InstanceID  string
	Redis       *redis.Client
	DB          *sql.DB
	AuctionRepo domain.AuctionRepository
	BidRepo     domain.BidRepository
	Lock        domain.AuctionLock
	Publisher   domain.EventPublisher
	BidService  *services.BidService
	Finalizer   *services.WinnerFinalizer
	Election    domain.LeaderElection

	log logger.Logger
}

func NewEngine(ctx context.Context, cfg *config.Config, log logger.Logger) (*Engine, error) {
	e := &Engine{Config: cfg, InstanceID: cfg.Instance.ID, log: log}
	if e.InstanceID == "" {
		e.InstanceID = utils.GenerateID("auction-engine")
	}

	rdb, err := utils.InitializeRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	e.Redis = rdb
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	switch cfg.Storage.Driver {
	case "mysql":
		db, err := utils.InitializeMysql(ctx, cfg.MySQL)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.DB = db
		if cfg.MySQL.ApplySchema {
			if err := mysql.ApplySchema(ctx, db); err != nil {
				e.Close()
				return nil, fmt.Errorf("apply schema: %w", err)
			}
		}
		e.AuctionRepo = mysql.NewMySQLAuctionRepository(db)
		e.BidRepo = mysql.NewMySQLBidRepository(db)
		log.Info("Connected to MySQL")
	default:
		store := memory.NewStore()
		e.AuctionRepo, e.BidRepo = store, store
		log.Warn("Using in-memory storage, state is lost on restart")
	}

	switch cfg.Lock.Backend {
	case "redis":
		e.Lock = infraRedis.NewAuctionLock(rdb, cfg.Lock.TTL, cfg.Lock.Timeout, cfg.Lock.RetryInterval)
	default:
		e.Lock = lock.NewLocalLock(cfg.Lock.Timeout)
	}

	e.Publisher = infraRedis.NewEventPublisher(rdb, cfg.Redis.Channel)
	e.Election = leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)

	extender := services.NewAntiSnipeExtender(e.AuctionRepo, e.Publisher, cfg.Engine.SnipeWindow, cfg.Engine.Extension, log)
	resolver := services.NewAutoBidResolver(e.BidRepo, extender, cfg.Engine.MaxCascadeRounds, log)
	e.BidService = services.NewBidService(
		e.AuctionRepo,
		e.BidRepo,
		e.Lock,
		services.NewBidValidator(),
		extender,
		resolver,
		e.Publisher,
		cfg.Engine.MaxSnapshotRetries,
		log,
	)
	e.BidService.SetBidCache(infraRedis.NewRedisBidCache(rdb, cfg.Redis.CacheTTL))
	e.Finalizer = services.NewWinnerFinalizer(e.AuctionRepo, e.BidRepo, e.Lock, e.Publisher, log)

	return e, nil
}

// NewSweepScheduler builds the cron driven finalizer gated by leader election.
func (e *Engine) NewSweepScheduler() *services.SweepScheduler {
	return services.NewSweepScheduler(e.Config.Finalizer.Schedule, e.Finalizer, e.Election, e.InstanceID, e.log)
}

func (e *Engine) Close() {
	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			e.log.Error("Failed to close MySQL connection", "error", err)
		}
	}
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			e.log.Error("Failed to close Redis connection", "error", err)
		}
	}
}
