package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/app"
	"auction-engine/internal/config"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level).With("service", "auction-service")
	defer logger.Sync(log)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	engine, err := app.NewEngine(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	scheduler := engine.NewSweepScheduler()
	if cfg.Finalizer.Enabled {
		if err := scheduler.Start(runCtx); err != nil {
			log.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			handlers.HeaderBidderKind,
			handlers.HeaderBidderID,
		},
		MaxAge: 86400,
	}))

	bidHandler := handlers.NewBidHandler(engine.BidService, scheduler, log)
	bidHandler.Register(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "auction-service",
			"instance_id": engine.InstanceID,
			"timestamp":   time.Now().Format(time.RFC3339),
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting HTTP server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if cfg.Finalizer.Enabled {
		if err := scheduler.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
	}
	stopRun()
	if err := engine.Election.ReleaseLeadership(shutdownCtx, engine.InstanceID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}

	log.Info("Auction service stopped")
}
