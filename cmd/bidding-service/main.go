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
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/app"
	"auction-engine/internal/config"
	infraRedis "auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level).With("service", "bidding-service")
	defer logger.Sync(log)
	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	engine, err := app.NewEngine(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)

	// Events from every instance fan out to the sockets held by this one.
	eventListener := services.NewEventListener(notifier, notifier, log)
	eventSubscriber := infraRedis.NewRedisEventSubscriber(engine.Redis, cfg.Redis.Channel, log)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	go func() {
		if err := eventListener.Start(runCtx, eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	wsHandlers := handlers.NewWebSocketHandlers(engine.BidService, engine.AuctionRepo, connManager, log)

	router := mux.NewRouter()
	router.Use(middleware.CORSWithLogging(log))
	router.HandleFunc("/ws/auction/{auctionID}", wsHandlers.HandleConnection)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.RealtimePort),
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stopRun()

	log.Info("Bidding service stopped")
}
