package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gambiarra/arena-backend/internal/config"
	"github.com/gambiarra/arena-backend/internal/httpapi"
	"github.com/gambiarra/arena-backend/internal/hub"
	"github.com/gambiarra/arena-backend/internal/metrics"
	"github.com/gambiarra/arena-backend/internal/rounds"
	"github.com/gambiarra/arena-backend/internal/store"
	"github.com/gambiarra/arena-backend/internal/stream"
	"github.com/gambiarra/arena-backend/internal/votes"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DBHost != "" {
		db, err := store.Open(cfg.DSN())
		if err != nil {
			logger.Fatal("database setup failed", zap.Error(err))
		}
		st = store.NewGorm(db)
		logger.Info("database connected", zap.String("host", cfg.DBHost))
	} else {
		st = store.NewMemory()
		logger.Warn("DB_HOST not set, using in-memory store")
	}

	h := hub.NewHub(ctx, logger, cfg.HeartbeatInterval)
	buffer := stream.New()
	roundManager := rounds.NewManager(st, h, logger)

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:       h,
		Store:     st,
		Buffer:    buffer,
		Rounds:    roundManager,
		Votes:     votes.NewManager(st),
		Metrics:   metrics.NewManager(st),
		PinLength: cfg.PinLength,
		Log:       logger,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Stop the heartbeat and close every connection, then drain HTTP.
		h.Inbox() <- hub.Shutdown{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
