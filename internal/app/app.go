package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yarkob/railgo/internal/config"
	"github.com/yarkob/railgo/internal/monitoring"
	"github.com/yarkob/railgo/internal/postgres"
	"github.com/yarkob/railgo/internal/redis"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/service"
	"github.com/yarkob/railgo/internal/service/booking"
	"github.com/yarkob/railgo/internal/service/query"
	httpgin "github.com/yarkob/railgo/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	pgxPool, err := postgres.New(context.Background(), postgres.Config{
		DSN: cfg.Postgres.DSN(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewJourneysPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(
		rdb,
		"rl",
		cfg.Booking.RateLimit,
		time.Duration(cfg.Booking.RateWindowSec)*time.Second,
	)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	metrics := monitoring.NewBookingMetrics()

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, metrics, service.Config{
		Booking: booking.Config{
			MaxSeatsPerOrder: cfg.Booking.MaxSeatsPerOrder,
			TxAttempts:       cfg.Booking.TxAttempts,
		},
		Query: query.Config{
			JourneySummaryTTL: 15 * time.Second,
			AvailabilityTTL:   5 * time.Second,
			SeatMapTTL:        5 * time.Second,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
