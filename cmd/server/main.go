package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker-backend/internal/config"
	httpdelivery "tracker-backend/internal/delivery/http"
	"tracker-backend/internal/delivery/websocket"
	"tracker-backend/internal/domain"
	"tracker-backend/internal/infrastructure/alpaca"
	"tracker-backend/internal/infrastructure/binance"
	"tracker-backend/internal/infrastructure/db"
	"tracker-backend/internal/infrastructure/fcm"
	"tracker-backend/internal/infrastructure/logging"
	"tracker-backend/internal/infrastructure/metrics"
	"tracker-backend/internal/infrastructure/pricecache"
	"tracker-backend/internal/repository"
	"tracker-backend/internal/usecase"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. Market data
	prices, closePrices := openPriceSource(ctx, cfg.Price, logger)
	defer closePrices()

	// 3. Outputs: metrics, websocket events, push alerts
	recorder := metrics.NewPrometheus()
	hub := websocket.NewHub(cfg.Tracking.WebsocketBuffer, logger)
	defer hub.Close()

	tokens := repository.NewTokenRepository()
	var sender usecase.PushSender
	if client, err := fcm.NewClient(ctx, cfg.Notify.FirebaseCredentialsPath, cfg.Notify.FirebaseCredentialsJSON, logger); err != nil {
		logger.Warn("push notifications disabled", "error", err)
	} else {
		sender = client
	}
	notifier := usecase.NewNotificationService(sender, tokens, logger, cfg.Tracking.NotifyCooldown)

	// 4. Use cases
	tracking := usecase.NewTrackingService(store, prices, logger,
		usecase.WithMaxConcurrency(cfg.Tracking.MaxConcurrency),
		usecase.WithPriceTimeout(cfg.Tracking.PriceTimeout),
		usecase.WithNotifier(notifier),
		usecase.WithEventPublisher(hub),
		usecase.WithRecorder(recorder),
	)
	scheduler, err := usecase.NewScheduler(tracking, usecase.SchedulerConfig{
		Intervals:     cfg.Tracking.Intervals,
		Realtime:      cfg.Tracking.Realtime,
		RealtimeEvery: cfg.Tracking.RealtimeEvery,
	}, logger, recorder)
	if err != nil {
		return err
	}
	if cfg.Tracking.Autostart {
		scheduler.Start()
	}
	defer scheduler.Stop()

	// 5. Delivery
	router := httpdelivery.NewRouter(httpdelivery.Handlers{
		Orders:    httpdelivery.NewOrderHandler(tracking),
		Dashboard: httpdelivery.NewDashboardHandler(usecase.NewAggregationService(store, nil)),
		Tracker:   httpdelivery.NewTrackerHandler(scheduler, usecase.NewRealtimeService(store, logger)),
		Tokens:    httpdelivery.NewTokenHandler(tokens, notifier),
		Websocket: hub.Handle,
		Metrics:   recorder.Handler(),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "store", cfg.Storage.Driver, "prices", cfg.Price.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (domain.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres store", "max_conns", cfg.Pool.MaxConns)
		return repository.NewPostgresOrderStore(pool), pool.Close, nil

	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		s := repository.NewSQLiteOrderStore(conn)
		return s, func() { _ = s.Close() }, nil
	}

	logger.Warn("using in-memory store, orders are lost on restart")
	return repository.NewInMemoryOrderStore(), func() {}, nil
}

func openPriceSource(ctx context.Context, cfg config.Price, logger *slog.Logger) (domain.PriceSource, func()) {
	var src domain.PriceSource
	switch cfg.Provider {
	case config.ProviderAlpaca:
		src = alpaca.NewPriceSource(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.BaseURL, cfg.AlpacaFeed)
	default:
		src = binance.NewClient(cfg.BaseURL, binance.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	if cfg.Cache.Addr == "" {
		return src, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, price cache will fall through", "addr", cfg.Cache.Addr, "error", err)
	}
	return pricecache.NewRedisCache(rdb, src, cfg.Cache.Prefix, cfg.Cache.TTL, logger), func() { _ = rdb.Close() }
}
