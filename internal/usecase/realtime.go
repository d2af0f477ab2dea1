package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tracker-backend/internal/domain"
)

// RealtimeService manages per-order opt-in for the high-frequency tracking
// pass.
type RealtimeService struct {
	store  domain.Store
	logger *slog.Logger
	now    func() time.Time
}

type RealtimeOption func(*RealtimeService)

func WithRealtimeClock(now func() time.Time) RealtimeOption {
	return func(s *RealtimeService) { s.now = now }
}

func NewRealtimeService(store domain.Store, logger *slog.Logger, opts ...RealtimeOption) *RealtimeService {
	s := &RealtimeService{
		store:  store,
		logger: logger.With("component", "realtime"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the order's config. An order that never opted in reports a
// disabled config with the default interval.
func (s *RealtimeService) Get(ctx context.Context, orderID string) (*domain.TrackingConfig, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	cfg, err := s.store.GetTrackingConfig(ctx, orderID)
	if errors.Is(err, domain.ErrTrackingConfigNotFound) {
		return &domain.TrackingConfig{OrderID: orderID, Interval: domain.DefaultRealtimeInterval}, nil
	}
	return cfg, err
}

// Enable opts the order in. An empty interval keeps the current one.
func (s *RealtimeService) Enable(ctx context.Context, orderID, interval string) (*domain.TrackingConfig, error) {
	enabled := true
	return s.Update(ctx, orderID, &enabled, interval)
}

func (s *RealtimeService) Disable(ctx context.Context, orderID string) (*domain.TrackingConfig, error) {
	enabled := false
	return s.Update(ctx, orderID, &enabled, "")
}

// Update changes the enabled flag and/or the interval. Terminal orders
// cannot be reconfigured.
func (s *RealtimeService) Update(ctx context.Context, orderID string, enabled *bool, interval string) (*domain.TrackingConfig, error) {
	if interval != "" && !domain.IsKlineInterval(interval) {
		return nil, fmt.Errorf("%w: unsupported tracking interval %q", domain.ErrInvalidOrderParameters, interval)
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderAlreadyClosed, orderID, order.Status)
	}

	now := s.now().UTC()
	cfg, err := s.store.GetTrackingConfig(ctx, orderID)
	switch {
	case errors.Is(err, domain.ErrTrackingConfigNotFound):
		cfg = &domain.TrackingConfig{OrderID: orderID, Interval: domain.DefaultRealtimeInterval, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load tracking config %s: %w", orderID, err)
	}

	if enabled != nil {
		cfg.Enabled = *enabled
	}
	if interval != "" {
		cfg.Interval = interval
	}
	cfg.UpdatedAt = now

	if err := s.store.UpsertTrackingConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save tracking config %s: %w", orderID, err)
	}
	s.logger.Info("tracking config updated", "order_id", orderID, "enabled", cfg.Enabled, "interval", cfg.Interval)
	return cfg, nil
}
