package domain

import (
	"context"
	"time"
)

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	Symbol    string
	Status    OrderStatus
	Direction Direction
	RiskLevel RiskLevel
	From      time.Time // opened at or after
	To        time.Time // opened at or before
	Limit     int
	Offset    int
}

// ClosedOrderFilter selects terminal orders by closing time.
type ClosedOrderFilter struct {
	Symbol string
	From   time.Time // closed at or after
	To     time.Time // closed before
}

// SnapshotFilter selects snapshots for reporting.
type SnapshotFilter struct {
	OrderID  string
	Symbol   string
	Interval string
	From     time.Time
	To       time.Time
}

// OrderStore is durable storage for orders and their snapshots.
//
// TransitionOrder and RecordEvaluation are compare-and-swap writes: they
// return false, not an error, when the order is no longer in the expected
// status.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOpenOrders(ctx context.Context) ([]*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, int, error)
	ListClosedOrders(ctx context.Context, filter ClosedOrderFilter) ([]*Order, error)

	TransitionOrder(ctx context.Context, t Transition) (bool, error)
	InsertSnapshot(ctx context.Context, snap *ProfitSnapshot) error
	// RecordEvaluation inserts snap and, when t is non-nil, applies the
	// guarded transition in the same atomic unit. The snapshot is kept even
	// when the transition loses its race.
	RecordEvaluation(ctx context.Context, snap *ProfitSnapshot, t *Transition) (bool, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*ProfitSnapshot, error)
}

// TrackingConfigStore persists per-order realtime tracking configs.
type TrackingConfigStore interface {
	GetTrackingConfig(ctx context.Context, orderID string) (*TrackingConfig, error)
	UpsertTrackingConfig(ctx context.Context, cfg *TrackingConfig) error
	ActiveTrackingConfigs(ctx context.Context) (map[string]*TrackingConfig, error)
}

// Store is everything the tracking backend persists.
type Store interface {
	OrderStore
	TrackingConfigStore
}
