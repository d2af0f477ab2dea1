package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tracker-backend/internal/domain"
)

// InMemoryOrderStore keeps orders, snapshots and tracking configs in maps
// guarded by one mutex. Every write is a single critical section, which makes
// RecordEvaluation atomic the same way a SQL transaction does.
type InMemoryOrderStore struct {
	mu        sync.RWMutex
	orders    map[string]*domain.Order
	snapshots []*domain.ProfitSnapshot
	configs   map[string]*domain.TrackingConfig
	nextSnap  int64
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:  make(map[string]*domain.Order),
		configs: make(map[string]*domain.TrackingConfig),
	}
}

func (r *InMemoryOrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	if err := order.CheckCloseFields(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *InMemoryOrderStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (r *InMemoryOrderStore) GetOpenOrders(_ context.Context) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.IsOpen() {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (r *InMemoryOrderStore) ListOrders(_ context.Context, filter domain.OrderFilter) ([]*domain.Order, int, error) {
	r.mu.RLock()
	var matched []*domain.Order
	for _, o := range r.orders {
		if matchOrder(o, filter) {
			matched = append(matched, o.Clone())
		}
	}
	r.mu.RUnlock()

	// Newest first, like the SQL stores.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OpenedAt.Equal(matched[j].OpenedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].OpenedAt.After(matched[j].OpenedAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (r *InMemoryOrderStore) ListClosedOrders(_ context.Context, filter domain.ClosedOrderFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	var out []*domain.Order
	for _, o := range r.orders {
		if !o.Status.IsTerminal() || o.ClosedAt == nil {
			continue
		}
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		if !filter.From.IsZero() && o.ClosedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !o.ClosedAt.Before(filter.To) {
			continue
		}
		out = append(out, o.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(*out[j].ClosedAt) })
	return out, nil
}

func (r *InMemoryOrderStore) TransitionOrder(_ context.Context, t domain.Transition) (bool, error) {
	if err := checkTransition(t); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.transitionLocked(t)
}

func (r *InMemoryOrderStore) InsertSnapshot(_ context.Context, snap *domain.ProfitSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insertSnapshotLocked(snap)
}

func (r *InMemoryOrderStore) RecordEvaluation(_ context.Context, snap *domain.ProfitSnapshot, t *domain.Transition) (bool, error) {
	if t != nil {
		if err := checkTransition(*t); err != nil {
			return false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.insertSnapshotLocked(snap); err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	return r.transitionLocked(*t)
}

func (r *InMemoryOrderStore) ListSnapshots(_ context.Context, filter domain.SnapshotFilter) ([]*domain.ProfitSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ProfitSnapshot
	for _, s := range r.snapshots {
		if filter.OrderID != "" && s.OrderID != filter.OrderID {
			continue
		}
		if filter.Interval != "" && s.Interval != filter.Interval {
			continue
		}
		if !filter.From.IsZero() && s.RecordedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && s.RecordedAt.After(filter.To) {
			continue
		}
		if filter.Symbol != "" {
			o, ok := r.orders[s.OrderID]
			if !ok || o.Symbol != filter.Symbol {
				continue
			}
		}
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func (r *InMemoryOrderStore) GetTrackingConfig(_ context.Context, orderID string) (*domain.TrackingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackingConfigNotFound, orderID)
	}
	c := *cfg
	return &c, nil
}

func (r *InMemoryOrderStore) UpsertTrackingConfig(_ context.Context, cfg *domain.TrackingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[cfg.OrderID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, cfg.OrderID)
	}
	c := *cfg
	if existing, ok := r.configs[cfg.OrderID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	r.configs[cfg.OrderID] = &c
	return nil
}

func (r *InMemoryOrderStore) ActiveTrackingConfigs(_ context.Context) (map[string]*domain.TrackingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*domain.TrackingConfig)
	for id, cfg := range r.configs {
		if !cfg.Enabled {
			continue
		}
		if o, ok := r.orders[id]; !ok || !o.IsOpen() {
			continue
		}
		c := *cfg
		out[id] = &c
	}
	return out, nil
}

func (r *InMemoryOrderStore) insertSnapshotLocked(snap *domain.ProfitSnapshot) error {
	if _, ok := r.orders[snap.OrderID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, snap.OrderID)
	}
	r.nextSnap++
	snap.ID = r.nextSnap
	c := *snap
	r.snapshots = append(r.snapshots, &c)
	return nil
}

func (r *InMemoryOrderStore) transitionLocked(t domain.Transition) (bool, error) {
	o, ok := r.orders[t.OrderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, t.OrderID)
	}
	if o.Status != t.Expected {
		return false, nil
	}
	o.Apply(t.Next, t.Close)
	return true, nil
}

// checkTransition rejects edges the order state machine does not have.
func checkTransition(t domain.Transition) error {
	if !domain.CanTransition(t.Expected, t.Next) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", t.OrderID, t.Expected, t.Next)
	}
	return nil
}

func matchOrder(o *domain.Order, f domain.OrderFilter) bool {
	switch {
	case f.Symbol != "" && o.Symbol != f.Symbol:
		return false
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.Direction != "" && o.Direction != f.Direction:
		return false
	case f.RiskLevel != "" && o.RiskLevel != f.RiskLevel:
		return false
	case !f.From.IsZero() && o.OpenedAt.Before(f.From):
		return false
	case !f.To.IsZero() && o.OpenedAt.After(f.To):
		return false
	}
	return true
}

func paginate(orders []*domain.Order, limit, offset int) []*domain.Order {
	if offset > 0 {
		if offset >= len(orders) {
			return []*domain.Order{}
		}
		orders = orders[offset:]
	}
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders
}
