package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker-backend/internal/domain"
)

const pgForeignKeyViolation = "23503"

// PostgresOrderStore persists orders, snapshots and tracking configs in
// Postgres. Status changes are compare-and-swap updates guarded by the
// expected status.
type PostgresOrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*PostgresOrderStore)(nil)

func NewPostgresOrderStore(pool *pgxpool.Pool) *PostgresOrderStore {
	return &PostgresOrderStore{pool: pool}
}

func (r *PostgresOrderStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := r.pool.Exec(ctx, `
		insert into orders(`+orderColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`,
		o.ID,
		o.Symbol,
		o.Interval,
		string(o.Direction),
		string(o.RiskLevel),
		o.EntryPrice,
		o.StopLoss,
		o.StopLossPct,
		nullableFloat(o.TargetT1),
		nullableFloat(o.TargetT2),
		nullableFloat(o.TargetT3),
		o.Leverage,
		nullableFloat(o.Quantity),
		nullableFloat(o.OpenAmount),
		nullableFloat(o.PositionSizePct),
		o.Summary,
		o.OpenedAt,
		string(o.Status),
		nullableTime(o.ClosedAt),
		nullableFloat(o.ClosedPrice),
		nullableFloat(o.FinalProfitPct),
		nullableBool(o.IsWin),
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *PostgresOrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx, `select `+orderColumns+` from orders where id = $1`, id)
	o, err := scanPostgresOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderStore) GetOpenOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.queryOrders(ctx, `select `+orderColumns+` from orders where status = 'OPEN' order by opened_at`)
}

func (r *PostgresOrderStore) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int, error) {
	w := postgresWhere()
	w.orderFilter(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `select count(*) from orders`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `select ` + orderColumns + ` from orders` + w.String() + ` order by opened_at desc, id`
	query += w.pageClause(filter.Limit, filter.Offset)
	orders, err := r.queryOrders(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *PostgresOrderStore) ListClosedOrders(ctx context.Context, filter domain.ClosedOrderFilter) ([]*domain.Order, error) {
	w := postgresWhere()
	w.closedFilter(filter)
	return r.queryOrders(ctx, `select `+orderColumns+` from orders`+w.String()+` order by closed_at`, w.args...)
}

func (r *PostgresOrderStore) TransitionOrder(ctx context.Context, t domain.Transition) (bool, error) {
	if err := checkTransition(t); err != nil {
		return false, err
	}
	applied, err := transition(ctx, r.pool, t)
	if err != nil {
		return false, err
	}
	if !applied {
		if _, err := r.GetOrder(ctx, t.OrderID); err != nil {
			return false, err
		}
	}
	return applied, nil
}

func (r *PostgresOrderStore) InsertSnapshot(ctx context.Context, snap *domain.ProfitSnapshot) error {
	return insertSnapshot(ctx, r.pool, snap)
}

// RecordEvaluation inserts the snapshot and applies the transition in one
// transaction. A transition that loses its race still commits the snapshot.
func (r *PostgresOrderStore) RecordEvaluation(ctx context.Context, snap *domain.ProfitSnapshot, t *domain.Transition) (bool, error) {
	if t != nil {
		if err := checkTransition(*t); err != nil {
			return false, err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertSnapshot(ctx, tx, snap); err != nil {
		return false, err
	}
	applied := false
	if t != nil {
		if applied, err = transition(ctx, tx, *t); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit evaluation for %s: %w", snap.OrderID, err)
	}
	return applied, nil
}

func (r *PostgresOrderStore) ListSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]*domain.ProfitSnapshot, error) {
	w := postgresWhere()
	w.snapshotFilter(filter)

	rows, err := r.pool.Query(ctx, `select `+snapshotColumns+` from profit_snapshots`+w.String()+` order by recorded_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]*domain.ProfitSnapshot, 0)
	for rows.Next() {
		s, err := scanPostgresSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (r *PostgresOrderStore) GetTrackingConfig(ctx context.Context, orderID string) (*domain.TrackingConfig, error) {
	var cfg domain.TrackingConfig
	err := r.pool.QueryRow(ctx, `
		select order_id, enabled, tracking_interval, created_at, updated_at
		from tracking_configs
		where order_id = $1
	`, orderID).Scan(&cfg.OrderID, &cfg.Enabled, &cfg.Interval, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackingConfigNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking config %s: %w", orderID, err)
	}
	return &cfg, nil
}

func (r *PostgresOrderStore) UpsertTrackingConfig(ctx context.Context, cfg *domain.TrackingConfig) error {
	_, err := r.pool.Exec(ctx, `
		insert into tracking_configs(order_id, enabled, tracking_interval, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
		on conflict (order_id) do update set
			enabled = excluded.enabled,
			tracking_interval = excluded.tracking_interval,
			updated_at = excluded.updated_at
	`, cfg.OrderID, cfg.Enabled, cfg.Interval, cfg.CreatedAt, cfg.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, cfg.OrderID)
	}
	if err != nil {
		return fmt.Errorf("upsert tracking config %s: %w", cfg.OrderID, err)
	}
	return nil
}

func (r *PostgresOrderStore) ActiveTrackingConfigs(ctx context.Context) (map[string]*domain.TrackingConfig, error) {
	rows, err := r.pool.Query(ctx, `
		select c.order_id, c.enabled, c.tracking_interval, c.created_at, c.updated_at
		from tracking_configs c
		join orders o on o.id = c.order_id
		where c.enabled and o.status = 'OPEN'
	`)
	if err != nil {
		return nil, fmt.Errorf("active tracking configs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.TrackingConfig)
	for rows.Next() {
		var cfg domain.TrackingConfig
		if err := rows.Scan(&cfg.OrderID, &cfg.Enabled, &cfg.Interval, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tracking config: %w", err)
		}
		out[cfg.OrderID] = &cfg
	}
	return out, rows.Err()
}

func (r *PostgresOrderStore) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanPostgresOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSnapshot(ctx context.Context, db pgExecer, s *domain.ProfitSnapshot) error {
	err := db.QueryRow(ctx, `
		insert into profit_snapshots(order_id, price, profit_pct, profit_amount, tracking_interval,
			stop_triggered, take_profit_triggered, triggered_target, recorded_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning id
	`,
		s.OrderID,
		s.Price,
		s.ProfitPct,
		nullableFloat(s.ProfitAmount),
		s.Interval,
		s.StopTriggered,
		s.TakeProfitTriggered,
		string(s.TriggeredTarget),
		s.RecordedAt,
	).Scan(&s.ID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, s.OrderID)
	}
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", s.OrderID, err)
	}
	return nil
}

func transition(ctx context.Context, db pgExecer, t domain.Transition) (bool, error) {
	isWin := t.Close.IsWin()
	tag, err := db.Exec(ctx, `
		update orders
		set status = $3, closed_at = $4, closed_price = $5, final_profit_pct = $6, is_win = $7
		where id = $1 and status = $2
	`,
		t.OrderID,
		string(t.Expected),
		string(t.Next),
		t.Close.ClosedAt,
		t.Close.ClosedPrice,
		t.Close.FinalProfitPct,
		isWin,
	)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", t.OrderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgresOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var direction, risk, status string
	var t1, t2, t3, qty, amount, sizePct pgtype.Float8
	var closedAt pgtype.Timestamptz
	var closedPrice, finalPct pgtype.Float8
	var isWin pgtype.Bool

	if err := s.Scan(
		&o.ID,
		&o.Symbol,
		&o.Interval,
		&direction,
		&risk,
		&o.EntryPrice,
		&o.StopLoss,
		&o.StopLossPct,
		&t1,
		&t2,
		&t3,
		&o.Leverage,
		&qty,
		&amount,
		&sizePct,
		&o.Summary,
		&o.OpenedAt,
		&status,
		&closedAt,
		&closedPrice,
		&finalPct,
		&isWin,
	); err != nil {
		return nil, err
	}

	o.Direction = domain.Direction(direction)
	o.RiskLevel = domain.RiskLevel(risk)
	o.Status = domain.OrderStatus(status)
	o.OpenedAt = o.OpenedAt.UTC()
	o.TargetT1 = floatPtr(t1)
	o.TargetT2 = floatPtr(t2)
	o.TargetT3 = floatPtr(t3)
	o.Quantity = floatPtr(qty)
	o.OpenAmount = floatPtr(amount)
	o.PositionSizePct = floatPtr(sizePct)
	o.ClosedPrice = floatPtr(closedPrice)
	o.FinalProfitPct = floatPtr(finalPct)
	if closedAt.Valid {
		v := closedAt.Time.UTC()
		o.ClosedAt = &v
	}
	if isWin.Valid {
		v := isWin.Bool
		o.IsWin = &v
	}
	return &o, nil
}

func scanPostgresSnapshot(s scanner) (*domain.ProfitSnapshot, error) {
	var snap domain.ProfitSnapshot
	var amount pgtype.Float8
	var target string
	if err := s.Scan(
		&snap.ID,
		&snap.OrderID,
		&snap.Price,
		&snap.ProfitPct,
		&amount,
		&snap.Interval,
		&snap.StopTriggered,
		&snap.TakeProfitTriggered,
		&target,
		&snap.RecordedAt,
	); err != nil {
		return nil, err
	}
	snap.ProfitAmount = floatPtr(amount)
	snap.TriggeredTarget = domain.Target(target)
	snap.RecordedAt = snap.RecordedAt.UTC()
	return &snap, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func floatPtr(v pgtype.Float8) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableFloat(v *float64) any {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: *v}
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Valid: true, Time: *v}
}

func nullableBool(v *bool) any {
	if v == nil {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Valid: true, Bool: *v}
}
