package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tracker-backend/internal/domain"
)

// Compile-time interface check.
var _ domain.Store = (*SQLiteOrderStore)(nil)

// SQLiteOrderStore implements domain.Store on a SQLite database opened by
// db.OpenSQLite. Times are stored as UTC unix milliseconds.
type SQLiteOrderStore struct {
	db *sql.DB
}

func NewSQLiteOrderStore(db *sql.DB) *SQLiteOrderStore {
	return &SQLiteOrderStore{db: db}
}

// Close closes the underlying database connection.
func (s *SQLiteOrderStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteOrderStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		insert into orders(`+orderColumns+`)
		values (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		o.ID,
		o.Symbol,
		o.Interval,
		string(o.Direction),
		string(o.RiskLevel),
		o.EntryPrice,
		o.StopLoss,
		o.StopLossPct,
		sqlFloat(o.TargetT1),
		sqlFloat(o.TargetT2),
		sqlFloat(o.TargetT3),
		o.Leverage,
		sqlFloat(o.Quantity),
		sqlFloat(o.OpenAmount),
		sqlFloat(o.PositionSizePct),
		o.Summary,
		o.OpenedAt.UnixMilli(),
		string(o.Status),
		sqlTime(o.ClosedAt),
		sqlFloat(o.ClosedPrice),
		sqlFloat(o.FinalProfitPct),
		sqlBool(o.IsWin),
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *SQLiteOrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `select `+orderColumns+` from orders where id = ?`, id)
	o, err := scanSQLiteOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *SQLiteOrderStore) GetOpenOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.queryOrders(ctx, `select `+orderColumns+` from orders where status = 'OPEN' order by opened_at`)
}

func (s *SQLiteOrderStore) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int, error) {
	w := sqliteWhere()
	w.orderFilter(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from orders`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `select ` + orderColumns + ` from orders` + w.String() + ` order by opened_at desc, id`
	query += w.pageClause(filter.Limit, filter.Offset)
	orders, err := s.queryOrders(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *SQLiteOrderStore) ListClosedOrders(ctx context.Context, filter domain.ClosedOrderFilter) ([]*domain.Order, error) {
	w := sqliteWhere()
	w.closedFilter(filter)
	return s.queryOrders(ctx, `select `+orderColumns+` from orders`+w.String()+` order by closed_at`, w.args...)
}

func (s *SQLiteOrderStore) TransitionOrder(ctx context.Context, t domain.Transition) (bool, error) {
	if err := checkTransition(t); err != nil {
		return false, err
	}
	applied, err := sqliteTransition(ctx, s.db, t)
	if err != nil {
		return false, err
	}
	if !applied {
		if _, err := s.GetOrder(ctx, t.OrderID); err != nil {
			return false, err
		}
	}
	return applied, nil
}

func (s *SQLiteOrderStore) InsertSnapshot(ctx context.Context, snap *domain.ProfitSnapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return sqliteInsertSnapshot(ctx, tx, snap)
	})
}

// RecordEvaluation inserts the snapshot and applies the transition in one
// transaction. A transition that loses its race still commits the snapshot.
func (s *SQLiteOrderStore) RecordEvaluation(ctx context.Context, snap *domain.ProfitSnapshot, t *domain.Transition) (bool, error) {
	if t != nil {
		if err := checkTransition(*t); err != nil {
			return false, err
		}
	}
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteInsertSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		var err error
		applied, err = sqliteTransition(ctx, tx, *t)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *SQLiteOrderStore) ListSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]*domain.ProfitSnapshot, error) {
	w := sqliteWhere()
	w.snapshotFilter(filter)

	rows, err := s.db.QueryContext(ctx, `select `+snapshotColumns+` from profit_snapshots`+w.String()+` order by recorded_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]*domain.ProfitSnapshot, 0)
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteOrderStore) GetTrackingConfig(ctx context.Context, orderID string) (*domain.TrackingConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		select order_id, enabled, tracking_interval, created_at, updated_at
		from tracking_configs
		where order_id = ?
	`, orderID)
	cfg, err := scanSQLiteConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackingConfigNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking config %s: %w", orderID, err)
	}
	return cfg, nil
}

func (s *SQLiteOrderStore) UpsertTrackingConfig(ctx context.Context, cfg *domain.TrackingConfig) error {
	if _, err := s.GetOrder(ctx, cfg.OrderID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into tracking_configs(order_id, enabled, tracking_interval, created_at, updated_at)
		values (?,?,?,?,?)
		on conflict (order_id) do update set
			enabled = excluded.enabled,
			tracking_interval = excluded.tracking_interval,
			updated_at = excluded.updated_at
	`, cfg.OrderID, cfg.Enabled, cfg.Interval, cfg.CreatedAt.UnixMilli(), cfg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert tracking config %s: %w", cfg.OrderID, err)
	}
	return nil
}

func (s *SQLiteOrderStore) ActiveTrackingConfigs(ctx context.Context) (map[string]*domain.TrackingConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.order_id, c.enabled, c.tracking_interval, c.created_at, c.updated_at
		from tracking_configs c
		join orders o on o.id = c.order_id
		where c.enabled = 1 and o.status = 'OPEN'
	`)
	if err != nil {
		return nil, fmt.Errorf("active tracking configs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.TrackingConfig)
	for rows.Next() {
		cfg, err := scanSQLiteConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking config: %w", err)
		}
		out[cfg.OrderID] = cfg
	}
	return out, rows.Err()
}

func (s *SQLiteOrderStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteOrderStore) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanSQLiteOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteInsertSnapshot checks the parent order explicitly so a missing order
// maps to ErrOrderNotFound regardless of the foreign_keys pragma.
func sqliteInsertSnapshot(ctx context.Context, db sqlExecer, snap *domain.ProfitSnapshot) error {
	var exists int
	err := db.QueryRowContext(ctx, `select 1 from orders where id = ?`, snap.OrderID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, snap.OrderID)
	}
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", snap.OrderID, err)
	}

	res, err := db.ExecContext(ctx, `
		insert into profit_snapshots(order_id, price, profit_pct, profit_amount, tracking_interval,
			stop_triggered, take_profit_triggered, triggered_target, recorded_at)
		values (?,?,?,?,?,?,?,?,?)
	`,
		snap.OrderID,
		snap.Price,
		snap.ProfitPct,
		sqlFloat(snap.ProfitAmount),
		snap.Interval,
		snap.StopTriggered,
		snap.TakeProfitTriggered,
		string(snap.TriggeredTarget),
		snap.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", snap.OrderID, err)
	}
	if snap.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("snapshot id for %s: %w", snap.OrderID, err)
	}
	return nil
}

func sqliteTransition(ctx context.Context, db sqlExecer, t domain.Transition) (bool, error) {
	res, err := db.ExecContext(ctx, `
		update orders
		set status = ?, closed_at = ?, closed_price = ?, final_profit_pct = ?, is_win = ?
		where id = ? and status = ?
	`,
		string(t.Next),
		t.Close.ClosedAt.UnixMilli(),
		t.Close.ClosedPrice,
		t.Close.FinalProfitPct,
		t.Close.IsWin(),
		t.OrderID,
		string(t.Expected),
	)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", t.OrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", t.OrderID, err)
	}
	return n == 1, nil
}

func scanSQLiteOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var direction, risk, status string
	var openedAt int64
	var t1, t2, t3, qty, amount, sizePct, closedPrice, finalPct sql.NullFloat64
	var closedAt sql.NullInt64
	var isWin sql.NullBool

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
		&openedAt,
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
	o.OpenedAt = fromMillis(openedAt)
	o.TargetT1 = nullFloatPtr(t1)
	o.TargetT2 = nullFloatPtr(t2)
	o.TargetT3 = nullFloatPtr(t3)
	o.Quantity = nullFloatPtr(qty)
	o.OpenAmount = nullFloatPtr(amount)
	o.PositionSizePct = nullFloatPtr(sizePct)
	o.ClosedPrice = nullFloatPtr(closedPrice)
	o.FinalProfitPct = nullFloatPtr(finalPct)
	if closedAt.Valid {
		v := fromMillis(closedAt.Int64)
		o.ClosedAt = &v
	}
	if isWin.Valid {
		v := isWin.Bool
		o.IsWin = &v
	}
	return &o, nil
}

func scanSQLiteSnapshot(s scanner) (*domain.ProfitSnapshot, error) {
	var snap domain.ProfitSnapshot
	var amount sql.NullFloat64
	var target string
	var recordedAt int64
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
		&recordedAt,
	); err != nil {
		return nil, err
	}
	snap.ProfitAmount = nullFloatPtr(amount)
	snap.TriggeredTarget = domain.Target(target)
	snap.RecordedAt = fromMillis(recordedAt)
	return &snap, nil
}

func scanSQLiteConfig(s scanner) (*domain.TrackingConfig, error) {
	var cfg domain.TrackingConfig
	var created, updated int64
	if err := s.Scan(&cfg.OrderID, &cfg.Enabled, &cfg.Interval, &created, &updated); err != nil {
		return nil, err
	}
	cfg.CreatedAt = fromMillis(created)
	cfg.UpdatedAt = fromMillis(updated)
	return &cfg, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func sqlFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func sqlTime(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.UnixMilli(), Valid: true}
}

func sqlBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
