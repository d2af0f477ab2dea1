package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the tables needed by the tracker.
// This keeps setup simple (no external migration tool), but still gives persistence.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists orders (
			id text primary key,
			symbol text not null,
			timeframe text not null default '4h',
			direction text not null check (direction in ('LONG', 'SHORT')),
			risk_level text not null default 'MEDIUM',
			entry_price double precision not null check (entry_price > 0),
			stop_loss double precision not null check (stop_loss > 0),
			stop_loss_pct double precision not null default 0,
			target_t1 double precision null,
			target_t2 double precision null,
			target_t3 double precision null,
			leverage double precision not null default 1,
			quantity double precision null,
			open_amount double precision null,
			position_size_pct double precision null,
			summary text not null default '',
			opened_at timestamptz not null,
			status text not null default 'OPEN',
			closed_at timestamptz null,
			closed_price double precision null,
			final_profit_pct double precision null,
			is_win boolean null,
			constraint orders_close_fields check (
				(status = 'OPEN' and closed_at is null and closed_price is null and final_profit_pct is null)
				or (status <> 'OPEN' and closed_at is not null and closed_price is not null and final_profit_pct is not null)
			)
		);`,
		`create index if not exists orders_status_idx on orders(status);`,
		`create index if not exists orders_symbol_opened_at_idx on orders(symbol, opened_at desc);`,
		`create index if not exists orders_closed_at_idx on orders(closed_at);`,
		`create table if not exists profit_snapshots (
			id bigserial primary key,
			order_id text not null references orders(id) on delete cascade,
			price double precision not null,
			profit_pct double precision not null,
			profit_amount double precision null,
			tracking_interval text not null,
			stop_triggered boolean not null default false,
			take_profit_triggered boolean not null default false,
			triggered_target text not null default '',
			recorded_at timestamptz not null
		);`,
		`create index if not exists profit_snapshots_order_idx on profit_snapshots(order_id, recorded_at);`,
		`create index if not exists profit_snapshots_interval_idx on profit_snapshots(tracking_interval);`,
		`create table if not exists tracking_configs (
			order_id text primary key references orders(id) on delete cascade,
			enabled boolean not null default false,
			tracking_interval text not null default '1m',
			created_at timestamptz not null,
			updated_at timestamptz not null
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// MigrateSQLite creates the same schema in SQLite. Times are stored as UTC
// unix milliseconds.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`create table if not exists orders (
			id text primary key,
			symbol text not null,
			timeframe text not null default '4h',
			direction text not null check (direction in ('LONG', 'SHORT')),
			risk_level text not null default 'MEDIUM',
			entry_price real not null check (entry_price > 0),
			stop_loss real not null check (stop_loss > 0),
			stop_loss_pct real not null default 0,
			target_t1 real null,
			target_t2 real null,
			target_t3 real null,
			leverage real not null default 1,
			quantity real null,
			open_amount real null,
			position_size_pct real null,
			summary text not null default '',
			opened_at integer not null,
			status text not null default 'OPEN',
			closed_at integer null,
			closed_price real null,
			final_profit_pct real null,
			is_win integer null,
			check (
				(status = 'OPEN' and closed_at is null and closed_price is null and final_profit_pct is null)
				or (status <> 'OPEN' and closed_at is not null and closed_price is not null and final_profit_pct is not null)
			)
		);`,
		`create index if not exists orders_status_idx on orders(status);`,
		`create index if not exists orders_symbol_opened_at_idx on orders(symbol, opened_at desc);`,
		`create index if not exists orders_closed_at_idx on orders(closed_at);`,
		`create table if not exists profit_snapshots (
			id integer primary key autoincrement,
			order_id text not null references orders(id) on delete cascade,
			price real not null,
			profit_pct real not null,
			profit_amount real null,
			tracking_interval text not null,
			stop_triggered integer not null default 0,
			take_profit_triggered integer not null default 0,
			triggered_target text not null default '',
			recorded_at integer not null
		);`,
		`create index if not exists profit_snapshots_order_idx on profit_snapshots(order_id, recorded_at);`,
		`create index if not exists profit_snapshots_interval_idx on profit_snapshots(tracking_interval);`,
		`create table if not exists tracking_configs (
			order_id text primary key references orders(id) on delete cascade,
			enabled integer not null default 0,
			tracking_interval text not null default '1m',
			created_at integer not null,
			updated_at integer not null
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}
