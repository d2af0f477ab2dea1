package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestPoolConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       PoolConfig
		max, min int32
	}{
		{"defaults untouched", DefaultPoolConfig(), 10, 2},
		{"zero max", PoolConfig{MaxConns: 0, MinConns: 0}, 1, 0},
		{"negative min", PoolConfig{MaxConns: 5, MinConns: -3}, 5, 0},
		{"min above max", PoolConfig{MaxConns: 4, MinConns: 9}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.MaxConns != tt.max || got.MinConns != tt.min {
				t.Fatalf("got max=%d min=%d, want max=%d min=%d", got.MaxConns, got.MinConns, tt.max, tt.min)
			}
		})
	}
}

func TestEnsureSSLModeRequire(t *testing.T) {
	got := ensureSSLModeRequire("postgres://u:p@localhost:5432/tracker")
	if !strings.Contains(got, "sslmode=require") {
		t.Fatalf("expected sslmode=require, got %q", got)
	}

	kept := ensureSSLModeRequire("postgres://u:p@localhost:5432/tracker?sslmode=disable")
	if !strings.Contains(kept, "sslmode=disable") || strings.Contains(kept, "sslmode=require") {
		t.Fatalf("explicit sslmode must be kept, got %q", kept)
	}
}

func TestOpenSQLiteAppliesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracker.db")

	conn, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := MigrateSQLite(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"orders", "profit_snapshots", "tracking_configs"} {
		var name string
		err := conn.QueryRowContext(ctx,
			`select name from sqlite_master where type = 'table' and name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	conn.Close()

	// Reopening an existing file must not fail on the schema.
	conn, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	conn.Close()
}
