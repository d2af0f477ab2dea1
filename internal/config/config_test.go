package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Price.Provider != ProviderBinance {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Tracking.Intervals) != 5 || cfg.Tracking.Intervals[0] != "30m" {
		t.Fatalf("unexpected intervals: %v", cfg.Tracking.Intervals)
	}
	if cfg.Tracking.PriceTimeout != 10*time.Second || cfg.Tracking.MaxConcurrency != 8 {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
storage:
  driver: sqlite
  sqlite_path: /tmp/tracker-test.db
tracking:
  intervals: ["1h", "4h"]
  max_concurrency: 3
  price_timeout: 2s
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Storage.Driver != DriverSQLite {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if strings.Join(cfg.Tracking.Intervals, ",") != "1h,4h" || cfg.Tracking.MaxConcurrency != 3 {
		t.Fatalf("tracking not applied: %+v", cfg.Tracking)
	}
	if cfg.Tracking.PriceTimeout != 2*time.Second {
		t.Fatalf("price timeout: %v", cfg.Tracking.PriceTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Price.RateLimit != 10 || !cfg.Tracking.Autostart {
		t.Fatalf("defaults lost: %+v", cfg.Price)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/tracker")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "9")
	t.Setenv("TRACKING_AUTOSTART", "false")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.DatabaseURL != "postgres://localhost/tracker" {
		t.Fatalf("storage env not applied: %+v", cfg.Storage)
	}
	if cfg.Storage.Pool.MaxConns != 4 || cfg.Storage.Pool.MinConns != 4 {
		t.Fatalf("pool not normalized: %+v", cfg.Storage.Pool)
	}
	if cfg.Tracking.Autostart || cfg.Logging.Level != "warn" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("DB_MAX_CONN_LIFETIME", "forever")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "DB_MAX_CONN_LIFETIME") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage.driver"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "database_url"},
		{"alpaca without keys", func(c *Config) { c.Price.Provider = ProviderAlpaca }, "alpaca"},
		{"bad interval", func(c *Config) { c.Tracking.Intervals = []string{"hourly"} }, "bad tracking interval"},
		{"zero concurrency", func(c *Config) { c.Tracking.MaxConcurrency = 0 }, "max_concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
