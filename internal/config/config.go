package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/infrastructure/db"
)

// Config is the top-level configuration of the tracker server.
type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Price    Price    `yaml:"price"`
	Tracking Tracking `yaml:"tracking"`
	Notify   Notify   `yaml:"notify"`
	Logging  Logging  `yaml:"logging"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Storage selects the order store. Driver is memory, postgres or sqlite.
type Storage struct {
	Driver      string        `yaml:"driver"`
	DatabaseURL string        `yaml:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path"`
	Pool        db.PoolConfig `yaml:"pool"`
}

// Price selects the market data provider. Provider is binance or alpaca.
type Price struct {
	Provider     string  `yaml:"provider"`
	BaseURL      string  `yaml:"base_url"`
	RateLimit    float64 `yaml:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst"`
	AlpacaKey    string  `yaml:"alpaca_key"`
	AlpacaSecret string  `yaml:"alpaca_secret"`
	AlpacaFeed   string  `yaml:"alpaca_feed"`
	Cache        Cache   `yaml:"cache"`
}

// Cache enables the Redis price cache when Addr is set.
type Cache struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

type Tracking struct {
	Intervals       []string      `yaml:"intervals"`
	Realtime        bool          `yaml:"realtime"`
	RealtimeEvery   time.Duration `yaml:"realtime_every"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	PriceTimeout    time.Duration `yaml:"price_timeout"`
	Autostart       bool          `yaml:"autostart"`
	NotifyCooldown  time.Duration `yaml:"notify_cooldown"`
	WebsocketBuffer int           `yaml:"websocket_buffer"`
}

type Notify struct {
	FirebaseCredentialsPath string `yaml:"firebase_credentials_path"`
	FirebaseCredentialsJSON string `yaml:"firebase_credentials_json"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderBinance = "binance"
	ProviderAlpaca  = "alpaca"
)

// Default returns a configuration that runs out of the box: in-memory
// storage, Binance futures prices, every scheduled cadence.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: Storage{
			Driver:     DriverMemory,
			SQLitePath: "tracker.db",
			Pool:       db.DefaultPoolConfig(),
		},
		Price: Price{
			Provider:  ProviderBinance,
			RateLimit: 10,
			RateBurst: 20,
			Cache: Cache{
				TTL:    5 * time.Second,
				Prefix: "price:",
			},
		},
		Tracking: Tracking{
			Intervals:       append([]string(nil), domain.ScheduledIntervals...),
			Realtime:        true,
			RealtimeEvery:   time.Minute,
			MaxConcurrency:  8,
			PriceTimeout:    10 * time.Second,
			Autostart:       true,
			NotifyCooldown:  time.Minute,
			WebsocketBuffer: 64,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.Storage.Pool = cfg.Storage.Pool.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for postgres"))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Price.Provider {
	case ProviderBinance:
	case ProviderAlpaca:
		if c.Price.AlpacaKey == "" || c.Price.AlpacaSecret == "" {
			errs = append(errs, errors.New("alpaca provider needs api key and secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown price.provider %q", c.Price.Provider))
	}

	for _, label := range c.Tracking.Intervals {
		if d, err := time.ParseDuration(label); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("bad tracking interval %q", label))
		}
	}
	if c.Tracking.MaxConcurrency < 1 {
		errs = append(errs, errors.New("tracking.max_concurrency must be at least 1"))
	}
	if c.Tracking.PriceTimeout <= 0 {
		errs = append(errs, errors.New("tracking.price_timeout must be positive"))
	}
	if c.Tracking.Realtime && c.Tracking.RealtimeEvery <= 0 {
		errs = append(errs, errors.New("tracking.realtime_every must be positive"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets deployment environments override the file.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		num(key, func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		})
	}
	i32 := func(key string, dst *int32) {
		num(key, func(v string) error {
			n, err := strconv.ParseInt(v, 10, 32)
			*dst = int32(n)
			return err
		})
	}
	boolean := func(key string, dst *bool) {
		num(key, func(v string) (err error) {
			*dst, err = strconv.ParseBool(v)
			return err
		})
	}

	str("HTTP_ADDR", &cfg.Server.Addr)

	str("STORE_DRIVER", &cfg.Storage.Driver)
	str("DATABASE_URL", &cfg.Storage.DatabaseURL)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	i32("DB_MAX_CONNS", &cfg.Storage.Pool.MaxConns)
	i32("DB_MIN_CONNS", &cfg.Storage.Pool.MinConns)
	dur("DB_MAX_CONN_LIFETIME", &cfg.Storage.Pool.MaxConnLifetime)
	dur("DB_MAX_CONN_IDLE_TIME", &cfg.Storage.Pool.MaxConnIdleTime)
	dur("DB_HEALTHCHECK_PERIOD", &cfg.Storage.Pool.HealthCheckPeriod)
	boolean("DB_REQUIRE_SSL", &cfg.Storage.Pool.RequireSSL)

	str("PRICE_PROVIDER", &cfg.Price.Provider)
	str("BINANCE_BASE_URL", &cfg.Price.BaseURL)
	str("APCA_API_KEY_ID", &cfg.Price.AlpacaKey)
	str("APCA_API_SECRET_KEY", &cfg.Price.AlpacaSecret)
	str("APCA_DATA_FEED", &cfg.Price.AlpacaFeed)
	str("REDIS_ADDR", &cfg.Price.Cache.Addr)
	str("REDIS_PASSWORD", &cfg.Price.Cache.Password)

	str("FIREBASE_CREDENTIALS_PATH", &cfg.Notify.FirebaseCredentialsPath)
	str("FIREBASE_CREDENTIALS_JSON", &cfg.Notify.FirebaseCredentialsJSON)

	boolean("TRACKING_AUTOSTART", &cfg.Tracking.Autostart)
	dur("TRACKING_PRICE_TIMEOUT", &cfg.Tracking.PriceTimeout)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}
