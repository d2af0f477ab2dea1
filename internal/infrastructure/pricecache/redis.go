package pricecache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker-backend/internal/domain"
)

var _ domain.BatchPriceSource = (*RedisCache)(nil)

// RedisCache wraps a PriceSource and keeps fetched prices in Redis for a
// short TTL, so cadence passes firing together share one upstream fetch.
// Redis failures fall through to the wrapped source.
type RedisCache struct {
	client *redis.Client
	inner  domain.PriceSource
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, inner domain.PriceSource, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "price:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: client,
		inner:  inner,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "pricecache"),
	}
}

func (c *RedisCache) key(symbol string) string {
	return c.prefix + strings.ToUpper(symbol)
}

func (c *RedisCache) GetPrice(ctx context.Context, symbol string) (float64, error) {
	v, err := c.client.Get(ctx, c.key(symbol)).Result()
	switch {
	case err == nil:
		if p, perr := strconv.ParseFloat(v, 64); perr == nil && p > 0 {
			return p, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", "symbol", symbol, "error", err)
	}

	p, err := c.inner.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, c.key(symbol), strconv.FormatFloat(p, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "symbol", symbol, "error", err)
	}
	return p, nil
}

// GetPrices serves hits with one MGET and fetches the misses from the
// wrapped source, batched when it supports batching.
func (c *RedisCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, map[string]error) {
	prices := make(map[string]float64, len(symbols))
	errs := make(map[string]error)
	if len(symbols) == 0 {
		return prices, errs
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = c.key(s)
	}

	misses := symbols
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("cache batch read failed", "symbols", len(symbols), "error", err)
	} else {
		misses = nil
		for i, v := range vals {
			if s, ok := v.(string); ok {
				if p, perr := strconv.ParseFloat(s, 64); perr == nil && p > 0 {
					prices[symbols[i]] = p
					continue
				}
			}
			misses = append(misses, symbols[i])
		}
	}
	if len(misses) == 0 {
		return prices, errs
	}

	fetched := make(map[string]float64, len(misses))
	if batch, ok := c.inner.(domain.BatchPriceSource); ok {
		var fetchErrs map[string]error
		fetched, fetchErrs = batch.GetPrices(ctx, misses)
		for s, e := range fetchErrs {
			errs[s] = e
		}
	} else {
		for _, s := range misses {
			p, err := c.inner.GetPrice(ctx, s)
			if err != nil {
				errs[s] = err
				continue
			}
			fetched[s] = p
		}
	}
	if len(fetched) == 0 {
		return prices, errs
	}

	pipe := c.client.Pipeline()
	for s, p := range fetched {
		prices[s] = p
		pipe.Set(ctx, c.key(s), strconv.FormatFloat(p, 'f', -1, 64), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache batch write failed", "symbols", len(fetched), "error", err)
	}
	return prices, errs
}
