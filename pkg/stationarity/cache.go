package stationarity

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/metrics"
	"github.com/yourusername/pairlab/pkg/stats"
)

// DefaultCacheTTL is how long cached test results live.
const DefaultCacheTTL = 24 * time.Hour

// CachedTester is a read-through Redis cache in front of another Tester.
// Cache errors are logged and never fail the test.
type CachedTester struct {
	next    Tester
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewCachedTester wraps next with a Redis cache.
func NewCachedTester(next Tester, client redis.Cmdable, prefix string, ttl time.Duration, m *metrics.Registry) *CachedTester {
	if prefix == "" {
		prefix = "pairlab:adf:"
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedTester{
		next:    next,
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		metrics: m,
		logger:  logging.Component("stationarity-cache"),
	}
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// Key returns the cache key of a series (hash of the clean values).
func (c *CachedTester) Key(values []float64) string {
	return c.prefix + SeriesHash(stats.Finite(values))
}

// SeriesHash is a hex SHA-256 over the IEEE-754 bits of values.
func SeriesHash(values []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

type cachedResult struct {
	Statistic    float64        `json:"statistic"`
	PValue       float64        `json:"p_value"`
	Critical     CriticalValues `json:"critical_values"`
	IsStationary bool           `json:"is_stationary"`
	UsedLag      int            `json:"used_lag"`
	NObs         int            `json:"nobs"`
}

// Test implements Tester.
func (c *CachedTester) Test(ctx context.Context, values []float64) (Result, error) {
	key := c.Key(values)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cr cachedResult
		if jerr := json.Unmarshal([]byte(val), &cr); jerr == nil {
			c.metrics.CacheLookup(true)
			return Result{
				Statistic:      cr.Statistic,
				PValue:         cr.PValue,
				CriticalValues: cr.Critical,
				IsStationary:   cr.IsStationary,
				UsedLag:        cr.UsedLag,
				NObs:           cr.NObs,
				Source:         SourceCache,
			}, nil
		}
		c.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	case err == redis.Nil:
	default:
		c.logger.Warn().Err(err).Msg("Redis get failed, bypassing cache")
	}
	c.metrics.CacheLookup(false)

	result, err := c.next.Test(ctx, values)
	if err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(cachedResult{
		Statistic:    result.Statistic,
		PValue:       result.PValue,
		Critical:     result.CriticalValues,
		IsStationary: result.IsStationary,
		UsedLag:      result.UsedLag,
		NObs:         result.NObs,
	})
	if err == nil {
		if serr := c.client.Set(ctx, key, string(payload), c.ttl).Err(); serr != nil {
			c.logger.Warn().Err(serr).Msg("Redis set failed")
		}
	}
	return result, nil
}
