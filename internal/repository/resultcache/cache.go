// Package resultcache stores query result pages in a key-value store.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/db"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Cache keeps result pages per application. Store failures are logged and
// treated as misses; the cache never fails a query.
type Cache struct {
	store      store
	prefix     string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a result cache. ttl <= 0 keeps entries until invalidated.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	s store,
	prefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		store:      s,
		prefix:     prefix,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Get returns the page cached for the query key of appID.
func (c *Cache) Get(ctx context.Context, appID, queryKey string) (results.Page, bool) {
	key := c.key(appID, queryKey)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached results", zap.String("key", key), zap.Error(err))
		}
		c.inc("miss")
		return results.Page{}, false
	}

	var dto pageDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		c.logger.Warn("Failed to parse cached results", zap.String("key", key), zap.Error(err))
		c.inc("miss")
		return results.Page{}, false
	}
	c.inc("hit")
	return dto.toDomain(), true
}

// Put stores page under the query key of appID.
func (c *Cache) Put(ctx context.Context, appID, queryKey string, page results.Page) {
	key := c.key(appID, queryKey)
	data, err := json.Marshal(toDTO(page))
	if err != nil {
		c.logger.Warn("Failed to encode results", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache results", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every page cached for appID.
func (c *Cache) Invalidate(ctx context.Context, appID string) error {
	keys, err := c.store.Scan(ctx, c.appPrefix(appID)+"*")
	if err != nil {
		return fmt.Errorf("scan cached results: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Del(ctx, k); err != nil {
			return fmt.Errorf("delete cached results: %w", err)
		}
	}
	return nil
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// appPrefix hashes appID so glob metacharacters in it cannot widen a scan.
func (c *Cache) appPrefix(appID string) string {
	h := sha256.Sum256([]byte(appID))
	return c.prefix + "results:" + hex.EncodeToString(h[:8]) + ":"
}

func (c *Cache) key(appID, queryKey string) string {
	h := sha256.Sum256([]byte(queryKey))
	return c.appPrefix(appID) + hex.EncodeToString(h[:])
}
