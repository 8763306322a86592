package dmodel

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type domainConfig struct {
	path   string
	shards []string
}

type clientConfig struct {
	defaultAppID    string
	dataDir         string
	domains         map[string]domainConfig
	initConcurrency int

	cacheDriver string // "", "memory", "redis" or "valkey"
	cacheAddrs  []string
	password    string
	cacheTTL    time.Duration
	keyPrefix   string

	logger *zap.Logger
}

// WithDefaultAppID sets the application used when a call names none.
func WithDefaultAppID(appID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultAppID = appID
	})
}

// WithDataDir sets the directory holding one content bundle per app id.
func WithDataDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dataDir = dir
	})
}

// WithDomain registers the bundle directory (manifest.json plus
// subscriptions/) of appID.
func WithDomain(appID, path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.domain()[appID] = domainConfig{path: path}
	})
}

// WithShards registers explicit shard files for appID, in priority order.
func WithShards(appID string, paths ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.domain()[appID] = domainConfig{shards: append([]string(nil), paths...)}
	})
}

// WithInitConcurrency bounds how many shards open in parallel (0 = number of CPUs).
func WithInitConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.initConcurrency = n
	})
}

// WithMemoryCache caches result pages in process memory.
func WithMemoryCache(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "memory"
		c.cacheTTL = ttl
	})
}

// WithValkeyCache caches result pages in a Valkey instance.
func WithValkeyCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "valkey"
		c.cacheAddrs = []string{addr}
		c.password = password
		c.cacheTTL = ttl
	})
}

// WithRedisCache caches result pages in a Redis instance.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "redis"
		c.cacheAddrs = []string{addr}
		c.password = password
		c.cacheTTL = ttl
	})
}

// WithKeyPrefix sets the prefix of cache keys (default "dmodel:").
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

func (c *clientConfig) domain() map[string]domainConfig {
	if c.domains == nil {
		c.domains = make(map[string]domainConfig)
	}
	return c.domains
}
