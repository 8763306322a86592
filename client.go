// Package dmodel reads offline content shards and queries them.
//
// A Client owns one content domain per application id. Domains open lazily
// on first use from the bundle directories or shard files given as options.
package dmodel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/db"
	dbMemory "github.com/kailas-cloud/dmodel/internal/db/memory"
	dbRedis "github.com/kailas-cloud/dmodel/internal/db/redis"
	"github.com/kailas-cloud/dmodel/internal/metrics"
	"github.com/kailas-cloud/dmodel/internal/repository/resultcache"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/shard/pack"
	"github.com/kailas-cloud/dmodel/internal/shard/zim"
	engineuc "github.com/kailas-cloud/dmodel/internal/usecase/engine"
	searchuc "github.com/kailas-cloud/dmodel/internal/usecase/search"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultCacheTTL         = 5 * time.Minute
	defaultKeyPrefix        = "dmodel:"
)

// Client is the dmodel SDK entry point. It is safe for concurrent use.
type Client struct {
	store  db.Store
	engine *engineuc.Service
}

// New creates a Client. No shard is opened until first use.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("dmodel: cache not ready: %w", err)
		}
	}

	return wireClient(store, cfg), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.cacheDriver {
	case "":
		return nil, nil
	case "memory":
		return dbMemory.NewStore(), nil
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("dmodel: create %s store: %w", cfg.cacheDriver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("dmodel: unknown cache driver %q", cfg.cacheDriver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) *Client {
	// Nil interfaces, not typed nil pointers, when there is no cache.
	var (
		queryCache  searchuc.Cache
		invalidator engineuc.CacheInvalidator
	)
	if store != nil {
		ttl := cfg.cacheTTL
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		prefix := cfg.keyPrefix
		if prefix == "" {
			prefix = defaultKeyPrefix
		}
		cache := resultcache.New(store, prefix, ttl, metrics.ResultCacheTotal, cfg.logger)
		queryCache, invalidator = cache, cache
	}

	domains := make(map[string]engineuc.DomainConfig, len(cfg.domains))
	for appID, d := range cfg.domains {
		domains[appID] = engineuc.DomainConfig{Path: d.path, Shards: d.shards}
	}

	engine := engineuc.New(engineuc.Config{
		DefaultAppID:    cfg.defaultAppID,
		DataDir:         cfg.dataDir,
		Domains:         domains,
		InitConcurrency: cfg.initConcurrency,
	}, shard.NewOpener(pack.Format, zim.Format), searchuc.New(queryCache, cfg.logger), invalidator, cfg.logger)

	return &Client{store: store, engine: engine}
}

// Close closes every open shard and the cache connection.
func (c *Client) Close(ctx context.Context) error {
	err := c.engine.Close(ctx)
	if c.store != nil {
		c.store.Close()
	}
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Open opens the domain of appID (or of the default application) now rather
// than on first use. A shard failure returns an *InitError listing every
// failed shard.
func (c *Client) Open(ctx context.Context, appID string) error {
	if _, err := c.engine.Domain(ctx, appID); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}

// AddDomain registers the bundle directory of appID after construction.
func (c *Client) AddDomain(appID, path string) error {
	if err := c.engine.AddDomainForPath(appID, path); err != nil {
		return fmt.Errorf("add domain: %w", err)
	}
	return nil
}

// GetObject loads the object id from the default application.
func (c *Client) GetObject(ctx context.Context, id string) (Object, error) {
	return c.GetObjectForApp(ctx, id, "")
}

// GetObjectForApp loads the object id from the content of appID.
func (c *Client) GetObjectForApp(ctx context.Context, id, appID string) (Object, error) {
	m, err := c.engine.GetObjectForApp(ctx, id, appID)
	if err != nil {
		return Object{}, fmt.Errorf("get object: %w", err)
	}
	return objectFromModel(m), nil
}

// StreamData opens the payload of id.
func (c *Client) StreamData(ctx context.Context, id, appID string) (Blob, error) {
	b, err := c.engine.StreamData(ctx, id, appID)
	if err != nil {
		return Blob{}, fmt.Errorf("stream data: %w", err)
	}
	return b, nil
}

// ReadURI opens the payload or resource uri names. ok is false when there
// is nothing stored under uri.
func (c *Client) ReadURI(ctx context.Context, uri, appID string) (Blob, bool, error) {
	b, ok, err := c.engine.ReadURI(ctx, uri, appID)
	if err != nil {
		return Blob{}, false, fmt.Errorf("read uri: %w", err)
	}
	return b, ok, nil
}

// ArchiveMember opens the member name of the archive stored under id. It
// returns nil, nil when the archive has no such member.
func (c *Client) ArchiveMember(ctx context.Context, id, name, appID string) (io.ReadCloser, error) {
	rc, err := c.engine.ArchiveMember(ctx, id, name, appID)
	if err != nil {
		return nil, fmt.Errorf("archive member: %w", err)
	}
	return rc, nil
}

// TestLink maps an external link to a content id.
func (c *Client) TestLink(ctx context.Context, link, appID string) (string, bool, error) {
	id, ok, err := c.engine.TestLinkForApp(ctx, link, appID)
	if err != nil {
		return "", false, fmt.Errorf("test link: %w", err)
	}
	return id, ok, nil
}

// Query starts a query against the default application.
func (c *Client) Query() *QueryBuilder {
	return &QueryBuilder{client: c}
}
