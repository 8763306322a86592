// Package engine keeps one domain per application and routes object and
// query requests to it.
package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/usecase/resolver"
)

// DomainConfig locates the content of one application.
type DomainConfig struct {
	Path   string
	Shards []string
}

// Config configures the engine.
type Config struct {
	DefaultAppID string
	// DataDir holds one bundle directory per application id that has no
	// entry in Domains.
	DataDir         string
	Domains         map[string]DomainConfig
	InitConcurrency int
}

// Service owns the domains of every application. It is safe for concurrent use.
type Service struct {
	cfg      Config
	opener   resolver.Opener
	searcher Searcher
	cache    CacheInvalidator
	logger   *zap.Logger

	mu      sync.RWMutex
	domains map[string]*resolver.Domain
	paths   map[string]DomainConfig
	group   singleflight.Group
}

// New creates an engine. cache can be nil.
func New(
	cfg Config,
	opener resolver.Opener,
	searcher Searcher,
	cache CacheInvalidator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	paths := make(map[string]DomainConfig, len(cfg.Domains))
	for appID, dc := range cfg.Domains {
		paths[appID] = DomainConfig{Path: dc.Path, Shards: slices.Clone(dc.Shards)}
	}
	return &Service{
		cfg:      cfg,
		opener:   opener,
		searcher: searcher,
		cache:    cache,
		logger:   logger,
		domains:  make(map[string]*resolver.Domain),
		paths:    paths,
	}
}

// DefaultAppID returns the application used when a request names none.
func (s *Service) DefaultAppID() string { return s.cfg.DefaultAppID }

// AddDomainForPath registers the bundle directory of appID. It has no effect
// when appID already has a domain or a registration.
func (s *Service) AddDomainForPath(appID, path string) error {
	if appID == "" || path == "" {
		return fmt.Errorf("%w: app id and path are required", domain.ErrOpen)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[appID]; ok {
		return nil
	}
	if _, ok := s.paths[appID]; ok {
		return nil
	}
	s.paths[appID] = DomainConfig{Path: path}
	return nil
}

// Domain returns the initialized domain of appID, or of the default
// application when appID is empty. The first call for an app id opens its
// shards; concurrent callers share that work.
func (s *Service) Domain(ctx context.Context, appID string) (*resolver.Domain, error) {
	if appID == "" {
		appID = s.cfg.DefaultAppID
	}
	if appID == "" {
		return nil, fmt.Errorf("%w: no app id and no default app id", domain.ErrNotFound)
	}

	s.mu.RLock()
	d, ok := s.domains[appID]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	// The shared init outlives any single caller; each caller stops waiting
	// on its own cancellation.
	ch := s.group.DoChan(appID, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), appID)
	})
	select {
	case <-ctx.Done():
		return nil, domain.Cancelled(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*resolver.Domain), nil
	}
}

// bundleDir returns the bundle directory of appID under the data dir. App ids
// come from requests, so only a single local path element is accepted.
func (s *Service) bundleDir(appID string) (string, bool) {
	if appID == "." || !filepath.IsLocal(appID) || strings.ContainsAny(appID, `/\`) {
		return "", false
	}
	return filepath.Join(s.cfg.DataDir, appID), true
}

func (s *Service) load(ctx context.Context, appID string) (*resolver.Domain, error) {
	s.mu.RLock()
	d, ok := s.domains[appID]
	dc, configured := s.paths[appID]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	if !configured {
		if s.cfg.DataDir == "" {
			return nil, fmt.Errorf("%w: no content configured for app %q", domain.ErrNotFound, appID)
		}
		dir, ok := s.bundleDir(appID)
		if !ok {
			return nil, fmt.Errorf("%w: invalid app id %q", domain.ErrNotFound, appID)
		}
		dc = DomainConfig{Path: dir}
	}

	d = resolver.New(resolver.Config{
		AppID:           appID,
		Path:            dc.Path,
		Shards:          dc.Shards,
		InitConcurrency: s.cfg.InitConcurrency,
	}, s.opener, s.logger)
	if err := d.Init(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.domains[appID] = d
	s.mu.Unlock()
	return d, nil
}

// GetObject loads id from the default application.
func (s *Service) GetObject(ctx context.Context, id string) (model.Model, error) {
	return s.GetObjectForApp(ctx, id, "")
}

// GetObjectForApp loads id from the domain of appID.
func (s *Service) GetObjectForApp(ctx context.Context, id, appID string) (model.Model, error) {
	d, err := s.Domain(ctx, appID)
	if err != nil {
		return nil, err
	}
	return d.GetObject(ctx, id)
}

// Query runs q in the domain of q.AppID(), or of the default application.
func (s *Service) Query(ctx context.Context, q query.Query) (results.Results, error) {
	d, err := s.Domain(ctx, q.AppID())
	if err != nil {
		return results.Results{}, err
	}
	return s.searcher.Query(ctx, d, q)
}

// TestLink maps an external link to a content id of the default application.
func (s *Service) TestLink(ctx context.Context, link string) (string, bool, error) {
	return s.TestLinkForApp(ctx, link, "")
}

// TestLinkForApp maps an external link to a content id of appID.
func (s *Service) TestLinkForApp(ctx context.Context, link, appID string) (string, bool, error) {
	d, err := s.Domain(ctx, appID)
	if err != nil {
		return "", false, err
	}
	id, ok := d.TestLink(link)
	return id, ok, nil
}

// StreamData opens the payload of id in the domain of appID.
func (s *Service) StreamData(ctx context.Context, id, appID string) (shard.Blob, error) {
	d, err := s.Domain(ctx, appID)
	if err != nil {
		return shard.Blob{}, err
	}
	return d.StreamData(ctx, id)
}

// ReadURI opens the data or resource uri names in the domain of appID.
func (s *Service) ReadURI(ctx context.Context, uri, appID string) (shard.Blob, bool, error) {
	d, err := s.Domain(ctx, appID)
	if err != nil {
		return shard.Blob{}, false, err
	}
	return d.ReadURI(ctx, uri)
}

// ArchiveMember opens the member name of the archive stored under id.
func (s *Service) ArchiveMember(ctx context.Context, id, name, appID string) (io.ReadCloser, error) {
	d, err := s.Domain(ctx, appID)
	if err != nil {
		return nil, err
	}
	return d.ArchiveMember(ctx, id, name)
}

// Ready opens the domain of the default application, if one is configured.
func (s *Service) Ready(ctx context.Context) error {
	if s.cfg.DefaultAppID == "" {
		return nil
	}
	_, err := s.Domain(ctx, "")
	return err
}

// Loaded returns the app ids of the initialized domains, sorted.
func (s *Service) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.domains))
	for id := range s.domains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes every domain, drops their query indexes and invalidates
// their cached pages. Domains are reopened on next use.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	domains := s.domains
	s.domains = make(map[string]*resolver.Domain)
	s.mu.Unlock()

	var err error
	for appID, d := range domains {
		s.searcher.Evict(d.Shards())
		err = multierr.Append(err, d.Close())
		if s.cache != nil {
			if cerr := s.cache.Invalidate(ctx, appID); cerr != nil {
				s.logger.Warn("result cache invalidation failed", zap.String("app_id", appID), zap.Error(cerr))
			}
		}
	}
	return err
}
