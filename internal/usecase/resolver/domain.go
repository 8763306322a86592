// Package resolver owns the ordered shard set of one application and resolves
// content identifiers against it.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/archive"
	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/metrics"
	"github.com/kailas-cloud/dmodel/internal/parallel"
	"github.com/kailas-cloud/dmodel/internal/shard"
)

// MaxArchiveSize bounds the record size ArchiveMember loads into memory.
const MaxArchiveSize = 256 << 20

// Config selects the shards of a domain. Explicit Shards win over Path.
type Config struct {
	AppID string
	// Path is a bundle directory holding manifest.json and/or subscriptions/*/manifest.json.
	Path            string
	Shards          []string
	InitConcurrency int
}

// Domain is the resolution context of one application.
type Domain struct {
	cfg    Config
	opener Opener
	logger *zap.Logger

	mu            sync.RWMutex
	ready         bool
	shards        []shard.Shard
	subscriptions []string
}

// New creates an uninitialized domain. Call Init before use.
func New(cfg Config, opener Opener, logger *zap.Logger) *Domain {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Shards = slices.Clone(cfg.Shards)
	return &Domain{
		cfg:    cfg,
		opener: opener,
		logger: logger.With(zap.String("app_id", cfg.AppID)),
	}
}

// NewWithShards creates a ready domain over already opened shards.
func NewWithShards(appID string, shards []shard.Shard, logger *zap.Logger) *Domain {
	d := New(Config{AppID: appID}, nil, logger)
	d.shards = slices.Clone(shards)
	d.ready = true
	return d
}

// AppID returns the application the domain belongs to.
func (d *Domain) AppID() string { return d.cfg.AppID }

// Init opens every configured shard in parallel. All failures are collected
// into a *domain.InitError; shards opened before a failure are closed again.
// Calling Init on a ready domain is a no-op.
func (d *Domain) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}

	paths, subscriptions, err := d.sources()
	if err != nil {
		return fmt.Errorf("init domain %q: %w", d.cfg.AppID, err)
	}

	opened := make([]shard.Shard, len(paths))
	items := make([]parallel.Initializer, len(paths))
	for i, path := range paths {
		items[i] = parallel.Func(func(ctx context.Context) error {
			s, err := d.opener.Open(ctx, path)
			if err != nil {
				d.logger.Warn("shard open failed", zap.String("path", path), zap.Error(err))
				return &domain.ShardError{Path: path, Err: err}
			}
			d.logger.Debug("shard opened", zap.String("path", path), zap.String("format", s.Format()))
			opened[i] = s
			return nil
		})
	}

	if err := parallel.Init(ctx, items, d.cfg.InitConcurrency); err != nil {
		for _, s := range opened {
			if s != nil {
				_ = s.Close()
			}
		}
		return domain.NewInitError(err)
	}

	d.shards = opened
	d.subscriptions = subscriptions
	d.ready = true
	d.logger.Info("domain initialized", zap.Int("shards", len(opened)))
	return nil
}

func (d *Domain) sources() (paths, subscriptions []string, err error) {
	if len(d.cfg.Shards) > 0 {
		return slices.Clone(d.cfg.Shards), nil, nil
	}
	if d.cfg.Path == "" {
		return nil, nil, nil
	}
	return bundles(d.cfg.Path)
}

// Shards returns the shards in registration order.
func (d *Domain) Shards() []shard.Shard {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.shards)
}

// Subscriptions returns the ids of the bundles found under the subscriptions directory.
func (d *Domain) Subscriptions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.subscriptions)
}

// GetObject loads the model of id. The first shard holding the record wins.
func (d *Domain) GetObject(ctx context.Context, id string) (model.Model, error) {
	m, err := d.getObject(ctx, id)
	metrics.ObjectsTotal.WithLabelValues(metrics.Status(err, domain.ErrNotFound)).Inc()
	return m, err
}

func (d *Domain) getObject(ctx context.Context, id string) (model.Model, error) {
	s, rec, _, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.Model(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return m, nil
}

// find resolves id against the shards that support its scheme, in order.
func (d *Domain) find(ctx context.Context, id string) (shard.Shard, shard.Record, ekn.ID, error) {
	parsed, err := ekn.Parse(id)
	if err != nil {
		return nil, shard.Record{}, ekn.ID{}, err
	}
	for _, s := range d.Shards() {
		if err := ctx.Err(); err != nil {
			return nil, shard.Record{}, ekn.ID{}, domain.Cancelled(err)
		}
		if !s.Supports(parsed.Scheme()) {
			continue
		}
		rec, err := s.FindByID(ctx, parsed.Key())
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, shard.Record{}, ekn.ID{}, &domain.ShardError{Path: s.Path(), Err: err}
		}
		return s, rec, parsed, nil
	}
	return nil, shard.Record{}, ekn.ID{}, fmt.Errorf("%w: could not find shard record for id %s", domain.ErrNotFound, id)
}

// StreamData opens the payload of id. Callers must close the blob body.
func (d *Domain) StreamData(ctx context.Context, id string) (shard.Blob, error) {
	s, rec, _, err := d.find(ctx, id)
	if err != nil {
		return shard.Blob{}, err
	}
	rc, err := s.StreamData(ctx, rec)
	if err != nil {
		return shard.Blob{}, fmt.Errorf("stream %s: %w", id, err)
	}
	return shard.Blob{ContentType: rec.ContentType(), Size: s.DataSize(rec), Body: rc}, nil
}

// ReadURI opens the data of the record uri names, or its resource when the
// uri has one (ekn:///<hash>/<resource>). A missing record, resource or
// payload reports false with a nil error.
func (d *Domain) ReadURI(ctx context.Context, uri string) (shard.Blob, bool, error) {
	s, rec, parsed, err := d.find(ctx, uri)
	if errors.Is(err, domain.ErrNotFound) {
		return shard.Blob{}, false, nil
	}
	if err != nil {
		return shard.Blob{}, false, err
	}

	if name := parsed.Resource(); name != "" {
		blob, err := s.Resource(ctx, rec, name)
		if errors.Is(err, domain.ErrNotFound) {
			return shard.Blob{}, false, nil
		}
		if err != nil {
			return shard.Blob{}, false, fmt.Errorf("read %s: %w", uri, err)
		}
		return blob, true, nil
	}

	rc, err := s.StreamData(ctx, rec)
	if errors.Is(err, domain.ErrNotFound) {
		return shard.Blob{}, false, nil
	}
	if err != nil {
		return shard.Blob{}, false, fmt.Errorf("read %s: %w", uri, err)
	}
	return shard.Blob{ContentType: rec.ContentType(), Size: s.DataSize(rec), Body: rc}, true, nil
}

// ArchiveMember opens the member name of the archive stored as the payload of
// id. An absent member returns nil, nil.
func (d *Domain) ArchiveMember(ctx context.Context, id, name string) (io.ReadCloser, error) {
	s, rec, _, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if size := s.DataSize(rec); size > MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive %s is %d bytes, limit is %d", domain.ErrMalformedData, id, size, MaxArchiveSize)
	}

	rc, err := s.StreamData(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", id, err)
	}
	data, err := io.ReadAll(io.LimitReader(rc, MaxArchiveSize+1))
	_ = rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", id, err)
	}
	if len(data) > MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive %s exceeds %d bytes", domain.ErrMalformedData, id, MaxArchiveSize)
	}

	a, err := archive.Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMalformedData, id, err)
	}
	member, err := a.Member(name)
	if err != nil {
		return nil, fmt.Errorf("archive member %s of %s: %w", name, id, err)
	}
	if member == nil {
		return nil, nil
	}
	return shard.ContextReader(ctx, member), nil
}

// TestLink maps an external link to a content id through the shards' link
// tables. The first shard with an entry wins.
func (d *Domain) TestLink(link string) (string, bool) {
	for _, s := range d.Shards() {
		if id, ok := s.TestLink(link); ok {
			return id, true
		}
	}
	return "", false
}

// Close closes every shard. The domain can be initialized again afterwards.
func (d *Domain) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, s := range d.shards {
		err = multierr.Append(err, s.Close())
	}
	d.shards = nil
	d.subscriptions = nil
	d.ready = false
	return err
}
