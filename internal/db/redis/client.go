// Package redis stores cached query-result pages in Redis or Valkey.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/dmodel/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	clientName   = "dmodel"
	pollInterval = 100 * time.Millisecond
)

// Config holds connection parameters for the result-page cache server.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store keeps result pages (page ids plus upper bound, encoded by the
// resultcache repository) under plain string keys. Only GET, SET, DEL, SCAN
// and PING are issued, so Redis and Valkey behave the same.
type Store struct {
	client rueidis.Client
}

// NewStore connects to the cache server. Client-side caching is disabled:
// pages are read once per query and invalidated by key prefix.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   clientName,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect result cache %v: %w", cfg.Addrs, err)
	}

	return &Store{client: client}, nil
}

// Ping checks that the cache server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings right away and then every pollInterval until the cache
// answers or timeout expires. The last ping failure is reported on timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lastErr := s.Ping(ctx)
	if lastErr == nil {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("result cache not ready after %s: %w (last: %v)", timeout, ctx.Err(), lastErr)
		case <-ticker.C:
			if lastErr = s.Ping(ctx); lastErr == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
