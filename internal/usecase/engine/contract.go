package engine

import (
	"context"

	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/usecase/search"
)

// Searcher runs queries against a domain.
type Searcher interface {
	Query(ctx context.Context, dom search.Domain, q query.Query) (results.Results, error)
	Evict(shards []shard.Shard)
}

// CacheInvalidator drops the cached result pages of an application.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, appID string) error
}
