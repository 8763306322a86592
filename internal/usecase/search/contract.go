package search

import (
	"context"

	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
)

// Domain is the ordered shard set a query runs against.
type Domain interface {
	AppID() string
	Shards() []shard.Shard
	GetObject(ctx context.Context, id string) (model.Model, error)
}

// Cache stores result pages per application. Implementations never fail a
// query: store errors read as misses.
type Cache interface {
	Get(ctx context.Context, appID, queryKey string) (results.Page, bool)
	Put(ctx context.Context, appID, queryKey string, page results.Page)
}
