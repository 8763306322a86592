package resolver

import (
	"context"

	"github.com/kailas-cloud/dmodel/internal/shard"
)

// Opener opens shard files by path.
type Opener interface {
	Open(ctx context.Context, path string) (shard.Shard, error)
}
