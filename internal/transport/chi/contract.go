package chi

import (
	"context"
	"io"

	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
	healthuc "github.com/kailas-cloud/dmodel/internal/usecase/health"
)

// Engine serves content and queries per application. An empty app id
// selects the default application.
type Engine interface {
	GetObjectForApp(ctx context.Context, id, appID string) (model.Model, error)
	StreamData(ctx context.Context, id, appID string) (shard.Blob, error)
	ArchiveMember(ctx context.Context, id, name, appID string) (io.ReadCloser, error)
	ReadURI(ctx context.Context, uri, appID string) (shard.Blob, bool, error)
	TestLinkForApp(ctx context.Context, link, appID string) (string, bool, error)
	Query(ctx context.Context, q query.Query) (results.Results, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
