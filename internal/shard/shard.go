// Package shard defines the contract every content shard implements and the
// opener that picks an implementation by sniffing the file header.
package shard

import (
	"context"
	"io"

	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
)

// Shard is an open, read-only archive of records. Implementations are safe for
// concurrent use. Lookups of absent keys fail with domain.ErrNotFound.
//
//nolint:interfacebloat // mirrors the record operations a resolver needs
type Shard interface {
	// Path returns the file the shard was opened from.
	Path() string
	// Format names the container format.
	Format() string
	// Supports reports whether ids of the given scheme can live in this shard.
	Supports(s ekn.Scheme) bool
	FindByID(ctx context.Context, key string) (Record, error)
	// StreamData opens the record payload. The stream observes ctx.
	StreamData(ctx context.Context, rec Record) (io.ReadCloser, error)
	DataSize(rec Record) int64
	Model(ctx context.Context, rec Record) (model.Model, error)
	// Resource opens a named resource attached to rec.
	Resource(ctx context.Context, rec Record, name string) (Blob, error)
	// TestLink resolves an external link through the shard's link table.
	TestLink(link string) (string, bool)
	// Documents lists index entries for every searchable record, in record order.
	Documents(ctx context.Context) ([]Document, error)
	Stopwords() []string
	Close() error
}

// Blob is an open payload with its metadata. Callers must close Body.
type Blob struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}
