package dmodel

import "github.com/kailas-cloud/dmodel/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrOpen          = domain.ErrOpen
	ErrNotFound      = domain.ErrNotFound
	ErrInvalidID     = domain.ErrInvalidID
	ErrMalformedData = domain.ErrMalformedData
	ErrMissingType   = domain.ErrMissingType
	ErrUnknownType   = domain.ErrUnknownType
	ErrMissingID     = domain.ErrMissingID
	ErrQuery         = domain.ErrQuery
	ErrCancelled     = domain.ErrCancelled
)

// InitError lists every shard that failed to open. Use errors.As() to get it.
type InitError = domain.InitError

// ShardError ties a failure to a shard file.
type ShardError = domain.ShardError
