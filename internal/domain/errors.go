package domain

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrOpen signals a shard file that is missing, unreadable or of an unknown format.
	ErrOpen = errors.New("cannot open shard")
	// ErrNotFound signals an id or path with no record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID signals a malformed ekn identifier.
	ErrInvalidID = errors.New("invalid id")
	// ErrMalformedData signals a payload that is not a structured object or has bad field values.
	ErrMalformedData = errors.New("malformed data")
	// ErrMissingType signals a payload without @type.
	ErrMissingType = errors.New("missing @type")
	// ErrUnknownType signals an unrecognized @type.
	ErrUnknownType = errors.New("unknown @type")
	// ErrMissingID signals a payload without @id.
	ErrMissingID = errors.New("missing @id")
	// ErrQuery signals a bad query or a shard failure during query execution.
	ErrQuery = errors.New("query failed")
	// ErrCancelled signals cooperative cancellation of an in-flight operation.
	ErrCancelled = errors.New("cancelled")
)

// ShardError ties a failure to the shard file that caused it.
type ShardError struct {
	Path string
	Err  error
}

func (e *ShardError) Error() string { return fmt.Sprintf("shard %s: %v", e.Path, e.Err) }

func (e *ShardError) Unwrap() error { return e.Err }

// InitError aggregates every shard that failed during domain initialization.
type InitError struct {
	Failures []*ShardError
}

// NewInitError builds an InitError from an aggregated error. Errors that are not
// ShardErrors are attributed to an unknown path. Returns nil for a nil err.
func NewInitError(err error) error {
	if err == nil {
		return nil
	}
	errs := multierr.Errors(err)
	ie := &InitError{Failures: make([]*ShardError, 0, len(errs))}
	for _, e := range errs {
		var se *ShardError
		if errors.As(e, &se) {
			ie.Failures = append(ie.Failures, se)
			continue
		}
		ie.Failures = append(ie.Failures, &ShardError{Path: "<unknown>", Err: e})
	}
	return ie
}

func (e *InitError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%s: %d shard(s) failed: %s", ErrOpen.Error(), len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every failure plus ErrOpen to errors.Is / errors.As.
func (e *InitError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	out = append(out, ErrOpen)
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// Paths returns the failed shard paths in aggregation order.
func (e *InitError) Paths() []string {
	paths := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		paths[i] = f.Path
	}
	return paths
}

// Cancelled marks err (normally ctx.Err()) as ErrCancelled.
func Cancelled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
