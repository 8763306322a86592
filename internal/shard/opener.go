package shard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/metrics"
)

// Source is an opened shard file.
type Source struct {
	Path   string
	Reader io.ReaderAt
	Size   int64
	Closer io.Closer
}

// Close releases the underlying file, if any.
func (s Source) Close() error {
	if s.Closer == nil {
		return nil
	}
	return s.Closer.Close()
}

// BytesSource wraps an in-memory shard image.
func BytesSource(path string, data []byte) Source {
	return Source{Path: path, Reader: bytes.NewReader(data), Size: int64(len(data))}
}

// Format describes a container format the opener can recognize.
type Format struct {
	Name  string
	Magic []byte
	Open  func(src Source) (Shard, error)
}

// Opener opens shard files, dispatching on their leading magic bytes.
type Opener struct {
	formats []Format
}

// NewOpener creates an opener recognizing the given formats, tried in order.
func NewOpener(formats ...Format) *Opener {
	return &Opener{formats: formats}
}

// Open opens the shard at path. Missing, unreadable and unrecognized files fail
// with domain.ErrOpen wrapping the cause.
func (o *Opener) Open(ctx context.Context, path string) (Shard, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	f, err := os.Open(path) //nolint:gosec // shard paths come from operator config
	if err != nil {
		metrics.ShardOpenTotal.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrOpen, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		metrics.ShardOpenTotal.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrOpen, path, err)
	}
	s, err := o.OpenSource(Source{Path: path, Reader: f, Size: info.Size(), Closer: f})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// OpenSource opens an already available source. The shard takes ownership of
// src.Closer on success.
func (o *Opener) OpenSource(src Source) (Shard, error) {
	format, err := o.sniff(src)
	if err != nil {
		metrics.ShardOpenTotal.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	s, err := format.Open(src)
	if err != nil {
		metrics.ShardOpenTotal.WithLabelValues(format.Name, "error").Inc()
		if errors.Is(err, domain.ErrOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrOpen, src.Path, err)
	}
	metrics.ShardOpenTotal.WithLabelValues(format.Name, "ok").Inc()
	return s, nil
}

func (o *Opener) sniff(src Source) (Format, error) {
	longest := 0
	for _, f := range o.formats {
		longest = max(longest, len(f.Magic))
	}
	head := make([]byte, longest)
	n, err := src.Reader.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Format{}, fmt.Errorf("%w: read header of %s: %w", domain.ErrOpen, src.Path, err)
	}
	head = head[:n]
	for _, f := range o.formats {
		if len(f.Magic) > 0 && bytes.HasPrefix(head, f.Magic) {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %s: unrecognized shard format", domain.ErrOpen, src.Path)
}
