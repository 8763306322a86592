package shard

import (
	"context"
	"io"
	"sync"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// ContextReader ties rc to ctx: once ctx is done every Read fails with
// domain.ErrCancelled and rc is closed.
func ContextReader(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	return &ctxReader{ctx: ctx, rc: rc}
}

type ctxReader struct {
	ctx  context.Context
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		_ = r.Close()
		return 0, domain.Cancelled(err)
	}
	return r.rc.Read(p) //nolint:wrapcheck // io.EOF must pass through unwrapped
}

func (r *ctxReader) Close() error {
	r.once.Do(func() { r.err = r.rc.Close() })
	return r.err
}

// SectionReadCloser exposes a byte range of r as a stream with a no-op Close.
func SectionReadCloser(r io.ReaderAt, off, n int64) io.ReadCloser {
	return io.NopCloser(io.NewSectionReader(r, off, n))
}

// ReadCloser pairs a reader with a close function.
type ReadCloser struct {
	io.Reader
	CloseFunc func() error
}

// Close calls CloseFunc once it is set.
func (r ReadCloser) Close() error {
	if r.CloseFunc == nil {
		return nil
	}
	return r.CloseFunc()
}
