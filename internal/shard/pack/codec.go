package pack

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how a blob's bytes are stored.
type Codec uint8

// Supported codecs.
const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
	CodecBrotli
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	case CodecBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// IsValid reports whether c is a known codec.
func (c Codec) IsValid() bool { return c <= CodecBrotli }

// decoder wraps r with the decompressor for c.
func (c Codec) decoder(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecZstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return d.IOReadCloser(), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CodecBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown codec %d", uint8(c))
	}
}

// encode compresses data with c.
func (c Codec) encode(w io.Writer, data []byte) error {
	var enc io.WriteCloser
	switch c {
	case CodecNone:
		_, err := w.Write(data)
		return err //nolint:wrapcheck // caller adds context
	case CodecZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		enc = zw
	case CodecLZ4:
		enc = lz4.NewWriter(w)
	case CodecBrotli:
		enc = brotli.NewWriter(w)
	default:
		return fmt.Errorf("unknown codec %d", uint8(c))
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("%s: %w", c, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	return nil
}
