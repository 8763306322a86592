package zim

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/kailas-cloud/dmodel/internal/shard"
)

// blobRange locates one blob. For uncompressed clusters start and end are
// absolute file offsets; otherwise they are offsets into the decompressed data.
type blobRange struct {
	compression Compression
	// data is the absolute offset of the cluster data, just past the info byte.
	data  int64
	limit int64
	start int64
	end   int64
}

func (b blobRange) size() int64 { return b.end - b.start }

func (b blobRange) compressed() bool {
	return b.compression != 0 && b.compression != CompressionNone
}

func (s *Shard) clusterBounds(cluster uint32) (int64, int64, error) {
	if cluster >= s.h.clusterCount {
		return 0, 0, fmt.Errorf("cluster %d out of range", cluster)
	}
	var buf [16]byte
	n := 8
	if cluster+1 < s.h.clusterCount {
		n = 16
	}
	if _, err := s.src.Reader.ReadAt(buf[:n], int64(s.h.clusterPtrPos)+int64(cluster)*8); err != nil {
		return 0, 0, fmt.Errorf("cluster pointer %d: %w", cluster, err)
	}
	start := int64(le.Uint64(buf[:8]))
	end := s.dataEnd()
	if n == 16 {
		end = int64(le.Uint64(buf[8:16]))
	}
	if start < headerSize || end <= start || end > s.src.Size {
		return 0, 0, fmt.Errorf("cluster %d: bounds [%d,%d) out of range", cluster, start, end)
	}
	return start, end, nil
}

func (s *Shard) dataEnd() int64 {
	if s.h.checksumPos != 0 && int64(s.h.checksumPos) <= s.src.Size {
		return int64(s.h.checksumPos)
	}
	return s.src.Size
}

func (s *Shard) locate(cluster, blob uint32) (blobRange, error) {
	start, end, err := s.clusterBounds(cluster)
	if err != nil {
		return blobRange{}, err
	}
	var info [1]byte
	if _, err := s.src.Reader.ReadAt(info[:], start); err != nil {
		return blobRange{}, fmt.Errorf("cluster %d info: %w", cluster, err)
	}
	r := blobRange{
		compression: Compression(info[0] & compressionMask),
		data:        start + 1,
		limit:       end - start - 1,
	}
	width := int64(4)
	if info[0]&extendedFlag != 0 {
		width = 8
	}

	offsets := make([]byte, width*(int64(blob)+2))
	if r.compressed() {
		dec, err := s.decompressor(r)
		if err != nil {
			return blobRange{}, fmt.Errorf("cluster %d: %w", cluster, err)
		}
		_, err = io.ReadFull(dec, offsets)
		_ = dec.Close()
		if err != nil {
			return blobRange{}, fmt.Errorf("cluster %d offsets: %w", cluster, err)
		}
	} else if _, err := s.src.Reader.ReadAt(offsets, r.data); err != nil {
		return blobRange{}, fmt.Errorf("cluster %d offsets: %w", cluster, err)
	}

	read := func(i int64) int64 {
		if width == 8 {
			return int64(le.Uint64(offsets[i*8:]))
		}
		return int64(le.Uint32(offsets[i*4:]))
	}
	first := read(0)
	if count := first/width - 1; int64(blob) >= count {
		return blobRange{}, fmt.Errorf("cluster %d: blob %d out of range (%d blobs)", cluster, blob, count)
	}
	r.start, r.end = read(int64(blob)), read(int64(blob)+1)
	if r.start > r.end || (!r.compressed() && r.end > r.limit) {
		return blobRange{}, fmt.Errorf("cluster %d: blob %d bounds [%d,%d) invalid", cluster, blob, r.start, r.end)
	}
	if !r.compressed() {
		r.start += r.data
		r.end += r.data
	}
	return r, nil
}

func (s *Shard) decompressor(r blobRange) (io.ReadCloser, error) {
	raw := io.NewSectionReader(s.src.Reader, r.data, r.limit)
	switch r.compression {
	case CompressionXZ:
		x, err := xz.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		return io.NopCloser(x), nil
	case CompressionZstd:
		d, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported cluster compression %d", r.compression)
	}
}

// open streams the blob. Uncompressed blobs are read straight from the file.
func (s *Shard) open(r blobRange) (io.ReadCloser, error) {
	if !r.compressed() {
		return shard.SectionReadCloser(s.src.Reader, r.start, r.size()), nil
	}
	dec, err := s.decompressor(r)
	if err != nil {
		return nil, err
	}
	if _, err := io.CopyN(io.Discard, dec, r.start); err != nil {
		_ = dec.Close()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("seek blob: %w", err)
	}
	return shard.ReadCloser{Reader: io.LimitReader(dec, r.size()), CloseFunc: dec.Close}, nil
}
