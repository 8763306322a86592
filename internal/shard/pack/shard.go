package pack

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/textindex"
)

// Compile-time check: Shard implements shard.Shard.
var _ shard.Shard = (*Shard)(nil)

// Format registers pack shards with a shard.Opener.
var Format = shard.Format{
	Name:  FormatName,
	Magic: Magic,
	Open:  func(src shard.Source) (shard.Shard, error) { return Open(src) },
}

// maxMetadataSize bounds how much metadata is read for a single record.
const maxMetadataSize = 16 << 20

// Shard is an open pack container.
type Shard struct {
	src       shard.Source
	count     int
	table     int64
	links     map[string]string
	stopwords []string
}

// Open parses the header, link table and stopwords of a pack container.
func Open(src shard.Source) (*Shard, error) {
	buf := make([]byte, headerSize)
	if _, err := src.Reader.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: %s: read header: %w", domain.ErrOpen, src.Path, err)
	}
	if !bytes.Equal(buf[:len(Magic)], Magic) {
		return nil, fmt.Errorf("%w: %s: not a pack shard", domain.ErrOpen, src.Path)
	}
	if v := le.Uint32(buf[8:]); v != version {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", domain.ErrOpen, src.Path, v)
	}
	h := header{
		count:     le.Uint32(buf[12:]),
		table:     le.Uint64(buf[16:]),
		links:     le.Uint64(buf[24:]),
		stopwords: le.Uint64(buf[32:]),
	}
	end := int64(h.table) + int64(h.count)*entrySize
	if h.table < headerSize || end > src.Size {
		return nil, fmt.Errorf("%w: %s: record table out of bounds", domain.ErrOpen, src.Path)
	}

	s := &Shard{src: src, count: int(h.count), table: int64(h.table), links: make(map[string]string)}
	if h.links != 0 {
		if err := s.loadLinks(int64(h.links)); err != nil {
			return nil, fmt.Errorf("%w: %s: link table: %w", domain.ErrOpen, src.Path, err)
		}
	}
	if e, _, err := s.find(LinkTableID); err == nil && e.data != 0 {
		if err := s.loadLinks(int64(e.data)); err != nil {
			return nil, fmt.Errorf("%w: %s: link table record: %w", domain.ErrOpen, src.Path, err)
		}
	}
	if h.stopwords != 0 {
		data, err := s.readBlob(int64(h.stopwords))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: stopwords: %w", domain.ErrOpen, src.Path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if w := strings.TrimSpace(line); w != "" {
				s.stopwords = append(s.stopwords, w)
			}
		}
	}
	return s, nil
}

func (s *Shard) loadLinks(off int64) error {
	data, err := s.readBlob(off)
	if err != nil {
		return err
	}
	var links map[string]string
	if err := json.Unmarshal(data, &links); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedData, err)
	}
	for k, v := range links {
		if _, ok := s.links[k]; !ok {
			s.links[k] = v
		}
	}
	return nil
}

// Path returns the file the shard was opened from.
func (s *Shard) Path() string { return s.src.Path }

// Format returns "pack".
func (s *Shard) Format() string { return FormatName }

// Supports reports true for hash identifiers only.
func (s *Shard) Supports(scheme ekn.Scheme) bool { return scheme == ekn.Hash }

// Len returns the number of records.
func (s *Shard) Len() int { return s.count }

// Close releases the underlying file.
func (s *Shard) Close() error { return s.src.Close() }

// Stopwords returns the stopword list stored in the shard.
func (s *Shard) Stopwords() []string { return slices.Clone(s.stopwords) }

// TestLink resolves link through the shard's link table.
func (s *Shard) TestLink(link string) (string, bool) {
	id, ok := s.links[link]
	return id, ok
}

// FindByID looks up a 40 hex digit record id.
func (s *Shard) FindByID(ctx context.Context, key string) (shard.Record, error) {
	if err := ctx.Err(); err != nil {
		return shard.Record{}, domain.Cancelled(err)
	}
	e, idx, err := s.find(key)
	if err != nil {
		return shard.Record{}, err
	}
	return s.record(e, idx)
}

func (s *Shard) record(e entry, idx int) (shard.Record, error) {
	var ct string
	var size int64
	if e.data != 0 {
		bh, err := s.readBlobHeader(int64(e.data))
		if err != nil {
			return shard.Record{}, s.corrupt(e.key(), err)
		}
		ct, size = bh.contentType, bh.size
	}
	return shard.NewRecord(e.key(), ct, "", size, idx, uint64(idx)), nil
}

func (s *Shard) find(key string) (entry, int, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != idSize {
		return entry{}, 0, fmt.Errorf("%w: %q", domain.ErrNotFound, key)
	}
	var readErr error
	idx := sort.Search(s.count, func(i int) bool {
		e, err := s.entry(i)
		if err != nil {
			readErr = err
			return true
		}
		return bytes.Compare(e.id[:], raw) >= 0
	})
	if readErr != nil {
		return entry{}, 0, s.corrupt(key, readErr)
	}
	if idx == s.count {
		return entry{}, 0, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	e, err := s.entry(idx)
	if err != nil {
		return entry{}, 0, s.corrupt(key, err)
	}
	if !bytes.Equal(e.id[:], raw) {
		return entry{}, 0, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return e, idx, nil
}

func (s *Shard) entry(i int) (entry, error) {
	buf := make([]byte, entrySize)
	if _, err := s.src.Reader.ReadAt(buf, s.table+int64(i)*entrySize); err != nil {
		return entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	return unmarshalEntry(buf), nil
}

func (s *Shard) entryFor(rec shard.Record) (entry, error) {
	idx := int(rec.Ref())
	if idx < 0 || idx >= s.count {
		return entry{}, fmt.Errorf("%w: record %s does not belong to %s", domain.ErrNotFound, rec.Key(), s.src.Path)
	}
	e, err := s.entry(idx)
	if err != nil {
		return entry{}, s.corrupt(rec.Key(), err)
	}
	if e.key() != rec.Key() {
		return entry{}, fmt.Errorf("%w: record %s does not belong to %s", domain.ErrNotFound, rec.Key(), s.src.Path)
	}
	return e, nil
}

// DataSize returns the uncompressed data size of rec.
func (s *Shard) DataSize(rec shard.Record) int64 { return rec.Size() }

// StreamData opens the record's data blob.
func (s *Shard) StreamData(ctx context.Context, rec shard.Record) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	e, err := s.entryFor(rec)
	if err != nil {
		return nil, err
	}
	if e.data == 0 {
		return nil, fmt.Errorf("%w: %s has no data", domain.ErrNotFound, rec.Key())
	}
	b, err := s.openBlob(int64(e.data))
	if err != nil {
		return nil, s.corrupt(rec.Key(), err)
	}
	return shard.ContextReader(ctx, b.Body), nil
}

// Model decodes the record's metadata.
func (s *Shard) Model(ctx context.Context, rec shard.Record) (model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	e, err := s.entryFor(rec)
	if err != nil {
		return nil, err
	}
	return s.model(e)
}

func (s *Shard) model(e entry) (model.Model, error) {
	if e.metadata == 0 {
		return nil, fmt.Errorf("%w: %s has no metadata", domain.ErrMalformedData, e.key())
	}
	data, err := s.readBlob(int64(e.metadata))
	if err != nil {
		return nil, s.corrupt(e.key(), err)
	}
	m, err := model.FromPayload(data)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", e.key(), err)
	}
	return m, nil
}

// Resource opens the named resource of rec.
func (s *Shard) Resource(ctx context.Context, rec shard.Record, name string) (shard.Blob, error) {
	if err := ctx.Err(); err != nil {
		return shard.Blob{}, domain.Cancelled(err)
	}
	e, err := s.entryFor(rec)
	if err != nil {
		return shard.Blob{}, err
	}
	off := int64(e.resources)
	for i := uint32(0); e.resources != 0 && i < e.resourceCount; i++ {
		var lenBuf [2]byte
		if _, err := s.src.Reader.ReadAt(lenBuf[:], off); err != nil {
			return shard.Blob{}, s.corrupt(rec.Key(), err)
		}
		n := int64(le.Uint16(lenBuf[:]))
		buf := make([]byte, n+8)
		if _, err := s.src.Reader.ReadAt(buf, off+2); err != nil {
			return shard.Blob{}, s.corrupt(rec.Key(), err)
		}
		if string(buf[:n]) == name {
			b, err := s.openBlob(int64(le.Uint64(buf[n:])))
			if err != nil {
				return shard.Blob{}, s.corrupt(rec.Key(), err)
			}
			b.Body = shard.ContextReader(ctx, b.Body)
			return b, nil
		}
		off += 2 + n + 8
	}
	return shard.Blob{}, fmt.Errorf("%w: resource %q of %s", domain.ErrNotFound, name, rec.Key())
}

// Documents decodes every record's metadata for indexing. HTML data
// contributes its visible text as body. The link table record is skipped.
func (s *Shard) Documents(ctx context.Context) ([]shard.Document, error) {
	docs := make([]shard.Document, 0, s.count)
	for i := 0; i < s.count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.Cancelled(err)
		}
		e, err := s.entry(i)
		if err != nil {
			return nil, s.corrupt(fmt.Sprintf("#%d", i), err)
		}
		if e.key() == LinkTableID || e.metadata == 0 {
			continue
		}
		m, err := s.model(e)
		if err != nil {
			return nil, err
		}
		rec, err := s.record(e, i)
		if err != nil {
			return nil, err
		}
		body, err := s.bodyText(e, rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, shard.NewDocument(rec, m, body))
	}
	return docs, nil
}

func (s *Shard) bodyText(e entry, rec shard.Record) (string, error) {
	if e.data == 0 || !strings.HasPrefix(rec.ContentType(), "text/html") {
		return "", nil
	}
	b, err := s.openBlob(int64(e.data))
	if err != nil {
		return "", s.corrupt(rec.Key(), err)
	}
	defer b.Body.Close()
	text, err := textindex.ExtractText(b.Body)
	if err != nil {
		return "", s.corrupt(rec.Key(), err)
	}
	return text, nil
}

func (s *Shard) readBlobHeader(off int64) (blobHeader, error) {
	var fixed [3]byte
	if _, err := s.src.Reader.ReadAt(fixed[:], off); err != nil {
		return blobHeader{}, fmt.Errorf("blob at %d: %w", off, err)
	}
	codec := Codec(fixed[0])
	if !codec.IsValid() {
		return blobHeader{}, fmt.Errorf("blob at %d: unknown codec %d", off, fixed[0])
	}
	ctLen := int64(le.Uint16(fixed[1:]))
	rest := make([]byte, ctLen+16)
	if _, err := s.src.Reader.ReadAt(rest, off+3); err != nil {
		return blobHeader{}, fmt.Errorf("blob at %d: %w", off, err)
	}
	bh := blobHeader{
		codec:       codec,
		contentType: string(rest[:ctLen]),
		size:        int64(le.Uint64(rest[ctLen:])),
		stored:      int64(le.Uint64(rest[ctLen+8:])),
		body:        off + blobFixed + ctLen,
	}
	if bh.size < 0 || bh.stored < 0 || bh.body+bh.stored > s.src.Size {
		return blobHeader{}, fmt.Errorf("blob at %d: out of bounds", off)
	}
	return bh, nil
}

func (s *Shard) openBlob(off int64) (shard.Blob, error) {
	bh, err := s.readBlobHeader(off)
	if err != nil {
		return shard.Blob{}, err
	}
	body, err := bh.codec.decoder(io.NewSectionReader(s.src.Reader, bh.body, bh.stored))
	if err != nil {
		return shard.Blob{}, err
	}
	return shard.Blob{ContentType: bh.contentType, Size: bh.size, Body: body}, nil
}

func (s *Shard) readBlob(off int64) ([]byte, error) {
	b, err := s.openBlob(off)
	if err != nil {
		return nil, err
	}
	defer b.Body.Close()
	if b.Size > maxMetadataSize {
		return nil, fmt.Errorf("blob at %d: %d bytes exceeds limit", off, b.Size)
	}
	data, err := io.ReadAll(io.LimitReader(b.Body, b.Size+1))
	if err != nil {
		return nil, fmt.Errorf("blob at %d: %w", off, err)
	}
	if int64(len(data)) != b.Size {
		return nil, fmt.Errorf("blob at %d: size mismatch", off)
	}
	return data, nil
}

func (s *Shard) corrupt(key string, err error) error {
	if errors.Is(err, domain.ErrCancelled) {
		return err
	}
	return &domain.ShardError{Path: s.src.Path, Err: fmt.Errorf("%w: record %s: %w", domain.ErrMalformedData, key, err)}
}
