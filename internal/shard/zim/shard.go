package zim

import (
	"bufio"
	"context"
	"crypto/md5" //nolint:gosec // ZIM checksums are MD5 by format definition
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/textindex"
)

// Compile-time check: Shard implements shard.Shard.
var _ shard.Shard = (*Shard)(nil)

// Format registers ZIM shards with a shard.Opener.
var Format = shard.Format{
	Name:  FormatName,
	Magic: Magic,
	Open:  func(src shard.Source) (shard.Shard, error) { return Open(src) },
}

// Tags attached to synthesized models.
const (
	ArticleTag = "EknArticleObject"
	MediaTag   = "EknMediaObject"
)

const (
	maxMimeList = 1 << 20
	direntFixed = 16
)

// Shard is an open ZIM archive.
type Shard struct {
	src   shard.Source
	h     header
	mimes []string
}

// Open parses the header and MIME list of a ZIM archive.
func Open(src shard.Source) (*Shard, error) {
	buf := make([]byte, headerSize)
	if _, err := src.Reader.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: %s: read header: %w", domain.ErrOpen, src.Path, err)
	}
	if le.Uint32(buf) != MagicNumber {
		return nil, fmt.Errorf("%w: %s: not a ZIM file", domain.ErrOpen, src.Path)
	}
	h := unmarshalHeader(buf)
	s := &Shard{src: src, h: h}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrOpen, src.Path, err)
	}
	if err := s.loadMimes(); err != nil {
		return nil, fmt.Errorf("%w: %s: mime list: %w", domain.ErrOpen, src.Path, err)
	}
	return s, nil
}

func (s *Shard) validate() error {
	size := uint64(s.src.Size) //nolint:gosec // sizes are non-negative
	n := uint64(s.h.entryCount)
	switch {
	case s.h.major < 5 || s.h.major > 6:
		return fmt.Errorf("unsupported major version %d", s.h.major)
	case s.h.urlPtrPos < headerSize || s.h.urlPtrPos+8*n > size:
		return errors.New("url pointer list out of bounds")
	case s.h.titlePtrPos < headerSize || s.h.titlePtrPos+4*n > size:
		return errors.New("title pointer list out of bounds")
	case s.h.clusterPtrPos < headerSize || s.h.clusterPtrPos+8*uint64(s.h.clusterCount) > size:
		return errors.New("cluster pointer list out of bounds")
	case s.h.mimeListPos < headerSize || s.h.mimeListPos >= size:
		return errors.New("mime list out of bounds")
	case s.h.checksumPos != 0 && s.h.checksumPos+md5.Size > size:
		return errors.New("checksum out of bounds")
	}
	return nil
}

func (s *Shard) loadMimes() error {
	r := bufio.NewReader(io.NewSectionReader(s.src.Reader, int64(s.h.mimeListPos), maxMimeList))
	for {
		mime, err := r.ReadString(0)
		if err != nil {
			return fmt.Errorf("unterminated: %w", err)
		}
		mime = strings.TrimSuffix(mime, "\x00")
		if mime == "" {
			return nil
		}
		s.mimes = append(s.mimes, mime)
	}
}

// Path returns the file the shard was opened from.
func (s *Shard) Path() string { return s.src.Path }

// Format returns "zim".
func (s *Shard) Format() string { return FormatName }

// Supports reports true for ZIM identifiers only.
func (s *Shard) Supports(scheme ekn.Scheme) bool { return scheme == ekn.Zim }

// UUID returns the archive uuid.
func (s *Shard) UUID() uuid.UUID { return s.h.uuid }

// Len returns the number of directory entries.
func (s *Shard) Len() int { return int(s.h.entryCount) }

// Close releases the underlying file.
func (s *Shard) Close() error { return s.src.Close() }

// Stopwords returns nil; ZIM archives carry no stopword list.
func (s *Shard) Stopwords() []string { return nil }

// TestLink always misses; ZIM archives carry no link table.
func (s *Shard) TestLink(string) (string, bool) { return "", false }

// MainPage returns the key of the main page entry, if the archive has one.
func (s *Shard) MainPage(ctx context.Context) (string, bool) {
	if s.h.mainPage == noPage || s.h.mainPage >= s.h.entryCount {
		return "", false
	}
	d, err := s.dirent(s.h.mainPage)
	if err != nil {
		return "", false
	}
	if d.isRedirect() {
		rec, err := s.follow(ctx, d)
		if err != nil {
			return "", false
		}
		return rec.Key(), true
	}
	return d.key(), true
}

// Verify recomputes the MD5 checksum of the archive.
func (s *Shard) Verify(ctx context.Context) error {
	if s.h.checksumPos == 0 {
		return fmt.Errorf("%w: %s has no checksum", domain.ErrMalformedData, s.src.Path)
	}
	want := make([]byte, md5.Size)
	if _, err := s.src.Reader.ReadAt(want, int64(s.h.checksumPos)); err != nil {
		return s.corrupt("checksum", err)
	}
	hash := md5.New() //nolint:gosec // format-defined checksum
	rc := shard.ContextReader(ctx, shard.SectionReadCloser(s.src.Reader, 0, int64(s.h.checksumPos)))
	defer rc.Close()
	if _, err := io.Copy(hash, rc); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return err
		}
		return s.corrupt("checksum", err)
	}
	if got := hash.Sum(nil); string(got) != string(want) {
		return &domain.ShardError{Path: s.src.Path, Err: fmt.Errorf("%w: checksum mismatch", domain.ErrMalformedData)}
	}
	return nil
}

// FindByID looks up "<namespace>/<path>", following redirects.
func (s *Shard) FindByID(ctx context.Context, key string) (shard.Record, error) {
	if err := ctx.Err(); err != nil {
		return shard.Record{}, domain.Cancelled(err)
	}
	ns, path, ok := strings.Cut(key, "/")
	if !ok || len(ns) != 1 || path == "" {
		return shard.Record{}, fmt.Errorf("%w: %q", domain.ErrNotFound, key)
	}
	idx, found, err := s.search(ns[0], path)
	if err != nil {
		return shard.Record{}, err
	}
	if !found {
		return shard.Record{}, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	d, err := s.dirent(idx)
	if err != nil {
		return shard.Record{}, s.corrupt(key, err)
	}
	if d.isRedirect() {
		return s.follow(ctx, d)
	}
	return s.record(d, idx)
}

func (s *Shard) follow(ctx context.Context, d dirent) (shard.Record, error) {
	start := d.key()
	for range maxRedirects {
		if err := ctx.Err(); err != nil {
			return shard.Record{}, domain.Cancelled(err)
		}
		idx := d.redirect
		if idx >= s.h.entryCount {
			return shard.Record{}, s.corrupt(start, fmt.Errorf("redirect to entry %d out of range", idx))
		}
		next, err := s.dirent(idx)
		if err != nil {
			return shard.Record{}, s.corrupt(start, err)
		}
		if !next.isRedirect() {
			return s.record(next, idx)
		}
		d = next
	}
	return shard.Record{}, s.corrupt(start, fmt.Errorf("redirect chain longer than %d", maxRedirects))
}

func (s *Shard) record(d dirent, idx uint32) (shard.Record, error) {
	if !d.hasContent() {
		return shard.Record{}, fmt.Errorf("%w: %s has no content", domain.ErrNotFound, d.key())
	}
	r, err := s.locate(d.cluster, d.blob)
	if err != nil {
		return shard.Record{}, s.corrupt(d.key(), err)
	}
	return shard.NewRecord(d.key(), s.mime(d.mime), d.displayTitle(), r.size(), int(idx), uint64(idx)), nil
}

func (s *Shard) mime(i uint16) string {
	if int(i) < len(s.mimes) {
		return s.mimes[i]
	}
	return ""
}

// search binary-searches the url pointer list, ordered by namespace then url.
func (s *Shard) search(ns byte, path string) (uint32, bool, error) {
	lo, hi := uint32(0), s.h.entryCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		d, err := s.dirent(mid)
		if err != nil {
			return 0, false, s.corrupt(string(ns)+"/"+path, err)
		}
		switch c := compareKey(d.namespace, d.url, ns, path); {
		case c == 0:
			return mid, true, nil
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false, nil
}

func compareKey(ans byte, aurl string, bns byte, burl string) int {
	switch {
	case ans < bns:
		return -1
	case ans > bns:
		return 1
	default:
		return strings.Compare(aurl, burl)
	}
}

func (s *Shard) dirent(idx uint32) (dirent, error) {
	var ptr [8]byte
	if _, err := s.src.Reader.ReadAt(ptr[:], int64(s.h.urlPtrPos)+int64(idx)*8); err != nil {
		return dirent{}, fmt.Errorf("url pointer %d: %w", idx, err)
	}
	off := int64(le.Uint64(ptr[:]))
	if off < headerSize || off >= s.src.Size {
		return dirent{}, fmt.Errorf("entry %d: offset %d out of range", idx, off)
	}
	r := bufio.NewReaderSize(io.NewSectionReader(s.src.Reader, off, s.src.Size-off), 256)
	fixed := make([]byte, 12)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return dirent{}, fmt.Errorf("entry %d: %w", idx, err)
	}
	d := dirent{
		mime:      le.Uint16(fixed[0:]),
		namespace: fixed[3],
		revision:  le.Uint32(fixed[4:]),
	}
	switch {
	case d.mime == mimeRedirect:
		d.redirect = le.Uint32(fixed[8:])
	case d.hasContent():
		var blob [4]byte
		if _, err := io.ReadFull(r, blob[:]); err != nil {
			return dirent{}, fmt.Errorf("entry %d: %w", idx, err)
		}
		d.cluster = le.Uint32(fixed[8:])
		d.blob = le.Uint32(blob[:])
	default:
		// link targets and deleted entries have no pointer fields.
		r = bufio.NewReaderSize(io.NewSectionReader(s.src.Reader, off+8, s.src.Size-off-8), 256)
	}
	url, err := r.ReadString(0)
	if err != nil {
		return dirent{}, fmt.Errorf("entry %d url: %w", idx, err)
	}
	title, err := r.ReadString(0)
	if err != nil {
		return dirent{}, fmt.Errorf("entry %d title: %w", idx, err)
	}
	d.url = strings.TrimSuffix(url, "\x00")
	d.title = strings.TrimSuffix(title, "\x00")
	return d, nil
}

// DataSize returns the blob size of rec.
func (s *Shard) DataSize(rec shard.Record) int64 { return rec.Size() }

// StreamData opens the blob of rec. Uncompressed blobs stream from the file.
func (s *Shard) StreamData(ctx context.Context, rec shard.Record) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	d, err := s.direntFor(rec)
	if err != nil {
		return nil, err
	}
	r, err := s.locate(d.cluster, d.blob)
	if err != nil {
		return nil, s.corrupt(rec.Key(), err)
	}
	rc, err := s.open(r)
	if err != nil {
		return nil, s.corrupt(rec.Key(), err)
	}
	return shard.ContextReader(ctx, rc), nil
}

func (s *Shard) direntFor(rec shard.Record) (dirent, error) {
	idx := rec.Ref()
	if idx >= uint64(s.h.entryCount) {
		return dirent{}, fmt.Errorf("%w: record %s does not belong to %s", domain.ErrNotFound, rec.Key(), s.src.Path)
	}
	d, err := s.dirent(uint32(idx))
	if err != nil {
		return dirent{}, s.corrupt(rec.Key(), err)
	}
	if d.key() != rec.Key() || !d.hasContent() {
		return dirent{}, fmt.Errorf("%w: record %s does not belong to %s", domain.ErrNotFound, rec.Key(), s.src.Path)
	}
	return d, nil
}

// Model synthesizes a model from the entry's namespace, title and MIME type.
func (s *Shard) Model(ctx context.Context, rec shard.Record) (model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(err)
	}
	d, err := s.direntFor(rec)
	if err != nil {
		return nil, err
	}
	return s.model(d)
}

func (s *Shard) model(d dirent) (model.Model, error) {
	kind := model.KindContent
	var tags []any
	switch d.namespace {
	case 'A', 'C':
		kind = model.KindArticle
		tags = []any{ArticleTag}
	case 'I':
		kind = model.KindImage
		tags = []any{MediaTag}
	}
	tree := map[string]any{
		"@id":               ekn.FromZimPath(d.namespace, d.url).String(),
		"title":             d.displayTitle(),
		"contentType":       s.mime(d.mime),
		"isServerTemplated": true,
	}
	if tags != nil {
		tree["tags"] = tags
	}
	m, err := model.New(kind, tree)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", d.key(), err)
	}
	return m, nil
}

// Resource is unsupported: ZIM entries carry no named resources.
func (s *Shard) Resource(_ context.Context, rec shard.Record, name string) (shard.Blob, error) {
	return shard.Blob{}, fmt.Errorf("%w: resource %q of %s", domain.ErrNotFound, name, rec.Key())
}

// Documents lists content entries of the A, C and I namespaces. HTML
// entries contribute their visible text as body.
func (s *Shard) Documents(ctx context.Context) ([]shard.Document, error) {
	var docs []shard.Document
	for idx := uint32(0); idx < s.h.entryCount; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.Cancelled(err)
		}
		d, err := s.dirent(idx)
		if err != nil {
			return nil, s.corrupt(fmt.Sprintf("#%d", idx), err)
		}
		if !d.hasContent() || (d.namespace != 'A' && d.namespace != 'C' && d.namespace != 'I') {
			continue
		}
		rec, err := s.record(d, idx)
		if err != nil {
			return nil, err
		}
		m, err := s.model(d)
		if err != nil {
			return nil, err
		}
		body, err := s.bodyText(ctx, rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, shard.NewDocument(rec, m, body))
	}
	return docs, nil
}

func (s *Shard) bodyText(ctx context.Context, rec shard.Record) (string, error) {
	if !strings.HasPrefix(rec.ContentType(), "text/html") {
		return "", nil
	}
	rc, err := s.StreamData(ctx, rec)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	text, err := textindex.ExtractText(rc)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return "", err
		}
		return "", s.corrupt(rec.Key(), err)
	}
	return text, nil
}

func (s *Shard) corrupt(key string, err error) error {
	if errors.Is(err, domain.ErrCancelled) {
		return err
	}
	return &domain.ShardError{Path: s.src.Path, Err: fmt.Errorf("%w: entry %s: %w", domain.ErrMalformedData, key, err)}
}
