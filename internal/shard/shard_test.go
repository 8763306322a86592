package shard

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/filter"
)

type stubShard struct {
	Shard
	src Source
}

func (s *stubShard) Format() string { return "stub" }

func stubFormat(name, magic string, openErr error) Format {
	return Format{
		Name:  name,
		Magic: []byte(magic),
		Open: func(src Source) (Shard, error) {
			if openErr != nil {
				return nil, openErr
			}
			return &stubShard{src: src}, nil
		},
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "shard")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

// --- opener tests ---

func TestOpen_DispatchesByMagic(t *testing.T) {
	o := NewOpener(stubFormat("a", "AAAA", nil), stubFormat("b", "BB", nil))
	p := writeFile(t, "BBrest of file")

	s, err := o.Open(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, ok := s.(*stubShard)
	if !ok {
		t.Fatalf("got %T", s)
	}
	if st.src.Path != p || st.src.Size != int64(len("BBrest of file")) {
		t.Errorf("source = %+v", st.src)
	}
	_ = st.src.Close()
}

func TestOpen_Missing(t *testing.T) {
	o := NewOpener(stubFormat("a", "AAAA", nil))
	_, err := o.Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, domain.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestOpen_Unrecognized(t *testing.T) {
	o := NewOpener(stubFormat("a", "AAAA", nil))
	_, err := o.Open(context.Background(), writeFile(t, "ZZ"))
	if !errors.Is(err, domain.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if !strings.Contains(err.Error(), "unrecognized") {
		t.Errorf("error = %q", err)
	}
}

func TestOpen_FormatErrorWrapped(t *testing.T) {
	o := NewOpener(stubFormat("a", "AAAA", errors.New("truncated header")))
	_, err := o.Open(context.Background(), writeFile(t, "AAAA"))
	if !errors.Is(err, domain.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if !strings.Contains(err.Error(), "truncated header") {
		t.Errorf("error = %q", err)
	}
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpener().Open(ctx, "whatever")
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestOpenSource_Bytes(t *testing.T) {
	o := NewOpener(stubFormat("a", "AAAA", nil))
	s, err := o.OpenSource(BytesSource("mem", []byte("AAAA")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Format() != "stub" {
		t.Errorf("Format() = %q", s.Format())
	}
}

// --- stream tests ---

type trackingCloser struct {
	io.Reader
	closed int
}

func (c *trackingCloser) Close() error {
	c.closed++
	return nil
}

func TestContextReader_ReadsUntilEOF(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader("payload")}
	r := ContextReader(context.Background(), rc)
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}
	_ = r.Close()
	_ = r.Close()
	if rc.closed != 1 {
		t.Errorf("closed %d times, want 1", rc.closed)
	}
}

func TestContextReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &trackingCloser{Reader: strings.NewReader("payload")}
	r := ContextReader(ctx, rc)

	buf := make([]byte, 3)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	_, err := r.Read(buf)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if rc.closed != 1 {
		t.Errorf("stream should be closed after cancellation, closed=%d", rc.closed)
	}
}

// --- document tests ---

func TestNewDocument(t *testing.T) {
	m, err := model.New(model.KindArticle, map[string]any{
		"@id":              "ekn:///C8C307A582FBBFD835CCC3888FECE34711ED8C68",
		"title":            "Flotación",
		"synopsis":         "about boats",
		"tags":             []any{"EknArticleObject", "boats"},
		"contentType":      "text/html",
		"sequenceNumber":   3,
		"lastModifiedDate": "2020-01-02",
	})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	rec := NewRecord("c8c307a582fbbfd835ccc3888fece34711ed8c68", "text/html", "", 10, 4, 0)
	d := NewDocument(rec, m, "body text")

	if d.ID != "ekn:///c8c307a582fbbfd835ccc3888fece34711ed8c68" {
		t.Errorf("ID = %q", d.ID)
	}
	if d.Kind != model.KindArticle || d.Title != "Flotación" || d.Body != "body text" {
		t.Errorf("document = %+v", d)
	}
	if !d.HasSequence || d.SequenceNumber != 3 || d.Ordinal != 4 {
		t.Errorf("sequence/ordinal = %d/%v/%d", d.SequenceNumber, d.HasSequence, d.Ordinal)
	}

	tests := []struct {
		field filter.Field
		value string
		want  bool
	}{
		{filter.Tag, "boats", true},
		{filter.Tag, "cars", false},
		{filter.ID, d.ID, true},
		{filter.ContentType, "text/html", true},
		{filter.ContentType, "image/png", false},
		{"other", "x", false},
	}
	for _, tt := range tests {
		if got := d.Has(tt.field, tt.value); got != tt.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tt.field, tt.value, got, tt.want)
		}
	}
}

func TestRecord_Getters(t *testing.T) {
	r := NewRecord("A/Foo", "text/html", "Foo", 12, 2, 99)
	if r.Key() != "A/Foo" || r.ContentType() != "text/html" || r.Title() != "Foo" ||
		r.Size() != 12 || r.Ordinal() != 2 || r.Ref() != 99 {
		t.Errorf("record = %+v", r)
	}
}
