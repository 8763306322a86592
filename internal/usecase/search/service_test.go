package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
)

// --- Mocks ---

type mockShard struct {
	path      string
	docs      []shard.Document
	stopwords []string
	docsErr   error
	docsCalls int
}

func (m *mockShard) Path() string { return m.path }
func (m *mockShard) Format() string { return "mock" }
func (m *mockShard) Supports(ekn.Scheme) bool { return true }
func (m *mockShard) DataSize(shard.Record) int64 { return 0 }
func (m *mockShard) TestLink(string) (string, bool) { return "", false }
func (m *mockShard) Stopwords() []string { return m.stopwords }
func (m *mockShard) Close() error { return nil }

func (m *mockShard) FindByID(context.Context, string) (shard.Record, error) {
	return shard.Record{}, domain.ErrNotFound
}

func (m *mockShard) StreamData(context.Context, shard.Record) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (m *mockShard) Model(context.Context, shard.Record) (model.Model, error) {
	return nil, domain.ErrNotFound
}

func (m *mockShard) Resource(context.Context, shard.Record, string) (shard.Blob, error) {
	return shard.Blob{}, domain.ErrNotFound
}

func (m *mockShard) Documents(context.Context) ([]shard.Document, error) {
	m.docsCalls++
	if m.docsErr != nil {
		return nil, m.docsErr
	}
	return m.docs, nil
}

type mockDomain struct {
	shards []shard.Shard
	models map[string]model.Model
	getErr error
	gets   int
}

func (m *mockDomain) AppID() string { return "com.example.app" }
func (m *mockDomain) Shards() []shard.Shard { return m.shards }

func (m *mockDomain) GetObject(_ context.Context, id string) (model.Model, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if mdl, ok := m.models[id]; ok {
		return mdl, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
}

type mockCache struct {
	mu    sync.Mutex
	pages map[string]results.Page
	gets  int
	puts  int
}

func (m *mockCache) Get(_ context.Context, appID, key string) (results.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	p, ok := m.pages[appID+"|"+key]
	return p, ok
}

func (m *mockCache) Put(_ context.Context, appID, key string, page results.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages == nil {
		m.pages = make(map[string]results.Page)
	}
	m.puts++
	m.pages[appID+"|"+key] = page
}

// --- Fixtures ---

type docFixture struct {
	id, title, synopsis string
	kind                model.Kind
	tags                []string
	seq                 int
	date                string
	contentType         string
}

func hashID(n int) string { return fmt.Sprintf("ekn:///%040x", n) }

// newFixture builds shards of documents plus the domain resolving them.
func newFixture(t *testing.T, shards ...[]docFixture) (*mockDomain, []*mockShard) {
	t.Helper()
	dom := &mockDomain{models: make(map[string]model.Model)}
	var mocks []*mockShard
	for si, specs := range shards {
		ms := &mockShard{path: fmt.Sprintf("shard-%d", si)}
		for i, d := range specs {
			kind := d.kind
			if kind == "" {
				kind = model.KindArticle
			}
			tree := map[string]any{"@id": d.id, "title": d.title, "synopsis": d.synopsis}
			if d.tags != nil {
				tags := make([]any, len(d.tags))
				for j, tag := range d.tags {
					tags[j] = tag
				}
				tree["tags"] = tags
			}
			if d.seq != 0 {
				tree["sequenceNumber"] = float64(d.seq)
			}
			if d.date != "" {
				tree["lastModifiedDate"] = d.date
			}
			if d.contentType != "" {
				tree["contentType"] = d.contentType
			}
			m, err := model.New(kind, tree)
			if err != nil {
				t.Fatalf("model.New(%s): %v", d.id, err)
			}
			if _, ok := dom.models[d.id]; !ok {
				dom.models[d.id] = m
			}
			rec := shard.NewRecord(d.id, d.contentType, d.title, 0, i, uint64(i))
			ms.docs = append(ms.docs, shard.NewDocument(rec, m, ""))
		}
		dom.shards = append(dom.shards, ms)
		mocks = append(mocks, ms)
	}
	return dom, mocks
}

func mustQuery(t *testing.T, o query.Options) query.Query {
	t.Helper()
	q, err := query.New(o)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func titles(r results.Results) []string {
	var out []string
	for _, m := range r.Models() {
		out = append(out, m.Base().Title())
	}
	return out
}

var library = []docFixture{
	{id: hashID(1), title: "Flotación sucia", synopsis: "Minería de cobre", tags: []string{"EknArticleObject", "mining"}, seq: 3, date: "2020-01-01", contentType: "application/pdf"},
	{id: hashID(2), title: "Copper smelting", synopsis: "How flotacion concentrates are smelted", tags: []string{"EknArticleObject", "mining"}, seq: 1, date: "2021-06-01", contentType: "text/html"},
	{id: hashID(3), title: "Andes photo", kind: model.KindImage, tags: []string{"EknMediaObject"}, seq: 2, contentType: "image/jpeg"},
	{id: hashID(4), title: "about the cat", synopsis: "A cat", tags: []string{"EknArticleObject", "pets"}, date: "2019-03-01", contentType: "text/html"},
}

// --- Tests ---

func TestQuery_ZeroShards(t *testing.T) {
	svc := New(nil, nil)
	r, err := svc.Query(context.Background(), &mockDomain{}, mustQuery(t, query.Options{SearchTerms: "x", Match: match.OnlyTitle}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 || r.UpperBound() != 0 {
		t.Errorf("len=%d upper=%d", r.Len(), r.UpperBound())
	}
}

func TestQuery_TitleSynopsisFoldsDiacritics(t *testing.T) {
	dom, _ := newFixture(t, library)
	svc := New(nil, nil)

	r, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{
		SearchTerms: "flotacion", Match: match.OnlyTitle,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"Flotación sucia"}) {
		t.Errorf("title only = %v", got)
	}

	r, err = svc.Query(context.Background(), dom, mustQuery(t, query.Options{
		SearchTerms: "flotacion", Match: match.TitleSynopsis,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"Flotación sucia", "Copper smelting"}) {
		t.Errorf("title+synopsis = %v, want title hit first", got)
	}
	if r.UpperBound() != 2 {
		t.Errorf("UpperBound() = %d", r.UpperBound())
	}
}

func TestQuery_IncrementalPrefix(t *testing.T) {
	dom, _ := newFixture(t, library)
	svc := New(nil, nil)
	ctx := context.Background()

	r, err := svc.Query(ctx, dom, mustQuery(t, query.Options{SearchTerms: "copp", Match: match.OnlyTitle}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"Copper smelting"}) {
		t.Errorf("incremental = %v", got)
	}

	r, err = svc.Query(ctx, dom, mustQuery(t, query.Options{SearchTerms: "copp", Match: match.OnlyTitle, Mode: match.Delimited}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("delimited = %v, want no partial-word hits", titles(r))
	}
}

func TestQuery_FiltersOnly(t *testing.T) {
	dom, _ := newFixture(t, library)
	svc := New(nil, nil)

	tests := []struct {
		name string
		opts query.Options
		want []string
	}{
		{"everything", query.Options{}, []string{"Flotación sucia", "Copper smelting", "Andes photo", "about the cat"}},
		{"tags all", query.Options{TagsMatchAll: []string{"EknArticleObject", "mining"}}, []string{"Flotación sucia", "Copper smelting"}},
		{"tags any", query.Options{TagsMatchAny: []string{"pets", "EknMediaObject"}}, []string{"Andes photo", "about the cat"}},
		{"excluded tags", query.Options{ExcludedTags: []string{"mining"}}, []string{"Andes photo", "about the cat"}},
		{"kind image", query.Options{Kind: model.KindImage}, []string{"Andes photo"}},
		{"kind media includes images", query.Options{Kind: model.KindMedia}, []string{"Andes photo"}},
		{"kind content includes all", query.Options{Kind: model.KindContent}, []string{"Flotación sucia", "Copper smelting", "Andes photo", "about the cat"}},
		{"ids", query.Options{IDs: []string{hashID(4), hashID(2)}}, []string{"Copper smelting", "about the cat"}},
		{"excluded ids", query.Options{ExcludedIDs: []string{hashID(1), hashID(2), hashID(3)}}, []string{"about the cat"}},
		{"content type", query.Options{ContentType: "text/html"}, []string{"Copper smelting", "about the cat"}},
		{"excluded content type", query.Options{ExcludedContentType: "text/html"}, []string{"Flotación sucia", "Andes photo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := svc.Query(context.Background(), dom, mustQuery(t, tt.opts))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := titles(r); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if r.UpperBound() != len(tt.want) {
				t.Errorf("UpperBound() = %d", r.UpperBound())
			}
		})
	}
}

func TestQuery_Sorting(t *testing.T) {
	dom, _ := newFixture(t, library)
	svc := New(nil, nil)

	tests := []struct {
		sort  ordering.Sort
		order ordering.Order
		want  []string
	}{
		{ordering.SequenceNumber, ordering.Ascending, []string{"Copper smelting", "Andes photo", "Flotación sucia", "about the cat"}},
		{ordering.SequenceNumber, ordering.Descending, []string{"Flotación sucia", "Andes photo", "Copper smelting", "about the cat"}},
		{ordering.Date, ordering.Ascending, []string{"about the cat", "Flotación sucia", "Copper smelting", "Andes photo"}},
		{ordering.Date, ordering.Descending, []string{"Copper smelting", "Flotación sucia", "about the cat", "Andes photo"}},
		{ordering.Alphabetical, ordering.Ascending, []string{"about the cat", "Andes photo", "Copper smelting", "Flotación sucia"}},
		{ordering.Alphabetical, ordering.Descending, []string{"Flotación sucia", "Copper smelting", "Andes photo", "about the cat"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort)+"/"+string(tt.order), func(t *testing.T) {
			r, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{Sort: tt.sort, Order: tt.order}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := titles(r); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuery_TiesByShardThenRecordOrder(t *testing.T) {
	dom, _ := newFixture(t,
		[]docFixture{{id: hashID(10), title: "beta"}, {id: hashID(11), title: "alpha"}},
		[]docFixture{{id: hashID(12), title: "gamma"}},
	)
	r, err := New(nil, nil).Query(context.Background(), dom, mustQuery(t, query.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"beta", "alpha", "gamma"}) {
		t.Errorf("got %v", got)
	}
}

func TestQuery_DuplicateIDFirstShardWins(t *testing.T) {
	dom, _ := newFixture(t,
		[]docFixture{{id: hashID(20), title: "first"}},
		[]docFixture{{id: hashID(20), title: "first"}, {id: hashID(21), title: "other"}},
	)
	r, err := New(nil, nil).Query(context.Background(), dom, mustQuery(t, query.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.UpperBound() != 2 {
		t.Errorf("UpperBound() = %d, duplicates must count once", r.UpperBound())
	}
}

func TestQuery_ShadowedCopyNeverMatches(t *testing.T) {
	dom, _ := newFixture(t,
		[]docFixture{{id: hashID(20), title: "first", tags: []string{"a"}}},
		[]docFixture{{id: hashID(20), title: "second", tags: []string{"b"}}, {id: hashID(21), title: "other second", tags: []string{"b"}}},
	)
	svc := New(nil, nil)

	tests := []struct {
		name string
		opts query.Options
		want []string
	}{
		{"tags of shadowed copy", query.Options{TagsMatchAll: []string{"b"}}, []string{"other second"}},
		{"terms of shadowed copy", query.Options{SearchTerms: "second", Match: match.OnlyTitle}, []string{"other second"}},
		{"first copy", query.Options{TagsMatchAll: []string{"a"}}, []string{"first"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := svc.Query(context.Background(), dom, mustQuery(t, tt.opts))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := titles(r); !slices.Equal(got, tt.want) {
				t.Errorf("titles = %v, want %v", got, tt.want)
			}
			if r.UpperBound() != len(tt.want) {
				t.Errorf("UpperBound() = %d, want %d", r.UpperBound(), len(tt.want))
			}
		})
	}
}

func TestQuery_PaginationCoversEveryRecordOnce(t *testing.T) {
	var specs []docFixture
	for i := range 7 {
		specs = append(specs, docFixture{id: hashID(100 + i), title: fmt.Sprintf("doc %d", i)})
	}
	dom, _ := newFixture(t, specs[:4], specs[4:])
	svc := New(nil, nil)
	ctx := context.Background()

	full, err := svc.Query(ctx, dom, mustQuery(t, query.Options{Limit: 100}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var paged []string
	q := mustQuery(t, query.Options{Limit: 3})
	for page := 0; ; page++ {
		r, err := svc.Query(ctx, dom, q)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if r.UpperBound() != 7 {
			t.Errorf("page %d: UpperBound() = %d", page, r.UpperBound())
		}
		paged = append(paged, titles(r)...)
		if !r.HasMore() {
			break
		}
		q = r.Next()
	}
	if !slices.Equal(paged, titles(full)) {
		t.Errorf("paged = %v\nfull  = %v", paged, titles(full))
	}
}

func TestQuery_OffsetPastEnd(t *testing.T) {
	dom, _ := newFixture(t, library)
	r, err := New(nil, nil).Query(context.Background(), dom, mustQuery(t, query.Options{Offset: 50}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 || r.UpperBound() != 4 {
		t.Errorf("len=%d upper=%d", r.Len(), r.UpperBound())
	}
}

func TestQuery_Idempotent(t *testing.T) {
	dom, _ := newFixture(t, library)
	svc := New(nil, nil)
	q := mustQuery(t, query.Options{TagsMatchAll: []string{"mining"}, Limit: 1})

	a, err := svc.Query(context.Background(), dom, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := svc.Query(context.Background(), dom, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(a.IDs(), b.IDs()) || a.UpperBound() != b.UpperBound() {
		t.Errorf("runs differ: %v/%d vs %v/%d", a.IDs(), a.UpperBound(), b.IDs(), b.UpperBound())
	}
}

func TestQuery_StopwordsRemoved(t *testing.T) {
	dom, shards := newFixture(t, library)
	shards[0].stopwords = []string{"the", "about"}
	svc := New(nil, nil)

	fixed := svc.FixQuery(dom, mustQuery(t, query.Options{SearchTerms: "the cat", Match: match.OnlyTitle}))
	if fixed.Terms() != "cat" {
		t.Errorf("Terms() = %q", fixed.Terms())
	}

	r, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{
		SearchTerms: "the cat", Match: match.OnlyTitle, Mode: match.Delimited,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"about the cat"}) {
		t.Errorf("got %v", got)
	}

	onlyStop := svc.FixQuery(dom, mustQuery(t, query.Options{SearchTerms: "the", Match: match.OnlyTitle}))
	if onlyStop.Terms() != "the" {
		t.Errorf("all-stopword terms must be kept, got %q", onlyStop.Terms())
	}
}

func TestQuery_ShardFailureFailsWholeQuery(t *testing.T) {
	dom, shards := newFixture(t, library, []docFixture{{id: hashID(9), title: "other"}})
	shards[1].docsErr = fmt.Errorf("%w: bad table", domain.ErrMalformedData)

	_, err := New(nil, nil).Query(context.Background(), dom, mustQuery(t, query.Options{}))
	if !errors.Is(err, domain.ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	var se *domain.ShardError
	if !errors.As(err, &se) || se.Path != "shard-1" {
		t.Errorf("expected ShardError for shard-1, got %v", err)
	}
}

func TestQuery_ResolveFailureFailsWholeQuery(t *testing.T) {
	dom, _ := newFixture(t, library)
	dom.getErr = errors.New("disk gone")
	_, err := New(nil, nil).Query(context.Background(), dom, mustQuery(t, query.Options{}))
	if !errors.Is(err, domain.ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
}

func TestQuery_ZeroValueQuery(t *testing.T) {
	dom, _ := newFixture(t, library)
	r, err := New(nil, nil).Query(context.Background(), dom, query.Query{})
	if err != nil {
		t.Fatalf("zero query should normalize: %v", err)
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestQuery_Cancelled(t *testing.T) {
	dom, _ := newFixture(t, library)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Query(ctx, dom, mustQuery(t, query.Options{}))
	if !errors.Is(err, domain.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestQuery_IndexBuiltOnce(t *testing.T) {
	dom, shards := newFixture(t, library)
	svc := New(nil, nil)
	for range 3 {
		if _, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if shards[0].docsCalls != 1 {
		t.Errorf("Documents called %d times", shards[0].docsCalls)
	}

	svc.Evict(dom.Shards())
	if _, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shards[0].docsCalls != 2 {
		t.Errorf("Documents called %d times after Evict", shards[0].docsCalls)
	}
}

func TestQuery_FailedIndexBuildIsRetried(t *testing.T) {
	dom, shards := newFixture(t, library)
	svc := New(nil, nil)
	shards[0].docsErr = errors.New("transient")
	if _, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{})); err == nil {
		t.Fatal("expected error")
	}
	shards[0].docsErr = nil
	r, err := svc.Query(context.Background(), dom, mustQuery(t, query.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestQuery_Cache(t *testing.T) {
	dom, shards := newFixture(t, library)
	cache := &mockCache{}
	svc := New(cache, nil)
	q := mustQuery(t, query.Options{TagsMatchAll: []string{"mining"}})

	first, err := svc.Query(context.Background(), dom, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d", cache.puts)
	}

	svc.Evict(dom.Shards())
	second, err := svc.Query(context.Background(), dom, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shards[0].docsCalls != 1 {
		t.Errorf("a cache hit must not rebuild the index, Documents called %d times", shards[0].docsCalls)
	}
	if !slices.Equal(first.IDs(), second.IDs()) || second.UpperBound() != first.UpperBound() {
		t.Errorf("cached page differs: %v vs %v", first.IDs(), second.IDs())
	}
	if second.Next().Offset() != q.Limit() {
		t.Errorf("Next().Offset() = %d", second.Next().Offset())
	}
}

func TestQuery_StaleCacheFallsBack(t *testing.T) {
	dom, _ := newFixture(t, library)
	q := mustQuery(t, query.Options{TagsMatchAll: []string{"pets"}})
	n, _ := q.Normalized()
	cache := &mockCache{pages: map[string]results.Page{
		dom.AppID() + "|" + n.Key(): {IDs: []string{hashID(999)}, UpperBound: 1},
	}}

	r, err := New(cache, nil).Query(context.Background(), dom, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := titles(r); !slices.Equal(got, []string{"about the cat"}) {
		t.Errorf("got %v", got)
	}
}
