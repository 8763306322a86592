package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/shard"
	healthuc "github.com/kailas-cloud/dmodel/internal/usecase/health"
)

const testID = "ekn:///c8c307a582fbbfd835ccc3888fece34711ed8c68"

// --- Mocks ---

type mockEngine struct {
	getObjectFn func(ctx context.Context, id, appID string) (model.Model, error)
	streamFn    func(ctx context.Context, id, appID string) (shard.Blob, error)
	memberFn    func(ctx context.Context, id, name, appID string) (io.ReadCloser, error)
	readURIFn   func(ctx context.Context, uri, appID string) (shard.Blob, bool, error)
	testLinkFn  func(ctx context.Context, link, appID string) (string, bool, error)
	queryFn     func(ctx context.Context, q query.Query) (results.Results, error)
}

func (m *mockEngine) GetObjectForApp(ctx context.Context, id, appID string) (model.Model, error) {
	return m.getObjectFn(ctx, id, appID)
}

func (m *mockEngine) StreamData(ctx context.Context, id, appID string) (shard.Blob, error) {
	return m.streamFn(ctx, id, appID)
}

func (m *mockEngine) ArchiveMember(ctx context.Context, id, name, appID string) (io.ReadCloser, error) {
	return m.memberFn(ctx, id, name, appID)
}

func (m *mockEngine) ReadURI(ctx context.Context, uri, appID string) (shard.Blob, bool, error) {
	return m.readURIFn(ctx, uri, appID)
}

func (m *mockEngine) TestLinkForApp(ctx context.Context, link, appID string) (string, bool, error) {
	return m.testLinkFn(ctx, link, appID)
}

func (m *mockEngine) Query(ctx context.Context, q query.Query) (results.Results, error) {
	return m.queryFn(ctx, q)
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Helpers ---

func article(t *testing.T, id, title string) model.Model {
	t.Helper()
	m, err := model.New(model.KindArticle, map[string]any{"@id": id, "title": title})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	return m
}

func blob(contentType, body string) shard.Blob {
	return shard.Blob{ContentType: contentType, Size: int64(len(body)), Body: io.NopCloser(strings.NewReader(body))}
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func objectsPath(id string) string {
	return "/v1/objects?id=" + url.QueryEscape(id)
}

// --- Tests ---

func TestGetObject_OK(t *testing.T) {
	var gotAppID string
	s := NewServer(&mockEngine{
		getObjectFn: func(_ context.Context, id, appID string) (model.Model, error) {
			gotAppID = appID
			return article(t, id, "Flotación sucia"), nil
		},
	}, nil, nil)

	rr := do(t, s, objectsPath(testID)+"&app_id=com.example.app")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	var tree map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&tree); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tree["@id"] != testID || tree["title"] != "Flotación sucia" {
		t.Errorf("tree = %v", tree)
	}
	if tree["@type"] != "ekn://_vocab/ArticleObject" {
		t.Errorf("@type = %v", tree["@type"])
	}
	if gotAppID != "com.example.app" {
		t.Errorf("app id = %q", gotAppID)
	}
}

func TestGetObject_MissingID(t *testing.T) {
	s := NewServer(&mockEngine{}, nil, nil)
	rr := do(t, s, "/v1/objects")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != ErrorCodeBadRequest {
		t.Errorf("code = %q", got.Code)
	}
}

func TestGetObject_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		wantMsg    string
	}{
		{"not found", fmt.Errorf("%w: could not find shard record for id", domain.ErrNotFound),
			http.StatusNotFound, ErrorCodeNotFound, "not found"},
		{"invalid id", fmt.Errorf("%w: bad hash", domain.ErrInvalidID),
			http.StatusBadRequest, ErrorCodeInvalidID, "invalid id"},
		{"malformed", fmt.Errorf("%w: not an object", domain.ErrMalformedData),
			http.StatusUnprocessableEntity, ErrorCodeMalformedData, "malformed data"},
		{"unknown type", fmt.Errorf("%w: ekn://_vocab/Poster", domain.ErrUnknownType),
			http.StatusUnprocessableEntity, ErrorCodeMalformedData, "unknown @type"},
		{"init failure", domain.NewInitError(&domain.ShardError{Path: "/srv/a.pack", Err: domain.ErrOpen}),
			http.StatusServiceUnavailable, ErrorCodeContentUnavailable, "cannot open shard"},
		{"shard failure", &domain.ShardError{Path: "/srv/a.pack", Err: errors.New("short read")},
			http.StatusBadGateway, ErrorCodeShardFailure, "shard failure"},
		{"cancelled", domain.Cancelled(context.Canceled),
			http.StatusServiceUnavailable, ErrorCodeCancelled, "cancelled"},
		{"internal", errors.New("disk on fire /srv/secret"),
			http.StatusInternalServerError, ErrorCodeInternalError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&mockEngine{
				getObjectFn: func(context.Context, string, string) (model.Model, error) { return nil, tt.err },
			}, nil, nil)
			rr := do(t, s, objectsPath(testID))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			got := decodeError(t, rr)
			if got.Code != tt.wantCode || got.Message != tt.wantMsg {
				t.Errorf("error = %+v, want %s/%q", got, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestGetObjectData(t *testing.T) {
	s := NewServer(&mockEngine{
		streamFn: func(_ context.Context, id, _ string) (shard.Blob, error) {
			if id != testID {
				return shard.Blob{}, domain.ErrNotFound
			}
			return blob("text/html", "<p>hello</p>"), nil
		},
	}, nil, nil)

	rr := do(t, s, "/v1/objects/data?id="+url.QueryEscape(testID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cl := rr.Header().Get("Content-Length"); cl != "12" {
		t.Errorf("Content-Length = %q", cl)
	}
	if rr.Body.String() != "<p>hello</p>" {
		t.Errorf("body = %q", rr.Body)
	}
}

func TestGetArchiveMember(t *testing.T) {
	s := NewServer(&mockEngine{
		memberFn: func(_ context.Context, _, name, _ string) (io.ReadCloser, error) {
			switch name {
			case "doc/page.pdf":
				return io.NopCloser(strings.NewReader("%PDF")), nil
			case "broken":
				return nil, fmt.Errorf("%w: not an archive", domain.ErrMalformedData)
			}
			return nil, nil
		},
	}, nil, nil)
	base := "/v1/objects/member?id=" + url.QueryEscape(testID) + "&name="

	rr := do(t, s, base+"doc/page.pdf")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rr.Body.String() != "%PDF" {
		t.Errorf("body = %q", rr.Body)
	}

	if rr := do(t, s, base+"absent.html"); rr.Code != http.StatusNotFound {
		t.Errorf("absent member: status = %d", rr.Code)
	}
	if rr := do(t, s, base+"broken"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("broken archive: status = %d", rr.Code)
	}
	if rr := do(t, s, "/v1/objects/member?id="+url.QueryEscape(testID)); rr.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d", rr.Code)
	}
}

func TestReadURI(t *testing.T) {
	s := NewServer(&mockEngine{
		readURIFn: func(_ context.Context, uri, _ string) (shard.Blob, bool, error) {
			if uri == testID+"/thumb" {
				return blob("image/png", "png"), true, nil
			}
			return shard.Blob{}, false, nil
		},
	}, nil, nil)

	rr := do(t, s, "/v1/uri?uri="+url.QueryEscape(testID+"/thumb"))
	if rr.Code != http.StatusOK || rr.Body.String() != "png" {
		t.Fatalf("status = %d body %q", rr.Code, rr.Body)
	}
	if rr := do(t, s, "/v1/uri?uri="+url.QueryEscape(testID)); rr.Code != http.StatusNotFound {
		t.Errorf("absent: status = %d", rr.Code)
	}
}

func TestTestLink(t *testing.T) {
	s := NewServer(&mockEngine{
		testLinkFn: func(_ context.Context, link, _ string) (string, bool, error) {
			if link == "https://example.com/hello" {
				return testID, true, nil
			}
			return "", false, nil
		},
	}, nil, nil)

	rr := do(t, s, "/v1/links?link="+url.QueryEscape("https://example.com/hello"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp LinkResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != testID {
		t.Errorf("id = %q", resp.ID)
	}
	if rr := do(t, s, "/v1/links?link=nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown link: status = %d", rr.Code)
	}
}

func TestQuery_BindsParameters(t *testing.T) {
	var got query.Query
	s := NewServer(&mockEngine{
		queryFn: func(_ context.Context, q query.Query) (results.Results, error) {
			got = q
			return results.New(nil, 0, q.Next()), nil
		},
	}, nil, nil)

	v := url.Values{}
	v.Set("app_id", "com.example.app")
	v.Set("terms", "flotacion")
	v.Set("match", "title_synopsis")
	v.Set("mode", "delimited")
	v.Set("sort", "date")
	v.Set("order", "desc")
	v.Set("type", "article")
	v.Add("tags_all", "mining")
	v.Add("tags_all", "chile")
	v.Add("tags_any", "EknArticleObject")
	v.Add("tags_excluded", "draft")
	v.Add("ids", testID)
	v.Set("content_type", "application/pdf")
	v.Set("limit", "5")
	v.Set("offset", "10")

	rr := do(t, s, "/v1/query?"+v.Encode())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body)
	}
	if got.AppID() != "com.example.app" || got.SearchTerms() != "flotacion" {
		t.Errorf("app/terms = %q/%q", got.AppID(), got.SearchTerms())
	}
	if got.Match() != match.TitleSynopsis || got.Mode() != match.Delimited {
		t.Errorf("match/mode = %q/%q", got.Match(), got.Mode())
	}
	if got.Sort() != ordering.Date || got.Order() != ordering.Descending {
		t.Errorf("sort/order = %q/%q", got.Sort(), got.Order())
	}
	if got.Kind() != model.KindArticle {
		t.Errorf("kind = %q", got.Kind())
	}
	if o := got.Options(); !slices.Equal(o.TagsMatchAll, []string{"mining", "chile"}) || o.ContentType != "application/pdf" {
		t.Errorf("options = %+v", o)
	}
	if got.Limit() != 5 || got.Offset() != 10 {
		t.Errorf("limit/offset = %d/%d", got.Limit(), got.Offset())
	}
	if !slices.Equal(got.IDs(), []string{testID}) {
		t.Errorf("ids = %v", got.IDs())
	}
}

func TestQuery_Response(t *testing.T) {
	s := NewServer(&mockEngine{
		queryFn: func(_ context.Context, q query.Query) (results.Results, error) {
			models := []model.Model{article(t, testID, "One")}
			return results.New(models, 3, q.Next()), nil
		},
	}, nil, nil)

	rr := do(t, s, "/v1/query?limit=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp QueryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0]["title"] != "One" {
		t.Errorf("models = %v", resp.Models)
	}
	if resp.UpperBound != 3 {
		t.Errorf("upper_bound = %d", resp.UpperBound)
	}
	if resp.NextOffset == nil || *resp.NextOffset != 1 {
		t.Errorf("next_offset = %v", resp.NextOffset)
	}

	rr = do(t, s, "/v1/query?limit=5")
	resp = QueryResponse{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NextOffset != nil {
		t.Errorf("last page must not carry next_offset, got %d", *resp.NextOffset)
	}
}

func TestQuery_Invalid(t *testing.T) {
	s := NewServer(&mockEngine{}, nil, nil)
	tests := []struct {
		name     string
		target   string
		wantCode ErrorCode
	}{
		{"terms without match", "/v1/query?terms=x", ErrorCodeInvalidQuery},
		{"bad sort", "/v1/query?sort=random", ErrorCodeInvalidQuery},
		{"bad id", "/v1/query?ids=nope", ErrorCodeInvalidQuery},
		{"non-numeric limit", "/v1/query?limit=ten", ErrorCodeBadRequest},
		{"repeated scalar", "/v1/query?offset=1&offset=2", ErrorCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, tt.target)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if got := decodeError(t, rr); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestQuery_ShardFailure(t *testing.T) {
	s := NewServer(&mockEngine{
		queryFn: func(context.Context, query.Query) (results.Results, error) {
			return results.Results{}, fmt.Errorf("%w: %w", domain.ErrQuery,
				&domain.ShardError{Path: "/srv/a.pack", Err: errors.New("bad postings")})
		},
	}, nil, nil)
	rr := do(t, s, "/v1/query")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); strings.Contains(got.Message, "/srv") {
		t.Errorf("message leaks internals: %q", got.Message)
	}
}

func TestQuery_ResolveFailure(t *testing.T) {
	s := NewServer(&mockEngine{
		queryFn: func(context.Context, query.Query) (results.Results, error) {
			return results.Results{}, fmt.Errorf("%w: resolve %s: %w", domain.ErrQuery, testID, domain.ErrNotFound)
		},
	}, nil, nil)
	rr := do(t, s, "/v1/query")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != ErrorCodeQueryFailed || got.Message != "query failed" {
		t.Errorf("error = %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status     healthuc.Status
		wantStatus int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h := &mockHealth{report: healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{"content": healthuc.CheckOK},
			}}
			rr := do(t, NewServer(&mockEngine{}, h, nil), "/health")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != string(tt.status) || resp.Checks["content"] != "ok" || resp.Version == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	rr := do(t, NewServer(&mockEngine{}, nil, nil), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
