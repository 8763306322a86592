// Package chi exposes the content engine over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/logger"
	"github.com/kailas-cloud/dmodel/internal/shard"
	healthuc "github.com/kailas-cloud/dmodel/internal/usecase/health"
	"github.com/kailas-cloud/dmodel/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the read-only content API.
type Server struct {
	engine        Engine
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrCancelled, http.StatusServiceUnavailable, ErrorCodeCancelled),
		sentinelHandler(domain.ErrInvalidID, http.StatusBadRequest, ErrorCodeInvalidID),
		shardFailureHandler,
		sentinelHandler(domain.ErrOpen, http.StatusServiceUnavailable, ErrorCodeContentUnavailable),
		sentinelHandler(domain.ErrQuery, http.StatusInternalServerError, ErrorCodeQueryFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrMalformedData, http.StatusUnprocessableEntity, ErrorCodeMalformedData),
		sentinelHandler(domain.ErrMissingType, http.StatusUnprocessableEntity, ErrorCodeMalformedData),
		sentinelHandler(domain.ErrUnknownType, http.StatusUnprocessableEntity, ErrorCodeMalformedData),
		sentinelHandler(domain.ErrMissingID, http.StatusUnprocessableEntity, ErrorCodeMalformedData),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/objects", s.GetObject)
		r.Get("/objects/data", s.GetObjectData)
		r.Get("/objects/member", s.GetArchiveMember)
		r.Get("/uri", s.ReadURI)
		r.Get("/links", s.TestLink)
		r.Get("/query", s.Query)
	})
}

// Handler returns a router serving the API with no middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// GetObject handles GET /v1/objects.
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request) {
	var id, appID string
	if !s.bind(w, r, "id", true, &id) || !s.bind(w, r, "app_id", false, &appID) {
		return
	}

	m, err := s.engine.GetObjectForApp(r.Context(), id, appID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ToTree(m))
}

// GetObjectData handles GET /v1/objects/data.
func (s *Server) GetObjectData(w http.ResponseWriter, r *http.Request) {
	var id, appID string
	if !s.bind(w, r, "id", true, &id) || !s.bind(w, r, "app_id", false, &appID) {
		return
	}

	blob, err := s.engine.StreamData(r.Context(), id, appID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.writeBlob(w, r, blob)
}

// GetArchiveMember handles GET /v1/objects/member.
func (s *Server) GetArchiveMember(w http.ResponseWriter, r *http.Request) {
	var id, name, appID string
	if !s.bind(w, r, "id", true, &id) ||
		!s.bind(w, r, "name", true, &name) ||
		!s.bind(w, r, "app_id", false, &appID) {
		return
	}

	rc, err := s.engine.ArchiveMember(r.Context(), id, name, appID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if rc == nil {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "archive member not found")
		return
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.writeBlob(w, r, shard.Blob{ContentType: contentType, Body: rc})
}

// ReadURI handles GET /v1/uri.
func (s *Server) ReadURI(w http.ResponseWriter, r *http.Request) {
	var uri, appID string
	if !s.bind(w, r, "uri", true, &uri) || !s.bind(w, r, "app_id", false, &appID) {
		return
	}

	blob, ok, err := s.engine.ReadURI(r.Context(), uri, appID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "no data for uri")
		return
	}
	s.writeBlob(w, r, blob)
}

// TestLink handles GET /v1/links.
func (s *Server) TestLink(w http.ResponseWriter, r *http.Request) {
	var link, appID string
	if !s.bind(w, r, "link", true, &link) || !s.bind(w, r, "app_id", false, &appID) {
		return
	}

	id, ok, err := s.engine.TestLinkForApp(r.Context(), link, appID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{ID: id})
}

// Query handles GET /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	opts, err := queryOptionsFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	q, err := query.New(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidQuery, err.Error())
		return
	}

	res, err := s.engine.Query(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	models := res.Models()
	resp := QueryResponse{
		Models:     make([]map[string]any, len(models)),
		UpperBound: res.UpperBound(),
	}
	for i, m := range models {
		resp.Models[i] = model.ToTree(m)
	}
	if res.HasMore() {
		next := res.Next().Offset()
		resp.NextOffset = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) bind(w http.ResponseWriter, r *http.Request, name string, required bool, dest *string) bool {
	if err := bindParam(r, name, required, dest); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeBlob(w http.ResponseWriter, r *http.Request, blob shard.Blob) {
	defer blob.Body.Close()

	if blob.ContentType != "" {
		w.Header().Set("Content-Type", blob.ContentType)
	}
	if blob.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Body); err != nil {
		logger.FromContext(r.Context()).Warn("stream aborted", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrCancelled,
		domain.ErrInvalidID,
		domain.ErrOpen,
		domain.ErrQuery,
		domain.ErrNotFound,
		domain.ErrMalformedData,
		domain.ErrMissingType,
		domain.ErrUnknownType,
		domain.ErrMissingID,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// shardFailureHandler handles a shard that failed while serving a request.
// Init failures are left to the ErrOpen handler.
func shardFailureHandler(w http.ResponseWriter, err error, _ string) bool {
	var se *domain.ShardError
	if !errors.As(err, &se) || errors.Is(err, domain.ErrOpen) {
		return false
	}
	writeError(w, http.StatusBadGateway, ErrorCodeShardFailure, "shard failure")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("domain error", zap.String("path", r.URL.Path), zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
