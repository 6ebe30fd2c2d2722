// Package chi is the HTTP transport: search submission endpoints that
// stream NDJSON status lines, dataset status and artifact downloads, and
// the auth and rate-limit middleware.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	"github.com/stellarlab/lcsearch/internal/domain/query/filter"
	"github.com/stellarlab/lcsearch/internal/registry"
	healthuc "github.com/stellarlab/lcsearch/internal/usecase/health"
	scheduleruc "github.com/stellarlab/lcsearch/internal/usecase/scheduler"
)

// Error codes for the JSON error envelope.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeFilterSyntax     = "filter_syntax"
	codeNotFound         = "not_found"
	codeForbidden        = "forbidden"
	codeUnauthorized     = "unauthorized"
	codeRateLimited      = "rate_limited"
	codeInternalError    = "internal_error"
)

// Scheduler admits canonical queries for execution.
type Scheduler interface {
	Submit(ctx context.Context, q query.CanonicalQuery, owner string) (*scheduleruc.Submission, error)
}

// Datasets exposes persisted dataset records.
type Datasets interface {
	Get(ctx context.Context, id string) (domds.Dataset, error)
	Touch(ctx context.Context, id string) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server carries the HTTP handlers for the search API.
type Server struct {
	scheduler     Scheduler
	datasets      Datasets
	registry      *registry.Registry
	artifacts     ArtifactReader
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	scheduler Scheduler,
	datasets Datasets,
	reg *registry.Registry,
	artifacts ArtifactReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		scheduler: scheduler,
		datasets:  datasets,
		registry:  reg,
		artifacts: artifacts,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		filterSyntaxHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, codeForbidden),
	}
	return s
}

// Routes mounts every handler on the router.
func (s *Server) Routes(r gochi.Router) {
	r.Post("/api/cone-search", s.ConeSearch)
	r.Post("/api/fulltext-search", s.FullTextSearch)
	r.Post("/api/column-search", s.ColumnSearch)
	r.Post("/api/xmatch", s.XMatch)
	r.Get("/api/sets/{setid}", s.GetDataset)
	r.Get("/api/sets/{setid}/csv", s.DownloadCSV)
	r.Get("/api/sets/{setid}/bundle", s.DownloadBundle)
	r.Get("/api/sets/{setid}/snapshot", s.DownloadSnapshot)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// searchRequest is the shared submission body; each endpoint reads the
// fields its search kind needs.
type searchRequest struct {
	// Cone: coordinate pair, decimal degrees or sexagesimal.
	Coordinates  string  `json:"coordinates,omitempty"`
	RadiusArcmin float64 `json:"radius_arcmin,omitempty"`

	// Full-text.
	Text string `json:"text,omitempty"`

	// Cross-match: uploaded "objectid ra dec" rows, one per line.
	Upload       string  `json:"upload,omitempty"`
	RadiusArcsec float64 `json:"radius_arcsec,omitempty"`

	// Common.
	Collections []string `json:"collections,omitempty"`
	Filter      string   `json:"filter,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Sort        string   `json:"sort,omitempty"`
	Order       string   `json:"order,omitempty"`
	Sample      int      `json:"sample,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
}

// ConeSearch handles POST /api/cone-search.
func (s *Server) ConeSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	ra, dec, err := coords.Parse(req.Coordinates)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	s.submitSearch(w, r, req, query.Spec{
		Kind: query.KindCone,
		Cone: &query.ConeParams{RA: ra, Dec: dec, RadiusArcmin: req.RadiusArcmin},
	})
}

// FullTextSearch handles POST /api/fulltext-search.
func (s *Server) FullTextSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	s.submitSearch(w, r, req, query.Spec{
		Kind:     query.KindFullText,
		FullText: &query.FullTextParams{Text: req.Text},
	})
}

// ColumnSearch handles POST /api/column-search.
func (s *Server) ColumnSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	s.submitSearch(w, r, req, query.Spec{Kind: query.KindColumn})
}

// XMatch handles POST /api/xmatch.
func (s *Server) XMatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	rows, skipped, err := query.ParseUploadRows(req.Upload)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.submitSearch(w, r, req, query.Spec{
		Kind: query.KindXMatch,
		XMatch: &query.XMatchParams{
			Rows:         rows,
			RadiusArcsec: req.RadiusArcsec,
			Skipped:      skipped,
		},
	})
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return searchRequest{}, false
	}
	return req, true
}

// submitSearch finishes building the canonical query from the shared
// request fields and hands it to the scheduler, streaming the status
// events back as NDJSON.
func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request, req searchRequest, spec query.Spec) {
	cols, err := s.registry.Select(req.Collections)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if req.Filter != "" {
		tree, err := filter.Parse(req.Filter, registry.ResolveColumn(cols))
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		spec.FilterTree = tree
	}

	identity := IdentityFromContext(r.Context())
	visibility := query.Visibility(req.Visibility)
	if visibility == "" {
		visibility = query.VisibilityPublic
	}
	if visibility == query.VisibilityPrivate && !identity.Private {
		writeError(w, http.StatusForbidden, codeForbidden, "private datasets require a session credential")
		return
	}

	spec.Collections = req.Collections
	spec.Columns = req.Columns
	spec.SortCol = req.Sort
	spec.SortOrder = query.SortOrder(req.Order)
	spec.SampleSize = req.Sample
	spec.RowLimit = req.Limit
	spec.Visibility = visibility

	if err := validateColumns(cols, spec.Columns, spec.SortCol); err != nil {
		s.handleDomainError(w, err)
		return
	}

	q, err := query.New(spec)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sub, err := s.scheduler.Submit(r.Context(), q, identity.User)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.streamEvents(w, r, sub)
}

// validateColumns rejects requested or sort columns absent from every
// selected collection, before any dataset is created.
func validateColumns(cols []collection.Collection, requested []string, sortCol string) error {
	resolve := registry.ResolveColumn(cols)
	check := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := resolve(name); !ok {
			return fmt.Errorf("%w: unknown column %q", domain.ErrValidation, name)
		}
		return nil
	}
	for _, c := range requested {
		if err := check(c); err != nil {
			return err
		}
	}
	return check(sortCol)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client-facing message without exposing
// internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNoMatch,
		domain.ErrNotFound,
		domain.ErrForbidden,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// filterSyntaxHandler surfaces the offending clause to the client.
func filterSyntaxHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrFilterSyntax) {
		return false
	}
	writeError(w, http.StatusBadRequest, codeFilterSyntax, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
