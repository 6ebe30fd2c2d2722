package chi

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	gochi "github.com/go-chi/chi/v5"
	kgzip "github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	asm "github.com/stellarlab/lcsearch/internal/usecase/dataset"
	scheduleruc "github.com/stellarlab/lcsearch/internal/usecase/scheduler"
)

// ArtifactReader locates dataset artifacts on disk.
type ArtifactReader interface {
	Dir(setID string) string
	ReadPreview(setID string) (asm.Preview, error)
}

// datasetView is the JSON shape of GET /api/sets/{setid}.
type datasetView struct {
	SetID      string            `json:"setid"`
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	NObjects   int64             `json:"nobjects"`
	Visibility query.Visibility  `json:"visibility"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	Preview    *asm.Preview      `json:"preview,omitempty"`
}

// GetDataset handles GET /api/sets/{setid}.
func (s *Server) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.loadDataset(w, r)
	if !ok {
		return
	}

	if err := s.datasets.Touch(r.Context(), ds.ID); err != nil {
		s.logger.Warn("Failed to touch dataset", zap.String("set", ds.ID), zap.Error(err))
	}

	view := datasetView{
		SetID:      ds.ID,
		Status:     wireDatasetStatus(ds.Status),
		Message:    ds.Message,
		NObjects:   ds.NMatched,
		Visibility: ds.Visibility,
		CreatedAt:  ds.CreatedAt,
		UpdatedAt:  ds.UpdatedAt,
	}

	artifacts := make(map[string]string)
	if ds.CSVPath != "" {
		artifacts["csv"] = "/api/sets/" + ds.ID + "/csv"
	}
	if ds.SnapshotPath != "" {
		artifacts["snapshot"] = "/api/sets/" + ds.ID + "/snapshot"
	}
	if ds.BundlePath != "" {
		artifacts["bundle"] = "/api/sets/" + ds.ID + "/bundle"
	}
	if len(artifacts) > 0 {
		view.Artifacts = artifacts
	}

	if ds.Status == domds.StatusComplete {
		if p, err := s.artifacts.ReadPreview(ds.ID); err == nil {
			view.Preview = &p
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// DownloadCSV handles GET /api/sets/{setid}/csv, compressing on the wire
// when the client accepts gzip.
func (s *Server) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	if ds.CSVPath == "" {
		s.handleDomainError(w, domain.ErrNotFound)
		return
	}

	f, err := os.Open(ds.CSVPath)
	if err != nil {
		s.handleDomainError(w, domain.ErrNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ds.ID+`.csv"`)

	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz, err := kgzip.NewWriterLevel(w, kgzip.BestSpeed)
		if err == nil {
			defer gz.Close()
			_, _ = io.Copy(gz, f)
			return
		}
	}
	_, _ = io.Copy(w, f)
}

// DownloadBundle handles GET /api/sets/{setid}/bundle.
func (s *Server) DownloadBundle(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "application/zip", ".zip", func(ds domds.Dataset) string { return ds.BundlePath })
}

// DownloadSnapshot handles GET /api/sets/{setid}/snapshot.
func (s *Server) DownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "application/octet-stream", ".snapshot",
		func(ds domds.Dataset) string { return ds.SnapshotPath })
}

func (s *Server) serveArtifact(
	w http.ResponseWriter,
	r *http.Request,
	contentType, ext string,
	path func(domds.Dataset) string,
) {
	ds, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	p := path(ds)
	if p == "" {
		s.handleDomainError(w, domain.ErrNotFound)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		s.handleDomainError(w, domain.ErrNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ds.ID+ext+`"`)
	_, _ = io.Copy(w, f)
}

// loadDataset fetches the dataset named in the route and enforces the
// visibility rule: private datasets are visible to their owner only.
func (s *Server) loadDataset(w http.ResponseWriter, r *http.Request) (domds.Dataset, bool) {
	setID := gochi.URLParam(r, "setid")
	ds, err := s.datasets.Get(r.Context(), setID)
	if err != nil {
		s.handleDomainError(w, err)
		return domds.Dataset{}, false
	}

	if ds.Visibility == query.VisibilityPrivate {
		identity := IdentityFromContext(r.Context())
		if identity.User == "" || identity.User != ds.Owner {
			s.handleDomainError(w, domain.ErrForbidden)
			return domds.Dataset{}, false
		}
	}
	return ds, true
}

// wireDatasetStatus mirrors the streaming protocol: complete reads "ok".
func wireDatasetStatus(status domds.Status) string {
	if status == domds.StatusComplete {
		return scheduleruc.WireOK
	}
	return string(status)
}
