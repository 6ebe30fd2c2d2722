package health

import (
	"context"
	"os"
	"path/filepath"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	catalog    CatalogPinger
	store      StorePinger
	datasetDir string
}

// New creates a Service. datasetDir is the artifact root; its
// writability is part of the health report.
func New(catalog CatalogPinger, store StorePinger, datasetDir string) *Service {
	return &Service{catalog: catalog, store: store, datasetDir: datasetDir}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.catalog.Ping(ctx); err != nil {
		checks["catalog"] = CheckError
	} else {
		checks["catalog"] = CheckOK
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["datasets"] = CheckError
	} else {
		checks["datasets"] = CheckOK
	}

	if err := probeWritable(s.datasetDir); err != nil {
		checks["artifacts"] = CheckError
	} else {
		checks["artifacts"] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".healthprobe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
