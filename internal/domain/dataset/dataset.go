package dataset

import (
	"time"

	"github.com/stellarlab/lcsearch/internal/domain/query"
)

// Status is the lifecycle state of a dataset.
type Status string

const (
	// StatusQueued is the initial state on admission.
	StatusQueued Status = "queued"
	// StatusRunning means the search executor is working inside the
	// synchronous wall-clock budget.
	StatusRunning Status = "running"
	// StatusBackground means the search finished but artifact assembly
	// was handed to the worker pool.
	StatusBackground Status = "background"
	// StatusComplete is terminal: all artifacts are settled.
	StatusComplete Status = "complete"
	// StatusFailed is terminal: the search failed or matched nothing.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition checks a single state-machine edge:
// queued -> running -> {complete, background, failed};
// background -> {complete, failed}.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusComplete || to == StatusBackground || to == StatusFailed
	case StatusBackground:
		return to == StatusComplete || to == StatusFailed
	}
	return false
}

// Dataset is the persisted, shareable result of one search query.
// Mutated only by the worker that owns it; immutable once terminal except
// for last-accessed bookkeeping.
type Dataset struct {
	ID          string
	Fingerprint string // empty for private datasets, never cache-shared
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AccessedAt  time.Time
	NMatched    int64
	Message     string
	Owner       string
	Visibility  query.Visibility

	// Artifact pointers; empty until the corresponding write succeeds,
	// and left empty on a failed dataset.
	CSVPath      string
	SnapshotPath string
	BundlePath   string
}

// MatchRow is one matched object row, owned exclusively by the dataset
// that produced it.
type MatchRow struct {
	Collection string `json:"collection"`
	ObjectID   string `json:"objectid"`
	// Values holds the requested column values keyed by column name.
	Values map[string]any `json:"values"`
	// DistArcsec is the computed angular distance for spatial and
	// cross-match queries, negative otherwise.
	DistArcsec float64 `json:"dist_arcsec"`
	// MatchedInput is the originating uploaded object id for xmatch rows.
	MatchedInput string `json:"matched_input,omitempty"`
}

// Result is the full output of one search execution.
type Result struct {
	Rows     []MatchRow
	NMatched int64
	// Warnings carries non-fatal notes (skipped upload rows, bundle
	// ceiling policy) surfaced in status messages.
	Warnings []string
}
