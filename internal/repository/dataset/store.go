// Package dataset persists dataset records in sqlite and guarantees
// at-most-one concurrent dataset per fingerprint: concurrent identical
// public or unlisted queries attach to one dataset id instead of
// re-executing the search.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlab/lcsearch/internal/domain"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id            TEXT PRIMARY KEY,
	fingerprint   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	accessed_at   INTEGER NOT NULL,
	nmatched      INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	owner         TEXT NOT NULL DEFAULT '',
	visibility    TEXT NOT NULL,
	csv_path      TEXT NOT NULL DEFAULT '',
	snapshot_path TEXT NOT NULL DEFAULT '',
	bundle_path   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_datasets_fingerprint
	ON datasets(fingerprint) WHERE fingerprint != '';
`

// Store is the dataset metadata store.
type Store struct {
	db *sql.DB

	// mu serializes fingerprint registration (compare-and-insert); all
	// writes after registration are owned by the worker that created the
	// entry and need no locking here.
	mu sync.Mutex
}

// Open opens (and migrates) the dataset database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open dataset db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate dataset db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// GetOrCreate resolves a fingerprint to a dataset, creating a queued one
// when none exists. Private visibility always creates a fresh dataset
// with no fingerprint, so private results are never cache-shared.
func (s *Store) GetOrCreate(
	ctx context.Context,
	fingerprint string,
	visibility query.Visibility,
	owner string,
) (domds.Dataset, bool, error) {
	if !visibility.Shared() {
		fingerprint = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fingerprint != "" {
		existing, err := s.byFingerprint(ctx, fingerprint)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, domain.ErrNotFound):
			return domds.Dataset{}, false, err
		}
	}

	now := time.Now().UTC()
	ds := domds.Dataset{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Status:      domds.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		AccessedAt:  now,
		Owner:       owner,
		Visibility:  visibility,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets
			(id, fingerprint, status, created_at, updated_at, accessed_at, owner, visibility)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID, ds.Fingerprint, string(ds.Status),
		now.UnixMilli(), now.UnixMilli(), now.UnixMilli(),
		ds.Owner, string(ds.Visibility),
	)
	if err != nil {
		return domds.Dataset{}, false, fmt.Errorf("insert dataset: %w", err)
	}
	return ds, true, nil
}

// Get fetches a dataset by id.
func (s *Store) Get(ctx context.Context, id string) (domds.Dataset, error) {
	return s.one(ctx, `WHERE id = ?`, id)
}

func (s *Store) byFingerprint(ctx context.Context, fp string) (domds.Dataset, error) {
	return s.one(ctx, `WHERE fingerprint = ?`, fp)
}

func (s *Store) one(ctx context.Context, where string, arg any) (domds.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, status, created_at, updated_at, accessed_at,
			nmatched, message, owner, visibility, csv_path, snapshot_path, bundle_path
		 FROM datasets `+where, arg)

	var ds domds.Dataset
	var status, visibility string
	var created, updated, accessed int64
	err := row.Scan(
		&ds.ID, &ds.Fingerprint, &status, &created, &updated, &accessed,
		&ds.NMatched, &ds.Message, &ds.Owner, &visibility,
		&ds.CSVPath, &ds.SnapshotPath, &ds.BundlePath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domds.Dataset{}, domain.ErrNotFound
	}
	if err != nil {
		return domds.Dataset{}, fmt.Errorf("scan dataset: %w", err)
	}
	ds.Status = domds.Status(status)
	ds.Visibility = query.Visibility(visibility)
	ds.CreatedAt = time.UnixMilli(created).UTC()
	ds.UpdatedAt = time.UnixMilli(updated).UTC()
	ds.AccessedAt = time.UnixMilli(accessed).UTC()
	return ds, nil
}

// Transition moves a dataset along a valid state-machine edge and records
// the message. Invalid edges are rejected.
func (s *Store) Transition(ctx context.Context, id string, to domds.Status, message string) error {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ds.Status.CanTransition(to) {
		return fmt.Errorf("dataset %s: illegal transition %s -> %s", id, ds.Status, to)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(to), message, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("transition dataset %s: %w", id, err)
	}
	return nil
}

// SetRowCount records the matched row count once the search finishes.
func (s *Store) SetRowCount(ctx context.Context, id string, n int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET nmatched = ?, updated_at = ? WHERE id = ?`,
		n, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set row count for %s: %w", id, err)
	}
	return nil
}

// SetArtifacts records artifact pointers as each write succeeds. Empty
// arguments leave the stored pointer untouched, so an artifact failure
// never clears an earlier success.
func (s *Store) SetArtifacts(ctx context.Context, id, csvPath, snapshotPath, bundlePath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET
			csv_path      = CASE WHEN ? != '' THEN ? ELSE csv_path END,
			snapshot_path = CASE WHEN ? != '' THEN ? ELSE snapshot_path END,
			bundle_path   = CASE WHEN ? != '' THEN ? ELSE bundle_path END,
			updated_at = ?
		 WHERE id = ?`,
		csvPath, csvPath, snapshotPath, snapshotPath, bundlePath, bundlePath,
		time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set artifacts for %s: %w", id, err)
	}
	return nil
}

// Touch updates last-accessed bookkeeping; the only write allowed on a
// terminal dataset.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET accessed_at = ? WHERE id = ?`,
		time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch dataset %s: %w", id, err)
	}
	return nil
}
