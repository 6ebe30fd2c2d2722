// Package dataset materializes search results as on-disk artifacts:
// a bounded JSON preview, the full CSV table, an optional light-curve
// ZIP bundle, and a compressed snapshot of the complete result. Artifact
// writes happen in that order and fail independently; a failed write is
// reported but never rolls back an earlier success.
package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	kflate "github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/lightcurve"
)

// Artifact file names inside a dataset directory.
const (
	PreviewFile  = "preview.json"
	CSVFile      = "dataset.csv"
	SnapshotFile = "dataset.snapshot"
	BundleFile   = "lightcurves.zip"
)

// Defaults for assembler policy knobs.
const (
	DefaultPreviewRows   = 1000
	DefaultBundleCeiling = 20000
)

// Outcome reports what assembly produced. Paths are empty where the
// corresponding write failed or was skipped; Messages carries policy
// notes and per-artifact failures for the status stream.
type Outcome struct {
	CSVPath      string
	SnapshotPath string
	BundlePath   string
	Messages     []string
}

// Assembler writes dataset artifacts below a base directory, one
// subdirectory per dataset id.
type Assembler struct {
	baseDir       string
	sources       *lightcurve.Registry
	previewRows   int
	bundleCeiling int
	logger        *zap.Logger
}

// NewAssembler creates an assembler. sources may be nil to disable
// light-curve bundling entirely.
func NewAssembler(baseDir string, sources *lightcurve.Registry, logger *zap.Logger) *Assembler {
	return &Assembler{
		baseDir:       baseDir,
		sources:       sources,
		previewRows:   DefaultPreviewRows,
		bundleCeiling: DefaultBundleCeiling,
		logger:        logger,
	}
}

// WithPolicy overrides the preview row cap and the light-curve bundling
// ceiling.
func (a *Assembler) WithPolicy(previewRows, bundleCeiling int) *Assembler {
	if previewRows > 0 {
		a.previewRows = previewRows
	}
	if bundleCeiling > 0 {
		a.bundleCeiling = bundleCeiling
	}
	return a
}

// BundleCeiling returns the configured bundling ceiling.
func (a *Assembler) BundleCeiling() int { return a.bundleCeiling }

// Dir returns the artifact directory for a dataset id.
func (a *Assembler) Dir(setID string) string {
	return filepath.Join(a.baseDir, setID)
}

// Assemble writes all artifacts for a finished search.
func (a *Assembler) Assemble(
	ctx context.Context,
	ds domds.Dataset,
	res domds.Result,
	cols []string,
) Outcome {
	var out Outcome
	dir := a.Dir(ds.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		out.Messages = append(out.Messages,
			fmt.Sprintf("%s: create artifact directory: %v", domain.ErrArtifact, err))
		return out
	}

	if err := a.writePreview(dir, res, cols); err != nil {
		a.logger.Warn("Preview write failed", zap.String("set", ds.ID), zap.Error(err))
		out.Messages = append(out.Messages, fmt.Sprintf("%s: preview: %v", domain.ErrArtifact, err))
	}

	csvPath := filepath.Join(dir, CSVFile)
	if err := a.writeCSV(csvPath, res, cols); err != nil {
		a.logger.Warn("CSV write failed", zap.String("set", ds.ID), zap.Error(err))
		out.Messages = append(out.Messages, fmt.Sprintf("%s: csv: %v", domain.ErrArtifact, err))
	} else {
		out.CSVPath = csvPath
	}

	switch {
	case a.sources == nil:
	case len(res.Rows) > a.bundleCeiling:
		// declared policy outcome, not an error
		out.Messages = append(out.Messages,
			fmt.Sprintf("more than %d objects matched, light-curve bundle skipped", a.bundleCeiling))
	default:
		bundlePath := filepath.Join(dir, BundleFile)
		n, err := a.writeBundle(ctx, bundlePath, res)
		if err != nil {
			a.logger.Warn("Bundle write failed", zap.String("set", ds.ID), zap.Error(err))
			out.Messages = append(out.Messages, fmt.Sprintf("%s: bundle: %v", domain.ErrArtifact, err))
		} else if n > 0 {
			out.BundlePath = bundlePath
		}
	}

	snapPath := filepath.Join(dir, SnapshotFile)
	if err := a.writeSnapshot(snapPath, res, cols); err != nil {
		a.logger.Warn("Snapshot write failed", zap.String("set", ds.ID), zap.Error(err))
		out.Messages = append(out.Messages, fmt.Sprintf("%s: snapshot: %v", domain.ErrArtifact, err))
	} else {
		out.SnapshotPath = snapPath
	}

	return out
}

// Preview is the bounded inline-JSON view of a dataset table.
type Preview struct {
	Columns []string         `json:"columns"`
	Rows    []domds.MatchRow `json:"rows"`
	Total   int64            `json:"total"`
}

// ReadPreview loads a previously written preview.
func (a *Assembler) ReadPreview(setID string) (Preview, error) {
	data, err := os.ReadFile(filepath.Join(a.Dir(setID), PreviewFile))
	if err != nil {
		return Preview{}, fmt.Errorf("read preview: %w", err)
	}
	var p Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return Preview{}, fmt.Errorf("decode preview: %w", err)
	}
	return p, nil
}

func (a *Assembler) writePreview(dir string, res domds.Result, cols []string) error {
	rows := res.Rows
	if len(rows) > a.previewRows {
		rows = rows[:a.previewRows]
	}
	p := Preview{Columns: cols, Rows: rows, Total: int64(len(res.Rows))}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return writeAtomic(filepath.Join(dir, PreviewFile), data)
}

func (a *Assembler) writeCSV(path string, res domds.Result, cols []string) error {
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"collection"}, cols...)
	header = append(header, "dist_arcsec", "matched_input")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, 0, len(header))
	for _, row := range res.Rows {
		record = record[:0]
		record = append(record, row.Collection)
		for _, c := range cols {
			record = append(record, formatValue(row.Values[c]))
		}
		if row.DistArcsec >= 0 {
			record = append(record, fmt.Sprintf("%.3f", row.DistArcsec))
		} else {
			record = append(record, "")
		}
		record = append(record, row.MatchedInput)
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return os.Rename(path+".tmp", path)
}

// writeBundle collects per-object light curves into a ZIP. Objects with
// no registered source or no stored curve are counted, not fatal.
// Returns the number of bundled files.
func (a *Assembler) writeBundle(ctx context.Context, path string, res domds.Result) (int, error) {
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return 0, fmt.Errorf("create bundle: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.BestSpeed)
	})

	bundled, missing := 0, 0
	seen := make(map[string]bool, len(res.Rows))
	for _, row := range res.Rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		key := row.Collection + "/" + row.ObjectID
		if seen[key] {
			continue
		}
		seen[key] = true

		src, ok := a.sources.Lookup(row.Collection)
		if !ok {
			missing++
			continue
		}
		rc, name, err := src.Read(ctx, row.ObjectID)
		if err != nil {
			missing++
			continue
		}
		entry, err := zw.Create(row.Collection + "/" + name)
		if err != nil {
			rc.Close()
			return 0, fmt.Errorf("create bundle entry: %w", err)
		}
		if _, err := io.Copy(entry, rc); err != nil {
			rc.Close()
			return 0, fmt.Errorf("copy light curve %s: %w", row.ObjectID, err)
		}
		rc.Close()
		bundled++
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish bundle: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close bundle: %w", err)
	}
	if bundled == 0 {
		os.Remove(path + ".tmp")
		return 0, nil
	}
	if missing > 0 {
		a.logger.Debug("Some light curves unavailable for bundle",
			zap.String("path", path), zap.Int("missing", missing))
	}
	return bundled, os.Rename(path+".tmp", path)
}

// Column values travel through the snapshot as interface values; gob
// needs their concrete types registered up front.
func init() {
	gob.Register(float64(0))
	gob.Register(int64(0))
	gob.Register("")
	gob.Register(true)
}

// snapshot is the gob-encoded full result, snappy-compressed. It lets
// the dataset be rehydrated without re-running the search.
type snapshot struct {
	Columns []string
	Rows    []domds.MatchRow
	Total   int64
}

func (a *Assembler) writeSnapshot(path string, res domds.Result, cols []string) error {
	var buf bytes.Buffer
	snap := snapshot{Columns: cols, Rows: res.Rows, Total: int64(len(res.Rows))}
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return writeAtomic(path, snappy.Encode(nil, buf.Bytes()))
}

// ReadSnapshot rehydrates a stored snapshot.
func (a *Assembler) ReadSnapshot(setID string) ([]string, []domds.MatchRow, error) {
	raw, err := os.ReadFile(filepath.Join(a.Dir(setID), SnapshotFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap.Columns, snap.Rows, nil
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%g", n)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
