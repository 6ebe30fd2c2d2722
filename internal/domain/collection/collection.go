package collection

import (
	"fmt"
	"regexp"

	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Required columns every collection schema must carry. Search results
// always include them regardless of the caller's column selection.
const (
	ColObjectID = "objectid"
	ColRA       = "ra"
	ColDec      = "decl"
)

// Footprint is the bounding sky region of a collection in decimal degrees.
type Footprint struct {
	MinRA  float64
	MaxRA  float64
	MinDec float64
	MaxDec float64
}

// Contains reports whether a point falls inside the footprint, padded by
// radiusDeg on every side. RA wrap-around is handled by the pad.
func (f Footprint) Contains(ra, dec, radiusDeg float64) bool {
	if dec < f.MinDec-radiusDeg || dec > f.MaxDec+radiusDeg {
		return false
	}
	if ra >= f.MinRA-radiusDeg && ra <= f.MaxRA+radiusDeg {
		return true
	}
	// retry with RA shifted by 360 for footprints near the meridian
	return ra+360 >= f.MinRA-radiusDeg && ra+360 <= f.MaxRA+radiusDeg ||
		ra-360 >= f.MinRA-radiusDeg && ra-360 <= f.MaxRA+radiusDeg
}

// Collection is an immutable light-curve collection: a fixed column schema,
// a bounding sky region, and an object count. Only the out-of-scope
// ingestion tooling ever appends to it.
type Collection struct {
	name      string
	title     string
	columns   []column.Column
	footprint Footprint
	nobjects  int64
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("collection name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("collection name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

func validateColumns(cols []column.Column) error {
	if len(cols) > 256 {
		return fmt.Errorf("too many columns (max 256)")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name()] {
			return fmt.Errorf("duplicate column name: %s", c.Name())
		}
		seen[c.Name()] = true
	}
	for _, required := range []string{ColObjectID, ColRA, ColDec} {
		if !seen[required] {
			return fmt.Errorf("schema is missing required column %q", required)
		}
	}
	return nil
}

// New validates and creates a Collection.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. Columns: unique names, must include
// objectid, ra and decl.
func New(name, title string, cols []column.Column, fp Footprint, nobjects int64) (Collection, error) {
	if err := validateName(name); err != nil {
		return Collection{}, err
	}
	if err := validateColumns(cols); err != nil {
		return Collection{}, err
	}
	if nobjects < 0 {
		return Collection{}, fmt.Errorf("object count must not be negative")
	}
	return Collection{name: name, title: title, columns: cols, footprint: fp, nobjects: nobjects}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(name, title string, cols []column.Column, fp Footprint, nobjects int64) Collection {
	return Collection{name: name, title: title, columns: cols, footprint: fp, nobjects: nobjects}
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Title returns the human-readable collection title.
func (c Collection) Title() string { return c.title }

// Columns returns the column schema.
func (c Collection) Columns() []column.Column { return c.columns }

// Footprint returns the bounding sky region.
func (c Collection) Footprint() Footprint { return c.footprint }

// NObjects returns the number of objects in the collection.
func (c Collection) NObjects() int64 { return c.nobjects }

// ColumnByName looks up a column by name.
func (c Collection) ColumnByName(name string) (column.Column, bool) {
	for _, col := range c.columns {
		if col.Name() == name {
			return col, true
		}
	}
	return column.Column{}, false
}

// FullTextColumns returns the columns flagged for full-text search.
func (c Collection) FullTextColumns() []column.Column {
	var out []column.Column
	for _, col := range c.columns {
		if col.FullText() {
			out = append(out, col)
		}
	}
	return out
}
