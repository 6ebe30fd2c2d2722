// Package catalog reads light-curve collections from the sqlite catalog
// database the ingestion tooling produces: a `collections` metadata table
// plus one `objects_<name>` table (and an FTS5 shadow table) per
// collection.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/skyindex"
)

// Catalog is a read-only handle on the collection catalog.
type Catalog struct {
	db *sql.DB
}

// Open opens the catalog database.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }

// Ping verifies the catalog is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// LoadCollections hydrates every collection's schema and footprint.
func (c *Catalog) LoadCollections(ctx context.Context) ([]collection.Collection, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, title, nobjects, min_ra, max_ra, min_dec, max_dec, columns_json
		 FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	defer rows.Close()

	var out []collection.Collection
	for rows.Next() {
		var rec collectionRecord
		if err := rows.Scan(
			&rec.Name, &rec.Title, &rec.NObjects,
			&rec.MinRA, &rec.MaxRA, &rec.MinDec, &rec.MaxDec,
			&rec.ColumnsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		col, err := rec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", rec.Name, err)
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// LoadPoints reads every object position of a collection for spatial
// index construction.
func (c *Catalog) LoadPoints(ctx context.Context, name string) ([]skyindex.Point, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, %s, %s FROM %s`,
		quoteIdent(collection.ColObjectID), quoteIdent(collection.ColRA), quoteIdent(collection.ColDec),
		objectsTable(name),
	))
	if err != nil {
		return nil, fmt.Errorf("load points for %s: %w", name, err)
	}
	defer rows.Close()

	var pts []skyindex.Point
	for rows.Next() {
		var p skyindex.Point
		if err := rows.Scan(&p.ObjectID, &p.RA, &p.Dec); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

func objectsTable(name string) string { return quoteIdent("objects_" + name) }

func ftsTable(name string) string { return quoteIdent("fts_" + name) }

// quoteIdent double-quotes an identifier. Collection and column names are
// schema-validated before they get here; quoting keeps them inert anyway.
func quoteIdent(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, s[i])
		}
	}
	return string(append(out, '"'))
}
