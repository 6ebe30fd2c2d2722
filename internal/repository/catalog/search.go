package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	"github.com/stellarlab/lcsearch/internal/domain/query/filter"
)

// idChunkSize bounds the number of bind parameters per IN clause; sqlite
// defaults to a 999-variable limit.
const idChunkSize = 500

// ColumnSearch scans a collection with the translated filter predicate.
// Optional uniform sampling happens before sorting, sorting before the
// row limit, in that fixed order. Sort is stable with ties broken by
// ascending object id.
func (c *Catalog) ColumnSearch(
	ctx context.Context,
	coll collection.Collection,
	cols []string,
	tree filter.Node,
	sortCol string,
	order query.SortOrder,
	sample, limit int,
) ([]dataset.MatchRow, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: column search needs a filter", domain.ErrValidation)
	}
	where, args, err := whereClause(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecutor, err)
	}

	base := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		selectList(cols), objectsTable(coll.Name()), where)

	if sample > 0 {
		base = fmt.Sprintf("SELECT * FROM (%s ORDER BY RANDOM() LIMIT ?)", base)
		args = append(args, sample)
	}

	dir := "ASC"
	if order == query.SortDesc {
		dir = "DESC"
	}
	if sortCol == "" {
		sortCol = collection.ColObjectID
	}
	base += fmt.Sprintf(" ORDER BY %s %s, %s ASC", quoteIdent(sortCol), dir, quoteIdent(collection.ColObjectID))

	if limit > 0 {
		base += " LIMIT ?"
		args = append(args, limit)
	}

	return c.queryRows(ctx, coll.Name(), base, args, cols)
}

// FullText matches the collection's FTS index against the query text.
// FTS5 handles quoted-phrase exact matching natively.
func (c *Catalog) FullText(
	ctx context.Context,
	coll collection.Collection,
	text string,
	cols []string,
	tree filter.Node,
) ([]dataset.MatchRow, error) {
	if len(coll.FullTextColumns()) == 0 {
		return nil, nil
	}

	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s MATCH ?)",
		selectList(cols), objectsTable(coll.Name()),
		quoteIdent(collection.ColObjectID),
		quoteIdent(collection.ColObjectID), ftsTable(coll.Name()), ftsTable(coll.Name()),
	)
	args := []any{ftsQuery(text)}

	if tree != nil {
		where, wargs, err := whereClause(tree)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrExecutor, err)
		}
		q += " AND " + where
		args = append(args, wargs...)
	}
	q += fmt.Sprintf(" ORDER BY %s ASC", quoteIdent(collection.ColObjectID))

	return c.queryRows(ctx, coll.Name(), q, args, cols)
}

// ftsQuery passes quoted phrases through verbatim and quotes bare terms
// so FTS5 operator characters in user input stay inert.
func ftsQuery(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) > 1 {
		return trimmed
	}
	terms := strings.Fields(trimmed)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// FetchByIDs hydrates the requested columns for spatially matched object
// ids, applying the filter tree in the same statement. Returned map is
// keyed by object id; ids the filter rejects are absent.
func (c *Catalog) FetchByIDs(
	ctx context.Context,
	coll collection.Collection,
	ids []string,
	cols []string,
	tree filter.Node,
) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))

	var where string
	var wargs []any
	if tree != nil {
		var err error
		where, wargs, err = whereClause(tree)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrExecutor, err)
		}
	}

	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			selectList(cols), objectsTable(coll.Name()),
			quoteIdent(collection.ColObjectID), placeholders(len(chunk)))
		args := make([]any, 0, len(chunk)+len(wargs))
		for _, id := range chunk {
			args = append(args, id)
		}
		if where != "" {
			q += " AND " + where
			args = append(args, wargs...)
		}

		rows, err := c.queryRows(ctx, coll.Name(), q, args, cols)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ObjectID] = r.Values
		}
	}
	return out, nil
}

func (c *Catalog) queryRows(
	ctx context.Context, collName, q string, args []any, cols []string,
) ([]dataset.MatchRow, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", domain.ErrExecutor, collName, err)
	}
	defer rows.Close()

	var out []dataset.MatchRow
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", domain.ErrExecutor, collName, err)
		}
		values := make(map[string]any, len(cols))
		for i, col := range cols {
			values[col] = normalizeValue(*dest[i].(*any))
		}
		row := dataset.MatchRow{
			Collection: collName,
			Values:     values,
			DistArcsec: -1,
		}
		if id, ok := values[collection.ColObjectID].(string); ok {
			row.ObjectID = id
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", domain.ErrExecutor, collName, err)
	}
	return out, nil
}

// normalizeValue maps driver byte slices to strings so row values stay
// comparable and JSON-friendly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func selectList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
