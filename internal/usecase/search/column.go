package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
)

// column scans each collection with the translated predicate. The fixed
// processing order is sample, then sort, then row limit, regardless of
// how the caller supplied the optional parameters; the per-collection
// SQL applies it and the cross-collection merge re-sorts and re-limits
// on the same key.
func (s *Service) column(
	ctx context.Context, colls []collection.Collection, q query.CanonicalQuery,
) (dataset.Result, error) {
	if q.FilterTree() == nil {
		// a predicate-free column search would force a full scan
		return dataset.Result{}, fmt.Errorf("%w: column search needs a non-empty filter", domain.ErrValidation)
	}

	var res dataset.Result
	colls = s.usableCollections(colls, q, &res.Warnings)

	for _, coll := range colls {
		rows, err := s.catalog.ColumnSearch(
			ctx, coll, q.Columns(), q.FilterTree(),
			q.SortCol(), q.SortOrder(), q.SampleSize(), q.RowLimit(),
		)
		if err != nil {
			return dataset.Result{}, err
		}
		res.Rows = append(res.Rows, rows...)
	}

	mergeSort(res.Rows, q.SortCol(), q.SortOrder())
	if q.RowLimit() > 0 && len(res.Rows) > q.RowLimit() {
		res.Rows = res.Rows[:q.RowLimit()]
	}
	return res, nil
}

// mergeSort re-establishes the global sort order after the per-collection
// results are concatenated. Stable; ties break on ascending object id.
func mergeSort(rows []dataset.MatchRow, sortCol string, order query.SortOrder) {
	if sortCol == "" {
		sortCol = collection.ColObjectID
	}
	desc := order == query.SortDesc

	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(rows[i].Values[sortCol], rows[j].Values[sortCol])
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return rows[i].ObjectID < rows[j].ObjectID
	})
}
