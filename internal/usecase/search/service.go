// Package search routes canonical queries to the matching executor.
// Executors are state-independent: (collections, query) in, matched rows
// out. All four apply the filter tree identically once candidate rows
// are known; cone and cross-match apply it after the spatial narrowing,
// column search uses it as the primary predicate.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
)

// Service executes canonical queries against the loaded collections.
type Service struct {
	catalog  Catalog
	colls    Collections
	resolver Resolver // nil disables name resolution
	logger   *zap.Logger
}

// New creates a search service. resolver may be nil.
func New(catalog Catalog, colls Collections, res Resolver, logger *zap.Logger) *Service {
	return &Service{catalog: catalog, colls: colls, resolver: res, logger: logger}
}

// Execute runs the query and returns the matched rows with a total
// count. A query matching nothing returns ErrNoMatch.
func (s *Service) Execute(ctx context.Context, q query.CanonicalQuery) (dataset.Result, error) {
	colls, err := s.colls.Select(q.Collections())
	if err != nil {
		return dataset.Result{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if len(colls) == 0 {
		return dataset.Result{}, fmt.Errorf("%w: no collections available", domain.ErrValidation)
	}

	var res dataset.Result
	switch q.Kind() {
	case query.KindCone:
		res, err = s.cone(ctx, colls, q)
	case query.KindFullText:
		res, err = s.fulltext(ctx, colls, q)
	case query.KindColumn:
		res, err = s.column(ctx, colls, q)
	case query.KindXMatch:
		res, err = s.xmatch(ctx, colls, q)
	default:
		return dataset.Result{}, fmt.Errorf("%w: unsupported search kind %q", domain.ErrValidation, q.Kind())
	}
	if err != nil {
		return dataset.Result{}, err
	}

	if len(res.Rows) == 0 {
		return res, domain.ErrNoMatch
	}
	res.NMatched = int64(len(res.Rows))
	return res, nil
}

// usableCollections drops collections whose schema lacks a requested or
// filtered column, recording a warning instead of failing the query.
func (s *Service) usableCollections(
	colls []collection.Collection, q query.CanonicalQuery, warnings *[]string,
) []collection.Collection {
	out := colls[:0:0]
	for _, c := range colls {
		missing := ""
		for _, name := range q.Columns() {
			if _, ok := c.ColumnByName(name); !ok {
				missing = name
				break
			}
		}
		if missing != "" {
			*warnings = append(*warnings,
				fmt.Sprintf("collection %s skipped: no column %q", c.Name(), missing))
			continue
		}
		out = append(out, c)
	}
	return out
}

// sortByDistance orders rows by ascending distance, ties broken by
// ascending object id. Used by the spatial executors.
func sortByDistance(rows []dataset.MatchRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DistArcsec != rows[j].DistArcsec {
			return rows[i].DistArcsec < rows[j].DistArcsec
		}
		return rows[i].ObjectID < rows[j].ObjectID
	})
}

// compareValues orders two column values of the same declared type.
// Numbers sort numerically, everything else lexically.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
