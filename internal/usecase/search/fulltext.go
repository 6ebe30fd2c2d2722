package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
)

// fulltext first offers the query text to the name resolver; a
// recognized name reduces the search to a cone at the resolved position
// with a policy radius (5 arcsec point-like, 1 degree extended).
// Otherwise each collection's text index is matched directly.
func (s *Service) fulltext(
	ctx context.Context, colls []collection.Collection, q query.CanonicalQuery,
) (dataset.Result, error) {
	text := q.FullText().Text

	if s.resolver != nil {
		res, found, err := s.resolver.Resolve(ctx, text)
		if err != nil {
			// degraded, not fatal: fall through to plain text search
			s.logger.Warn("Name resolution unavailable", zap.String("query", text), zap.Error(err))
		} else if found && coords.Valid(res.RA, res.Dec) {
			return s.resolvedCone(ctx, colls, q, res.RA, res.Dec, res.RadiusArcmin())
		}
	}

	var out dataset.Result
	colls = s.usableCollections(colls, q, &out.Warnings)

	for _, coll := range colls {
		rows, err := s.catalog.FullText(ctx, coll, text, q.Columns(), q.FilterTree())
		if err != nil {
			return dataset.Result{}, err
		}
		out.Rows = append(out.Rows, rows...)
	}

	// deterministic union order: collection, then object id
	sort.SliceStable(out.Rows, func(i, j int) bool {
		if out.Rows[i].Collection != out.Rows[j].Collection {
			return out.Rows[i].Collection < out.Rows[j].Collection
		}
		return out.Rows[i].ObjectID < out.Rows[j].ObjectID
	})
	if q.RowLimit() > 0 && len(out.Rows) > q.RowLimit() {
		out.Rows = out.Rows[:q.RowLimit()]
	}
	return out, nil
}

func (s *Service) resolvedCone(
	ctx context.Context,
	colls []collection.Collection,
	q query.CanonicalQuery,
	ra, dec, radiusArcmin float64,
) (dataset.Result, error) {
	params := &query.ConeParams{RA: ra, Dec: dec, RadiusArcmin: radiusArcmin}

	var res dataset.Result
	res.Warnings = append(res.Warnings,
		fmt.Sprintf("name resolved to ra=%.5f dec=%.5f, searching %.4g arcmin cone",
			ra, dec, radiusArcmin))

	colls = s.usableCollections(colls, q, &res.Warnings)
	radiusDeg := radiusArcmin / coords.ArcminPerDeg
	for _, coll := range colls {
		if !coll.Footprint().Contains(ra, dec, radiusDeg) {
			continue
		}
		rows, err := s.coneOne(ctx, coll, q, params)
		if err != nil {
			return dataset.Result{}, err
		}
		res.Rows = append(res.Rows, rows...)
	}

	sortByDistance(res.Rows)
	if q.RowLimit() > 0 && len(res.Rows) > q.RowLimit() {
		res.Rows = res.Rows[:q.RowLimit()]
	}
	return res, nil
}
