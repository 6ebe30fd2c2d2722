package search

import (
	"context"
	"fmt"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
)

// cone runs a radius query per selected collection, hydrates the
// requested columns with the filter applied, and merges the results
// globally sorted by distance.
func (s *Service) cone(
	ctx context.Context, colls []collection.Collection, q query.CanonicalQuery,
) (dataset.Result, error) {
	params := q.Cone()

	var res dataset.Result
	colls = s.usableCollections(colls, q, &res.Warnings)

	radiusDeg := params.RadiusArcmin / coords.ArcminPerDeg
	for _, coll := range colls {
		if !coll.Footprint().Contains(params.RA, params.Dec, radiusDeg) {
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

func (s *Service) coneOne(
	ctx context.Context,
	coll collection.Collection,
	q query.CanonicalQuery,
	params *query.ConeParams,
) ([]dataset.MatchRow, error) {
	idx, ok := s.colls.Index(coll.Name())
	if !ok {
		return nil, fmt.Errorf("%w: no spatial index for collection %s", domain.ErrExecutor, coll.Name())
	}

	matches, err := idx.RadiusQuery(params.RA, params.Dec, params.RadiusArcmin)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ObjectID
	}

	values, err := s.catalog.FetchByIDs(ctx, coll, ids, q.Columns(), q.FilterTree())
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.MatchRow, 0, len(values))
	for _, m := range matches {
		v, ok := values[m.ObjectID]
		if !ok {
			continue // rejected by the filter
		}
		rows = append(rows, dataset.MatchRow{
			Collection: coll.Name(),
			ObjectID:   m.ObjectID,
			Values:     v,
			DistArcsec: m.DistArcsec,
		})
	}
	return rows, nil
}
