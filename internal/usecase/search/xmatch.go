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

// xmatch matches each uploaded row against every selected collection
// within the requested radius. Output keeps the upload order; within one
// uploaded object, database matches are ordered by increasing distance.
func (s *Service) xmatch(
	ctx context.Context, colls []collection.Collection, q query.CanonicalQuery,
) (dataset.Result, error) {
	params := q.XMatch()

	var res dataset.Result
	for _, line := range params.Skipped {
		res.Warnings = append(res.Warnings, fmt.Sprintf("upload line %d malformed, skipped", line))
	}
	colls = s.usableCollections(colls, q, &res.Warnings)

	radiusArcmin := params.RadiusArcsec / 60
	radiusDeg := params.RadiusArcsec / coords.ArcsecPerDeg

	for _, up := range params.Rows {
		var perInput []dataset.MatchRow
		for _, coll := range colls {
			if !coll.Footprint().Contains(up.RA, up.Dec, radiusDeg) {
				continue
			}
			rows, err := s.xmatchOne(ctx, coll, q, up, radiusArcmin)
			if err != nil {
				return dataset.Result{}, err
			}
			perInput = append(perInput, rows...)
		}
		sortByDistance(perInput)
		res.Rows = append(res.Rows, perInput...)
	}
	return res, nil
}

func (s *Service) xmatchOne(
	ctx context.Context,
	coll collection.Collection,
	q query.CanonicalQuery,
	up query.UploadRow,
	radiusArcmin float64,
) ([]dataset.MatchRow, error) {
	idx, ok := s.colls.Index(coll.Name())
	if !ok {
		return nil, fmt.Errorf("%w: no spatial index for collection %s", domain.ErrExecutor, coll.Name())
	}

	matches, err := idx.RadiusQuery(up.RA, up.Dec, radiusArcmin)
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
			continue
		}
		rows = append(rows, dataset.MatchRow{
			Collection:   coll.Name(),
			ObjectID:     m.ObjectID,
			Values:       v,
			DistArcsec:   m.DistArcsec,
			MatchedInput: up.ObjectID,
		})
	}
	return rows, nil
}
