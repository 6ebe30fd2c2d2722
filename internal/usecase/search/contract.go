package search

import (
	"context"

	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	"github.com/stellarlab/lcsearch/internal/domain/query/filter"
	"github.com/stellarlab/lcsearch/internal/resolver"
	"github.com/stellarlab/lcsearch/internal/skyindex"
)

// Catalog is the consumer interface over the collection backing store.
// Implementations translate the typed filter tree into their own
// parameterized query form; no raw predicate text crosses this boundary.
type Catalog interface {
	ColumnSearch(
		ctx context.Context,
		coll collection.Collection,
		cols []string,
		tree filter.Node,
		sortCol string,
		order query.SortOrder,
		sample, limit int,
	) ([]dataset.MatchRow, error)

	FullText(
		ctx context.Context,
		coll collection.Collection,
		text string,
		cols []string,
		tree filter.Node,
	) ([]dataset.MatchRow, error)

	FetchByIDs(
		ctx context.Context,
		coll collection.Collection,
		ids []string,
		cols []string,
		tree filter.Node,
	) (map[string]map[string]any, error)
}

// Collections resolves collection selections and spatial indexes.
type Collections interface {
	Select(names []string) ([]collection.Collection, error)
	Index(name string) (*skyindex.Index, bool)
}

// Resolver is the optional name-resolution preprocessing hook.
type Resolver = resolver.Resolver
