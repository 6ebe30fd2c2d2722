// Package registry holds the loaded collections and their spatial
// indexes. Everything here is read-only after Load and shared across all
// concurrent searches without locking.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
	"github.com/stellarlab/lcsearch/internal/skyindex"
)

// Loader supplies collection schemas and object positions.
type Loader interface {
	LoadCollections(ctx context.Context) ([]collection.Collection, error)
	LoadPoints(ctx context.Context, name string) ([]skyindex.Point, error)
}

// Registry is the immutable set of loaded collections.
type Registry struct {
	order   []string
	cols    map[string]collection.Collection
	indexes map[string]*skyindex.Index
}

// Load reads every collection and builds its spatial index.
func Load(ctx context.Context, loader Loader, logger *zap.Logger) (*Registry, error) {
	cols, err := loader.LoadCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}

	r := &Registry{
		cols:    make(map[string]collection.Collection, len(cols)),
		indexes: make(map[string]*skyindex.Index, len(cols)),
	}
	for _, c := range cols {
		points, err := loader.LoadPoints(ctx, c.Name())
		if err != nil {
			return nil, fmt.Errorf("load positions for %s: %w", c.Name(), err)
		}
		r.order = append(r.order, c.Name())
		r.cols[c.Name()] = c
		r.indexes[c.Name()] = skyindex.Build(points)

		logger.Info("Collection loaded",
			zap.String("collection", c.Name()),
			zap.Int64("objects", c.NObjects()),
			zap.Int("indexed_points", len(points)),
		)
	}
	return r, nil
}

// New builds a registry directly from collections and indexes (tests,
// alternative loaders).
func New(cols []collection.Collection, indexes map[string]*skyindex.Index) *Registry {
	r := &Registry{
		cols:    make(map[string]collection.Collection, len(cols)),
		indexes: indexes,
	}
	for _, c := range cols {
		r.order = append(r.order, c.Name())
		r.cols[c.Name()] = c
	}
	if r.indexes == nil {
		r.indexes = map[string]*skyindex.Index{}
	}
	return r
}

// Names returns the collection names in load order.
func (r *Registry) Names() []string { return r.order }

// Get looks up a collection by name.
func (r *Registry) Get(name string) (collection.Collection, bool) {
	c, ok := r.cols[name]
	return c, ok
}

// Index returns the spatial index of a collection.
func (r *Registry) Index(name string) (*skyindex.Index, bool) {
	idx, ok := r.indexes[name]
	return idx, ok
}

// Select resolves a requested collection set to concrete collections,
// preserving load order. An empty selection means all collections;
// unknown names are an error.
func (r *Registry) Select(names []string) ([]collection.Collection, error) {
	if len(names) == 0 {
		out := make([]collection.Collection, 0, len(r.order))
		for _, n := range r.order {
			out = append(out, r.cols[n])
		}
		return out, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.cols[n]; !ok {
			return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrValidation, n)
		}
		want[n] = true
	}
	var out []collection.Collection
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.cols[n])
		}
	}
	return out, nil
}

// ResolveColumn locates a column definition in the schema union of the
// given collections, for filter validation.
func ResolveColumn(cols []collection.Collection) func(string) (column.Column, bool) {
	return func(name string) (column.Column, bool) {
		for _, c := range cols {
			if col, ok := c.ColumnByName(name); ok {
				return col, true
			}
		}
		return column.Column{}, false
	}
}
