// Package lightcurve locates per-object light-curve files for dataset
// bundling. Each collection registers a typed Source adapter; bundling
// never inspects file contents, it only streams them into the archive.
package lightcurve

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/stellarlab/lcsearch/internal/domain"
)

// Source reads the light curve of one object.
type Source interface {
	// Read returns the light-curve contents and the suggested file name.
	Read(ctx context.Context, objectID string) (io.ReadCloser, string, error)
}

// Registry maps collection names to their light-curve sources.
// Registration happens at startup; lookups are concurrent.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register binds a collection to a source, replacing any previous one.
func (r *Registry) Register(collection string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[collection] = src
}

// Lookup returns the source for a collection.
func (r *Registry) Lookup(collection string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[collection]
	return src, ok
}

// DirSource serves light curves from per-object CSV files below a
// directory, named `<objectid>-csvlc.gz`.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory-backed source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Read implements Source.
func (s *DirSource) Read(_ context.Context, objectID string) (io.ReadCloser, string, error) {
	name := objectID + "-csvlc.gz"
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("%w: light curve for %s", domain.ErrNotFound, objectID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open light curve for %s: %w", objectID, err)
	}
	return f, name, nil
}
