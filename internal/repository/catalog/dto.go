package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
)

// collectionRecord mirrors one row of the `collections` table.
type collectionRecord struct {
	Name        string
	Title       string
	NObjects    int64
	MinRA       float64
	MaxRA       float64
	MinDec      float64
	MaxDec      float64
	ColumnsJSON string
}

// columnDTO is the persisted column schema entry.
type columnDTO struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Format   string `json:"format,omitempty"`
	Indexed  bool   `json:"indexed,omitempty"`
	FullText bool   `json:"fulltext,omitempty"`
}

func (r collectionRecord) toDomain() (collection.Collection, error) {
	var dtos []columnDTO
	if err := json.Unmarshal([]byte(r.ColumnsJSON), &dtos); err != nil {
		return collection.Collection{}, fmt.Errorf("decode columns: %w", err)
	}

	cols := make([]column.Column, len(dtos))
	for i, d := range dtos {
		t := column.Type(d.Type)
		if !t.IsValid() {
			return collection.Collection{}, fmt.Errorf("column %q has unknown type %q", d.Name, d.Type)
		}
		cols[i] = column.Reconstruct(d.Name, t, d.Format, d.Indexed, d.FullText)
	}

	fp := collection.Footprint{MinRA: r.MinRA, MaxRA: r.MaxRA, MinDec: r.MinDec, MaxDec: r.MaxDec}
	return collection.Reconstruct(r.Name, r.Title, cols, fp, r.NObjects), nil
}
