package column

import "fmt"

// Type is the declared value type of a collection column.
type Type string

const (
	// String holds free-form text values.
	String Type = "string"
	// Integer holds 64-bit integer values.
	Integer Type = "integer"
	// Float holds double-precision values.
	Float Type = "float"
)

// IsValid checks if the column type is supported.
func (t Type) IsValid() bool {
	return t == String || t == Integer || t == Float
}

// IsNumeric reports whether the type admits numeric comparisons.
func (t Type) IsNumeric() bool {
	return t == Integer || t == Float
}

// Column is an immutable column definition in a collection schema.
type Column struct {
	name     string
	colType  Type
	format   string
	indexed  bool
	fulltext bool
}

// New validates and creates a Column.
func New(name string, t Type, format string, indexed, fulltext bool) (Column, error) {
	if name == "" {
		return Column{}, fmt.Errorf("column name is required")
	}
	if !t.IsValid() {
		return Column{}, fmt.Errorf("invalid column type %q for %q", t, name)
	}
	if fulltext && t != String {
		return Column{}, fmt.Errorf("full-text flag on non-string column %q", name)
	}
	return Column{name: name, colType: t, format: format, indexed: indexed, fulltext: fulltext}, nil
}

// Reconstruct creates a Column without validation (storage hydration).
func Reconstruct(name string, t Type, format string, indexed, fulltext bool) Column {
	return Column{name: name, colType: t, format: format, indexed: indexed, fulltext: fulltext}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// ColType returns the declared value type.
func (c Column) ColType() Type { return c.colType }

// Format returns the display format string (printf style).
func (c Column) Format() string { return c.format }

// Indexed reports whether the backing store indexes this column.
func (c Column) Indexed() bool { return c.indexed }

// FullText reports whether the column participates in full-text search.
func (c Column) FullText() bool { return c.fulltext }
