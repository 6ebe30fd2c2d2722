package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
	"github.com/stellarlab/lcsearch/internal/domain/query/filter"
)

// Kind selects the search algorithm.
type Kind string

const (
	KindCone     Kind = "cone"
	KindFullText Kind = "fulltext"
	KindColumn   Kind = "column"
	KindXMatch   Kind = "xmatch"
)

// IsValid checks if the search kind is supported.
func (k Kind) IsValid() bool {
	switch k {
	case KindCone, KindFullText, KindColumn, KindXMatch:
		return true
	}
	return false
}

// Visibility controls dataset sharing.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// IsValid checks if the visibility is supported.
func (v Visibility) IsValid() bool {
	return v == VisibilityPublic || v == VisibilityUnlisted || v == VisibilityPrivate
}

// Shared reports whether datasets for this visibility are cache-shared by
// fingerprint. Private datasets never are.
func (v Visibility) Shared() bool { return v != VisibilityPrivate }

// SortOrder is the row sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Search parameter limits.
const (
	MaxConeRadiusArcmin   = 60.0
	DefaultConeRadius     = 5.0
	MaxXMatchRadiusArcsec = 30.0
	DefaultXMatchRadius   = 3.0
	MaxXMatchRows         = 5000
)

// ConeParams is the cone-search payload.
type ConeParams struct {
	RA           float64
	Dec          float64
	RadiusArcmin float64
}

// FullTextParams is the full-text search payload.
type FullTextParams struct {
	Text string
}

// UploadRow is one parsed row of an uploaded cross-match list.
type UploadRow struct {
	ObjectID string
	RA       float64
	Dec      float64
}

// XMatchParams is the cross-match payload.
type XMatchParams struct {
	Rows         []UploadRow
	RadiusArcsec float64
	// Skipped reports malformed upload lines (1-based line numbers).
	Skipped []int
}

// CanonicalQuery is the validated, normalized form of a search request.
// Immutable once built; the fingerprint is derived from the normalized
// fields so equivalent requests collapse to one dataset.
type CanonicalQuery struct {
	kind        Kind
	collections []string // sorted, deduplicated; empty = all
	filterTree  filter.Node
	columns     []string // ordered, deduplicated; always has objectid/ra/decl
	sortCol     string
	sortOrder   SortOrder
	sampleSize  int // 0 = no sampling
	rowLimit    int // 0 = no limit
	visibility  Visibility

	cone     *ConeParams
	fulltext *FullTextParams
	xmatch   *XMatchParams
}

// Spec carries the raw builder inputs for New.
type Spec struct {
	Kind        Kind
	Collections []string
	FilterTree  filter.Node
	Columns     []string
	SortCol     string
	SortOrder   SortOrder
	SampleSize  int
	RowLimit    int
	Visibility  Visibility

	Cone     *ConeParams
	FullText *FullTextParams
	XMatch   *XMatchParams
}

// New validates and normalizes a Spec into a CanonicalQuery.
// Collections are sorted and deduplicated. Requested columns keep their
// order, are deduplicated, and always include objectid, ra and decl plus
// any filter and sort columns.
func New(s Spec) (CanonicalQuery, error) {
	if !s.Kind.IsValid() {
		return CanonicalQuery{}, fmt.Errorf("%w: unknown search kind %q", domain.ErrValidation, s.Kind)
	}
	if s.Visibility == "" {
		s.Visibility = VisibilityPublic
	}
	if !s.Visibility.IsValid() {
		return CanonicalQuery{}, fmt.Errorf("%w: unknown visibility %q", domain.ErrValidation, s.Visibility)
	}
	if s.SortOrder == "" {
		s.SortOrder = SortAsc
	}
	if s.SortOrder != SortAsc && s.SortOrder != SortDesc {
		return CanonicalQuery{}, fmt.Errorf("%w: sort order must be asc or desc", domain.ErrValidation)
	}
	if s.SampleSize < 0 || s.RowLimit < 0 {
		return CanonicalQuery{}, fmt.Errorf("%w: sample size and row limit must not be negative", domain.ErrValidation)
	}

	if err := validatePayload(&s); err != nil {
		return CanonicalQuery{}, err
	}

	q := CanonicalQuery{
		kind:        s.Kind,
		collections: normalizeCollections(s.Collections),
		filterTree:  s.FilterTree,
		columns:     normalizeColumns(s.Columns, s.FilterTree, s.SortCol),
		sortCol:     s.SortCol,
		sortOrder:   s.SortOrder,
		sampleSize:  s.SampleSize,
		rowLimit:    s.RowLimit,
		visibility:  s.Visibility,
		cone:        s.Cone,
		fulltext:    s.FullText,
		xmatch:      s.XMatch,
	}
	return q, nil
}

func validatePayload(s *Spec) error {
	switch s.Kind {
	case KindCone:
		if s.Cone == nil {
			return fmt.Errorf("%w: cone search needs coordinates", domain.ErrValidation)
		}
		if s.Cone.RadiusArcmin <= 0 {
			s.Cone.RadiusArcmin = DefaultConeRadius
		}
		if s.Cone.RadiusArcmin > MaxConeRadiusArcmin {
			return fmt.Errorf("%w: radius %g arcmin exceeds the %g arcmin maximum",
				domain.ErrValidation, s.Cone.RadiusArcmin, MaxConeRadiusArcmin)
		}
		if !coords.Valid(s.Cone.RA, s.Cone.Dec) {
			return fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
		}
	case KindFullText:
		if s.FullText == nil || strings.TrimSpace(s.FullText.Text) == "" {
			return fmt.Errorf("%w: full-text search needs query text", domain.ErrValidation)
		}
	case KindColumn:
		if s.FilterTree == nil {
			return fmt.Errorf("%w: column search needs a non-empty filter", domain.ErrValidation)
		}
	case KindXMatch:
		if s.XMatch == nil || len(s.XMatch.Rows) == 0 {
			return fmt.Errorf("%w: cross-match needs uploaded rows", domain.ErrValidation)
		}
		if len(s.XMatch.Rows) > MaxXMatchRows {
			return fmt.Errorf("%w: cross-match upload exceeds %d rows", domain.ErrValidation, MaxXMatchRows)
		}
		if s.XMatch.RadiusArcsec <= 0 {
			s.XMatch.RadiusArcsec = DefaultXMatchRadius
		}
		if s.XMatch.RadiusArcsec > MaxXMatchRadiusArcsec {
			return fmt.Errorf("%w: match radius %g arcsec exceeds the %g arcsec maximum",
				domain.ErrValidation, s.XMatch.RadiusArcsec, MaxXMatchRadiusArcsec)
		}
	}
	return nil
}

func normalizeCollections(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	dedup := out[:0]
	for i, c := range out {
		if i == 0 || out[i-1] != c {
			dedup = append(dedup, c)
		}
	}
	return dedup
}

func normalizeColumns(requested []string, tree filter.Node, sortCol string) []string {
	out := make([]string, 0, len(requested)+4)
	seen := make(map[string]bool, len(requested)+4)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	add(collection.ColObjectID)
	add(collection.ColRA)
	add(collection.ColDec)
	for _, c := range requested {
		add(c)
	}
	for _, c := range filter.ColumnsOf(tree) {
		add(c)
	}
	add(sortCol)
	return out
}

// Kind returns the search kind.
func (q CanonicalQuery) Kind() Kind { return q.kind }

// Collections returns the sorted collection selection (nil = all).
func (q CanonicalQuery) Collections() []string { return q.collections }

// FilterTree returns the parsed filter tree (nil when absent).
func (q CanonicalQuery) FilterTree() filter.Node { return q.filterTree }

// Columns returns the normalized requested columns.
func (q CanonicalQuery) Columns() []string { return q.columns }

// SortCol returns the sort column ("" = kind default).
func (q CanonicalQuery) SortCol() string { return q.sortCol }

// SortOrder returns the sort direction.
func (q CanonicalQuery) SortOrder() SortOrder { return q.sortOrder }

// SampleSize returns the uniform sample size (0 = no sampling).
func (q CanonicalQuery) SampleSize() int { return q.sampleSize }

// RowLimit returns the row limit (0 = unlimited).
func (q CanonicalQuery) RowLimit() int { return q.rowLimit }

// Visibility returns the dataset visibility.
func (q CanonicalQuery) Visibility() Visibility { return q.visibility }

// Cone returns the cone-search payload.
func (q CanonicalQuery) Cone() *ConeParams { return q.cone }

// FullText returns the full-text payload.
func (q CanonicalQuery) FullText() *FullTextParams { return q.fulltext }

// XMatch returns the cross-match payload.
func (q CanonicalQuery) XMatch() *XMatchParams { return q.xmatch }

// Fingerprint returns the stable cache key for the query: a murmur3-128
// hash over the canonical encoding. Collection and column ordering do not
// affect it. Callers must not use fingerprints for private queries.
func (q CanonicalQuery) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(q.kind))
	b.WriteByte('|')
	b.WriteString(strings.Join(q.collections, ","))
	b.WriteByte('|')
	if q.filterTree != nil {
		b.WriteString(q.filterTree.Canonical())
	}
	b.WriteByte('|')
	sortedCols := append([]string(nil), q.columns...)
	sort.Strings(sortedCols)
	b.WriteString(strings.Join(sortedCols, ","))
	b.WriteByte('|')
	b.WriteString(q.sortCol)
	b.WriteByte('|')
	b.WriteString(string(q.sortOrder))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.sampleSize))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.rowLimit))
	b.WriteByte('|')
	q.writePayload(&b)

	h1, h2 := murmur3.Sum128([]byte(b.String()))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

func (q CanonicalQuery) writePayload(b *strings.Builder) {
	switch q.kind {
	case KindCone:
		fmt.Fprintf(b, "cone:%s,%s,%s",
			canonFloat(q.cone.RA), canonFloat(q.cone.Dec), canonFloat(q.cone.RadiusArcmin))
	case KindFullText:
		fmt.Fprintf(b, "ft:%s", strings.TrimSpace(q.fulltext.Text))
	case KindColumn:
		b.WriteString("col")
	case KindXMatch:
		fmt.Fprintf(b, "xm:%s:", canonFloat(q.xmatch.RadiusArcsec))
		for _, r := range q.xmatch.Rows {
			fmt.Fprintf(b, "%s,%s,%s;", r.ObjectID, canonFloat(r.RA), canonFloat(r.Dec))
		}
	}
}

func canonFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
