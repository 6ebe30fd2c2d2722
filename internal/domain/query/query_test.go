package query

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stellarlab/lcsearch/internal/domain"
)

func coneSpec() Spec {
	return Spec{
		Kind:        KindCone,
		Collections: []string{"asas", "linear"},
		Columns:     []string{"mag", "nepochs"},
		Cone:        &ConeParams{RA: 290, Dec: 45, RadiusArcmin: 15},
	}
}

func TestNew_NormalizesCollections(t *testing.T) {
	s := coneSpec()
	s.Collections = []string{"linear", "asas", "linear"}
	q, err := New(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := q.Collections()
	if len(got) != 2 || got[0] != "asas" || got[1] != "linear" {
		t.Errorf("collections = %v, want [asas linear]", got)
	}
}

func TestNew_ColumnsAlwaysIncludeIdentity(t *testing.T) {
	q, err := New(coneSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cols := q.Columns()
	want := []string{"objectid", "ra", "decl", "mag", "nepochs"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("columns = %v, want %v", cols, want)
		}
	}
}

func TestNew_SortColumnIncluded(t *testing.T) {
	s := coneSpec()
	s.SortCol = "period"
	q, err := New(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, c := range q.Columns() {
		if c == "period" {
			found = true
		}
	}
	if !found {
		t.Errorf("sort column missing from %v", q.Columns())
	}
}

func TestNew_DefaultsAndBounds(t *testing.T) {
	s := coneSpec()
	s.Cone.RadiusArcmin = 0
	q, err := New(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Cone().RadiusArcmin != DefaultConeRadius {
		t.Errorf("default radius = %g, want %g", q.Cone().RadiusArcmin, DefaultConeRadius)
	}

	s = coneSpec()
	s.Cone.RadiusArcmin = MaxConeRadiusArcmin + 1
	if _, err := New(s); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("oversized radius: got %v, want ErrValidation", err)
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"unknown kind", func(s *Spec) { s.Kind = "spiral" }},
		{"bad visibility", func(s *Spec) { s.Visibility = "secret" }},
		{"bad sort order", func(s *Spec) { s.SortOrder = "sideways" }},
		{"negative sample", func(s *Spec) { s.SampleSize = -1 }},
		{"cone without payload", func(s *Spec) { s.Cone = nil }},
		{"cone out of range", func(s *Spec) { s.Cone.Dec = 95 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := coneSpec()
			tc.mutate(&s)
			if _, err := New(s); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestNew_ColumnSearchNeedsFilter(t *testing.T) {
	_, err := New(Spec{Kind: KindColumn})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestNew_XMatchLimits(t *testing.T) {
	rows := []UploadRow{{ObjectID: "a", RA: 10, Dec: 10}}

	s := Spec{Kind: KindXMatch, XMatch: &XMatchParams{Rows: rows, RadiusArcsec: 31}}
	if _, err := New(s); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("oversized radius: got %v, want ErrValidation", err)
	}

	s = Spec{Kind: KindXMatch, XMatch: &XMatchParams{Rows: rows}}
	q, err := New(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.XMatch().RadiusArcsec != DefaultXMatchRadius {
		t.Errorf("default radius = %g, want %g", q.XMatch().RadiusArcsec, DefaultXMatchRadius)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := New(coneSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New(coneSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical specs produced different fingerprints")
	}
	if len(a.Fingerprint()) != 32 {
		t.Errorf("fingerprint %q is not 128 bits of hex", a.Fingerprint())
	}
}

func TestFingerprint_SensitiveToPayload(t *testing.T) {
	a, _ := New(coneSpec())
	s := coneSpec()
	s.Cone.RadiusArcmin = 16
	b, _ := New(s)
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different radii share a fingerprint")
	}
}

// Fingerprints must not depend on the order collections or columns were
// requested in.
func TestFingerprint_OrderInsensitive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := gen.OneConstOf("asas", "linear", "css", "ogle", "ztf")

	properties.Property("collection and column order never changes the fingerprint", prop.ForAll(
		func(colls []string, cols []string, swap int) bool {
			s := coneSpec()
			s.Collections = colls
			s.Columns = cols
			a, err := New(s)
			if err != nil {
				return false
			}

			shuffled := Spec{
				Kind:        s.Kind,
				Collections: rotate(colls, swap),
				Columns:     rotate(cols, swap),
				Cone:        &ConeParams{RA: 290, Dec: 45, RadiusArcmin: 15},
			}
			b, err := New(shuffled)
			if err != nil {
				return false
			}
			return a.Fingerprint() == b.Fingerprint()
		},
		gen.SliceOf(names),
		gen.SliceOf(gen.OneConstOf("mag", "nepochs", "period", "amplitude")),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}

func rotate(in []string, by int) []string {
	if len(in) == 0 {
		return in
	}
	by = by % len(in)
	out := append([]string(nil), in[by:]...)
	return append(out, in[:by]...)
}

func TestVisibility_Shared(t *testing.T) {
	if VisibilityPrivate.Shared() {
		t.Error("private visibility must not be cache-shared")
	}
	if !VisibilityPublic.Shared() || !VisibilityUnlisted.Shared() {
		t.Error("public and unlisted visibilities must be cache-shared")
	}
}
