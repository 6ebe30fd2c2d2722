package query

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stellarlab/lcsearch/internal/domain"
)

func TestParseUploadRows_Decimal(t *testing.T) {
	rows, skipped, err := ParseUploadRows("star-1 290.5 45.25\nstar-2 10.0 -3.5\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v, want none", skipped)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].ObjectID != "star-1" || rows[0].RA != 290.5 || rows[0].Dec != 45.25 {
		t.Errorf("row 0 = %+v", rows[0])
	}
}

func TestParseUploadRows_Sexagesimal(t *testing.T) {
	cases := []struct {
		name   string
		line   string
		ra, de float64
	}{
		{"colon form", "v123 19:20:00 45:30:00", 290, 45.5},
		{"seven fields", "v123 19 20 00 45 30 00", 290, 45.5},
		{"negative dec", "v124 06:00:00 -30:15:00", 90, -30.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, _, err := ParseUploadRows(tc.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(rows[0].RA-tc.ra) > 1e-9 || math.Abs(rows[0].Dec-tc.de) > 1e-9 {
				t.Errorf("got (%g, %g), want (%g, %g)", rows[0].RA, rows[0].Dec, tc.ra, tc.de)
			}
		})
	}
}

func TestParseUploadRows_SkipsCommentsAndBlanks(t *testing.T) {
	text := "# header\n\nstar-1 10 10\n   \n# trailing comment\n"
	rows, skipped, err := ParseUploadRows(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || len(skipped) != 0 {
		t.Errorf("rows = %d skipped = %v, want 1 row and no skips", len(rows), skipped)
	}
}

func TestParseUploadRows_ReportsSkippedLineNumbers(t *testing.T) {
	text := strings.Join([]string{
		"star-1 10 10",     // 1
		"broken",           // 2
		"star-2 400 10",    // 3: ra out of range
		"star-3 20 20",     // 4
		"star-4 ten twenty", // 5
	}, "\n")
	rows, skipped, err := ParseUploadRows(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	want := []int{2, 3, 5}
	if len(skipped) != len(want) {
		t.Fatalf("skipped = %v, want %v", skipped, want)
	}
	for i := range want {
		if skipped[i] != want[i] {
			t.Fatalf("skipped = %v, want %v", skipped, want)
		}
	}
}

func TestParseUploadRows_NoValidRows(t *testing.T) {
	_, _, err := ParseUploadRows("# only comments\nnot a row\n")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestParseUploadRows_TooManyRows(t *testing.T) {
	var b strings.Builder
	for i := 0; i <= MaxXMatchRows; i++ {
		fmt.Fprintf(&b, "obj-%d 10 10\n", i)
	}
	_, _, err := ParseUploadRows(b.String())
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}
