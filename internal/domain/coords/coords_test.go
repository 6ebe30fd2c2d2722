package coords

import (
	"math"
	"testing"
)

func TestParse_Decimal(t *testing.T) {
	ra, dec, err := Parse("290.0 45.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ra != 290.0 || dec != 45.0 {
		t.Errorf("got (%g, %g), want (290, 45)", ra, dec)
	}
}

func TestParse_Sexagesimal(t *testing.T) {
	ra, dec, err := Parse("19:20:00.0 +45:00:00.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 19h20m = 19.3333h * 15 = 290 deg
	if math.Abs(ra-290.0) > 1e-9 {
		t.Errorf("ra = %g, want 290", ra)
	}
	if math.Abs(dec-45.0) > 1e-9 {
		t.Errorf("dec = %g, want 45", dec)
	}
}

func TestParse_SexagesimalNegativeDec(t *testing.T) {
	_, dec, err := Parse("00:30:00.0 -12:30:00.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(dec-(-12.5)) > 1e-9 {
		t.Errorf("dec = %g, want -12.5", dec)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"one field", "290.0"},
		{"non numeric", "abc def"},
		{"ra out of range", "360.0 45.0"},
		{"dec out of range", "290.0 91.0"},
		{"ra hours out of range", "25:00:00.0 +45:00:00.0"},
		{"dec minutes out of range", "19:20:00.0 +45:61:00.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Parse(tc.in); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.in)
			}
		})
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		ra, dec float64
		want    bool
	}{
		{0, 0, true},
		{359.999, 90, true},
		{0, -90, true},
		{360, 0, false},
		{-0.1, 0, false},
		{10, 90.01, false},
	}
	for _, tc := range cases {
		if got := Valid(tc.ra, tc.dec); got != tc.want {
			t.Errorf("Valid(%g, %g) = %v, want %v", tc.ra, tc.dec, got, tc.want)
		}
	}
}

func TestSeparation_SamePoint(t *testing.T) {
	if d := Separation(120, -30, 120, -30); d != 0 {
		t.Errorf("separation of identical points = %g, want 0", d)
	}
}

func TestSeparation_OneDegreeDec(t *testing.T) {
	d := Separation(180, 10, 180, 11)
	if math.Abs(d-ArcsecPerDeg) > 1e-6 {
		t.Errorf("1 degree in dec = %g arcsec, want %g", d, ArcsecPerDeg)
	}
}

func TestSeparation_RAWrapsWithCosDec(t *testing.T) {
	// at dec=60 one degree of RA spans only cos(60) = 0.5 degrees of arc
	d := Separation(100, 60, 101, 60)
	want := 0.5 * ArcsecPerDeg
	if math.Abs(d-want) > 10 {
		t.Errorf("1 degree RA at dec=60 = %g arcsec, want about %g", d, want)
	}
}
