package coords

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Angular unit conversions.
const (
	ArcsecPerDeg = 3600.0
	ArcminPerDeg = 60.0
)

var sexagesimalRegex = regexp.MustCompile(
	`^(\d{1,2}):(\d{2}):(\d{2}(?:\.\d+)?)\s+([+-]?\d{1,2}):(\d{2}):(\d{2}(?:\.\d+)?)$`,
)

// Valid checks that ra is in [0,360) and dec in [-90,90].
func Valid(ra, dec float64) bool {
	return ra >= 0 && ra < 360 && dec >= -90 && dec <= 90
}

// Parse reads a coordinate pair in decimal degrees ("290.0 45.0") or
// sexagesimal form ("19:20:00.0 +45:00:00.0"). Sexagesimal RA is in hours.
func Parse(s string) (ra, dec float64, err error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, 0, fmt.Errorf("empty coordinate string")
	}

	if m := sexagesimalRegex.FindStringSubmatch(trimmed); m != nil {
		ra, dec, err = parseSexagesimal(m)
	} else {
		ra, dec, err = parseDecimal(trimmed)
	}
	if err != nil {
		return 0, 0, err
	}
	if !Valid(ra, dec) {
		return 0, 0, fmt.Errorf("coordinates out of range: ra=%g dec=%g", ra, dec)
	}
	return ra, dec, nil
}

func parseDecimal(s string) (float64, float64, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two coordinate fields, got %d", len(fields))
	}
	ra, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad right ascension %q", fields[0])
	}
	dec, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad declination %q", fields[1])
	}
	return ra, dec, nil
}

func parseSexagesimal(m []string) (float64, float64, error) {
	raH, _ := strconv.ParseFloat(m[1], 64)
	raM, _ := strconv.ParseFloat(m[2], 64)
	raS, _ := strconv.ParseFloat(m[3], 64)
	if raH >= 24 || raM >= 60 || raS >= 60 {
		return 0, 0, fmt.Errorf("right ascension fields out of range")
	}
	ra := (raH + raM/60 + raS/3600) * 15 // hours to degrees

	decStr := m[4]
	sign := 1.0
	if strings.HasPrefix(decStr, "-") {
		sign = -1
	}
	decD, _ := strconv.ParseFloat(strings.TrimLeft(decStr, "+-"), 64)
	decM, _ := strconv.ParseFloat(m[5], 64)
	decS, _ := strconv.ParseFloat(m[6], 64)
	if decD > 90 || decM >= 60 || decS >= 60 {
		return 0, 0, fmt.Errorf("declination fields out of range")
	}
	dec := sign * (decD + decM/60 + decS/3600)

	return ra, dec, nil
}

// Separation returns the great-circle distance in arcseconds between two
// sky positions given in decimal degrees, via the haversine formula.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	ra1r := ra1 * math.Pi / 180
	ra2r := ra2 * math.Pi / 180
	dec1r := dec1 * math.Pi / 180
	dec2r := dec2 * math.Pi / 180

	dDec := dec2r - dec1r
	dRA := ra2r - ra1r

	a := math.Sin(dDec/2)*math.Sin(dDec/2) +
		math.Cos(dec1r)*math.Cos(dec2r)*math.Sin(dRA/2)*math.Sin(dRA/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * 180 / math.Pi * ArcsecPerDeg
}
