// Package skyindex provides an in-memory spatial index over (ra, dec)
// positions, built once per collection at load time and read-only after
// that, so concurrent searches share it without locking.
//
// Objects are partitioned into fixed-height declination zones sized to
// the maximum supported search radius, so a radius query probes at most
// three adjacent zones. Within a candidate zone an RA window prunes
// candidates before the exact great-circle separation test.
package skyindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
)

// MaxRadiusArcmin is the largest supported cone radius. The zone height
// equals it, bounding the number of zones a query probes.
const MaxRadiusArcmin = 60.0

const zoneHeightDeg = MaxRadiusArcmin / coords.ArcminPerDeg

// Point is one indexed object position.
type Point struct {
	ObjectID string
	RA       float64
	Dec      float64
}

// Match is one radius-query hit.
type Match struct {
	ObjectID   string
	DistArcsec float64
}

// Index is the per-collection declination-zone index.
type Index struct {
	zones [][]Point // each zone sorted by RA
	n     int
}

// Build constructs an index over the given points. The input slice is not
// retained.
func Build(points []Point) *Index {
	nz := int(math.Ceil(180 / zoneHeightDeg))
	idx := &Index{zones: make([][]Point, nz), n: len(points)}
	for _, p := range points {
		z := zoneOf(p.Dec, nz)
		idx.zones[z] = append(idx.zones[z], p)
	}
	for _, zone := range idx.zones {
		sort.Slice(zone, func(i, j int) bool { return zone[i].RA < zone[j].RA })
	}
	return idx
}

func zoneOf(dec float64, nz int) int {
	z := int((dec + 90) / zoneHeightDeg)
	if z < 0 {
		z = 0
	}
	if z >= nz {
		z = nz - 1
	}
	return z
}

// Len returns the number of indexed points.
func (idx *Index) Len() int { return idx.n }

// RadiusQuery returns every object within radiusArcmin of the center,
// sorted ascending by distance with ties broken by ascending object id.
// Radii above MaxRadiusArcmin are rejected.
func (idx *Index) RadiusQuery(ra, dec, radiusArcmin float64) ([]Match, error) {
	if radiusArcmin <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", domain.ErrValidation)
	}
	if radiusArcmin > MaxRadiusArcmin {
		return nil, fmt.Errorf("%w: radius %g arcmin exceeds the %g arcmin maximum",
			domain.ErrValidation, radiusArcmin, MaxRadiusArcmin)
	}
	if !coords.Valid(ra, dec) {
		return nil, fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
	}

	radiusDeg := radiusArcmin / coords.ArcminPerDeg
	radiusArcsec := radiusArcmin * 60

	matches := idx.collect(ra, dec, radiusDeg, radiusArcsec)
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistArcsec != matches[j].DistArcsec {
			return matches[i].DistArcsec < matches[j].DistArcsec
		}
		return matches[i].ObjectID < matches[j].ObjectID
	})
	return matches, nil
}

// NearestWithin returns the nearest object within maxArcsec of the point,
// or ok=false when nothing is that close. Equal distances resolve to the
// lower object id.
func (idx *Index) NearestWithin(ra, dec, maxArcsec float64) (Match, bool, error) {
	if maxArcsec <= 0 || maxArcsec > MaxRadiusArcmin*60 {
		return Match{}, false, fmt.Errorf("%w: match radius out of range", domain.ErrValidation)
	}
	if !coords.Valid(ra, dec) {
		return Match{}, false, fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
	}

	radiusDeg := maxArcsec / coords.ArcsecPerDeg
	matches := idx.collect(ra, dec, radiusDeg, maxArcsec)
	if len(matches) == 0 {
		return Match{}, false, nil
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.DistArcsec < best.DistArcsec ||
			(m.DistArcsec == best.DistArcsec && m.ObjectID < best.ObjectID) {
			best = m
		}
	}
	return best, true, nil
}

func (idx *Index) collect(ra, dec, radiusDeg, radiusArcsec float64) []Match {
	nz := len(idx.zones)
	zLo := zoneOf(dec-radiusDeg, nz)
	zHi := zoneOf(dec+radiusDeg, nz)

	var matches []Match
	for z := zLo; z <= zHi; z++ {
		zone := idx.zones[z]
		if len(zone) == 0 {
			continue
		}
		for _, lim := range raWindows(zone, ra, radiusDeg, z) {
			for i := lim[0]; i < lim[1]; i++ {
				p := zone[i]
				if d := coords.Separation(ra, dec, p.RA, p.Dec); d <= radiusArcsec {
					matches = append(matches, Match{ObjectID: p.ObjectID, DistArcsec: d})
				}
			}
		}
	}
	return matches
}

// raWindows returns [lo,hi) index ranges into the RA-sorted zone that can
// contain matches, accounting for RA shrink with declination and for
// wrap-around at 0/360. Near the poles the whole zone is scanned.
func raWindows(zone []Point, ra, radiusDeg float64, z int) [][2]int {
	// worst-case |dec| across the zone band decides the RA stretch
	bandEdge := math.Max(math.Abs(float64(z)*zoneHeightDeg-90), math.Abs(float64(z+1)*zoneHeightDeg-90))
	cosDec := math.Cos(bandEdge * math.Pi / 180)
	if cosDec < 1e-3 {
		return [][2]int{{0, len(zone)}}
	}

	halfWidth := radiusDeg / cosDec
	if halfWidth >= 180 {
		return [][2]int{{0, len(zone)}}
	}

	lo, hi := ra-halfWidth, ra+halfWidth
	search := func(a, b float64) [2]int {
		i := sort.Search(len(zone), func(k int) bool { return zone[k].RA >= a })
		j := sort.Search(len(zone), func(k int) bool { return zone[k].RA > b })
		return [2]int{i, j}
	}

	switch {
	case lo < 0:
		return [][2]int{search(0, hi), search(lo+360, 360)}
	case hi >= 360:
		return [][2]int{search(lo, 360), search(0, hi-360)}
	default:
		return [][2]int{search(lo, hi)}
	}
}
