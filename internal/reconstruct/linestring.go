package reconstruct

import (
	"github.com/paulmach/orb"
	polyline "github.com/twpayne/go-polyline"
)

// LineGroup is one unbroken run of matched points (spec.md §6: "a list
// of {lon:[…], lat:[…]} groups, one per unbroken run"). Breaks split
// the points summary into one group each.
type LineGroup struct {
	Lon []float64
	Lat []float64
}

// Linestrings groups points by the breaks that interrupt them, in
// observation order. A break's AfterObservationIndex ends the group
// containing that observation index and starts a new one.
func Linestrings(points []PointMatch, breaks []Break) []LineGroup {
	if len(points) == 0 {
		return nil
	}
	cut := make(map[int]bool, len(breaks))
	for _, b := range breaks {
		cut[b.AfterObservationIndex] = true
	}

	var groups []LineGroup
	cur := LineGroup{}
	for _, p := range points {
		cur.Lon = append(cur.Lon, p.Candidate.Projected.Lon)
		cur.Lat = append(cur.Lat, p.Candidate.Projected.Lat)
		if cut[p.ObservationIndex] {
			groups = append(groups, cur)
			cur = LineGroup{}
		}
	}
	if len(cur.Lon) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// LineString renders a group as an orb.LineString, the geometry
// representation spec.md §6 uses at package boundaries.
func (g LineGroup) LineString() orb.LineString {
	ls := make(orb.LineString, len(g.Lon))
	for i := range g.Lon {
		ls[i] = orb.Point{g.Lon[i], g.Lat[i]}
	}
	return ls
}

// EncodePolyline renders a group as a Google-encoded-polyline string,
// the §6 DOMAIN STACK convenience alongside the plain lon/lat groups.
func (g LineGroup) EncodePolyline() string {
	coords := make([][]float64, len(g.Lon))
	for i := range g.Lon {
		coords[i] = []float64{g.Lat[i], g.Lon[i]}
	}
	return string(polyline.EncodeCoords(coords))
}
