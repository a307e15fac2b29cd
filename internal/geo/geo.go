// Package geo implements the spherical-Earth geodesy primitives the
// map-matching engine builds on: great-circle distance, forward
// bearing, cross-track/along-track decomposition, and projection of a
// point onto a segment. All angles are accepted and returned in
// degrees; radians are used only internally. Every function is a pure,
// deterministic function of its inputs.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusM is the spherical Earth radius used throughout the
// engine, in meters.
const EarthRadiusM = 6371000.0

// Point is a geographic coordinate, longitude first to match the
// (lon,lat) convention used at the engine's external interfaces.
type Point struct {
	Lon float64
	Lat float64
}

func NewPoint(lon, lat float64) Point { return Point{Lon: lon, Lat: lat} }

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// Distance returns the great-circle distance between a and b, in
// meters.
func Distance(a, b Point) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusM
}

// Bearing returns the initial forward bearing travelling from a to b,
// in degrees, 0 = north, clockwise positive, range [0, 360).
func Bearing(a, b Point) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	theta := math.Atan2(y, x)
	deg := math.Mod(toDeg(theta)+360, 360)
	return deg
}

// AngularDifference returns the smallest absolute difference between
// two bearings (or any two angles in degrees), in the range [0, 180].
func AngularDifference(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// AlongAndCrossTrack decomposes p relative to the great-circle segment
// a->b: alongM is the signed along-track distance from a toward b (may
// be negative, or greater than Distance(a,b), if p's perpendicular
// foot falls outside the segment); xteM is the unsigned perpendicular
// (cross-track) distance, both in meters.
func AlongAndCrossTrack(a, b, p Point) (alongM, xteM float64) {
	R := EarthRadiusM

	delta13 := a.latLng().Distance(p.latLng()).Radians()
	if delta13 == 0 {
		return 0, 0
	}

	theta13 := toRad(Bearing(a, p))
	theta12 := toRad(Bearing(a, b))

	xte := math.Asin(math.Sin(delta13) * math.Sin(theta13-theta12))

	cosAtd := math.Cos(delta13) / math.Cos(xte)
	// guard against floating point drift pushing the ratio outside [-1,1]
	cosAtd = math.Max(-1, math.Min(1, cosAtd))
	atd := math.Acos(cosAtd)

	// sign of along-track: negative if p projects behind a
	sign := 1.0
	if math.Cos(theta13-theta12) < 0 {
		sign = -1.0
	}

	return sign * atd * R, math.Abs(xte) * R
}

// ProjectOnSegment returns the point on the great-circle segment a->b
// nearest to p, clamped to the segment's endpoints.
func ProjectOnSegment(a, b, p Point) Point {
	segLen := Distance(a, b)
	if segLen == 0 {
		return a
	}

	along, _ := AlongAndCrossTrack(a, b, p)
	along = clamp(along, 0, segLen)

	frac := along / segLen

	aPt := s2.PointFromLatLng(a.latLng())
	bPt := s2.PointFromLatLng(b.latLng())

	if frac <= 0 {
		return a
	}
	if frac >= 1 {
		return b
	}

	// interpolate along the great-circle arc between a and b, then
	// re-project to guard against drift off the arc plane.
	interp := s2.Interpolate(frac, aPt, bPt)
	projected := s2.Project(interp, aPt, bPt)
	ll := s2.LatLngFromPoint(projected)
	return Point{Lon: ll.Lng.Degrees(), Lat: ll.Lat.Degrees()}
}

// DestinationPoint returns the point reached by travelling distanceM
// meters from p on the given bearing (degrees).
func DestinationPoint(p Point, bearingDeg, distanceM float64) Point {
	ll := p.latLng()
	brng := toRad(bearingDeg)
	angDist := distanceM / EarthRadiusM

	lat1 := ll.Lat.Radians()
	lon1 := ll.Lng.Radians()

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angDist) + math.Cos(lat1)*math.Sin(angDist)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(angDist)*math.Cos(lat1),
		math.Cos(angDist)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Lon: toDeg(lon2), Lat: toDeg(lat2)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
