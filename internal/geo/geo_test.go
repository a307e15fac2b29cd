package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceZero(t *testing.T) {
	p := NewPoint(-122.0, 47.0)
	assert.InDelta(t, 0, Distance(p, p), 1e-6)
}

func TestDistanceKnownDelta(t *testing.T) {
	// a and b 1 degree of longitude apart on the equator.
	a := NewPoint(0, 0)
	b := NewPoint(1, 0)
	got := Distance(a, b)
	// ~111.19 km per degree of longitude at the equator
	assert.InDelta(t, 111194.9, got, 50)
}

func TestBearingCardinalDirections(t *testing.T) {
	a := NewPoint(0, 0)
	north := NewPoint(0, 1)
	east := NewPoint(1, 0)

	assert.InDelta(t, 0, Bearing(a, north), 0.1)
	assert.InDelta(t, 90, Bearing(a, east), 0.1)
}

func TestAngularDifference(t *testing.T) {
	assert.InDelta(t, 10, AngularDifference(350, 0), 1e-9)
	assert.InDelta(t, 0, AngularDifference(10, 10), 1e-9)
	assert.InDelta(t, 180, AngularDifference(0, 180), 1e-9)
}

func TestAlongAndCrossTrackMidpoint(t *testing.T) {
	a := NewPoint(0, 0)
	b := NewPoint(0, 1) // due north
	mid := DestinationPoint(a, 0, Distance(a, b)/2)

	along, xte := AlongAndCrossTrack(a, b, mid)
	require.InDelta(t, Distance(a, b)/2, along, 1.0)
	assert.InDelta(t, 0, xte, 1.0)
}

func TestAlongAndCrossTrackOffLine(t *testing.T) {
	a := NewPoint(0, 0)
	b := NewPoint(0, 1)
	// a point ~100m east of the midpoint of the segment
	mid := DestinationPoint(a, 0, Distance(a, b)/2)
	off := DestinationPoint(mid, 90, 100)

	along, xte := AlongAndCrossTrack(a, b, off)
	assert.InDelta(t, Distance(a, b)/2, along, 5.0)
	assert.InDelta(t, 100, xte, 2.0)
}

func TestProjectOnSegmentClampsToEndpoints(t *testing.T) {
	a := NewPoint(0, 0)
	b := NewPoint(0, 1)
	behindA := DestinationPoint(a, 180, 500)

	proj := ProjectOnSegment(a, b, behindA)
	assert.InDelta(t, a.Lat, proj.Lat, 1e-6)
	assert.InDelta(t, a.Lon, proj.Lon, 1e-6)
}

func TestProjectOnSegmentInterior(t *testing.T) {
	a := NewPoint(0, 0)
	b := NewPoint(0, 1)
	mid := DestinationPoint(a, 0, Distance(a, b)/2)
	off := DestinationPoint(mid, 90, 50)

	proj := ProjectOnSegment(a, b, off)
	// projection should land back near the segment's longitude (0)
	assert.InDelta(t, 0, proj.Lon, 0.01)
	assert.True(t, math.Abs(proj.Lat-mid.Lat) < 0.1)
}
