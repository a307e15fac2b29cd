// Package reconstruct reconciles the Viterbi decoder's chosen
// candidates and the router's inter-candidate paths into the
// contiguous segment list and summary rows spec.md §4.9 describes.
// Grounded on original_source/pyosmroute/osm/mapmatch.py's
// _points_summary/_segment_summary: per-row column extraction kept in
// spirit, reshaped from pandas DataFrame columns into plain Go
// structs. Each row's direction is taken from the chosen segment's own
// Direction rather than inferred by comparing consecutive rows.
package reconstruct

import (
	"time"

	"github.com/paulmach/osm"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/condition"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

// PointMatch is one row of the points summary (spec.md §4.9: "one row
// per non-gap observation with its chosen candidate...").
type PointMatch struct {
	ObservationIndex int
	DateTime         time.Time
	GPSLon, GPSLat   float64
	Extra            condition.Point // full conditioned point, including its unprefixed passthrough columns

	Candidate candidate.Candidate
	Weight    int // always 1 (spec.md §9 open question: vestigial, bit-compatibility only)
}

// RouteSegment is one row of the segments summary (spec.md §4.9).
// Direction mirrors wayseg.Segment.Direction and is always +1 or -1.
// Consecutive candidates on the same directed segment, including two
// that project to the same point, merge into one row; no direction=0
// row is produced.
type RouteSegment struct {
	Segment      wayseg.Segment
	Direction    int
	NodeTags     osm.Tags // tags of the node this direction advances toward
	PointIndices []int    // observation indices whose chosen candidate lies on this segment
}

// Break marks a discontinuity in the reconstructed path (spec.md §4.9
// / §4.8: no road-graph path existed between two consecutive chosen
// candidates within budget).
type Break struct {
	AfterObservationIndex int
}

// Transition is the router's computed link between consecutive
// non-gap observations' chosen candidates, supplied by the caller
// (pkg/matchengine), which already ran internal/router.CandidateDistance
// once per transition while scoring the HMM and reuses that result
// here instead of re-routing.
type Transition struct {
	FromIndex   int // observation index of c_k
	ToIndex     int // observation index of c_{k+1}
	RouteSegs   []wayseg.Segment
	Unreachable bool // true if route_distance was ∞: emit a Break instead of stitching
}

// Result is the full reconciliation output.
type Result struct {
	Points   []PointMatch
	Segments []RouteSegment
	Breaks   []Break
}

// Reconstruct builds the points and segments summaries from the
// decoder's chosen candidates (points, in observation order) and the
// router transitions already computed between consecutive pairs of
// them (spec.md §4.9).
func Reconstruct(points []PointMatch, transitions []Transition) Result {
	result := Result{Points: points}
	if len(points) == 0 {
		return result
	}

	byIndex := make(map[int]PointMatch, len(points))
	for _, p := range points {
		byIndex[p.ObservationIndex] = p
	}

	var segs []RouteSegment

	// appendOrMerge either folds obsIdx into the currently-open
	// segment (same directed way/segment as the last emitted row) or
	// opens a new row. obsIdx < 0 means "no observation attributes to
	// this segment" (an intermediate missing segment on a multi-hop
	// transition).
	appendOrMerge := func(seg wayseg.Segment, obsIdx int) {
		if n := len(segs); n > 0 {
			last := &segs[n-1]
			if last.Segment.WayID == seg.WayID &&
				last.Segment.SegmentIndex == seg.SegmentIndex &&
				last.Segment.Direction == seg.Direction {
				if obsIdx >= 0 {
					last.PointIndices = append(last.PointIndices, obsIdx)
				}
				return
			}
		}
		var indices []int
		if obsIdx >= 0 {
			indices = []int{obsIdx}
		}
		segs = append(segs, RouteSegment{
			Segment:      seg,
			Direction:    int(seg.Direction),
			NodeTags:     seg.NodeTags,
			PointIndices: indices,
		})
	}

	first := byIndex[points[0].ObservationIndex]
	appendOrMerge(first.Candidate.Segment, first.ObservationIndex)

	for _, tr := range transitions {
		to, ok := byIndex[tr.ToIndex]
		if !ok {
			continue
		}

		if tr.Unreachable {
			result.Breaks = append(result.Breaks, Break{AfterObservationIndex: tr.FromIndex})
			appendOrMerge(to.Candidate.Segment, to.ObservationIndex)
			continue
		}

		from := byIndex[tr.FromIndex]
		sameSegment := from.Candidate.Segment.WayID == to.Candidate.Segment.WayID &&
			from.Candidate.Segment.SegmentIndex == to.Candidate.Segment.SegmentIndex &&
			from.Candidate.Segment.Direction == to.Candidate.Segment.Direction

		if sameSegment {
			appendOrMerge(to.Candidate.Segment, to.ObservationIndex)
			continue
		}

		for _, missing := range tr.RouteSegs {
			appendOrMerge(missing, -1)
		}
		appendOrMerge(to.Candidate.Segment, to.ObservationIndex)
	}

	result.Segments = segs
	return result
}

// Stats summarizes a match run (spec.md §4.9).
type Stats struct {
	Result            string
	InPoints          int
	CleanedPoints     int
	MatchedPoints     int
	MatchedProportion float64
	GPSDistanceM      float64
	SegmentDistanceM  float64
	MeanXTE           float64
	TripDurationMin   float64
}
