package router

import (
	"context"
	"math"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/osmgw"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

// CandidateDistance computes route_distance(i,j) for spec.md §4.6: the
// driving distance from ci's projected point to cj's projected point,
// honoring direction and sub-segment position rather than routing
// node-to-node. Grounded on
// original_source/pyosmroute/osm/_osmcache.py's driving_distance, which
// adjusts a node-to-node shortest path by the start/end sub-segment
// offsets the same way.
//
// Returns (math.Inf(1), nil, nil) (not an error) when no route exists
// or the budget is exceeded, since §4.6 treats ∞ cost as a normal
// outcome. The returned segments are the graph-traversed "missing
// segments" between ci's exit node and cj's entry node, used by
// internal/reconstruct to stitch the final route; they are empty when
// ci and cj share a segment (no intermediate graph traversal
// happened).
func CandidateDistance(ctx context.Context, gw osmgw.Gateway, ci, cj candidate.Candidate, maxDistM float64) (float64, []wayseg.Segment, error) {
	sameDirectedSegment := ci.Segment.WayID == cj.Segment.WayID &&
		ci.Segment.SegmentIndex == cj.Segment.SegmentIndex &&
		ci.Segment.Direction == cj.Segment.Direction

	if sameDirectedSegment && cj.Alongtrack >= ci.Alongtrack {
		return cj.Alongtrack - ci.Alongtrack, nil, nil
	}

	exitNode := ci.Segment.Node2
	entryNode := cj.Segment.Node1
	remaining := ci.Segment.Distance - ci.Alongtrack

	if exitNode == entryNode {
		return remaining + cj.Alongtrack, nil, nil
	}

	result, err := Route(ctx, gw, exitNode, entryNode, maxDistM)
	if err != nil {
		if err == ErrNoRoute || err == ErrMaxDistanceExceeded {
			return math.Inf(1), nil, nil
		}
		return 0, nil, err
	}
	return remaining + result.Distance + cj.Alongtrack, result.Segments, nil
}
