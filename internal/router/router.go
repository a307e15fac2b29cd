// Package router implements shortest-path search over a lazily
// expanded OSM node graph: no graph is ever built or held across calls
// (spec.md §4.3: "the router is stateless between match invocations;
// no contraction, no persistent adjacency"). Grounded on
// pkg/engine/routingalgorithm/a_star2.go for the A* loop shape
// (costSoFar/cameFrom maps, priority-queue-with-decrease-key) and on
// original_source/pyosmroute/osm/_routing.py's Router.doRoute for the
// maxdist-cutoff, closed-list, and best-first tie-breaking semantics a
// live, ungraphed OSM source requires.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/andi-rb/osmmatch/internal/geo"
	"github.com/andi-rb/osmmatch/internal/osmgw"
	"github.com/andi-rb/osmmatch/internal/util"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

// ErrNoRoute is returned when the search space is exhausted before
// reaching to (spec.md §4.3: "a network gap or oneway contradiction
// yields a distinct 'no route' outcome, not an error").
var ErrNoRoute = errors.New("router: no route found")

// ErrMaxDistanceExceeded is returned when every frontier node's
// cost-so-far has passed maxDistM without reaching to, the
// max-velocity-based cutoff spec.md §4.3 requires so the router never
// searches arbitrarily far for an unreachable or absurd transition.
var ErrMaxDistanceExceeded = errors.New("router: max distance exceeded")

// Result is a computed shortest path between two OSM nodes.
type Result struct {
	Nodes    []int64
	Segments []wayseg.Segment
	Distance float64 // meters
}

// cameFromEntry is the back-pointer stored per visited node during the
// search (spec.md §4.3 / a_star2.go's cameFromPair).
type cameFromEntry struct {
	prevNode int64
	seg      wayseg.Segment
	hasSeg   bool
}

// adjacency lazily expands a node's outgoing directed segments via the
// gateway, memoizing per node id for the duration of one Route call
// (spec.md §5: "adjacency may be cached within a single router
// invocation, never across invocations").
type adjacency struct {
	ctx   context.Context
	gw    osmgw.Gateway
	cache map[int64][]wayseg.Segment
}

func newAdjacency(ctx context.Context, gw osmgw.Gateway) *adjacency {
	return &adjacency{ctx: ctx, gw: gw, cache: make(map[int64][]wayseg.Segment)}
}

func (a *adjacency) outgoing(nodeID int64) ([]wayseg.Segment, error) {
	if segs, ok := a.cache[nodeID]; ok {
		return segs, nil
	}

	wayIDs, err := a.gw.WaysAtNode(a.ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("router: ways_at_node: %w", err)
	}

	wayRecs, err := a.gw.WayNodesBatch(a.ctx, wayIDs)
	if err != nil {
		return nil, fmt.Errorf("router: way_nodes: %w", err)
	}

	nodeIDSet := map[int64]bool{}
	var nodeIDs []int64
	for _, rec := range wayRecs {
		for _, id := range rec.Nodes {
			if !nodeIDSet[id] {
				nodeIDSet[id] = true
				nodeIDs = append(nodeIDs, id)
			}
		}
	}
	nodeRecs, err := a.gw.NodeBatch(a.ctx, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("router: nodes: %w", err)
	}
	nodeByID := make(map[int64]wayseg.Node, len(nodeRecs))
	for id, rec := range nodeRecs {
		nodeByID[id] = wayseg.Node{NodeID: id, Lon: rec.Lon, Lat: rec.Lat, Tags: rec.Tags}
	}

	var out []wayseg.Segment
	for wayID, rec := range wayRecs {
		way := wayseg.Way{WayID: wayID, Nodes: rec.Nodes, Tags: rec.Tags}
		for _, seg := range wayseg.BuildSegments(way, nodeByID) {
			if seg.Node1 == nodeID {
				out = append(out, seg)
			}
		}
	}
	a.cache[nodeID] = out
	return out, nil
}

// Route finds the shortest directed path from -> to, honoring one-way
// segments (BuildSegments already omits the reverse direction for
// one-way ways) and aborting once every frontier cost exceeds maxDistM.
func Route(ctx context.Context, gw osmgw.Gateway, from, to int64, maxDistM float64) (Result, error) {
	if from == to {
		return Result{Nodes: []int64{from}, Distance: 0}, nil
	}

	adj := newAdjacency(ctx, gw)

	toRec, err := gw.Node(ctx, to)
	if err != nil {
		return Result{}, fmt.Errorf("router: target node: %w", err)
	}
	toPt := geo.NewPoint(toRec.Lon, toRec.Lat)

	costSoFar := map[int64]float64{from: 0}
	cameFrom := map[int64]cameFromEntry{from: {prevNode: -1}}

	pq := newMinHeap[int64]()
	pq.Insert(pqNode[int64]{Rank: 0, TieBreak: from, Item: from})

	pruned := false
	for pq.Size() > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		current, _ := pq.ExtractMin()
		if current.Item == to {
			return reconstruct(cameFrom, from, to, costSoFar[to])
		}
		if costSoFar[current.Item] > maxDistM {
			continue
		}

		segs, err := adj.outgoing(current.Item)
		if err != nil {
			return Result{}, err
		}
		for _, seg := range segs {
			newCost := costSoFar[current.Item] + seg.Distance
			if newCost > maxDistM {
				pruned = true
				continue
			}
			neighbor := seg.Node2
			prevCost, seen := costSoFar[neighbor]
			if !seen || newCost < prevCost {
				costSoFar[neighbor] = newCost

				neighborRec, err := gw.Node(ctx, neighbor)
				if err != nil {
					return Result{}, fmt.Errorf("router: neighbor node: %w", err)
				}
				heuristic := geo.Distance(geo.NewPoint(neighborRec.Lon, neighborRec.Lat), toPt)
				priority := newCost + heuristic

				pq.DecreaseKey(pqNode[int64]{Rank: priority, TieBreak: neighbor, Item: neighbor})
				cameFrom[neighbor] = cameFromEntry{prevNode: current.Item, seg: seg, hasSeg: true}
			}
		}
	}

	if pruned {
		return Result{}, ErrMaxDistanceExceeded
	}
	return Result{}, ErrNoRoute
}

func reconstruct(cameFrom map[int64]cameFromEntry, from, to int64, distance float64) (Result, error) {
	var nodes []int64
	var segs []wayseg.Segment

	cur := to
	for cur != -1 {
		nodes = append(nodes, cur)
		entry, ok := cameFrom[cur]
		if !ok {
			break
		}
		if entry.hasSeg {
			segs = append(segs, entry.seg)
		}
		cur = entry.prevNode
	}

	return Result{Nodes: util.Reverse(nodes), Segments: util.Reverse(segs), Distance: distance}, nil
}
