// Package wayseg decomposes OSM ways into directed segments with
// precomputed geometry, and extracts the tags the rest of the engine
// needs (spec.md §3, §4.3).
package wayseg

import (
	"github.com/paulmach/osm"

	"github.com/andi-rb/osmmatch/internal/geo"
)

// Way is an OSM way: an ordered list of node ids sharing tags.
type Way struct {
	WayID int64
	Nodes []int64
	Tags  osm.Tags
}

// OneWay reports whether the way only permits travel in its stored
// node order (spec.md §3): explicit oneway=yes/1/true, or implied by
// a highway type that is one-way by convention.
func (w Way) OneWay() bool {
	return IsOneWay(w.Tags)
}

var onewayImpliedHighways = map[string]bool{
	"motorway":      true,
	"motorway_link": true,
}

func IsOneWay(tags osm.Tags) bool {
	switch tags.Find("oneway") {
	case "yes", "1", "true":
		return true
	case "-1":
		return true
	}
	return onewayImpliedHighways[tags.Find("highway")]
}

// Node is an OSM node: coordinates plus tags.
type Node struct {
	NodeID int64
	Lon    float64
	Lat    float64
	Tags   osm.Tags
}

func (n Node) Point() geo.Point { return geo.NewPoint(n.Lon, n.Lat) }

// Direction is the orientation of a segment relative to the way's
// stored node order: +1 matches stored order, -1 is reversed.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Segment is a directed adjacent-node pair within a way (spec.md §3).
type Segment struct {
	WayID        int64
	SegmentIndex int
	Node1        int64
	Node2        int64
	Direction    Direction

	P1, P2   geo.Point
	Distance float64 // meters, great-circle
	Bearing  float64 // degrees, forward bearing from P1 to P2

	TypeTag string // tags["highway"]
	OneWay  bool
	WayTags osm.Tags
	// NodeTags carries node2's tags for route-output purposes
	// (spec.md §4.3: "node tags carried from node2 for the route output").
	NodeTags osm.Tags
}

// BuildSegments slides a window of 2 nodes across way.Nodes, producing
// one Segment per adjacent pair (two, opposite-direction, if the way
// is bidirectional; one, forward-only, if one-way). nodeByID must
// contain every id referenced by way.Nodes.
func BuildSegments(way Way, nodeByID map[int64]Node) []Segment {
	oneway := way.OneWay()
	typetag := way.Tags.Find("highway")

	segs := make([]Segment, 0, len(way.Nodes)-1)
	for i := 0; i+1 < len(way.Nodes); i++ {
		n1, ok1 := nodeByID[way.Nodes[i]]
		n2, ok2 := nodeByID[way.Nodes[i+1]]
		if !ok1 || !ok2 {
			continue
		}

		p1, p2 := n1.Point(), n2.Point()
		dist := geo.Distance(p1, p2)
		bearing := geo.Bearing(p1, p2)

		segs = append(segs, Segment{
			WayID:        way.WayID,
			SegmentIndex: i,
			Node1:        n1.NodeID,
			Node2:        n2.NodeID,
			Direction:    Forward,
			P1:           p1,
			P2:           p2,
			Distance:     dist,
			Bearing:      bearing,
			TypeTag:      typetag,
			OneWay:       oneway,
			WayTags:      way.Tags,
			NodeTags:     n2.Tags,
		})

		if !oneway {
			segs = append(segs, Segment{
				WayID:        way.WayID,
				SegmentIndex: i,
				Node1:        n2.NodeID,
				Node2:        n1.NodeID,
				Direction:    Backward,
				P1:           p2,
				P2:           p1,
				Distance:     dist,
				Bearing:      normalizeBearing(bearing + 180),
				TypeTag:      typetag,
				OneWay:       oneway,
				WayTags:      way.Tags,
				NodeTags:     n1.Tags,
			})
		}
	}
	return segs
}

func normalizeBearing(b float64) float64 {
	for b < 0 {
		b += 360
	}
	for b >= 360 {
		b -= 360
	}
	return b
}
