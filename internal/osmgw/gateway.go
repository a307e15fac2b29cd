// Package osmgw is the road-network gateway: the only part of the
// engine that talks to the database (spec.md §4.2). It exposes four
// narrow, typed queries — WaysNear, WayNodes, Node, WaysAtNode — and
// owns all coordinate-transform and spatial-index coupling.
package osmgw

import (
	"context"
	"errors"

	"github.com/paulmach/osm"
)

// ErrTransient marks a gateway failure the caller should treat as
// retryable (spec.md §7: "query timeout or connectivity loss").
var ErrTransient = errors.New("osmgw: transient gateway error")

// ErrInternal marks a gateway failure that reflects a contradicted
// invariant in the underlying data (spec.md §7: "node referenced by a
// way but not in planet_osm_nodes").
var ErrInternal = errors.New("osmgw: internal invariant violated")

// NodeRecord is a row from planet_osm_nodes together with its tags.
type NodeRecord struct {
	NodeID int64
	Lon    float64
	Lat    float64
	Tags   osm.Tags
}

// WayRecord is a row from planet_osm_ways joined with its ordered node
// list, matching the (tags, [nodeid]) shape of spec.md §4.2's
// way_nodes operation.
type WayRecord struct {
	WayID int64
	Tags  osm.Tags
	Nodes []int64
}

// Gateway is the read-only road-network query surface spec.md §4.2
// requires. All methods are safe to call concurrently; an
// implementation may fan out internally (spec.md §5) but must not
// mutate any state shared across match calls.
type Gateway interface {
	// WaysNear returns the ids of all ways whose geometry has any point
	// within radiusM meters of (lon, lat). Ordering is not guaranteed.
	WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error)

	// WayNodes returns a way's tags and ordered node id list. Batched
	// variants are preferred by callers that need many ways at once.
	WayNodes(ctx context.Context, wayID int64) (WayRecord, error)
	WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]WayRecord, error)

	// Node returns a single node's coordinates and tags.
	Node(ctx context.Context, nodeID int64) (NodeRecord, error)
	NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]NodeRecord, error)

	// WaysAtNode returns the ids of ways that include nodeID, used by
	// the router to expand adjacency lazily.
	WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error)
}
