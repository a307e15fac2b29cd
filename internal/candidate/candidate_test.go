package candidate

import (
	"context"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andi-rb/osmmatch/internal/geo"
	"github.com/andi-rb/osmmatch/internal/osmgw"
)

// fakeGateway serves a single north-south way from (0,0) to (0,0.01),
// about 1.1km long, independent of the search point passed to WaysNear.
type fakeGateway struct{}

func (f *fakeGateway) WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error) {
	return []int64{1}, nil
}

func (f *fakeGateway) WayNodes(ctx context.Context, wayID int64) (osmgw.WayRecord, error) {
	recs, _ := f.WayNodesBatch(ctx, []int64{wayID})
	return recs[wayID], nil
}

func (f *fakeGateway) WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]osmgw.WayRecord, error) {
	return map[int64]osmgw.WayRecord{
		1: {WayID: 1, Nodes: []int64{10, 20}, Tags: osm.Tags{{Key: "highway", Value: "residential"}}},
	}, nil
}

func (f *fakeGateway) Node(ctx context.Context, nodeID int64) (osmgw.NodeRecord, error) {
	recs, _ := f.NodeBatch(ctx, []int64{nodeID})
	return recs[nodeID], nil
}

func (f *fakeGateway) NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]osmgw.NodeRecord, error) {
	return map[int64]osmgw.NodeRecord{
		10: {NodeID: 10, Lon: 0, Lat: 0},
		20: {NodeID: 20, Lon: 0, Lat: 0.01},
	}, nil
}

func (f *fakeGateway) WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error) {
	return []int64{1}, nil
}

func TestSearchFindsBothDirections(t *testing.T) {
	gw := &fakeGateway{}
	pt := geo.NewPoint(0.0001, 0.005) // slightly east of the midpoint

	cands, err := Search(context.Background(), gw, pt, Config{SearchRadiusM: 50})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	forward, backward := false, false
	for _, c := range cands {
		assert.InDelta(t, 0, c.XTE, 20)
		assert.Greater(t, c.Alongtrack, 0.0)
		assert.Less(t, c.Alongtrack, c.Segment.Distance)
		if c.Segment.Node1 == 10 {
			forward = true
		} else {
			backward = true
		}
	}
	assert.True(t, forward)
	assert.True(t, backward)
}

func TestSearchReturnsEmptyForNoWaysNear(t *testing.T) {
	gw := &emptyGateway{}
	pt := geo.NewPoint(0, 0)
	cands, err := Search(context.Background(), gw, pt, Config{SearchRadiusM: 50})
	require.NoError(t, err)
	require.Empty(t, cands)
}

type emptyGateway struct{}

func (e *emptyGateway) WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error) {
	return nil, nil
}
func (e *emptyGateway) WayNodes(ctx context.Context, wayID int64) (osmgw.WayRecord, error) {
	return osmgw.WayRecord{}, nil
}
func (e *emptyGateway) WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]osmgw.WayRecord, error) {
	return nil, nil
}
func (e *emptyGateway) Node(ctx context.Context, nodeID int64) (osmgw.NodeRecord, error) {
	return osmgw.NodeRecord{}, nil
}
func (e *emptyGateway) NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]osmgw.NodeRecord, error) {
	return nil, nil
}
func (e *emptyGateway) WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error) {
	return nil, nil
}

func TestSearchExcludesCandidatesBeyondRadius(t *testing.T) {
	gw := &fakeGateway{}
	farPt := geo.NewPoint(0.01, 0.005) // roughly 1.1km east of the way
	cands, err := Search(context.Background(), gw, farPt, Config{SearchRadiusM: 50})
	require.NoError(t, err)
	assert.Empty(t, cands)
}
