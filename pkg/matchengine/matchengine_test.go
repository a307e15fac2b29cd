package matchengine

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/condition"
	"github.com/andi-rb/osmmatch/internal/geo"
	"github.com/andi-rb/osmmatch/internal/hmm"
	"github.com/andi-rb/osmmatch/internal/matcherr"
	"github.com/andi-rb/osmmatch/internal/osmgw"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

// lineGateway serves a single bidirectional residential way strung
// through six nodes spaced ~56m apart along the equator, eastbound.
type lineGateway struct {
	nodes map[int64][2]float64 // lon, lat
	way   osmgw.WayRecord
}

func newLineGateway() *lineGateway {
	nodeIDs := []int64{1, 2, 3, 4, 5, 6}
	g := &lineGateway{
		nodes: make(map[int64][2]float64, len(nodeIDs)),
		way: osmgw.WayRecord{
			WayID: 900,
			Nodes: nodeIDs,
			Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
		},
	}
	for i, id := range nodeIDs {
		g.nodes[id] = [2]float64{0.0005 * float64(i), 0}
	}
	return g
}

func (g *lineGateway) WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error) {
	return []int64{g.way.WayID}, nil
}

func (g *lineGateway) WayNodes(ctx context.Context, wayID int64) (osmgw.WayRecord, error) {
	return g.way, nil
}

func (g *lineGateway) WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]osmgw.WayRecord, error) {
	out := make(map[int64]osmgw.WayRecord)
	for _, id := range wayIDs {
		if id == g.way.WayID {
			out[id] = g.way
		}
	}
	return out, nil
}

func (g *lineGateway) Node(ctx context.Context, nodeID int64) (osmgw.NodeRecord, error) {
	c := g.nodes[nodeID]
	return osmgw.NodeRecord{NodeID: nodeID, Lon: c[0], Lat: c[1]}, nil
}

func (g *lineGateway) NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]osmgw.NodeRecord, error) {
	out := make(map[int64]osmgw.NodeRecord)
	for _, id := range nodeIDs {
		if c, ok := g.nodes[id]; ok {
			out[id] = osmgw.NodeRecord{NodeID: id, Lon: c[0], Lat: c[1]}
		}
	}
	return out, nil
}

func (g *lineGateway) WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error) {
	if _, ok := g.nodes[nodeID]; ok {
		return []int64{g.way.WayID}, nil
	}
	return nil, nil
}

// eastboundRaw builds n raw GPS rows walking east along the line,
// offset a few meters north of the road so xte is small but nonzero,
// spaced 10 seconds apart.
func eastboundRaw(n int) []condition.RawPoint {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := make([]condition.RawPoint, n)
	for i := 0; i < n; i++ {
		raw[i] = condition.RawPoint{
			OriginalIndex: i,
			DateTimeRaw:   base.Add(time.Duration(i*10) * time.Second).Format("2006-01-02 15:04:05"),
			Lon:           0.0005 * float64(i),
			Lat:           0.00003,
		}
	}
	return raw
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinPoints = 3
	cfg.ViterbiLookahead = 0
	cfg.DBThreads = 2
	return cfg
}

func TestMatchFollowsEastboundRoadForward(t *testing.T) {
	gw := newLineGateway()
	eng := New(gw)

	raw := eastboundRaw(6)
	result, err := eng.Match(context.Background(), raw, testConfig())
	require.NoError(t, err)

	require.Len(t, result.Points, 6)
	assert.Empty(t, result.Breaks)
	assert.Equal(t, 6, result.Stats.MatchedPoints)
	assert.Equal(t, 1.0, result.Stats.MatchedProportion)

	for _, p := range result.Points {
		assert.Equal(t, wayseg.Forward, p.Candidate.Segment.Direction)
		assert.Equal(t, int64(900), p.Candidate.Segment.WayID)
	}

	require.NotEmpty(t, result.Segments)
	for _, seg := range result.Segments {
		assert.Equal(t, 1, seg.Direction)
	}
}

// TestRouteBetweenCacheKeyIncludesSuccessor mirrors what WithoutPoint
// does when a maxiter>1 retry drops a point: the shared cache map is
// reused by a derived problem whose observation at the same slice
// position now has a different successor. A cache keyed only on the
// origin's originalIndex (plus candidate indices) would return the
// stale route computed for the old successor; keying on both
// endpoints must not.
func TestRouteBetweenCacheKeyIncludesSuccessor(t *testing.T) {
	gw := newLineGateway()
	ctx := context.Background()
	hmmCfg := hmm.Config{SigmaZ: hmm.DefaultSigmaZ, Beta: hmm.DefaultBeta, BearingPenaltyWeight: hmm.DefaultBearingPenaltyWeight}

	search := func(lon float64) []candidate.Candidate {
		cands, err := candidate.Search(ctx, gw, geo.NewPoint(lon, 0.00003), candidate.Config{SearchRadiusM: 50})
		require.NoError(t, err)
		require.NotEmpty(t, cands)
		return cands
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mkObs := func(originalIndex int, lon float64, t time.Time) observation {
		return observation{
			originalIndex: originalIndex,
			point:         condition.Point{OriginalIndex: originalIndex, DateTime: t, Lon: lon, Lat: 0.00003},
			candidates:    search(lon),
		}
	}

	a := mkObs(0, 0.0005, base)
	b := mkObs(1, 0.001, base.Add(10*time.Second))
	c := mkObs(2, 0.002, base.Add(20*time.Second))

	prob := newProblem(ctx, gw, []observation{a, b, c}, hmmCfg, 250)
	abRoute := prob.routeBetween(0, 0, 0) // A -> B, caches key (0,1,0,0)
	require.NoError(t, prob.err)

	dropped, err := prob.WithoutPoint(1) // simulate b dropped
	require.NoError(t, err)
	next := dropped.(*problem)
	require.Equal(t, []observation{a, c}, next.obs)

	acRoute := next.routeBetween(0, 0, 0) // A -> C, must not reuse A -> B's cache entry
	require.NoError(t, next.err)

	assert.NotEqual(t, abRoute.distance, acRoute.distance)
	assert.Greater(t, acRoute.distance, abRoute.distance)
}

func TestMatchAbortsWhenTooFewPointsSurviveCleaning(t *testing.T) {
	gw := newLineGateway()
	eng := New(gw)

	raw := eastboundRaw(2)
	cfg := testConfig()
	cfg.MinPoints = 5

	_, err := eng.Match(context.Background(), raw, cfg)
	require.Error(t, err)
	assert.Equal(t, matcherr.NotEnoughPoints, matcherr.KindOf(err))
}
