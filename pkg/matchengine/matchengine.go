// Package matchengine is the top-level map-matching orchestrator: it
// wires input conditioning, candidate search, the HMM probability
// model, the router, and the Viterbi decoder into the single Match
// call spec.md §4 describes end to end. Grounded on
// original_source/pyosmroute/osm/mapmatch.py's osmmatch() for the
// control flow (clean -> candidate search -> drop gaps -> transition
// scoring -> decode -> maxiter retry -> reconstruct -> stats) and on
// pkg/engine/matching/hmm_mapmatching.go's HMMMapMatching.MapMatch for
// the Go-shaped, worker-pool-fed version of the same pipeline.
package matchengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/concurrent"
	"github.com/andi-rb/osmmatch/internal/condition"
	"github.com/andi-rb/osmmatch/internal/geo"
	"github.com/andi-rb/osmmatch/internal/hmm"
	"github.com/andi-rb/osmmatch/internal/matcherr"
	"github.com/andi-rb/osmmatch/internal/osmgw"
	"github.com/andi-rb/osmmatch/internal/reconstruct"
	"github.com/andi-rb/osmmatch/internal/router"
	"github.com/andi-rb/osmmatch/internal/viterbi"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

// safetyFactor multiplies the maxvel*Δt router cutoff (spec.md §4.6);
// unlike the other §6 parameters this one isn't caller-configurable in
// the source this is grounded on, so it's a package constant.
const safetyFactor = 1.5

// Config holds every spec.md §6 match parameter.
type Config struct {
	SearchRadiusM        float64
	MinPoints            int
	MaxVelocity          float64 // m/s
	SigmaZ               float64
	Beta                 float64
	MaxIter              int
	MinPointDistance     float64
	ParameterWindow      int
	BearingPenaltyWeight float64
	ViterbiLookahead     int
	PointsSummary        bool
	SegmentsSummary      bool
	DBThreads            int
}

func DefaultConfig() Config {
	return Config{
		SearchRadiusM:        50,
		MinPoints:            10,
		MaxVelocity:          250,
		SigmaZ:               hmm.DefaultSigmaZ,
		Beta:                 hmm.DefaultBeta,
		MaxIter:              1,
		MinPointDistance:     condition.DefaultMinDistance,
		ParameterWindow:      condition.DefaultParameterWindow,
		BearingPenaltyWeight: hmm.DefaultBearingPenaltyWeight,
		ViterbiLookahead:     1,
		PointsSummary:        true,
		SegmentsSummary:      true,
		DBThreads:            20,
	}
}

// Result is the full outcome of a Match call.
type Result struct {
	Stats       reconstruct.Stats
	Points      []reconstruct.PointMatch
	Segments    []reconstruct.RouteSegment
	Breaks      []reconstruct.Break
	Linestrings []reconstruct.LineGroup
}

// Engine runs matches against a fixed road-network gateway. Stateless
// between calls (spec.md §4.3): every field it holds is read-only
// shared infrastructure, never per-match state.
type Engine struct {
	gw osmgw.Gateway
}

func New(gw osmgw.Gateway) *Engine {
	return &Engine{gw: gw}
}

// Match runs the full pipeline over raw and returns the reconciled
// route, or a *matcherr.Error classifying why it could not.
func (e *Engine) Match(ctx context.Context, raw []condition.RawPoint, cfg Config) (Result, error) {
	tstart := time.Now()

	cleaned, err := condition.CleanPoints(raw, condition.Config{
		MinVelocity:     condition.DefaultMinVelocity,
		MaxVelocity:     cfg.MaxVelocity,
		MinDistance:     cfg.MinPointDistance,
		ParameterWindow: cfg.ParameterWindow,
	})
	if err != nil {
		return Result{}, matcherr.InternalErrorf("condition points: %w", err)
	}
	if len(cleaned) < cfg.MinPoints {
		return Result{}, matcherr.NotEnoughPointsf("only %d points survived cleaning, need %d", len(cleaned), cfg.MinPoints)
	}

	obs, err := e.searchCandidates(ctx, cleaned, cfg)
	if err != nil {
		return Result{}, matcherr.DBErrorf(err)
	}
	obs = dropGaps(obs)
	if len(obs) < cfg.MinPoints {
		return Result{}, matcherr.NotEnoughPointsf("only %d non-gap points, need %d", len(obs), cfg.MinPoints)
	}

	hmmCfg := hmm.Config{SigmaZ: cfg.SigmaZ, Beta: cfg.Beta, BearingPenaltyWeight: cfg.BearingPenaltyWeight}
	prob := newProblem(ctx, e.gw, obs, hmmCfg, cfg.MaxVelocity)

	retry, err := viterbi.DecodeWithRetries(prob, cfg.ViterbiLookahead, cfg.MaxIter)
	if err != nil {
		return Result{}, matcherr.InternalErrorf("decode: %w", err)
	}
	if prob.err != nil {
		return Result{}, matcherr.DBErrorf(prob.err)
	}

	survivors := removeDropped(obs, retry.Dropped)
	if len(survivors) != len(retry.Assignments) {
		return Result{}, matcherr.InternalErrorf("decoder assignment count %d does not match surviving point count %d", len(retry.Assignments), len(survivors))
	}

	points := make([]reconstruct.PointMatch, len(survivors))
	for i, o := range survivors {
		points[i] = reconstruct.PointMatch{
			ObservationIndex: o.originalIndex,
			DateTime:         o.point.DateTime,
			GPSLon:           o.point.Lon,
			GPSLat:           o.point.Lat,
			Extra:            o.point,
			Candidate:        o.candidates[retry.Assignments[i]],
			Weight:           1,
		}
	}

	// The decoder already ran CandidateDistance for every transition
	// along the winning path while scoring it (routeBetween, cached by
	// stable originalIndex); reuse those results here instead of
	// re-routing (spec.md §4.9 is satisfied by the routing already
	// done, not a second pass over the graph).
	transitions := make([]reconstruct.Transition, 0, len(points)-1)
	for i := 0; i+1 < len(survivors); i++ {
		from, to := survivors[i], survivors[i+1]
		res := prob.cachedRoute(from.originalIndex, to.originalIndex, retry.Assignments[i], retry.Assignments[i+1])
		transitions = append(transitions, reconstruct.Transition{
			FromIndex:   from.originalIndex,
			ToIndex:     to.originalIndex,
			RouteSegs:   res.segs,
			Unreachable: math.IsInf(res.distance, 1),
		})
	}

	rec := reconstruct.Reconstruct(points, transitions)

	stats := computeStats(len(raw), len(cleaned), points, rec.Segments, time.Since(tstart))

	return Result{
		Stats:       stats,
		Points:      rec.Points,
		Segments:    rec.Segments,
		Breaks:      rec.Breaks,
		Linestrings: reconstruct.Linestrings(rec.Points, rec.Breaks),
	}, nil
}

// observation is a conditioned, non-gap point plus its fixed candidate
// set. originalIndex is stable across the maxiter retry loop's point
// removal (spec.md §4.8) so the final reconciliation can still refer
// to it.
type observation struct {
	originalIndex int
	point         condition.Point
	candidates    []candidate.Candidate
}

func (e *Engine) searchCandidates(ctx context.Context, points []condition.Point, cfg Config) ([]observation, error) {
	type job struct {
		idx int
		pt  condition.Point
	}
	jobs := make([]job, len(points))
	for i, p := range points {
		jobs[i] = job{idx: i, pt: p}
	}

	var firstErr error
	var errMu sync.Mutex
	fn := func(j job) observation {
		cands, err := candidate.Search(ctx, e.gw, geo.NewPoint(j.pt.Lon, j.pt.Lat), candidate.Config{SearchRadiusM: cfg.SearchRadiusM})
		if err != nil {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
		return observation{originalIndex: j.idx, point: j.pt, candidates: cands}
	}

	pool := concurrent.NewWorkerPool(cfg.DBThreads, concurrent.JobFunc[job, observation](fn))
	results := pool.Run(jobs)
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func dropGaps(obs []observation) []observation {
	out := obs[:0]
	for _, o := range obs {
		if len(o.candidates) > 0 {
			out = append(out, o)
		}
	}
	return out
}

func removeDropped(obs []observation, dropped []int) []observation {
	if len(dropped) == 0 {
		return obs
	}
	drop := make(map[int]bool, len(dropped))
	for _, d := range dropped {
		drop[d] = true
	}
	out := make([]observation, 0, len(obs)-len(dropped))
	for _, o := range obs {
		if !drop[o.originalIndex] {
			out = append(out, o)
		}
	}
	return out
}

// problem adapts a slice of observations to viterbi.Prunable, lazily
// scoring emissions and transitions via internal/hmm and
// internal/router.CandidateDistance and caching route computations by
// the stable (from, to) originalIndex pair, plus candidate indices, so
// DecodeWithRetries's redecode passes reuse work already done for
// survivor pairs unaffected by a drop (spec.md §4.7:
// "lazy_probabilities... the router's adjacency cache makes repeated
// queries cheap"). Both endpoints must be in the key: WithoutPoint
// changes which observation follows a given survivor, so a route keyed
// on the origin alone would collide across passes.
type problem struct {
	ctx     context.Context
	gw      osmgw.Gateway
	hmmCfg  hmm.Config
	maxvel  float64
	obs     []observation
	cache   map[[4]int]routeResult
	err     error
}

type routeResult struct {
	distance float64
	segs     []wayseg.Segment
}

func newProblem(ctx context.Context, gw osmgw.Gateway, obs []observation, hmmCfg hmm.Config, maxvel float64) *problem {
	return &problem{ctx: ctx, gw: gw, hmmCfg: hmmCfg, maxvel: maxvel, obs: obs, cache: make(map[[4]int]routeResult)}
}

func (p *problem) Counts() []int {
	counts := make([]int, len(p.obs))
	for i, o := range p.obs {
		counts[i] = len(o.candidates)
	}
	return counts
}

func (p *problem) Emission(t, s int) float64 {
	return hmm.EmissionLogProb(p.obs[t].candidates[s], p.obs[t].point.Bearing, p.hmmCfg)
}

func (p *problem) Transition(t, i, j int) float64 {
	res := p.routeBetween(t, i, j)
	gpsDist := geo.Distance(
		geo.NewPoint(p.obs[t].point.Lon, p.obs[t].point.Lat),
		geo.NewPoint(p.obs[t+1].point.Lon, p.obs[t+1].point.Lat),
	)
	return hmm.TransitionLogProb(res.distance, gpsDist, p.hmmCfg)
}

func (p *problem) routeBetween(t, i, j int) routeResult {
	from, to := p.obs[t], p.obs[t+1]
	key := [4]int{from.originalIndex, to.originalIndex, i, j}
	if v, ok := p.cache[key]; ok {
		return v
	}

	dist, segs, err := router.CandidateDistance(p.ctx, p.gw, from.candidates[i], to.candidates[j], p.maxDistBetween(from, to))
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("matchengine: route(%d,%d): %w", from.originalIndex, to.originalIndex, err)
		}
		dist = math.Inf(1)
	}
	res := routeResult{distance: dist, segs: segs}
	p.cache[key] = res
	return res
}

// cachedRoute looks up a previously computed route by the same
// (from, to, i, j) key routeBetween stores it under. Every transition
// on the winning path was necessarily scored during decoding, so this
// always hits once the decoder has run; a miss (shouldn't happen)
// degenerates to ∞, which reconstruct.Reconstruct reports as a break
// rather than panicking.
func (p *problem) cachedRoute(fromOriginalIndex, toOriginalIndex, i, j int) routeResult {
	key := [4]int{fromOriginalIndex, toOriginalIndex, i, j}
	if v, ok := p.cache[key]; ok {
		return v
	}
	return routeResult{distance: math.Inf(1)}
}

func (p *problem) maxDistBetween(from, to observation) float64 {
	dt := to.point.DateTime.Sub(from.point.DateTime).Seconds()
	if dt <= 0 {
		dt = 1
	}
	return p.maxvel * dt * safetyFactor
}

func (p *problem) WithoutPoint(t int) (viterbi.Prunable, error) {
	if t < 0 || t >= len(p.obs) {
		return nil, fmt.Errorf("matchengine: WithoutPoint index %d out of range", t)
	}
	next := make([]observation, 0, len(p.obs)-1)
	next = append(next, p.obs[:t]...)
	next = append(next, p.obs[t+1:]...)
	return &problem{ctx: p.ctx, gw: p.gw, hmmCfg: p.hmmCfg, maxvel: p.maxvel, obs: next, cache: p.cache, err: p.err}, nil
}

func (p *problem) OriginalIndex(t int) int { return p.obs[t].originalIndex }

func computeStats(inPoints, cleanedPoints int, points []reconstruct.PointMatch, segs []reconstruct.RouteSegment, elapsed time.Duration) reconstruct.Stats {
	var gpsDist, xteSum, segDist float64
	for _, p := range points {
		gpsDist += p.Extra.DistPrev
		xteSum += p.Candidate.XTE
	}
	for _, s := range segs {
		segDist += s.Segment.Distance
	}
	meanXTE := 0.0
	if len(points) > 0 {
		meanXTE = xteSum / float64(len(points))
	}
	proportion := 0.0
	if cleanedPoints > 0 {
		proportion = float64(len(points)) / float64(cleanedPoints)
	}
	return reconstruct.Stats{
		Result:            "ok",
		InPoints:          inPoints,
		CleanedPoints:     cleanedPoints,
		MatchedPoints:     len(points),
		MatchedProportion: proportion,
		GPSDistanceM:      gpsDist,
		SegmentDistanceM:  segDist,
		MeanXTE:           meanXTE,
		TripDurationMin:   elapsed.Minutes(),
	}
}
