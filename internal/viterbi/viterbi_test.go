package viterbi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableProblem is a Problem backed by plain lookup tables, the
// simplest way to exercise Decode's control flow independent of the
// HMM/candidate packages.
type tableProblem struct {
	counts      []int
	emission    map[[2]int]float64
	transition  map[[3]int]float64
	defaultTran float64
}

func (p *tableProblem) Counts() []int { return p.counts }
func (p *tableProblem) Emission(t, s int) float64 {
	return p.emission[[2]int{t, s}]
}
func (p *tableProblem) Transition(t, i, j int) float64 {
	if v, ok := p.transition[[3]int{t, i, j}]; ok {
		return v
	}
	return p.defaultTran
}

func TestDecodeClassicalPicksHighestScoringPath(t *testing.T) {
	prob := &tableProblem{
		counts: []int{2, 2, 2},
		emission: map[[2]int]float64{
			{0, 0}: -1, {0, 1}: -5,
			{1, 0}: -5, {1, 1}: -1,
			{2, 0}: -1, {2, 1}: -5,
		},
		transition: map[[3]int]float64{
			{0, 0, 0}: -5, {0, 0, 1}: -1,
			{0, 1, 0}: -1, {0, 1, 1}: -5,
			{1, 0, 0}: -1, {1, 0, 1}: -5,
			{1, 1, 0}: -1, {1, 1, 1}: -5,
		},
		defaultTran: -5,
	}

	result, err := Decode(prob, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, result.Assignments)
	assert.Empty(t, result.Breaks)
}

func TestDecodeSplitsAtNegativeInfinityTransition(t *testing.T) {
	prob := &tableProblem{
		counts: []int{1, 1, 1},
		emission: map[[2]int]float64{
			{0, 0}: -1, {1, 0}: -1, {2, 0}: -1,
		},
		transition: map[[3]int]float64{
			{0, 0, 0}: math.Inf(-1), // no route between point 0 and 1
			{1, 0, 0}: -1,
		},
	}

	result, err := Decode(prob, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, result.Assignments)
	assert.Equal(t, []int{1}, result.Breaks)
}

func TestDecodeWithLookaheadPrefersBetterContinuation(t *testing.T) {
	// candidate 0 at t=1 looks equally good at t=1 alone, but its only
	// continuation to t=2 is terrible; candidate 1 looks worse alone
	// but continues well. With lookahead=1 the decoder should prefer
	// the path through candidate 1.
	prob := &tableProblem{
		counts: []int{1, 2, 1},
		emission: map[[2]int]float64{
			{0, 0}: 0,
			{1, 0}: 0, {1, 1}: 0,
			{2, 0}: 0,
		},
		transition: map[[3]int]float64{
			{0, 0, 0}: 0, {0, 0, 1}: 0,
			{1, 0, 0}: -100,
			{1, 1, 0}: -1,
		},
	}

	result, err := Decode(prob, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assignments[1])
}

// prunableProblem wraps tableProblem with point removal for the retry
// loop tests, indexing by original point id so Dropped is meaningful
// even as the local index space shrinks.
type prunableProblem struct {
	*tableProblem
	originalIDs []int
}

func (p *prunableProblem) OriginalIndex(t int) int { return p.originalIDs[t] }

func (p *prunableProblem) WithoutPoint(t int) (Prunable, error) {
	newCounts := append([]int{}, p.counts[:t]...)
	newCounts = append(newCounts, p.counts[t+1:]...)
	newIDs := append([]int{}, p.originalIDs[:t]...)
	newIDs = append(newIDs, p.originalIDs[t+1:]...)

	remap := func(oldT int) int {
		if oldT < t {
			return oldT
		}
		return oldT - 1
	}

	newEmission := make(map[[2]int]float64)
	for k, v := range p.emission {
		if k[0] == t {
			continue
		}
		newEmission[[2]int{remap(k[0]), k[1]}] = v
	}
	newTransition := make(map[[3]int]float64)
	for k, v := range p.transition {
		if k[0] == t || k[0] == t-1 {
			continue
		}
		newTransition[[3]int{remap(k[0]), k[1], k[2]}] = v
	}

	return &prunableProblem{
		tableProblem: &tableProblem{
			counts:      newCounts,
			emission:    newEmission,
			transition:  newTransition,
			defaultTran: p.defaultTran,
		},
		originalIDs: newIDs,
	}, nil
}

func TestDecodeWithRetriesDropsWorstPointAndRedecodes(t *testing.T) {
	// point 1 (middle) has uniformly terrible transitions to both
	// neighbors; with maxiter=2 it should be dropped and the
	// remaining points decoded cleanly.
	prob := &prunableProblem{
		tableProblem: &tableProblem{
			counts: []int{1, 1, 1},
			emission: map[[2]int]float64{
				{0, 0}: 0, {1, 0}: 0, {2, 0}: 0,
			},
			transition: map[[3]int]float64{
				{0, 0, 0}: math.Log(0.0001),
				{1, 0, 0}: math.Log(0.0001),
			},
		},
		originalIDs: []int{10, 11, 12},
	}

	result, err := DecodeWithRetries(prob, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, result.Dropped)
	assert.Len(t, result.Assignments, 2)
}

func TestDecodeWithRetriesSinglePassLeavesPointsIntact(t *testing.T) {
	prob := &prunableProblem{
		tableProblem: &tableProblem{
			counts: []int{1, 1, 1},
			emission: map[[2]int]float64{
				{0, 0}: 0, {1, 0}: 0, {2, 0}: 0,
			},
			transition: map[[3]int]float64{
				{0, 0, 0}: math.Log(0.0001),
				{1, 0, 0}: math.Log(0.0001),
			},
		},
		originalIDs: []int{10, 11, 12},
	}

	result, err := DecodeWithRetries(prob, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, result.Dropped)
	assert.Len(t, result.Assignments, 3)
}

func TestChainValueCacheKeyIncludesRemainingLookahead(t *testing.T) {
	// Mirrors consecutive forwardStep calls: scoring time t recurses
	// into chainValue(t+1, s, lookahead-1), caching a truncated-horizon
	// value for time t+1. A later request for chainValue(t+1, s,
	// lookahead) at full horizon must not reuse that
	// truncated entry just because (t, s) matches.
	prob := &tableProblem{
		counts: []int{1, 1, 1},
		emission: map[[2]int]float64{
			{0, 0}: 0, {1, 0}: 10, {2, 0}: 100,
		},
		transition: map[[3]int]float64{
			{1, 0, 0}: -1000,
		},
	}
	cache := make(map[[3]int]float64)

	horizonZero := chainValue(prob, 1, 0, 0, cache)
	assert.Equal(t, 10.0, horizonZero)

	horizonOne := chainValue(prob, 1, 0, 1, cache)
	assert.Equal(t, 10.0+(-1000.0)+100.0, horizonOne)
	assert.NotEqual(t, horizonZero, horizonOne)
}
