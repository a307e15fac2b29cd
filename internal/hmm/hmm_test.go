package hmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/wayseg"
)

func mkCandidate(xte, bearing float64) candidate.Candidate {
	return candidate.Candidate{
		Segment: wayseg.Segment{Bearing: bearing},
		XTE:     xte,
	}
}

func TestEmissionDecreasesWithXTE(t *testing.T) {
	cfg := DefaultConfig()
	near := EmissionLogProb(mkCandidate(1, 0), nil, cfg)
	far := EmissionLogProb(mkCandidate(20, 0), nil, cfg)
	assert.Greater(t, near, far)
}

func TestEmissionIgnoresBearingWhenObservationUndefined(t *testing.T) {
	cfg := DefaultConfig()
	withTurn := EmissionLogProb(mkCandidate(5, 90), nil, cfg)
	withoutTurn := EmissionLogProb(mkCandidate(5, 0), nil, cfg)
	assert.Equal(t, withTurn, withoutTurn)
}

func TestEmissionPenalizesBearingMismatch(t *testing.T) {
	cfg := DefaultConfig()
	obs := 0.0
	aligned := EmissionLogProb(mkCandidate(5, 0), &obs, cfg)
	opposed := EmissionLogProb(mkCandidate(5, 180), &obs, cfg)
	assert.Greater(t, aligned, opposed)
}

func TestEmissionBearingWeightZeroDisablesPenalty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BearingPenaltyWeight = 0
	obs := 0.0
	aligned := EmissionLogProb(mkCandidate(5, 0), &obs, cfg)
	opposed := EmissionLogProb(mkCandidate(5, 180), &obs, cfg)
	assert.Equal(t, aligned, opposed)
}

func TestTransitionInfiniteRouteDistanceIsNegativeInfinity(t *testing.T) {
	cfg := DefaultConfig()
	got := TransitionLogProb(math.Inf(1), 50, cfg)
	assert.True(t, math.IsInf(got, -1))
}

func TestTransitionExactMatchIsZero(t *testing.T) {
	cfg := DefaultConfig()
	got := TransitionLogProb(100, 100, cfg)
	assert.Equal(t, 0.0, got)
}

func TestTransitionPenalizesDiscrepancy(t *testing.T) {
	cfg := DefaultConfig()
	close := TransitionLogProb(105, 100, cfg)
	far := TransitionLogProb(500, 100, cfg)
	assert.Greater(t, close, far)
}
