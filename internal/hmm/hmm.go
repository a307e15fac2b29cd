// Package hmm computes the emission and transition log-probabilities
// that drive the Viterbi lattice (spec.md §4.7). Grounded on
// pkg/engine/matching/hmm_mapmatching.go's computeEmissionLogProb and
// computeTransitionLogProb, which already work in log-space with
// sigmaZ/beta as named constants; here they become configurable
// parameters, and the emission term gains the direction-aware bearing
// penalty original_source/TripData/lib/osm/_probabilities.py computes
// (there in plain probability space, multiplicatively) but folded
// additively into the teacher's log-space formula rather than ported
// as a separate multiplicative factor.
package hmm

import (
	"math"

	"github.com/andi-rb/osmmatch/internal/candidate"
	"github.com/andi-rb/osmmatch/internal/geo"
)

const (
	DefaultSigmaZ               = 10.0
	DefaultBeta                 = 10.0
	DefaultBearingPenaltyWeight = 1.0
)

// Config holds the probability-model parameters from spec.md §6.
type Config struct {
	SigmaZ               float64
	Beta                 float64
	BearingPenaltyWeight float64
}

func DefaultConfig() Config {
	return Config{
		SigmaZ:               DefaultSigmaZ,
		Beta:                 DefaultBeta,
		BearingPenaltyWeight: DefaultBearingPenaltyWeight,
	}
}

// EmissionLogProb scores candidate c against an observation whose
// bearing is obsBearing (nil if undefined: first/last point or
// zero-velocity window, per spec.md §4.7). The bearing term
// contributes 0 when obsBearing is nil. c.Segment.Bearing already
// reflects the segment's travel direction (wayseg.BuildSegments stores
// the reversed bearing for Backward segments), so no direction
// correction is needed here beyond reading it as-is.
func EmissionLogProb(c candidate.Candidate, obsBearing *float64, cfg Config) float64 {
	denom := 2 * cfg.SigmaZ * cfg.SigmaZ
	logE := -(c.XTE * c.XTE) / denom

	if obsBearing != nil {
		dtheta := geo.AngularDifference(c.Segment.Bearing, *obsBearing)
		logE -= cfg.BearingPenaltyWeight * (dtheta * dtheta) / denom
	}
	return logE
}

// TransitionLogProb scores the transition whose road-network distance
// is routeDistance (math.Inf(1) if no route was found within budget)
// against the great-circle distance gpsDistance between the two
// observations. routeDistance = ∞ always yields -∞ (spec.md §4.7: "if
// route_distance = ∞, log a = −∞"), never a NaN from the infinite
// subtraction.
func TransitionLogProb(routeDistance, gpsDistance float64, cfg Config) float64 {
	if math.IsInf(routeDistance, 1) {
		return math.Inf(-1)
	}
	return -math.Abs(routeDistance-gpsDistance) / cfg.Beta
}
