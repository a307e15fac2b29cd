// Package viterbi implements the bounded-lookahead Viterbi decoder of
// spec.md §4.8. Grounded on pkg/engine/matching/viterbi2.go's
// ViterbiAlgorithm (forward message passing, extendedState
// back-pointers, hmmBreak detection) generalized in two ways the
// teacher's file does not need: a configurable forward lookahead depth
// (from original_source/pyosmroute/osm/_hiddenmarkovmodel.py's
// viterbi_lookahead) and a problematic-point removal retry loop driven
// by the caller (from original_source/pyosmroute/osm/mapmatch.py's
// badpoints/maxiter loop).
//
// States are addressed purely by (time index, candidate index) so this
// package has no dependency on the candidate/hmm/wayseg types; the
// caller supplies emission and transition log-probabilities through
// the Problem interface.
package viterbi

import (
	"fmt"
	"math"
)

// Problem is the lattice a Decode call operates over. t ranges over
// [0, len(Counts())); s/i/j range over [0, Counts()[t]).
type Problem interface {
	// Counts returns the number of candidates at each time step.
	Counts() []int
	// Emission returns log e(t, s).
	Emission(t, s int) float64
	// Transition returns log a(t, i, j): the transition from candidate
	// i at time t to candidate j at time t+1.
	Transition(t, i, j int) float64
}

// Result is the decoded path.
type Result struct {
	// Assignments[t] is the chosen candidate index at time t.
	Assignments []int
	// Breaks holds every time index where the decoder restarted a new
	// segment because no finite-probability transition reached it
	// from the previous step
	// (spec.md §4.8: "the route is split into segments of the path at
	// those points").
	Breaks []int
}

// Decode runs one bounded-lookahead forward pass and backtrace over
// prob. lookahead is L from spec.md §4.8: 0 is classical Viterbi.
func Decode(prob Problem, lookahead int) (Result, error) {
	counts := prob.Counts()
	T := len(counts)
	if T == 0 {
		return Result{}, nil
	}
	for t, c := range counts {
		if c == 0 {
			return Result{}, fmt.Errorf("viterbi: time step %d has no candidates", t)
		}
	}

	messages := make([]map[int]float64, T)
	backptr := make([]map[int]int, T) // -1 sentinel: segment start, no predecessor
	var segmentStarts []int

	messages[0], backptr[0] = startSegment(prob, 0, counts[0])
	segmentStarts = append(segmentStarts, 0)

	chainCache := make(map[[3]int]float64)

	for t := 1; t < T; t++ {
		messages[t], backptr[t] = forwardStep(prob, t, counts[t-1], counts[t], messages[t-1], lookahead, chainCache)
		if isBroken(messages[t]) {
			messages[t], backptr[t] = startSegment(prob, t, counts[t])
			segmentStarts = append(segmentStarts, t)
		}
	}

	assignments := make([]int, T)
	for i, start := range segmentStarts {
		end := T - 1
		if i+1 < len(segmentStarts) {
			end = segmentStarts[i+1] - 1
		}
		seg := backtraceSegment(messages, backptr, start, end)
		copy(assignments[start:end+1], seg)
	}

	var breaks []int
	if len(segmentStarts) > 1 {
		breaks = segmentStarts[1:]
	}
	return Result{Assignments: assignments, Breaks: breaks}, nil
}

func startSegment(prob Problem, t, count int) (map[int]float64, map[int]int) {
	msg := make(map[int]float64, count)
	back := make(map[int]int, count)
	for s := 0; s < count; s++ {
		msg[s] = prob.Emission(t, s)
		back[s] = -1
	}
	return msg, back
}

func isBroken(message map[int]float64) bool {
	for _, v := range message {
		if v != math.Inf(-1) {
			return false
		}
	}
	return true
}

// forwardStep computes δ_t(j) = max_i[δ_{t-1}(i) + log a(t-1,i,j)] +
// chainValue(t,j,lookahead), per spec.md §4.8. chainValue(t,j,0) is
// exactly log e(t,j), reducing to classical Viterbi.
func forwardStep(prob Problem, t, prevCount, curCount int, prevMessage map[int]float64, lookahead int, cache map[[3]int]float64) (map[int]float64, map[int]int) {
	newMessage := make(map[int]float64, curCount)
	newBack := make(map[int]int, curCount)

	for j := 0; j < curCount; j++ {
		best := math.Inf(-1)
		bestI := -1
		for i := 0; i < prevCount; i++ {
			v := prevMessage[i] + prob.Transition(t-1, i, j)
			if v > best {
				best = v
				bestI = i
			}
		}

		cv := chainValue(prob, t, j, lookahead, cache)
		if bestI == -1 {
			newMessage[j] = math.Inf(-1)
			newBack[j] = -1
		} else {
			newMessage[j] = best + cv
			newBack[j] = bestI
		}
	}
	return newMessage, newBack
}

// chainValue is the best L-step continuation value starting at
// candidate s of time t: log e(t,s) plus the best
// transition+continuation over chains of length up to lookahead.
// Memoized per (t,s,lookahead): forwardStep(t-1)'s recursion into
// chainValue(t,*,lookahead-1) and forwardStep(t)'s own call to
// chainValue(t,*,lookahead) both need a cache entry for time t, but at
// different remaining depths, so the depth is part of the key.
func chainValue(prob Problem, t, s, lookahead int, cache map[[3]int]float64) float64 {
	key := [3]int{t, s, lookahead}
	if v, ok := cache[key]; ok {
		return v
	}

	base := prob.Emission(t, s)
	if lookahead <= 0 {
		cache[key] = base
		return base
	}

	counts := prob.Counts()
	if t+1 >= len(counts) {
		cache[key] = base
		return base
	}

	bestExt := math.Inf(-1)
	for k := 0; k < counts[t+1]; k++ {
		v := prob.Transition(t, s, k) + chainValue(prob, t+1, k, lookahead-1, cache)
		if v > bestExt {
			bestExt = v
		}
	}
	if math.IsInf(bestExt, -1) {
		cache[key] = base
		return base
	}
	out := base + bestExt
	cache[key] = out
	return out
}

func backtraceSegment(messages []map[int]float64, backptr []map[int]int, start, end int) []int {
	best := math.Inf(-1)
	bestState := 0
	for s, v := range messages[end] {
		if v > best {
			best = v
			bestState = s
		}
	}

	out := make([]int, end-start+1)
	cur := bestState
	for t := end; t >= start; t-- {
		out[t-start] = cur
		if t == start {
			break
		}
		cur = backptr[t][cur]
	}
	return out
}
