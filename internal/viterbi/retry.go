package viterbi

import "math"

// Prunable is a Problem that can rebuild itself with one time step
// removed, which the caller implements since only it knows how to
// re-derive emissions/transitions over the reduced point set
// (spec.md §4.8: "problematic-point removal"). originalIndex maps
// Prunable-local time indices back to the caller's own point
// identifiers, needed because RetryResult reports drops in those
// terms, not in the shrinking local index space.
type Prunable interface {
	Problem
	// WithoutPoint returns a new Prunable with time index t removed.
	WithoutPoint(t int) (Prunable, error)
	// OriginalIndex maps a local time index back to the caller's
	// stable point identifier, so dropped points are reported
	// meaningfully even as the problem shrinks across iterations.
	OriginalIndex(t int) int
}

// RetryResult is the outcome of DecodeWithRetries.
type RetryResult struct {
	Result
	// Dropped holds the OriginalIndex of every point removed across
	// all passes, in removal order.
	Dropped []int
}

// DecodeWithRetries runs Decode, and if maxiter > 1, repeatedly drops
// the single worst "problematic" point and redecodes, up to maxiter
// passes total (spec.md §4.8). A point is problematic if the best
// transition probability touching it (to either neighbor) is at or
// below the smallest strictly-positive transition probability seen anywhere
// in that pass's matrix; the single worst such point is dropped per
// pass, matching "after a pass the decoder may drop observations...
// then redecode."
func DecodeWithRetries(prob Prunable, lookahead, maxiter int) (RetryResult, error) {
	if maxiter < 1 {
		maxiter = 1
	}

	cur := prob
	var result Result
	var dropped []int

	for iter := 0; iter < maxiter; iter++ {
		var err error
		result, err = Decode(cur, lookahead)
		if err != nil {
			return RetryResult{}, err
		}

		if iter == maxiter-1 {
			break
		}

		badLocal, found := worstProblematicPoint(cur)
		if !found {
			break
		}
		dropped = append(dropped, cur.OriginalIndex(badLocal))

		next, err := cur.WithoutPoint(badLocal)
		if err != nil {
			return RetryResult{}, err
		}
		if len(next.Counts()) < 2 {
			// nothing left to decode a transition over
			result, err = Decode(next, lookahead)
			if err != nil {
				return RetryResult{}, err
			}
			cur = next
			break
		}
		cur = next
	}

	return RetryResult{Result: result, Dropped: dropped}, nil
}

// worstProblematicPoint scans every transition in prob's matrix once
// to find the smallest strictly-positive transition probability
// (the threshold), then returns the time index whose best adjoining
// transition (incoming or outgoing) is lowest among those at or below
// it.
func worstProblematicPoint(prob Problem) (int, bool) {
	counts := prob.Counts()
	T := len(counts)
	if T < 3 {
		// need at least one interior point with both a predecessor and
		// a successor to consider it removable
		return 0, false
	}

	threshold := math.Inf(1)
	for t := 0; t+1 < T; t++ {
		for i := 0; i < counts[t]; i++ {
			for j := 0; j < counts[t+1]; j++ {
				p := math.Exp(prob.Transition(t, i, j))
				if p > 0 && p < threshold {
					threshold = p
				}
			}
		}
	}
	if math.IsInf(threshold, 1) {
		return 0, false
	}

	worstT := -1
	worstScore := math.Inf(1)
	for t := 1; t+1 < T; t++ { // interior points only
		incomingBest := math.Inf(-1)
		for i := 0; i < counts[t-1]; i++ {
			for j := 0; j < counts[t]; j++ {
				p := math.Exp(prob.Transition(t-1, i, j))
				if p > incomingBest {
					incomingBest = p
				}
			}
		}
		outgoingBest := math.Inf(-1)
		for j := 0; j < counts[t]; j++ {
			for i := 0; i < counts[t+1]; i++ {
				p := math.Exp(prob.Transition(t, j, i))
				if p > outgoingBest {
					outgoingBest = p
				}
			}
		}
		score := math.Min(incomingBest, outgoingBest)
		if score <= threshold && score < worstScore {
			worstScore = score
			worstT = t
		}
	}
	if worstT == -1 {
		return 0, false
	}
	return worstT, true
}
