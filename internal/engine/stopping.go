package engine

import (
	"math"
)

// Decision is the outcome of evaluating all stopping rules at one look.
type Decision struct {
	// Stop is the terminal status the trial reaches at this look, or
	// TrialActive when the trial continues.
	Stop TrialStatus
	// Superior names the winning arm when Stop is TrialSuperiority.
	Superior string
	// Drops maps dropped arms to their drop status. Drops are applied as a
	// set; allocation renormalises once, afterward.
	Drops map[string]ArmStatus
}

// BestProbabilities computes, for each active arm, the empirical probability
// over draws that it is the best arm (extremal across all active arms,
// direction per highestBest). Ties at a draw go to the earliest arm in
// active order, which keeps the result deterministic.
func BestProbabilities(active []string, draws map[string][]float64, n int, highestBest bool) map[string]float64 {
	wins := make(map[string]int, len(active))
	for i := 0; i < n; i++ {
		best := active[0]
		bestVal := draws[best][i]
		for _, arm := range active[1:] {
			v := draws[arm][i]
			if (highestBest && v > bestVal) || (!highestBest && v < bestVal) {
				best, bestVal = arm, v
			}
		}
		wins[best]++
	}
	probs := make(map[string]float64, len(active))
	for _, arm := range active {
		probs[arm] = float64(wins[arm]) / float64(n)
	}
	return probs
}

// evaluateLook runs the stopping rules for the current look, in fixed
// order. Rules see the active set as reduced by earlier rules at the same
// look; drops within one rule are simultaneous.
func evaluateLook(st *state, draws map[string][]float64, pbest map[string]float64) Decision {
	spec := st.spec
	look := st.look
	dec := Decision{Stop: TrialActive, Drops: make(map[string]ArmStatus)}

	active := append([]string(nil), st.active...)
	control := ""
	if st.controlActive() {
		control = spec.Control
	}
	nonControl := func() []string {
		if control == "" {
			return active
		}
		out := make([]string, 0, len(active))
		for _, arm := range active {
			if arm != control {
				out = append(out, arm)
			}
		}
		return out
	}

	// 1. Superiority: exactly one non-control arm above the threshold,
	// strictly better than the control when one exists.
	var winners []string
	for _, arm := range nonControl() {
		if pbest[arm] > spec.Superiority[look] {
			winners = append(winners, arm)
		}
	}
	if len(winners) == 1 {
		w := winners[0]
		if control == "" || pbest[w] > pbest[control] {
			dec.Stop = TrialSuperiority
			dec.Superior = w
			return dec
		}
	}

	// 2. Inferiority: drop non-control arms below the threshold, withheld
	// entirely if the set would leave fewer than two active arms.
	var inferior []string
	for _, arm := range nonControl() {
		if pbest[arm] < spec.Inferiority[look] {
			inferior = append(inferior, arm)
		}
	}
	if len(inferior) > 0 && len(active)-len(inferior) >= 2 {
		for _, arm := range inferior {
			dec.Drops[arm] = ArmDroppedInferiority
		}
		active = without(active, inferior)
	}

	// 3. Equivalence.
	if spec.EquivProb != nil {
		thr := spec.EquivProb[look]
		if control == "" {
			// All remaining arms jointly equivalent: the trial terminates.
			if rangeBelowProb(active, draws, spec.NDraws, spec.EquivDiff) > thr {
				dec.Stop = TrialEquivalence
				return dec
			}
		} else {
			var equivalent []string
			for _, arm := range nonControlOf(active, control) {
				if diffBelowProb(draws[arm], draws[control], spec.NDraws, spec.EquivDiff) > thr {
					equivalent = append(equivalent, arm)
				}
			}
			stop, drops := applyControlDrops(active, control, equivalent)
			for _, arm := range drops {
				dec.Drops[arm] = ArmDroppedEquivalence
			}
			active = without(active, drops)
			if stop {
				dec.Stop = TrialEquivalence
				return dec
			}
		}
	}

	// 4. Futility: control not shown beaten by more than the margin. Only
	// meaningful with a control.
	if spec.FutilProb != nil && control != "" {
		thr := spec.FutilProb[look]
		var futile []string
		for _, arm := range nonControlOf(active, control) {
			if notBeatenProb(draws[arm], draws[control], spec.NDraws, spec.FutilDiff, spec.HighestIsBest) > thr {
				futile = append(futile, arm)
			}
		}
		stop, drops := applyControlDrops(active, control, futile)
		for _, arm := range drops {
			dec.Drops[arm] = ArmDroppedFutility
		}
		if stop {
			dec.Stop = TrialFutility
			return dec
		}
	}

	// 5. Max: final scheduled look without a terminal decision.
	if look == st.looksN-1 {
		dec.Stop = TrialMax
	}
	return dec
}

// applyControlDrops resolves a qualifying drop set against the two-arm
// floor. Covering every non-control arm terminates the trial; a partial set
// that would breach the floor is withheld.
func applyControlDrops(active []string, control string, qualifying []string) (stop bool, drops []string) {
	if len(qualifying) == 0 {
		return false, nil
	}
	nonControl := len(active) - 1
	if len(qualifying) == nonControl {
		return true, qualifying
	}
	if len(active)-len(qualifying) >= 2 {
		return false, qualifying
	}
	return false, nil
}

// rangeBelowProb is the empirical probability that the maximum pairwise
// absolute difference across arms is below diff (equivalently, the range of
// per-arm draws at each draw index).
func rangeBelowProb(arms []string, draws map[string][]float64, n int, diff float64) float64 {
	hits := 0
	for i := 0; i < n; i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, arm := range arms {
			v := draws[arm][i]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi-lo < diff {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

// diffBelowProb is the empirical probability that |a - b| is below diff.
func diffBelowProb(a, b []float64, n int, diff float64) float64 {
	hits := 0
	for i := 0; i < n; i++ {
		if math.Abs(a[i]-b[i]) < diff {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

// notBeatenProb is the empirical probability that arm does not beat control
// by more than diff, in the favourable direction.
func notBeatenProb(arm, control []float64, n int, diff float64, highestBest bool) float64 {
	hits := 0
	for i := 0; i < n; i++ {
		d := arm[i] - control[i]
		if !highestBest {
			d = -d
		}
		if d < diff {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

func nonControlOf(active []string, control string) []string {
	out := make([]string, 0, len(active))
	for _, arm := range active {
		if arm != control {
			out = append(out, arm)
		}
	}
	return out
}

func without(arms []string, remove []string) []string {
	if len(remove) == 0 {
		return arms
	}
	rm := make(map[string]bool, len(remove))
	for _, arm := range remove {
		rm[arm] = true
	}
	out := make([]string, 0, len(arms))
	for _, arm := range arms {
		if !rm[arm] {
			out = append(out, arm)
		}
	}
	return out
}
