package engine

import (
	"math"

	"github.com/trialsim/adaptr/internal/trial"
)

// allocTol is the tolerance for the sum-to-one allocation invariant.
const allocTol = 1e-9

// maxClampIter bounds the clamp-and-redistribute fixed-point loop. The
// validated constraints guarantee convergence; hitting the bound is a bug.
const maxClampIter = 100

// allocate maps the per-arm best probabilities plus the current (possibly
// rescaled) constraints into a valid allocation distribution over the
// active arms for the given look. Pure: reads the state, never writes it.
func allocate(st *state, pbest map[string]float64, look int) (map[string]float64, error) {
	spec := st.spec
	active := st.active
	soften := spec.Soften[look]

	control := ""
	if st.controlActive() && spec.ControlPolicy != trial.ControlNone {
		control = spec.Control
	}

	probs := make(map[string]float64, len(active))

	// Fixed arms take their pinned value, control-policy arms their policy
	// share; whatever mass remains flows to the RAR pool.
	pinned := make(map[string]bool, len(active))
	var pinnedMass float64
	pin := func(arm string, p float64) {
		probs[arm] = p
		pinned[arm] = true
		pinnedMass += p
	}

	switch spec.ControlPolicy {
	case trial.ControlFixed:
		if control != "" {
			pin(control, *st.constraintFor(control).Fixed)
		}
	case trial.ControlSqrt, trial.ControlSqrtFixed:
		if control != "" {
			pin(control, sqrtShare(len(active)-1))
		}
	case trial.ControlSqrtStart:
		if control != "" {
			pin(control, sqrtShare(len(spec.Arms)-1))
		}
	}

	for _, arm := range active {
		if pinned[arm] || arm == control {
			continue
		}
		if c := st.constraintFor(arm); c.Fixed != nil {
			pin(arm, *c.Fixed)
		}
	}

	// RAR pool: non-pinned arms. Under match the control joins after the
	// pool is distributed; under sqrt-based-fixed the pool splits equally.
	pool := make([]string, 0, len(active))
	for _, arm := range active {
		if pinned[arm] {
			continue
		}
		if arm == control && spec.ControlPolicy == trial.ControlMatch {
			continue
		}
		pool = append(pool, arm)
	}

	remaining := 1 - pinnedMass
	if remaining < -allocTol {
		return nil, &InvariantError{
			Code: ErrCodeNoConverge, Look: look + 1,
			Message: "pinned allocation mass exceeds 1",
		}
	}
	if len(pool) > 0 {
		weights := make(map[string]float64, len(pool))
		var total float64
		for _, arm := range pool {
			w := 1.0
			if spec.ControlPolicy != trial.ControlSqrtFixed {
				w = softenedWeight(pbest[arm], soften)
			}
			weights[arm] = w
			total += w
		}
		if total <= 0 {
			// Degenerate signal (all best probabilities zero): equalise.
			for _, arm := range pool {
				weights[arm] = 1
			}
			total = float64(len(pool))
		}
		for _, arm := range pool {
			probs[arm] = remaining * weights[arm] / total
		}
	}

	// match: the control mirrors the best non-control arm, then the control
	// and the RAR pool rescale to restore the sum. Fixed arms keep their
	// pinned values.
	if control != "" && spec.ControlPolicy == trial.ControlMatch {
		best := 0.0
		for _, arm := range active {
			if arm != control && probs[arm] > best {
				best = probs[arm]
			}
		}
		probs[control] = best
		scaleMass := best
		for _, arm := range pool {
			scaleMass += probs[arm]
		}
		if scaleMass > 0 {
			factor := remaining / scaleMass
			probs[control] *= factor
			for _, arm := range pool {
				probs[arm] *= factor
			}
		}
		pinned[control] = true
	}

	if err := clampToLimits(st, probs, pinned, look); err != nil {
		return nil, err
	}

	var sum float64
	for _, arm := range active {
		sum += probs[arm]
	}
	if math.Abs(sum-1) > allocTol {
		return nil, &InvariantError{
			Code: ErrCodeAllocSum, Look: look + 1,
			Message: "allocation probabilities do not sum to 1",
		}
	}
	return probs, nil
}

// clampToLimits applies min/max bounds by clamping violating arms and
// redistributing the slack among the unclamped pool until a fixed point.
// The validated constraints guarantee feasibility, so the loop must
// converge within maxClampIter.
func clampToLimits(st *state, probs map[string]float64, pinned map[string]bool, look int) error {
	adjustable := make([]string, 0, len(st.active))
	for _, arm := range st.active {
		if !pinned[arm] {
			adjustable = append(adjustable, arm)
		}
	}
	if len(adjustable) == 0 {
		return nil
	}

	locked := make(map[string]bool, len(adjustable))
	for iter := 0; iter < maxClampIter; iter++ {
		violated := false
		for _, arm := range adjustable {
			if locked[arm] {
				continue
			}
			c := st.constraintFor(arm)
			if c.Min != nil && probs[arm] < *c.Min-allocTol {
				probs[arm] = *c.Min
				locked[arm] = true
				violated = true
			} else if c.Max != nil && probs[arm] > *c.Max+allocTol {
				probs[arm] = *c.Max
				locked[arm] = true
				violated = true
			}
		}
		if !violated {
			return nil
		}

		// Redistribute what the locked and pinned arms do not consume over
		// the free arms, in proportion to their current weight.
		var consumed, freeWeight float64
		var free []string
		for arm, p := range probs {
			if pinned[arm] || locked[arm] {
				consumed += p
			}
		}
		for _, arm := range adjustable {
			if !locked[arm] {
				free = append(free, arm)
				freeWeight += probs[arm]
			}
		}
		if len(free) == 0 {
			break
		}
		remaining := 1 - consumed
		if remaining < 0 {
			remaining = 0
		}
		if freeWeight <= 0 {
			for _, arm := range free {
				probs[arm] = remaining / float64(len(free))
			}
			continue
		}
		for _, arm := range free {
			probs[arm] = remaining * probs[arm] / freeWeight
		}
	}

	// Converged only if no bound is still violated.
	for _, arm := range adjustable {
		c := st.constraintFor(arm)
		if c.Min != nil && probs[arm] < *c.Min-allocTol {
			return &InvariantError{Code: ErrCodeNoConverge, Look: look + 1, Message: "constrained redistribution failed to converge"}
		}
		if c.Max != nil && probs[arm] > *c.Max+allocTol {
			return &InvariantError{Code: ErrCodeNoConverge, Look: look + 1, Message: "constrained redistribution failed to converge"}
		}
	}
	return nil
}

// softenedWeight is the base RAR weight: best probability raised to the
// soften power. power 0 equalises allocation regardless of signal; power 1
// keeps the raw best-probability proportions.
func softenedWeight(pbest, power float64) float64 {
	if power == 0 {
		return 1
	}
	if pbest <= 0 {
		return 0
	}
	return math.Pow(pbest, power)
}

// sqrtShare is the square-root allocation rule for a control facing k
// active non-control arms: sqrt(k) / (sqrt(k) + k). The control share grows
// sub-linearly with the number of competing arms.
func sqrtShare(k int) float64 {
	if k <= 0 {
		return 1
	}
	s := math.Sqrt(float64(k))
	return s / (s + float64(k))
}
