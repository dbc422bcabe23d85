package engine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/trialsim/adaptr/internal/outcome"
	"github.com/trialsim/adaptr/internal/trial"
)

// Options configures one replicate run.
type Options struct {
	// Index is the replicate's position within its batch, recorded on the
	// result.
	Index int
	// History enables full-history mode: the allocation-probability and
	// status trajectory is recorded at every look.
	History bool
}

// Run drives one simulated trial from the first look to termination. The
// replicate is a pure function of (spec, r): all randomness flows through
// the supplied stream.
//
// Errors are either generator contract violations (aborting this replicate)
// or replicate invariant violations (a bug, always fatal); see the package
// doc for the taxonomy.
func Run(spec *trial.Spec, r *rand.Rand, opts Options) (*Result, error) {
	st := newState(spec)

	// Initial allocation: no posterior signal yet, so every arm carries an
	// equal best probability and the transform reduces to the constraint
	// and policy structure alone.
	uniform := make(map[string]float64, len(st.active))
	for _, arm := range st.active {
		uniform[arm] = 1 / float64(len(st.active))
	}
	alloc, err := allocate(st, uniform, 0)
	if err != nil {
		return nil, err
	}
	st.alloc = alloc

	lastDraws := make(map[string][]float64, len(spec.Arms))
	var history []LookRecord

	for st.look = 0; st.look < st.looksN; st.look++ {
		if err := st.advanceRandomisation(r); err != nil {
			return nil, err
		}

		followed := spec.Looks[st.look]
		draws, err := spec.Hooks.Draws.Draws(r, st.active, st.assignments[:followed], st.outcomes[:followed], st.spec.Control, spec.NDraws)
		if err != nil {
			return nil, fmt.Errorf("look %d: %w", st.look+1, err)
		}
		if err := outcome.CheckDraws(st.active, draws, spec.NDraws); err != nil {
			return nil, fmt.Errorf("look %d: %w", st.look+1, err)
		}
		for _, arm := range st.active {
			lastDraws[arm] = draws[arm]
		}

		pbest := BestProbabilities(st.active, draws, spec.NDraws, spec.HighestIsBest)
		dec := evaluateLook(st, draws, pbest)

		if len(dec.Drops) > 0 {
			byStatus := map[ArmStatus][]string{}
			for arm, status := range dec.Drops {
				byStatus[status] = append(byStatus[status], arm)
			}
			// Stable order: apply per status, arms in spec order.
			for _, status := range []ArmStatus{ArmDroppedInferiority, ArmDroppedEquivalence, ArmDroppedFutility} {
				st.drop(inSpecOrder(spec, byStatus[status]), status)
			}
		}

		if opts.History {
			history = append(history, st.snapshot())
		}

		if dec.Stop.Terminal() {
			st.trial = dec.Stop
			if dec.Superior != "" {
				st.status[dec.Superior] = ArmSuperior
			}
			return st.finish(opts, dec, lastDraws, history)
		}

		// Not terminated: produce the next look's allocation from the
		// post-drop active set.
		next, err := allocate(st, pbest, st.look)
		if err != nil {
			return nil, err
		}
		st.alloc = next
	}

	// Unreachable: the final look always terminates (max at minimum).
	return nil, &InvariantError{Code: ErrCodeBadTransition, Message: "replicate ran past the final look"}
}

// advanceRandomisation assigns the newly randomised patients for the
// current look and materialises their outcomes. Outcomes are generated at
// randomisation time; a look only observes the prefix with follow-up.
func (st *state) advanceRandomisation(r *rand.Rand) error {
	target := st.spec.Randomised[st.look]
	newN := target - len(st.assignments)
	if newN < 0 {
		return &InvariantError{Code: ErrCodeBadTransition, Look: st.look + 1, Message: "randomisation schedule moved backwards"}
	}
	if newN == 0 {
		return nil
	}

	fresh := make([]string, newN)
	for i := range fresh {
		fresh[i] = st.sampleArm(r)
	}
	ys, err := st.spec.Hooks.Outcome.Outcomes(r, fresh)
	if err != nil {
		return fmt.Errorf("look %d: %w", st.look+1, err)
	}
	if err := outcome.CheckOutcomes(fresh, ys); err != nil {
		return fmt.Errorf("look %d: %w", st.look+1, err)
	}
	st.assignments = append(st.assignments, fresh...)
	st.outcomes = append(st.outcomes, ys...)
	return nil
}

// sampleArm draws one arm from the current allocation probabilities.
// Iterates in active order so the draw is deterministic for a given stream.
func (st *state) sampleArm(r *rand.Rand) string {
	u := r.Float64()
	var cum float64
	for _, arm := range st.active {
		cum += st.alloc[arm]
		if u < cum {
			return arm
		}
	}
	// Floating-point slack: the tail belongs to the last active arm.
	return st.active[len(st.active)-1]
}

// snapshot captures the current look for full-history mode.
func (st *state) snapshot() LookRecord {
	alloc := make(map[string]float64, len(st.alloc))
	for arm, p := range st.alloc {
		alloc[arm] = p
	}
	status := make(map[string]ArmStatus, len(st.status))
	for arm, s := range st.status {
		status[arm] = s
	}
	return LookRecord{
		Look:       st.look + 1,
		Followed:   st.spec.Looks[st.look],
		Randomised: st.spec.Randomised[st.look],
		Alloc:      alloc,
		Status:     status,
	}
}

// finish assembles the terminal result record from the state and the last
// posterior draws seen per arm.
func (st *state) finish(opts Options, dec Decision, lastDraws map[string][]float64, history []LookRecord) (*Result, error) {
	spec := st.spec
	followed := spec.Looks[st.look]

	counts := make(map[string]int, len(spec.Arms))
	sumsAll := make(map[string]float64, len(spec.Arms))
	followCounts := make(map[string]int, len(spec.Arms))
	sumsFollowed := make(map[string]float64, len(spec.Arms))
	followedOutcomes := make(map[string][]float64, len(spec.Arms))
	for i, arm := range st.assignments {
		counts[arm]++
		sumsAll[arm] += st.outcomes[i]
		if i < followed {
			followCounts[arm]++
			sumsFollowed[arm] += st.outcomes[i]
			followedOutcomes[arm] = append(followedOutcomes[arm], st.outcomes[i])
		}
	}

	arms := make([]ArmResult, len(spec.Arms))
	for i, arm := range spec.Arms {
		ar := ArmResult{
			Arm:         arm,
			Status:      st.status[arm],
			TrueValue:   spec.TrueValues[i],
			Randomised:  counts[arm],
			SumAll:      sumsAll[arm],
			Followed:    followCounts[arm],
			SumFollowed: sumsFollowed[arm],
			RawEstimate: spec.Hooks.RawEstimate(followedOutcomes[arm]),
		}
		if d, ok := lastDraws[arm]; ok {
			ar.PostEstimate, ar.PostError, ar.Lo, ar.Hi = posteriorSummary(d, spec.CIWidth, spec.Robust)
		} else {
			ar.PostEstimate, ar.PostError, ar.Lo, ar.Hi = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		}
		arms[i] = ar
	}

	return &Result{
		Index:      opts.Index,
		Status:     st.trial,
		LooksRun:   st.look + 1,
		Followed:   followed,
		Randomised: spec.Randomised[st.look],
		MaxSize:    spec.MaxSize(),
		Superior:   dec.Superior,
		Arms:       arms,
		History:    history,
	}, nil
}

func inSpecOrder(spec *trial.Spec, arms []string) []string {
	if len(arms) < 2 {
		return arms
	}
	out := make([]string, 0, len(arms))
	set := make(map[string]bool, len(arms))
	for _, a := range arms {
		set[a] = true
	}
	for _, a := range spec.Arms {
		if set[a] {
			out = append(out, a)
		}
	}
	return out
}
