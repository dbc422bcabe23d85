package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trialsim/adaptr/internal/trial"
)

// constDraws builds n draws per arm, alternating around each centre so the
// vectors are non-degenerate. phase shifts the alternation per arm.
func constDraws(n int, centres map[string]float64, phase map[string]int) map[string][]float64 {
	const step = 1e-6
	draws := make(map[string][]float64, len(centres))
	for arm, c := range centres {
		d := make([]float64, n)
		for i := range d {
			if (i+phase[arm])%2 == 0 {
				d[i] = c + step
			} else {
				d[i] = c - step
			}
		}
		draws[arm] = d
	}
	return draws
}

func TestBestProbabilities(t *testing.T) {
	draws := map[string][]float64{
		"a": {1, 3, 1, 3},
		"b": {2, 2, 2, 2},
	}
	pbest := BestProbabilities([]string{"a", "b"}, draws, 4, true)
	assert.Equal(t, 0.5, pbest["a"])
	assert.Equal(t, 0.5, pbest["b"])

	// Lowest-is-best flips the winner of every draw.
	pbest = BestProbabilities([]string{"a", "b"}, draws, 4, false)
	assert.Equal(t, 0.5, pbest["a"])
	assert.Equal(t, 0.5, pbest["b"])

	dominant := map[string][]float64{
		"a": {1, 1, 1, 1.5},
		"b": {2, 2, 2, 2.5},
	}
	pbest = BestProbabilities([]string{"a", "b"}, dominant, 4, true)
	assert.Equal(t, 0.0, pbest["a"])
	assert.Equal(t, 1.0, pbest["b"])
	pbest = BestProbabilities([]string{"a", "b"}, dominant, 4, false)
	assert.Equal(t, 1.0, pbest["a"])
	assert.Equal(t, 0.0, pbest["b"])
}

// Tie draws go to the earliest arm in active order, keeping the result
// deterministic across runs.
func TestBestProbabilitiesTieBreak(t *testing.T) {
	draws := map[string][]float64{
		"x": {1, 1},
		"y": {1, 1},
	}
	pbest := BestProbabilities([]string{"x", "y"}, draws, 2, true)
	assert.Equal(t, 1.0, pbest["x"])
	assert.Equal(t, 0.0, pbest["y"])

	pbest = BestProbabilities([]string{"y", "x"}, draws, 2, true)
	assert.Equal(t, 1.0, pbest["y"])
}

func stoppingConfig(mutate func(*trial.Config)) trial.Config {
	cfg := trial.Config{
		Arms:        []string{"ctrl", "a", "b"},
		TrueValues:  []float64{0.2, 0.3, 0.4},
		Control:     "ctrl",
		Looks:       []int{100, 200},
		Superiority: trial.PerLook{0.99},
		Inferiority: trial.PerLook{0.01},
		NDraws:      1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

// evalAt builds a fresh state at the given look and runs the rule cascade.
func evalAt(t *testing.T, cfg trial.Config, look int, centres map[string]float64, phase map[string]int, pbest map[string]float64) (Decision, *state) {
	t.Helper()
	spec := scripted(t, cfg)
	st := newState(spec)
	st.look = look
	draws := constDraws(spec.NDraws, centres, phase)
	return evaluateLook(st, draws, pbest), st
}

func TestSuperiorityStopsTrial(t *testing.T) {
	dec, _ := evalAt(t, stoppingConfig(nil), 0,
		map[string]float64{"ctrl": 0.2, "a": 0.3, "b": 0.6},
		nil,
		map[string]float64{"ctrl": 0, "a": 0.005, "b": 0.995},
	)
	assert.Equal(t, TrialSuperiority, dec.Stop)
	assert.Equal(t, "b", dec.Superior)
	assert.Empty(t, dec.Drops)
}

// Two arms over the threshold cannot both be superior; the trial continues.
func TestSuperiorityRequiresUniqueWinner(t *testing.T) {
	cfg := stoppingConfig(func(c *trial.Config) { c.Superiority = trial.PerLook{0.4} })
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.2, "a": 0.5, "b": 0.6},
		nil,
		map[string]float64{"ctrl": 0.1, "a": 0.45, "b": 0.45},
	)
	assert.Equal(t, TrialActive, dec.Stop)
	assert.Empty(t, dec.Superior)
}

// A non-control arm above the threshold must still beat the control.
func TestSuperiorityMustBeatControl(t *testing.T) {
	cfg := stoppingConfig(func(c *trial.Config) { c.Superiority = trial.PerLook{0.3} })
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.6, "a": 0.3, "b": 0.5},
		nil,
		map[string]float64{"ctrl": 0.6, "a": 0.05, "b": 0.35},
	)
	assert.Equal(t, TrialActive, dec.Stop)
}

func TestInferiorityDropsArm(t *testing.T) {
	dec, _ := evalAt(t, stoppingConfig(nil), 0,
		map[string]float64{"ctrl": 0.2, "a": 0.1, "b": 0.4},
		nil,
		map[string]float64{"ctrl": 0.3, "a": 0.005, "b": 0.695},
	)
	assert.Equal(t, TrialActive, dec.Stop)
	assert.Equal(t, map[string]ArmStatus{"a": ArmDroppedInferiority}, dec.Drops)
}

// An inferiority drop that would leave fewer than two active arms is
// withheld entirely.
func TestInferiorityRespectsTwoArmFloor(t *testing.T) {
	cfg := trial.Config{
		Arms:        []string{"ctrl", "a"},
		TrueValues:  []float64{0.2, 0.3},
		Control:     "ctrl",
		Looks:       []int{100},
		Superiority: trial.PerLook{0.99},
		Inferiority: trial.PerLook{0.05},
		NDraws:      1000,
	}
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.4, "a": 0.1},
		nil,
		map[string]float64{"ctrl": 0.99, "a": 0.01},
	)
	assert.Empty(t, dec.Drops)
	// Final look: the trial ends at its maximum size instead.
	assert.Equal(t, TrialMax, dec.Stop)
}

func TestEquivalenceWithoutControlStopsTrial(t *testing.T) {
	cfg := trial.Config{
		Arms:        []string{"a", "b", "c"},
		TrueValues:  []float64{0.3, 0.3, 0.3},
		Looks:       []int{100, 200},
		Superiority: trial.PerLook{0.99},
		Inferiority: trial.PerLook{0.001},
		EquivProb:   trial.PerLook{0.9},
		EquivDiff:   0.05,
		NDraws:      1000,
	}
	// All centres within the margin of each other; phases split pbest.
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"a": 0.3, "b": 0.3, "c": 0.3},
		map[string]int{"b": 1},
		map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2},
	)
	assert.Equal(t, TrialEquivalence, dec.Stop)
}

func TestEquivalenceAgainstControlDropsArm(t *testing.T) {
	cfg := stoppingConfig(func(c *trial.Config) {
		c.EquivProb = trial.PerLook{0.9}
		c.EquivDiff = 0.05
	})
	// a sits on top of the control; b is far away.
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.2, "a": 0.2, "b": 0.6},
		map[string]int{"a": 1},
		map[string]float64{"ctrl": 0.2, "a": 0.2, "b": 0.6},
	)
	assert.Equal(t, TrialActive, dec.Stop)
	assert.Equal(t, map[string]ArmStatus{"a": ArmDroppedEquivalence}, dec.Drops)
}

// Every non-control arm equivalent to the control terminates the trial.
func TestEquivalenceCoveringAllArmsStopsTrial(t *testing.T) {
	cfg := stoppingConfig(func(c *trial.Config) {
		c.EquivProb = trial.PerLook{0.9}
		c.EquivDiff = 0.05
	})
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.2, "a": 0.2, "b": 0.2},
		map[string]int{"a": 1, "b": 1},
		map[string]float64{"ctrl": 0.4, "a": 0.3, "b": 0.3},
	)
	assert.Equal(t, TrialEquivalence, dec.Stop)
	assert.Equal(t, map[string]ArmStatus{
		"a": ArmDroppedEquivalence,
		"b": ArmDroppedEquivalence,
	}, dec.Drops)
}

func TestFutilityDropsAndStops(t *testing.T) {
	cfg := stoppingConfig(func(c *trial.Config) {
		c.FutilProb = trial.PerLook{0.6}
		c.FutilDiff = 0.05
	})

	// b clearly beats the control by more than the margin: only a is futile.
	dec, _ := evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.3, "a": 0.3, "b": 0.6},
		map[string]int{"a": 1},
		map[string]float64{"ctrl": 0.2, "a": 0.1, "b": 0.7},
	)
	assert.Equal(t, TrialActive, dec.Stop)
	assert.Equal(t, map[string]ArmStatus{"a": ArmDroppedFutility}, dec.Drops)

	// Every non-control arm futile terminates the trial.
	dec, _ = evalAt(t, cfg, 0,
		map[string]float64{"ctrl": 0.5, "a": 0.3, "b": 0.3},
		map[string]int{"a": 1, "b": 1},
		map[string]float64{"ctrl": 0.8, "a": 0.1, "b": 0.1},
	)
	assert.Equal(t, TrialFutility, dec.Stop)
	assert.Equal(t, map[string]ArmStatus{
		"a": ArmDroppedFutility,
		"b": ArmDroppedFutility,
	}, dec.Drops)
}

func TestMaxAtFinalLook(t *testing.T) {
	dec, _ := evalAt(t, stoppingConfig(nil), 1,
		map[string]float64{"ctrl": 0.2, "a": 0.3, "b": 0.4},
		map[string]int{"a": 1},
		map[string]float64{"ctrl": 0.3, "a": 0.3, "b": 0.4},
	)
	assert.Equal(t, TrialMax, dec.Stop)

	// Same signal at a non-final look keeps the trial active.
	dec, _ = evalAt(t, stoppingConfig(nil), 0,
		map[string]float64{"ctrl": 0.2, "a": 0.3, "b": 0.4},
		map[string]int{"a": 1},
		map[string]float64{"ctrl": 0.3, "a": 0.3, "b": 0.4},
	)
	assert.Equal(t, TrialActive, dec.Stop)
}

func TestApplyControlDrops(t *testing.T) {
	active := []string{"ctrl", "a", "b", "c"}

	stop, drops := applyControlDrops(active, "ctrl", nil)
	assert.False(t, stop)
	assert.Empty(t, drops)

	// Partial set within the floor: dropped, trial continues.
	stop, drops = applyControlDrops(active, "ctrl", []string{"a"})
	assert.False(t, stop)
	assert.Equal(t, []string{"a"}, drops)

	// Covering every non-control arm: terminal.
	stop, drops = applyControlDrops(active, "ctrl", []string{"a", "b", "c"})
	assert.True(t, stop)
	assert.Len(t, drops, 3)

	// Partial set that would breach the floor: withheld.
	stop, drops = applyControlDrops([]string{"ctrl", "a", "b"}, "ctrl", []string{"a", "b"})
	assert.True(t, stop) // two of two non-control arms is covering
	assert.Len(t, drops, 2)

	stop, drops = applyControlDrops([]string{"ctrl", "a"}, "ctrl", []string{"a"})
	assert.True(t, stop) // one of one is covering as well
	assert.Len(t, drops, 1)
}

func TestTrialStatusTerminal(t *testing.T) {
	assert.False(t, TrialActive.Terminal())
	for _, s := range []TrialStatus{TrialSuperiority, TrialEquivalence, TrialFutility, TrialMax} {
		assert.True(t, s.Terminal(), string(s))
	}
}

func TestArmStatusDropped(t *testing.T) {
	assert.False(t, ArmActive.Dropped())
	assert.False(t, ArmControl.Dropped())
	assert.False(t, ArmSuperior.Dropped())
	for _, s := range []ArmStatus{ArmDroppedInferiority, ArmDroppedEquivalence, ArmDroppedFutility} {
		assert.True(t, s.Dropped(), string(s))
	}
}

func TestInvariantError(t *testing.T) {
	err := &InvariantError{Code: ErrCodeAllocSum, Look: 2, Message: "sum off"}
	assert.Equal(t, "R101: sum off (look=2)", err.Error())
	assert.True(t, IsInvariantError(err))
	assert.False(t, IsInvariantError(assert.AnError))

	bare := &InvariantError{Code: ErrCodeBadTransition, Message: "m"}
	assert.Equal(t, "R103: m", bare.Error())
}
