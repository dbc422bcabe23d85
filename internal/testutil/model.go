package testutil

import (
	"fmt"
	"math/rand/v2"

	"github.com/trialsim/adaptr/internal/outcome"
	"github.com/trialsim/adaptr/internal/trial"
)

// ScriptedModel is a deterministic generator pair for tests. Every patient
// on an arm observes the arm's scripted value, and posterior draws alternate
// around that value by a small step so they are finite and non-degenerate.
//
// With equal phases the jitter is identical across arms at each draw index,
// so arm comparisons reduce to comparisons of the scripted values: the arm
// with the highest value is best in every draw, and stopping decisions are
// fully determined by the configuration. Giving two equal-valued arms
// opposite phases makes them trade the best draw, splitting the best-arm
// probability evenly between them.
type ScriptedModel struct {
	// Values maps each arm to its scripted outcome and draw centre.
	Values map[string]float64
	// Step is the half-width of the alternating draw jitter; 0 means 1e-3.
	Step float64
	// Phase offsets the jitter alternation per arm; absent arms use 0.
	Phase map[string]int
}

// Outcomes implements trial.OutcomeGenerator.
func (m *ScriptedModel) Outcomes(_ *rand.Rand, assignments []string) ([]float64, error) {
	out := make([]float64, len(assignments))
	for i, arm := range assignments {
		v, ok := m.Values[arm]
		if !ok {
			return nil, fmt.Errorf("scripted model: unknown arm %q", arm)
		}
		out[i] = v
	}
	return out, nil
}

// Draws implements trial.DrawGenerator.
func (m *ScriptedModel) Draws(_ *rand.Rand, active []string, _ []string, _ []float64, _ string, n int) (map[string][]float64, error) {
	step := m.Step
	if step == 0 {
		step = 1e-3
	}
	draws := make(map[string][]float64, len(active))
	for _, arm := range active {
		v, ok := m.Values[arm]
		if !ok {
			return nil, fmt.Errorf("scripted model: unknown arm %q", arm)
		}
		d := make([]float64, n)
		for j := range d {
			if (j+m.Phase[arm])%2 == 0 {
				d[j] = v + step
			} else {
				d[j] = v - step
			}
		}
		draws[arm] = d
	}
	return draws, nil
}

// Hooks bundles the scripted model with the arithmetic-mean raw estimator.
func (m *ScriptedModel) Hooks() trial.Hooks {
	return trial.Hooks{Outcome: m, Draws: m, RawEstimate: outcome.Mean}
}
