// Package testutil provides deterministic helpers shared by the package
// test suites: canned trial configurations, a fully scripted generator
// pair, and derived random streams with fixed seeds.
//
// Everything here is reproducible by construction. Helpers never read the
// wall clock and never touch global random state, so the same test run
// twice produces the same values.
package testutil

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trialsim/adaptr/internal/outcome"
	"github.com/trialsim/adaptr/internal/rng"
	"github.com/trialsim/adaptr/internal/trial"
)

// Ptr returns a pointer to v, for building constraint literals.
func Ptr(v float64) *float64 { return &v }

// BinomialConfig returns a three-arm binomial design with a common control,
// square-root control allocation, and softened response-adaptive
// randomisation over five looks.
func BinomialConfig() trial.Config {
	return trial.Config{
		Arms:          []string{"ctrl", "dose_a", "dose_b"},
		TrueValues:    []float64{0.25, 0.25, 0.35},
		Control:       "ctrl",
		ControlPolicy: "sqrt-based",
		Looks:         []int{100, 200, 300, 400, 500},
		Superiority:   trial.PerLook{0.99},
		Inferiority:   trial.PerLook{0.01},
		Soften:        trial.PerLook{0.5},
		Model:         "binomial",
	}
}

// NormalConfig returns a two-arm normal design without a common control.
func NormalConfig() trial.Config {
	return trial.Config{
		Arms:        []string{"a", "b"},
		TrueValues:  []float64{10, 12},
		Looks:       []int{50, 100, 150},
		Superiority: trial.PerLook{0.95},
		Inferiority: trial.PerLook{0.05},
		Model:       "normal",
		SDs:         []float64{4, 4},
	}
}

// Spec validates cfg with the built-in generator pair named by its model
// field and fails the test on any configuration issue.
func Spec(t *testing.T, cfg trial.Config) *trial.Spec {
	t.Helper()
	hooks, err := outcome.FromConfig(cfg)
	require.NoError(t, err)
	spec, err := trial.New(cfg, hooks)
	require.NoError(t, err)
	return spec
}

// ScriptedSpec validates cfg with the scripted generator pair, making every
// randomisation draw the only source of randomness in a replicate.
func ScriptedSpec(t *testing.T, cfg trial.Config, model *ScriptedModel) *trial.Spec {
	t.Helper()
	spec, err := trial.New(cfg, model.Hooks())
	require.NoError(t, err)
	return spec
}

// Stream returns the first replicate stream derived from seed.
func Stream(seed uint64) *rand.Rand {
	return rng.NewFamily(seed).Replicate(0)
}
