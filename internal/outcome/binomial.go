package outcome

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Binomial simulates binary outcomes and draws from the conjugate
// Beta(1+s, 1+n-s) posterior per arm. The uniform Beta(1,1) prior keeps the
// posterior proper for arms with zero or one observation, so no diffuse
// fallback is needed.
type Binomial struct {
	probs map[string]float64 // ground-truth event probability per arm
}

// NewBinomial creates the binomial generator pair. probs is index-aligned
// with arms and each value must lie in [0,1].
func NewBinomial(arms []string, probs []float64) (*Binomial, error) {
	if len(probs) != len(arms) {
		return nil, &ContractError{
			Code:    ErrModel,
			Message: fmt.Sprintf("binomial model: %d probabilities for %d arms", len(probs), len(arms)),
		}
	}
	m := make(map[string]float64, len(arms))
	for i, arm := range arms {
		if probs[i] < 0 || probs[i] > 1 {
			return nil, &ContractError{
				Code:    ErrModel,
				Arm:     arm,
				Message: fmt.Sprintf("event probability %g outside [0,1]", probs[i]),
			}
		}
		m[arm] = probs[i]
	}
	return &Binomial{probs: m}, nil
}

// Outcomes implements trial.OutcomeGenerator with Bernoulli draws per
// patient.
func (g *Binomial) Outcomes(r *rand.Rand, assignments []string) ([]float64, error) {
	out := make([]float64, len(assignments))
	for i, arm := range assignments {
		p, ok := g.probs[arm]
		if !ok {
			return nil, &ContractError{Code: ErrModel, Arm: arm, Message: "assignment to unknown arm"}
		}
		if r.Float64() < p {
			out[i] = 1
		}
	}
	return out, nil
}

// Draws implements trial.DrawGenerator with Beta posterior samples.
func (g *Binomial) Draws(r *rand.Rand, active []string, assignments []string, outcomes []float64, control string, n int) (map[string][]float64, error) {
	events := make(map[string]float64, len(active))
	counts := make(map[string]int, len(active))
	for i, arm := range assignments {
		events[arm] += outcomes[i]
		counts[arm]++
	}
	draws := make(map[string][]float64, len(active))
	for _, arm := range active {
		s := events[arm]
		f := float64(counts[arm]) - s
		beta := distuv.Beta{Alpha: 1 + s, Beta: 1 + f, Src: r}
		d := make([]float64, n)
		for i := range d {
			d[i] = beta.Rand()
		}
		draws[arm] = d
	}
	return draws, nil
}
