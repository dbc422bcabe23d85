package outcome

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// diffuseScale widens the synthetic posterior for arms with fewer than two
// observations, keeping best-arm comparisons finite without informing them.
const diffuseScale = 1000

// Normal simulates continuously distributed outcomes and draws posterior
// means from the normal-inverse-chi-square posterior under a
// non-informative prior: sigma^2 ~ (n-1)s^2 / chi^2(n-1), then
// mean ~ N(xbar, sigma/sqrt(n)).
//
// Arms with fewer than two observations receive an extremely diffuse
// synthetic sample instead of an undefined variance.
type Normal struct {
	means map[string]float64
	sds   map[string]float64
}

// NewNormal creates the normal generator pair. means is index-aligned with
// arms; sds may be nil (all 1), a single value (broadcast), or one positive
// value per arm.
func NewNormal(arms []string, means, sds []float64) (*Normal, error) {
	if len(means) != len(arms) {
		return nil, &ContractError{
			Code:    ErrModel,
			Message: fmt.Sprintf("normal model: %d means for %d arms", len(means), len(arms)),
		}
	}
	switch len(sds) {
	case 0:
		sds = make([]float64, len(arms))
		for i := range sds {
			sds[i] = 1
		}
	case 1:
		v := sds[0]
		sds = make([]float64, len(arms))
		for i := range sds {
			sds[i] = v
		}
	case len(arms):
	default:
		return nil, &ContractError{
			Code:    ErrModel,
			Message: fmt.Sprintf("normal model: %d standard deviations for %d arms", len(sds), len(arms)),
		}
	}
	g := &Normal{
		means: make(map[string]float64, len(arms)),
		sds:   make(map[string]float64, len(arms)),
	}
	for i, arm := range arms {
		if sds[i] <= 0 {
			return nil, &ContractError{
				Code:    ErrModel,
				Arm:     arm,
				Message: fmt.Sprintf("standard deviation %g must be > 0", sds[i]),
			}
		}
		g.means[arm] = means[i]
		g.sds[arm] = sds[i]
	}
	return g, nil
}

// Outcomes implements trial.OutcomeGenerator with Gaussian draws per
// patient.
func (g *Normal) Outcomes(r *rand.Rand, assignments []string) ([]float64, error) {
	out := make([]float64, len(assignments))
	for i, arm := range assignments {
		mu, ok := g.means[arm]
		if !ok {
			return nil, &ContractError{Code: ErrModel, Arm: arm, Message: "assignment to unknown arm"}
		}
		out[i] = distuv.Normal{Mu: mu, Sigma: g.sds[arm], Src: r}.Rand()
	}
	return out, nil
}

// Draws implements trial.DrawGenerator with posterior-mean samples.
func (g *Normal) Draws(r *rand.Rand, active []string, assignments []string, outcomes []float64, control string, n int) (map[string][]float64, error) {
	byArm := make(map[string][]float64, len(active))
	for i, arm := range assignments {
		byArm[arm] = append(byArm[arm], outcomes[i])
	}

	// Spread of all observed outcomes anchors the diffuse fallback.
	spread := 1.0
	if len(outcomes) > 1 {
		if sd := stat.StdDev(outcomes, nil); sd > 0 && !math.IsNaN(sd) {
			spread = sd
		}
	}

	draws := make(map[string][]float64, len(active))
	for _, arm := range active {
		obs := byArm[arm]
		d := make([]float64, n)
		if len(obs) < 2 {
			center := 0.0
			if len(obs) == 1 {
				center = obs[0]
			}
			diffuse := distuv.Normal{Mu: center, Sigma: diffuseScale * spread, Src: r}
			for i := range d {
				d[i] = diffuse.Rand()
			}
			draws[arm] = d
			continue
		}
		xbar := stat.Mean(obs, nil)
		s2 := stat.Variance(obs, nil)
		df := float64(len(obs) - 1)
		chi := distuv.ChiSquared{K: df, Src: r}
		std := distuv.Normal{Mu: 0, Sigma: 1, Src: r}
		for i := range d {
			sigma2 := df * s2 / chi.Rand()
			d[i] = xbar + std.Rand()*math.Sqrt(sigma2/float64(len(obs)))
		}
		draws[arm] = d
	}
	return draws, nil
}
