// Package outcome ships the built-in outcome and posterior-draw generators
// and the contract checks the engine applies to any generator, built in or
// caller supplied.
//
// The engine's contract is only with the shapes these functions produce:
// one outcome per newly observed patient, and n finite, non-degenerate
// posterior draws per active arm. Violations surface as a
// *ContractError with a stable G1xx code and abort the replicate.
package outcome

import (
	"errors"
	"fmt"
	"math"

	"github.com/trialsim/adaptr/internal/trial"
)

// Generator contract error codes (G100-G199).
const (
	ErrShape      = "G101" // wrong number of outcomes or draws
	ErrNonFinite  = "G102" // NaN or Inf in generator output
	ErrDegenerate = "G103" // zero-variance posterior draws
	ErrModel      = "G104" // unknown or misconfigured built-in model
)

// ContractError reports a pluggable function returning output that violates
// its contract. It is raised at first violation during a replicate and is
// never silently coerced.
type ContractError struct {
	Code    string
	Arm     string // affected arm, when arm-scoped
	Message string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Arm != "" {
		return fmt.Sprintf("%s: %s (arm=%s)", e.Code, e.Message, e.Arm)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError reports whether err is a generator contract violation.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// CheckOutcomes validates an outcome_generator result: one finite value per
// assignment.
func CheckOutcomes(assignments []string, outcomes []float64) error {
	if len(outcomes) != len(assignments) {
		return &ContractError{
			Code:    ErrShape,
			Message: fmt.Sprintf("outcome generator returned %d outcomes for %d patients", len(outcomes), len(assignments)),
		}
	}
	for i, v := range outcomes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ContractError{
				Code:    ErrNonFinite,
				Arm:     assignments[i],
				Message: fmt.Sprintf("outcome %d is not finite (%v)", i, v),
			}
		}
	}
	return nil
}

// CheckDraws validates a draw_generator result: exactly n finite,
// non-degenerate samples per active arm.
func CheckDraws(active []string, draws map[string][]float64, n int) error {
	for _, arm := range active {
		d, ok := draws[arm]
		if !ok {
			return &ContractError{Code: ErrShape, Arm: arm, Message: "draw generator returned no samples"}
		}
		if len(d) != n {
			return &ContractError{
				Code:    ErrShape,
				Arm:     arm,
				Message: fmt.Sprintf("draw generator returned %d samples, want %d", len(d), n),
			}
		}
		first := d[0]
		degenerate := true
		for _, v := range d {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ContractError{Code: ErrNonFinite, Arm: arm, Message: "posterior draw is not finite"}
			}
			if v != first {
				degenerate = false
			}
		}
		if degenerate {
			return &ContractError{Code: ErrDegenerate, Arm: arm, Message: "posterior draws have zero variance"}
		}
	}
	return nil
}

// Mean is the default raw-estimate function: the arithmetic mean, NaN for
// an empty slice.
func Mean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range outcomes {
		sum += v
	}
	return sum / float64(len(outcomes))
}

// FromConfig wires the built-in generator pair named by cfg.Model
// ("binomial" by default) into a Hooks bundle.
func FromConfig(cfg trial.Config) (trial.Hooks, error) {
	model := cfg.Model
	if model == "" {
		model = "binomial"
	}
	switch model {
	case "binomial":
		g, err := NewBinomial(cfg.Arms, cfg.TrueValues)
		if err != nil {
			return trial.Hooks{}, err
		}
		return trial.Hooks{Outcome: g, Draws: g, RawEstimate: Mean}, nil
	case "normal":
		g, err := NewNormal(cfg.Arms, cfg.TrueValues, cfg.SDs)
		if err != nil {
			return trial.Hooks{}, err
		}
		return trial.Hooks{Outcome: g, Draws: g, RawEstimate: Mean}, nil
	default:
		return trial.Hooks{}, &ContractError{Code: ErrModel, Message: fmt.Sprintf("unknown outcome model %q", model)}
	}
}
