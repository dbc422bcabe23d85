package trial

import (
	"math/rand/v2"
)

// ControlPolicy governs how the control arm's allocation probability is
// determined relative to the non-control arms.
type ControlPolicy string

const (
	// ControlNone treats the control as an ordinary arm under RAR.
	ControlNone ControlPolicy = "none"
	// ControlFixed pins the control to its fixed constraint for the trial.
	ControlFixed ControlPolicy = "fixed"
	// ControlSqrt recomputes the square-root share at every look; the
	// non-control arms stay under RAR.
	ControlSqrt ControlPolicy = "sqrt-based"
	// ControlSqrtFixed recomputes the square-root share at every look and
	// splits the non-control mass equally (off RAR).
	ControlSqrtFixed ControlPolicy = "sqrt-based-fixed"
	// ControlSqrtStart applies the square-root share once, from the initial
	// arm count, and never recomputes it after drops.
	ControlSqrtStart ControlPolicy = "sqrt-based-start"
	// ControlMatch sets the control equal to the highest non-control
	// allocation probability.
	ControlMatch ControlPolicy = "match"
)

// RescalePolicy selects which constraints are proportionally rescaled when
// an arm is dropped.
type RescalePolicy string

const (
	RescaleNone   RescalePolicy = "none"
	RescaleFixed  RescalePolicy = "fixed"
	RescaleLimits RescalePolicy = "limits"
	RescaleBoth   RescalePolicy = "both"
)

// Constraint holds the optional allocation bounds for one arm. A nil field
// means the bound is not configured. An arm with Fixed set has no Min/Max.
type Constraint struct {
	Fixed *float64 `yaml:"fixed,omitempty" json:"fixed,omitempty"`
	Min   *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// PerLook is a threshold or exponent that is either a single scalar
// (broadcast to every look) or one value per look. It unmarshals from both
// YAML shapes.
type PerLook []float64

// UnmarshalYAML accepts either a scalar or a sequence.
func (p *PerLook) UnmarshalYAML(unmarshal func(any) error) error {
	var scalar float64
	if err := unmarshal(&scalar); err == nil {
		*p = PerLook{scalar}
		return nil
	}
	var seq []float64
	if err := unmarshal(&seq); err != nil {
		return err
	}
	*p = PerLook(seq)
	return nil
}

// OutcomeGenerator produces one outcome per newly observed patient, given
// the ordered arm assignment of each patient. Implementations own the
// ground-truth generating process per arm.
type OutcomeGenerator interface {
	Outcomes(r *rand.Rand, assignments []string) ([]float64, error)
}

// DrawGenerator produces n posterior samples per active arm from all
// outcomes observed so far. assignments and outcomes are index-aligned over
// observed patients. Samples must be finite and non-degenerate even for arms
// with one or zero observations.
type DrawGenerator interface {
	Draws(r *rand.Rand, active []string, assignments []string, outcomes []float64, control string, n int) (map[string][]float64, error)
}

// RawEstimator is the non-Bayesian point summary applied to an arm's raw
// outcomes (typically the arithmetic mean).
type RawEstimator func(outcomes []float64) float64

// Hooks bundles the pluggable functions a specification carries.
type Hooks struct {
	Outcome     OutcomeGenerator
	Draws       DrawGenerator
	RawEstimate RawEstimator
}

// Config is the raw, YAML-addressable description of a trial. It is the
// input to New and is never consumed directly by the engine.
type Config struct {
	Arms          []string              `yaml:"arms" json:"arms"`
	TrueValues    []float64             `yaml:"true_values" json:"true_values"`
	Control       string                `yaml:"control,omitempty" json:"control,omitempty"`
	HighestIsBest *bool                 `yaml:"highest_is_best,omitempty" json:"highest_is_best,omitempty"`
	Constraints   map[string]Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	ControlPolicy string                `yaml:"control_policy,omitempty" json:"control_policy,omitempty"`
	Rescale       string                `yaml:"rescale,omitempty" json:"rescale,omitempty"`

	Looks      []int `yaml:"looks" json:"looks"`
	Randomised []int `yaml:"randomised,omitempty" json:"randomised,omitempty"`

	Superiority PerLook `yaml:"superiority" json:"superiority"`
	Inferiority PerLook `yaml:"inferiority" json:"inferiority"`
	EquivProb   PerLook `yaml:"equivalence_prob,omitempty" json:"equivalence_prob,omitempty"`
	FutilProb   PerLook `yaml:"futility_prob,omitempty" json:"futility_prob,omitempty"`

	EquivDiff      float64 `yaml:"equivalence_diff,omitempty" json:"equivalence_diff,omitempty"`
	FutilDiff      float64 `yaml:"futility_diff,omitempty" json:"futility_diff,omitempty"`
	EquivOnlyFirst bool    `yaml:"equivalence_only_first,omitempty" json:"equivalence_only_first,omitempty"`
	FutilOnlyFirst bool    `yaml:"futility_only_first,omitempty" json:"futility_only_first,omitempty"`

	Soften PerLook `yaml:"soften_power,omitempty" json:"soften_power,omitempty"`

	Robust  bool    `yaml:"robust,omitempty" json:"robust,omitempty"`
	CIWidth float64 `yaml:"ci_width,omitempty" json:"ci_width,omitempty"`
	NDraws  int     `yaml:"n_draws,omitempty" json:"n_draws,omitempty"`

	// Model selects the built-in generator pair wired by the CLI
	// ("binomial" or "normal"); library callers supply Hooks directly and
	// may leave it empty. SDs are the per-arm generating standard
	// deviations of the normal model.
	Model string    `yaml:"model,omitempty" json:"model,omitempty"`
	SDs   []float64 `yaml:"sds,omitempty" json:"sds,omitempty"`
}

// Spec is the immutable, validated trial specification. All scalar-or-
// per-look fields are expanded to one value per look.
type Spec struct {
	Arms          []string
	TrueValues    []float64
	Control       string // "" when there is no common control
	HighestIsBest bool
	Constraints   []Constraint // index-aligned with Arms
	ControlPolicy ControlPolicy
	Rescale       RescalePolicy

	Looks      []int // follow-up patient counts per look
	Randomised []int // cumulative randomised patient counts per look

	Superiority []float64 // one per look
	Inferiority []float64 // one per look
	EquivProb   []float64 // one per look; nil = equivalence disabled
	FutilProb   []float64 // one per look; nil = futility disabled

	EquivDiff      float64
	FutilDiff      float64
	EquivOnlyFirst bool
	FutilOnlyFirst bool

	Soften []float64 // one per look, in [0,1]

	Robust  bool
	CIWidth float64
	NDraws  int

	Hooks Hooks

	hash string // canonical SHA-256 of the originating Config
}

// HasControl reports whether the trial uses a common control arm.
func (s *Spec) HasControl() bool { return s.Control != "" }

// Index returns the position of arm in Arms, or -1 if absent.
func (s *Spec) Index(arm string) int {
	for i, a := range s.Arms {
		if a == arm {
			return i
		}
	}
	return -1
}

// Constraint returns the allocation constraint for arm (zero value when the
// arm is unconstrained or unknown).
func (s *Spec) Constraint(arm string) Constraint {
	if i := s.Index(arm); i >= 0 {
		return s.Constraints[i]
	}
	return Constraint{}
}

// TrueValue returns the ground-truth outcome value for arm.
func (s *Spec) TrueValue(arm string) float64 {
	return s.TrueValues[s.Index(arm)]
}

// Hash returns the canonical SHA-256 hash of the configuration this Spec was
// built from. Two Specs with equal hashes simulate identically under equal
// seeds and hooks.
func (s *Spec) Hash() string { return s.hash }

// MaxSize returns the maximum number of randomised patients the trial can
// reach (the final entry of the randomisation schedule).
func (s *Spec) MaxSize() int { return s.Randomised[len(s.Randomised)-1] }
