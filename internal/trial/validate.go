package trial

import (
	"fmt"
	"strings"
)

// Configuration error codes (E100-E199). Raised eagerly at specification
// construction time, never during simulation.
const (
	ErrArms        = "E101" // fewer than two arms, or duplicates
	ErrTrueValues  = "E102" // true values do not align with arms
	ErrControl     = "E103" // control is not one of the arms
	ErrConstraint  = "E104" // malformed per-arm constraint
	ErrInfeasible  = "E105" // constraint set cannot yield a distribution
	ErrPolicy      = "E106" // invalid control allocation policy
	ErrRescale     = "E107" // invalid rescale policy
	ErrLooks       = "E108" // look schedule malformed
	ErrRandomised  = "E109" // randomisation schedule malformed
	ErrThresholds  = "E110" // threshold sequence malformed or stricter later
	ErrSoften      = "E111" // soften power outside [0,1] or wrong length
	ErrDiffMargins = "E112" // equivalence/futility margins malformed
	ErrPosterior   = "E113" // posterior-summary configuration malformed
	ErrHooks       = "E114" // missing generator hook
)

// ValidationError describes one specification invariant violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ConfigurationError aggregates every invariant violation found in a Config.
// Validation is collect-all: New never stops at the first issue.
type ConfigurationError struct {
	Issues []ValidationError
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid trial specification: " + e.Issues[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid trial specification (%d issues):", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  " + issue.Error())
	}
	return b.String()
}

const (
	defaultCIWidth = 0.95
	defaultNDraws  = 5000
)

// New validates cfg, expands scalar fields to per-look sequences, and
// returns the immutable specification. On failure it returns a
// *ConfigurationError listing every issue found.
func New(cfg Config, hooks Hooks) (*Spec, error) {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	// E101: at least two distinct arms.
	if len(cfg.Arms) < 2 {
		add("arms", ErrArms, "need at least two arms, got %d", len(cfg.Arms))
	}
	seen := make(map[string]bool, len(cfg.Arms))
	for _, a := range cfg.Arms {
		if a == "" {
			add("arms", ErrArms, "arm identifiers must be non-empty")
		}
		if seen[a] {
			add("arms", ErrArms, "duplicate arm %q", a)
		}
		seen[a] = true
	}

	// E102: one ground-truth value per arm.
	if len(cfg.TrueValues) != len(cfg.Arms) {
		add("true_values", ErrTrueValues, "got %d values for %d arms", len(cfg.TrueValues), len(cfg.Arms))
	}

	// E103: control must be one of the arms.
	if cfg.Control != "" && !seen[cfg.Control] {
		add("control", ErrControl, "control %q is not an arm", cfg.Control)
	}

	constraints, cErrs := validateConstraints(cfg)
	errs = append(errs, cErrs...)

	policy, pErrs := validatePolicy(cfg, constraints)
	errs = append(errs, pErrs...)

	rescale := RescalePolicy(cfg.Rescale)
	if cfg.Rescale == "" {
		rescale = RescaleNone
	}
	switch rescale {
	case RescaleNone, RescaleFixed, RescaleLimits, RescaleBoth:
	default:
		add("rescale", ErrRescale, "unknown rescale policy %q", cfg.Rescale)
	}

	// E108/E109: schedules.
	if len(cfg.Looks) == 0 {
		add("looks", ErrLooks, "look schedule must not be empty")
	}
	for i, n := range cfg.Looks {
		if n <= 0 {
			add("looks", ErrLooks, "look %d has non-positive count %d", i+1, n)
		}
		if i > 0 && n <= cfg.Looks[i-1] {
			add("looks", ErrLooks, "look schedule must be strictly increasing (look %d)", i+1)
		}
	}
	randomised := cfg.Randomised
	if randomised == nil {
		randomised = append([]int(nil), cfg.Looks...)
	}
	if len(randomised) != len(cfg.Looks) {
		add("randomised", ErrRandomised, "got %d entries for %d looks", len(randomised), len(cfg.Looks))
	} else {
		for i, n := range randomised {
			if n < cfg.Looks[i] {
				add("randomised", ErrRandomised, "entry %d (%d) below follow-up count %d", i+1, n, cfg.Looks[i])
			}
			if i > 0 && n < randomised[i-1] {
				add("randomised", ErrRandomised, "schedule must be non-decreasing (entry %d)", i+1)
			}
		}
	}

	nLooks := len(cfg.Looks)
	superiority, sErrs := expandThreshold("superiority", cfg.Superiority, nLooks, false, true)
	errs = append(errs, sErrs...)
	inferiority, iErrs := expandThreshold("inferiority", cfg.Inferiority, nLooks, true, true)
	errs = append(errs, iErrs...)
	equivProb, eErrs := expandThreshold("equivalence_prob", cfg.EquivProb, nLooks, false, false)
	errs = append(errs, eErrs...)
	futilProb, fErrs := expandThreshold("futility_prob", cfg.FutilProb, nLooks, false, false)
	errs = append(errs, fErrs...)

	// E112: difference margins belong with their rule.
	if equivProb != nil && cfg.EquivDiff <= 0 {
		add("equivalence_diff", ErrDiffMargins, "must be > 0 when equivalence is enabled")
	}
	if futilProb != nil {
		if cfg.FutilDiff < 0 {
			add("futility_diff", ErrDiffMargins, "must be >= 0")
		}
		if cfg.Control == "" {
			add("futility_prob", ErrDiffMargins, "futility requires a control arm")
		}
	}

	// E111: soften power.
	soften := cfg.Soften
	if soften == nil {
		soften = PerLook{1}
	}
	softenFull, ok := broadcast(soften, nLooks)
	if !ok {
		add("soften_power", ErrSoften, "got %d values for %d looks", len(soften), nLooks)
	}
	for _, v := range softenFull {
		if v < 0 || v > 1 {
			add("soften_power", ErrSoften, "value %g outside [0,1]", v)
			break
		}
	}

	// E113: posterior summary configuration.
	ciWidth := cfg.CIWidth
	if ciWidth == 0 {
		ciWidth = defaultCIWidth
	}
	if ciWidth <= 0 || ciWidth >= 1 {
		add("ci_width", ErrPosterior, "credible interval width %g outside (0,1)", ciWidth)
	}
	nDraws := cfg.NDraws
	if nDraws == 0 {
		nDraws = defaultNDraws
	}
	if nDraws < 100 {
		add("n_draws", ErrPosterior, "need at least 100 posterior draws, got %d", nDraws)
	}

	// E114: generator hooks are mandatory.
	if hooks.Outcome == nil {
		add("hooks.outcome", ErrHooks, "outcome generator is required")
	}
	if hooks.Draws == nil {
		add("hooks.draws", ErrHooks, "draw generator is required")
	}
	if hooks.RawEstimate == nil {
		add("hooks.raw_estimate", ErrHooks, "raw estimate function is required")
	}

	if len(errs) > 0 {
		return nil, &ConfigurationError{Issues: errs}
	}

	highest := true
	if cfg.HighestIsBest != nil {
		highest = *cfg.HighestIsBest
	}

	return &Spec{
		Arms:           append([]string(nil), cfg.Arms...),
		TrueValues:     append([]float64(nil), cfg.TrueValues...),
		Control:        cfg.Control,
		HighestIsBest:  highest,
		Constraints:    constraints,
		ControlPolicy:  policy,
		Rescale:        rescale,
		Looks:          append([]int(nil), cfg.Looks...),
		Randomised:     randomised,
		Superiority:    superiority,
		Inferiority:    inferiority,
		EquivProb:      equivProb,
		FutilProb:      futilProb,
		EquivDiff:      cfg.EquivDiff,
		FutilDiff:      cfg.FutilDiff,
		EquivOnlyFirst: cfg.EquivOnlyFirst,
		FutilOnlyFirst: cfg.FutilOnlyFirst,
		Soften:         softenFull,
		Robust:         cfg.Robust,
		CIWidth:        ciWidth,
		NDraws:         nDraws,
		Hooks:          hooks,
		hash:           Hash(cfg),
	}, nil
}

// validateConstraints checks E104/E105 and returns the arm-indexed
// constraint slice.
func validateConstraints(cfg Config) ([]Constraint, []ValidationError) {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	// Iterate in arm order so error reports are deterministic.
	constraints := make([]Constraint, len(cfg.Arms))
	matched := 0
	for i, arm := range cfg.Arms {
		c, ok := cfg.Constraints[arm]
		if !ok {
			continue
		}
		matched++
		field := "constraints." + arm
		if c.Fixed != nil && (c.Min != nil || c.Max != nil) {
			add(field, ErrConstraint, "an arm with a fixed probability has no min/max")
		}
		bounds := []struct {
			name string
			v    *float64
		}{{"fixed", c.Fixed}, {"min", c.Min}, {"max", c.Max}}
		for _, b := range bounds {
			if b.v != nil && (*b.v < 0 || *b.v > 1) {
				add(field, ErrConstraint, "%s probability %g outside [0,1]", b.name, *b.v)
			}
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			add(field, ErrConstraint, "min %g exceeds max %g", *c.Min, *c.Max)
		}
		constraints[i] = c
	}
	if matched < len(cfg.Constraints) {
		add("constraints", ErrConstraint, "constraints reference %d unknown arm(s)", len(cfg.Constraints)-matched)
	}

	// E105: feasibility. Fixed mass plus minimums must fit; if every
	// unconstrained arm carries a max, the maxima must be able to absorb the
	// remaining mass.
	var fixedSum, minSum, maxSum float64
	allMax := true
	for _, c := range constraints {
		switch {
		case c.Fixed != nil:
			fixedSum += *c.Fixed
		default:
			if c.Min != nil {
				minSum += *c.Min
			}
			if c.Max != nil {
				maxSum += *c.Max
			} else {
				allMax = false
			}
		}
	}
	if fixedSum+minSum > 1+floatTol {
		add("constraints", ErrInfeasible, "fixed (%.3f) plus minimum (%.3f) mass exceeds 1", fixedSum, minSum)
	}
	if allMax && maxSum < (1-fixedSum)-floatTol {
		add("constraints", ErrInfeasible, "maximum mass %.3f cannot absorb remaining probability %.3f", maxSum, 1-fixedSum)
	}
	return constraints, errs
}

// validatePolicy checks E106 and resolves the control allocation policy.
func validatePolicy(cfg Config, constraints []Constraint) (ControlPolicy, []ValidationError) {
	var errs []ValidationError
	policy := ControlPolicy(cfg.ControlPolicy)
	if cfg.ControlPolicy == "" {
		policy = ControlNone
	}
	switch policy {
	case ControlNone, ControlFixed, ControlSqrt, ControlSqrtFixed, ControlSqrtStart, ControlMatch:
	default:
		return policy, []ValidationError{{
			Field: "control_policy", Code: ErrPolicy,
			Message: fmt.Sprintf("unknown control policy %q", cfg.ControlPolicy),
		}}
	}
	if policy != ControlNone && cfg.Control == "" {
		errs = append(errs, ValidationError{
			Field: "control_policy", Code: ErrPolicy,
			Message: fmt.Sprintf("policy %q requires a control arm", policy),
		})
	}
	if policy == ControlFixed && cfg.Control != "" {
		fixed := false
		for i, a := range cfg.Arms {
			if a == cfg.Control && constraints[i].Fixed != nil {
				fixed = true
			}
		}
		if !fixed {
			errs = append(errs, ValidationError{
				Field: "control_policy", Code: ErrPolicy,
				Message: "policy \"fixed\" requires a fixed constraint on the control arm",
			})
		}
	}
	return policy, errs
}

// expandThreshold broadcasts a scalar-or-per-look threshold to nLooks values
// and checks range plus the never-stricter-later rule. increasingOK selects
// the monotonic direction: inferiority may only rise (less strict), all
// others may only fall.
func expandThreshold(field string, p PerLook, nLooks int, increasing, required bool) ([]float64, []ValidationError) {
	if p == nil {
		if !required {
			return nil, nil
		}
		return nil, []ValidationError{{Field: field, Code: ErrThresholds, Message: "threshold is required"}}
	}
	full, ok := broadcast(p, nLooks)
	if !ok {
		return nil, []ValidationError{{
			Field: field, Code: ErrThresholds,
			Message: fmt.Sprintf("got %d values for %d looks", len(p), nLooks),
		}}
	}
	var errs []ValidationError
	for _, v := range full {
		if v <= 0 || v >= 1 {
			errs = append(errs, ValidationError{
				Field: field, Code: ErrThresholds,
				Message: fmt.Sprintf("threshold %g outside (0,1)", v),
			})
			return nil, errs
		}
	}
	for i := 1; i < len(full); i++ {
		if increasing && full[i] < full[i-1] {
			errs = append(errs, ValidationError{
				Field: field, Code: ErrThresholds,
				Message: fmt.Sprintf("look %d is stricter than look %d (%g < %g)", i+1, i, full[i], full[i-1]),
			})
			return nil, errs
		}
		if !increasing && full[i] > full[i-1] {
			errs = append(errs, ValidationError{
				Field: field, Code: ErrThresholds,
				Message: fmt.Sprintf("look %d is stricter than look %d (%g > %g)", i+1, i, full[i], full[i-1]),
			})
			return nil, errs
		}
	}
	return full, nil
}

// broadcast expands a length-1 sequence to n values; a full-length sequence
// is copied as-is.
func broadcast(p PerLook, n int) ([]float64, bool) {
	switch len(p) {
	case 1:
		full := make([]float64, n)
		for i := range full {
			full[i] = p[0]
		}
		return full, true
	case n:
		return append([]float64(nil), p...), true
	default:
		return nil, false
	}
}

// floatTol is the tolerance for probability-mass comparisons.
const floatTol = 1e-9
