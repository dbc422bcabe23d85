package trial

import (
	"fmt"
	"strings"
)

// Describe renders a validated specification as deterministic text. The
// output shows the fully expanded per-look sequences, so a reader sees
// exactly what the engine will evaluate at each look.
func (s *Spec) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Trial specification (%d arms, %d looks)\n", len(s.Arms), len(s.Looks))
	direction := "highest outcome is best"
	if !s.HighestIsBest {
		direction = "lowest outcome is best"
	}
	fmt.Fprintf(&b, "  direction: %s\n", direction)

	b.WriteString("arms:\n")
	for i, arm := range s.Arms {
		tag := ""
		if arm == s.Control {
			tag = " [control]"
		}
		fmt.Fprintf(&b, "  %s%s: true value %s%s\n", arm, tag, trim(s.TrueValues[i]), describeConstraint(s.Constraints[i]))
	}

	if s.HasControl() {
		fmt.Fprintf(&b, "control policy: %s\n", s.ControlPolicy)
	}
	fmt.Fprintf(&b, "rescale on drop: %s\n", s.Rescale)

	fmt.Fprintf(&b, "looks (follow-up): %s\n", joinInts(s.Looks))
	fmt.Fprintf(&b, "looks (randomised): %s\n", joinInts(s.Randomised))

	fmt.Fprintf(&b, "superiority: %s\n", joinFloats(s.Superiority))
	fmt.Fprintf(&b, "inferiority: %s\n", joinFloats(s.Inferiority))
	if s.EquivProb != nil {
		only := ""
		if s.HasControl() && s.EquivOnlyFirst {
			only = " (first control only)"
		}
		fmt.Fprintf(&b, "equivalence: %s at diff %s%s\n", joinFloats(s.EquivProb), trim(s.EquivDiff), only)
	}
	if s.FutilProb != nil {
		only := ""
		if s.FutilOnlyFirst {
			only = " (first control only)"
		}
		fmt.Fprintf(&b, "futility: %s at diff %s%s\n", joinFloats(s.FutilProb), trim(s.FutilDiff), only)
	}
	fmt.Fprintf(&b, "soften power: %s\n", joinFloats(s.Soften))

	estimator := "mean/SD"
	if s.Robust {
		estimator = "median/MAD"
	}
	fmt.Fprintf(&b, "posterior: %d draws, %s%% interval, %s\n", s.NDraws, trim(s.CIWidth*100), estimator)
	return b.String()
}

func describeConstraint(c Constraint) string {
	var parts []string
	if c.Fixed != nil {
		parts = append(parts, "fixed "+trim(*c.Fixed))
	}
	if c.Min != nil {
		parts = append(parts, "min "+trim(*c.Min))
	}
	if c.Max != nil {
		parts = append(parts, "max "+trim(*c.Max))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = trim(v)
	}
	return strings.Join(parts, " ")
}

// trim formats a float with the shortest %g representation.
func trim(v float64) string {
	return fmt.Sprintf("%g", v)
}
