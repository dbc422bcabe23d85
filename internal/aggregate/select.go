package aggregate

import (
	"fmt"

	"github.com/trialsim/adaptr/internal/engine"
	"github.com/trialsim/adaptr/internal/trial"
)

// Strategy picks the arm a completed non-superiority replicate "selects"
// for use, mirroring how a real trial would choose after an inconclusive or
// partially conclusive run. Superiority replicates always select the
// superior arm.
type Strategy string

const (
	// StrategyControl selects the control when it is still in play.
	StrategyControl Strategy = "control-if-available"
	// StrategyBest selects the remaining arm with the best final posterior
	// estimate.
	StrategyBest Strategy = "best-remaining"
	// StrategyList selects the first non-dropped arm of a preference list.
	StrategyList Strategy = "list"
	// StrategyNone never selects for non-superiority replicates.
	StrategyNone Strategy = "none"
)

// Selection configures the arm-selection strategy.
type Selection struct {
	Strategy   Strategy
	Preference []string // only for StrategyList, most preferred first
}

// Validate checks the strategy and its preference list against the trial's
// arms.
func (s Selection) Validate(spec *trial.Spec) error {
	switch s.Strategy {
	case StrategyControl:
		if !spec.HasControl() {
			return fmt.Errorf("selection strategy %q requires a control arm", s.Strategy)
		}
	case StrategyBest, StrategyNone:
	case StrategyList:
		if len(s.Preference) == 0 {
			return fmt.Errorf("selection strategy %q requires a preference list", s.Strategy)
		}
		for _, arm := range s.Preference {
			if spec.Index(arm) < 0 {
				return fmt.Errorf("preference list names unknown arm %q", arm)
			}
		}
	default:
		return fmt.Errorf("unknown selection strategy %q", s.Strategy)
	}
	return nil
}

// selectArm applies the strategy to one replicate. ok is false when the
// replicate selects no arm.
func selectArm(spec *trial.Spec, rep *engine.Result, sel Selection) (arm string, ok bool) {
	if rep.Status == engine.TrialSuperiority {
		return rep.Superior, true
	}
	switch sel.Strategy {
	case StrategyControl:
		if ar := rep.Arm(spec.Control); ar != nil && !ar.Status.Dropped() {
			return spec.Control, true
		}
		return "", false
	case StrategyBest:
		best := ""
		var bestVal float64
		for _, ar := range rep.Arms {
			if ar.Status.Dropped() {
				continue
			}
			better := best == "" ||
				(spec.HighestIsBest && ar.PostEstimate > bestVal) ||
				(!spec.HighestIsBest && ar.PostEstimate < bestVal)
			if better {
				best, bestVal = ar.Arm, ar.PostEstimate
			}
		}
		return best, best != ""
	case StrategyList:
		for _, arm := range sel.Preference {
			if ar := rep.Arm(arm); ar != nil && !ar.Status.Dropped() {
				return arm, true
			}
		}
		return "", false
	default:
		return "", false
	}
}
