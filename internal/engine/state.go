package engine

import (
	"github.com/trialsim/adaptr/internal/trial"
)

// ArmStatus is the lifecycle status of one arm within a replicate.
type ArmStatus string

const (
	ArmActive             ArmStatus = "active"
	ArmControl            ArmStatus = "control"
	ArmDroppedInferiority ArmStatus = "dropped_inferiority"
	ArmDroppedEquivalence ArmStatus = "dropped_equivalence"
	ArmDroppedFutility    ArmStatus = "dropped_futility"
	ArmSuperior           ArmStatus = "superior"
)

// Dropped reports whether the status marks an arm no longer eligible for
// allocation.
func (s ArmStatus) Dropped() bool {
	switch s {
	case ArmDroppedInferiority, ArmDroppedEquivalence, ArmDroppedFutility:
		return true
	}
	return false
}

// TrialStatus is the trial-level status of a replicate. Once non-active it
// is terminal and never rewritten.
type TrialStatus string

const (
	TrialActive      TrialStatus = "active"
	TrialSuperiority TrialStatus = "superiority"
	// TrialInferiority exists for vocabulary completeness; inferiority
	// drops alone never terminate a trial (the two-arm floor suppresses a
	// drop that would end it), so the engine never produces this status.
	TrialInferiority TrialStatus = "inferiority"
	TrialEquivalence TrialStatus = "equivalence"
	TrialFutility    TrialStatus = "futility"
	TrialMax         TrialStatus = "max"
)

// Terminal reports whether the status ends a replicate.
func (s TrialStatus) Terminal() bool { return s != TrialActive && s != "" }

// state is the mutable per-replicate trial state. It is created at replicate
// start and destroyed at trial end; nothing outside the replicate loop may
// hold a reference to it.
type state struct {
	spec *trial.Spec

	active      []string             // ordered subset of spec.Arms still allocatable
	status      map[string]ArmStatus // every arm's current status
	alloc       map[string]float64   // active arm -> allocation probability, sums to 1
	constraints []trial.Constraint   // current constraints, rescaled on drops

	assignments []string  // arm of patient i, i < randomised so far
	outcomes    []float64 // outcome of patient i, materialised at randomisation

	look   int // 0-based index of the look being processed
	trial  TrialStatus
	looksN int
}

func newState(spec *trial.Spec) *state {
	st := &state{
		spec:        spec,
		active:      append([]string(nil), spec.Arms...),
		status:      make(map[string]ArmStatus, len(spec.Arms)),
		constraints: append([]trial.Constraint(nil), spec.Constraints...),
		trial:       TrialActive,
		looksN:      len(spec.Looks),
	}
	for _, arm := range spec.Arms {
		if arm == spec.Control {
			st.status[arm] = ArmControl
		} else {
			st.status[arm] = ArmActive
		}
	}
	return st
}

// nonControlActive returns the active arms excluding the control.
func (st *state) nonControlActive() []string {
	if !st.spec.HasControl() {
		return st.active
	}
	out := make([]string, 0, len(st.active))
	for _, arm := range st.active {
		if arm != st.spec.Control {
			out = append(out, arm)
		}
	}
	return out
}

// controlActive reports whether the control arm is still active.
func (st *state) controlActive() bool {
	if !st.spec.HasControl() {
		return false
	}
	for _, arm := range st.active {
		if arm == st.spec.Control {
			return true
		}
	}
	return false
}

// drop removes arms from the active set, records their status, and rescales
// the current constraints per the specification's rescale policy.
func (st *state) drop(arms []string, status ArmStatus) {
	if len(arms) == 0 {
		return
	}
	before := len(st.active)
	dropped := make(map[string]bool, len(arms))
	for _, arm := range arms {
		dropped[arm] = true
		st.status[arm] = status
	}
	kept := st.active[:0]
	for _, arm := range st.active {
		if !dropped[arm] {
			kept = append(kept, arm)
		}
	}
	st.active = kept
	st.rescaleConstraints(before, len(st.active))
}

// rescaleConstraints scales fixed values and/or min-max limits by the ratio
// of arm counts before/after a drop, per the rescale policy, preserving
// relative emphasis instead of letting freed mass flow arbitrarily. Scaled
// values cap at 1.
func (st *state) rescaleConstraints(before, after int) {
	if st.spec.Rescale == trial.RescaleNone || after == 0 || before == after {
		return
	}
	ratio := float64(before) / float64(after)
	scaleFixed := st.spec.Rescale == trial.RescaleFixed || st.spec.Rescale == trial.RescaleBoth
	scaleLimits := st.spec.Rescale == trial.RescaleLimits || st.spec.Rescale == trial.RescaleBoth
	scale := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		s := min(*v*ratio, 1)
		return &s
	}
	next := make([]trial.Constraint, len(st.constraints))
	for i, c := range st.constraints {
		nc := c
		if scaleFixed {
			nc.Fixed = scale(c.Fixed)
		}
		if scaleLimits {
			nc.Min = scale(c.Min)
			nc.Max = scale(c.Max)
		}
		next[i] = nc
	}
	st.constraints = next
}

// constraintFor returns the current (possibly rescaled) constraint for arm.
func (st *state) constraintFor(arm string) trial.Constraint {
	if i := st.spec.Index(arm); i >= 0 {
		return st.constraints[i]
	}
	return trial.Constraint{}
}
