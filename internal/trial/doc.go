// Package trial defines the immutable, validated TrialSpecification consumed
// by the simulation engine.
//
// A specification is built exactly once, by New, from a raw Config plus the
// pluggable generator hooks. New runs the full invariant validation
// (collect-all, never fail-fast) and expands every scalar-or-per-look field
// to an explicit per-look sequence, so downstream code never branches on
// broadcast semantics.
//
// INVARIANTS (hold for the lifetime of a Spec):
//   - Arms are distinct, len >= 2, index-aligned with TrueValues and
//     Constraints.
//   - Allocation constraints are feasible: a fixed arm has no min/max, the
//     fixed+min mass fits in 1, and max bounds (when total) cover the
//     remaining mass.
//   - Looks are strictly increasing; Randomised is element-wise >= Looks and
//     non-decreasing, same length.
//   - Threshold sequences never get stricter at a later look.
//   - A Spec is never mutated after New returns.
//
// Validation failures surface as a *ConfigurationError carrying every issue
// found, each with a stable E1xx code.
package trial
