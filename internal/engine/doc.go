// Package engine implements the per-replicate adaptive-trial state machine.
//
// A replicate drives one simulated trial from the first interim analysis
// ("look") to termination. Every look:
//
//  1. Newly randomised patients are assigned to active arms from the current
//     allocation probabilities, and their outcomes are materialised from the
//     outcome generator.
//  2. The draw generator produces posterior samples per active arm from the
//     outcomes with observed follow-up.
//  3. The stopping rules run, in fixed order: superiority, inferiority,
//     equivalence, futility, max. Arm drops and trial termination apply.
//  4. If the trial continues, the randomisation transform produces the next
//     look's allocation probabilities.
//
// ARCHITECTURE:
//
// Single-Stream Determinism:
// A replicate consumes exactly one random stream. Every draw (patient
// assignment, outcome, posterior sample) flows through that stream in a
// fixed order, so a replicate is a pure function of (specification, stream).
// NEVER touch a process-global generator here.
//
// One-Directional State:
// State transitions are not_started -> at_look ... -> terminated. A
// replicate never revisits a completed look and a terminal status is never
// rewritten.
//
// CRITICAL PATTERNS:
//
// Simultaneous Drops:
// Within one rule at one look, all qualifying drops apply as a set; a set
// that would leave fewer than two active arms is withheld for the look,
// unless it covers every non-control arm, which terminates the trial with
// the rule's status. Allocation renormalises once, after all rules.
//
// Constraint Feasibility:
// The validated specification guarantees the clamped redistribution
// converges. Failure to converge, or an allocation not summing to 1 within
// tolerance, is a replicate invariant violation - a bug, always fatal.
package engine
