// Package aggregate reduces a batch of replicate results to summary
// performance metrics, optionally with non-parametric bootstrap
// uncertainty.
//
// Metrics that cannot be computed from the summarised subset (no replicate
// selected an arm, ground-truth values all equal) degrade to an explicit
// not-estimable marker (IEEE NaN, rendered as null in JSON) rather than
// raising. Extremal metrics (min/max) are never bootstrapped.
package aggregate
