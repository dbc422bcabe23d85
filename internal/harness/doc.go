// Package harness provides a scenario-based conformance framework for the
// simulation pipeline.
//
// A scenario is a YAML file that names a trial definition, a batch run
// configuration, and a list of assertions over the aggregated summary
// metrics. Running a scenario exercises the full pipeline exactly as the
// CLI does: load and validate the definition, simulate the batch, aggregate
// the replicates, then evaluate each assertion against the flattened
// metric sequence.
//
// Scenarios run with fixed seeds, so a scenario that passes once passes on
// every machine and every run. Assertion bounds should still leave room for
// genuine sampling variability across the replicates of a single batch:
// assert ranges a competent design must satisfy, not point values.
//
// Golden files complement scenarios for deterministic text output. The
// golden helpers snapshot renderings that depend only on the validated
// specification, never on simulated data.
package harness
