package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/trialsim/adaptr/internal/trial"
)

// AssertDescription compares a validated specification's deterministic text
// rendering against the golden file testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The rendering depends only on the specification, never on simulated
// data, so the golden files are stable across machines and seeds.
func AssertDescription(t *testing.T, name string, spec *trial.Spec) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(spec.Describe()))
}

// AssertValidationReport compares a configuration error's collected issue
// report against the golden file testdata/golden/{name}.golden. Issue order
// is deterministic: validation walks fields in declaration order and arms
// in specification order.
func AssertValidationReport(t *testing.T, name string, err error) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(err.Error()+"\n"))
}
