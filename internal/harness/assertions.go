package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/trialsim/adaptr/internal/aggregate"
)

// assertTol is the equality tolerance when an assertion leaves tol unset.
const assertTol = 1e-9

// AssertionError is returned when a metric assertion fails. It carries the
// expected and observed outcome plus the full metric table for context.
type AssertionError struct {
	Metric   string
	Expected string
	Actual   string
	Metrics  []aggregate.Metric
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "assertion failed: %s\n", e.Metric)
	fmt.Fprintf(&b, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&b, "  actual: %s\n", e.Actual)
	b.WriteString("\nall metrics:\n")
	for _, m := range e.Metrics {
		fmt.Fprintf(&b, "  %s = %g\n", m.Name, m.Value)
	}
	return b.String()
}

// EvaluateAssertions checks every assertion against the summary's flattened
// metrics and returns one error per failure. Evaluation never stops early:
// a failing scenario reports all of its broken assertions at once.
func EvaluateAssertions(s *aggregate.Summary, assertions []Assertion) []error {
	metrics := s.Metrics()
	byName := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		byName[m.Name] = m.Value
	}

	var failures []error
	fail := func(metric, expected, actual string) {
		failures = append(failures, &AssertionError{
			Metric:   metric,
			Expected: expected,
			Actual:   actual,
			Metrics:  metrics,
		})
	}

	for _, a := range assertions {
		v, ok := byName[a.Metric]
		if !ok {
			fail(a.Metric, "a known summary metric", "metric does not exist")
			continue
		}

		if a.Estimable != nil && *a.Estimable != aggregate.Estimable(v) {
			fail(a.Metric,
				fmt.Sprintf("estimable=%t", *a.Estimable),
				fmt.Sprintf("estimable=%t (value %g)", aggregate.Estimable(v), v))
			continue
		}

		// A not-estimable value satisfies no numeric bound.
		if (a.Min != nil || a.Max != nil || a.Value != nil) && math.IsNaN(v) {
			fail(a.Metric, "an estimable value", "not estimable")
			continue
		}

		if a.Value != nil {
			tol := a.Tol
			if tol == 0 {
				tol = assertTol
			}
			if math.Abs(v-*a.Value) > tol {
				fail(a.Metric,
					fmt.Sprintf("%g within %g", *a.Value, tol),
					fmt.Sprintf("%g", v))
			}
			continue
		}
		if a.Min != nil && v < *a.Min {
			fail(a.Metric, fmt.Sprintf(">= %g", *a.Min), fmt.Sprintf("%g", v))
			continue
		}
		if a.Max != nil && v > *a.Max {
			fail(a.Metric, fmt.Sprintf("<= %g", *a.Max), fmt.Sprintf("%g", v))
		}
	}
	return failures
}
