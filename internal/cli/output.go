package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/trialsim/adaptr/internal/aggregate"
	"github.com/trialsim/adaptr/internal/batch"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Simulation or aggregation failure
	ExitCommandError = 2 // Command error (invalid paths, invalid specification)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// PrintSummary renders a batch summary (and its optional bootstrap report)
// in the configured format. The not-estimable marker renders as "NA" in
// text and null in JSON.
func (f *OutputFormatter) PrintSummary(res *batch.Result, s *aggregate.Summary, boot *aggregate.BootstrapReport) error {
	if f.Format == "json" {
		doc := map[string]any{
			"run_id":    res.RunID,
			"spec_hash": res.SpecHash,
			"seed":      res.Seed,
			"elapsed":   res.Elapsed.String(),
			"summary":   summaryJSON(s),
		}
		if boot != nil {
			doc["bootstrap"] = bootstrapJSON(boot)
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	fmt.Fprint(f.Writer, renderSummaryText(res, s))
	if boot != nil {
		fmt.Fprint(f.Writer, renderBootstrapText(boot))
	}
	return nil
}

// renderSummaryText is deterministic for a given summary: iteration orders
// are fixed by the metric flattening, never by map order.
func renderSummaryText(res *batch.Result, s *aggregate.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s (seed %d, %d replicates, %s)\n", res.RunID, res.Seed, s.NOfTotal, res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "summarised replicates: %d (selected: %d)\n", s.N, s.Selected)
	for _, m := range s.Metrics() {
		fmt.Fprintf(&b, "  %-16s %s\n", m.Name, num(m.Value))
	}
	return b.String()
}

func renderBootstrapText(boot *aggregate.BootstrapReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bootstrap (%d resamples, seed %d, %g%% CI)\n", boot.NBoot, boot.Seed, boot.CIWidth*100)
	for _, m := range boot.Metrics {
		if !m.Estimable {
			fmt.Fprintf(&b, "  %-16s %s (not estimable)\n", m.Name, num(m.Estimate))
			continue
		}
		fmt.Fprintf(&b, "  %-16s %s sd=%s robust_sd=%s ci=[%s, %s]\n",
			m.Name, num(m.Estimate), num(m.SD), num(m.RobustSD), num(m.Lo), num(m.Hi))
	}
	return b.String()
}

// num formats a metric value; NaN is the not-estimable marker.
func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.6g", v)
}

// jnum maps a metric value to its JSON form; NaN becomes null since JSON
// has no NaN literal.
func jnum(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func summaryJSON(s *aggregate.Summary) map[string]any {
	metrics := make(map[string]any)
	for _, m := range s.Metrics() {
		metrics[m.Name] = jnum(m.Value)
	}
	return map[string]any{
		"n":          s.N,
		"n_total":    s.NOfTotal,
		"n_selected": s.Selected,
		"metrics":    metrics,
	}
}

func bootstrapJSON(boot *aggregate.BootstrapReport) map[string]any {
	metrics := make([]any, 0, len(boot.Metrics))
	for _, m := range boot.Metrics {
		metrics = append(metrics, map[string]any{
			"name":      m.Name,
			"estimate":  jnum(m.Estimate),
			"sd":        jnum(m.SD),
			"robust_sd": jnum(m.RobustSD),
			"lo":        jnum(m.Lo),
			"hi":        jnum(m.Hi),
			"estimable": m.Estimable,
		})
	}
	return map[string]any{
		"n_boot":   boot.NBoot,
		"seed":     boot.Seed,
		"ci_width": boot.CIWidth,
		"metrics":  metrics,
	}
}
