package harness

import (
	"context"
	"fmt"

	"github.com/trialsim/adaptr/internal/aggregate"
	"github.com/trialsim/adaptr/internal/batch"
	"github.com/trialsim/adaptr/internal/cli"
	"github.com/trialsim/adaptr/internal/outcome"
	"github.com/trialsim/adaptr/internal/trial"
)

// Result is a completed scenario execution: the simulated batch, its
// aggregated summary, and any assertion failures.
type Result struct {
	Batch    *batch.Result
	Summary  *aggregate.Summary
	Failures []error
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario through the same pipeline the CLI uses: load and
// validate the trial definition, simulate the batch, aggregate, then
// evaluate every assertion. An error return means the pipeline itself
// failed; assertion failures are collected on the Result instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := cli.LoadConfig(scenario.Trial)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	hooks, err := outcome.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	spec, err := trial.New(cfg, hooks)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	pool := batch.NewPool(scenario.Run.Workers)
	defer pool.Close()

	res, err := batch.Run(ctx, spec, batch.Options{
		Reps: scenario.Run.Reps,
		Seed: scenario.Run.Seed,
		Pool: pool,
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	aggCfg := aggregate.Config{}
	if scenario.Select != nil {
		aggCfg.Selection = aggregate.Selection{
			Strategy:   aggregate.Strategy(scenario.Select.Strategy),
			Preference: scenario.Select.Prefer,
		}
		aggCfg.Restrict = aggregate.Restrict(scenario.Select.Restrict)
	}
	summary, err := aggregate.Summarize(res, aggCfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	return &Result{
		Batch:    res,
		Summary:  summary,
		Failures: EvaluateAssertions(summary, scenario.Assertions),
	}, nil
}
