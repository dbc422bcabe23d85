package cli

import (
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trialsim/adaptr/internal/aggregate"
	"github.com/trialsim/adaptr/internal/batch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Reps     int
	Seed     uint64
	Workers  int
	Boot     int
	BootSeed uint64
	CIWidth  float64
	Strategy string
	Prefer   []string
	Restrict string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <trial.yaml>",
		Short: "Simulate a batch of trial replicates",
		Long: `Simulate independent replicates of an adaptive trial and print the
aggregated performance summary.

Replicate i always consumes the i-th derived random stream of the base
seed, so results are bit-identical for any --workers value.

Example:
  adaptr run designs/three-arm.yaml --reps 1000 --seed 12345
  adaptr run designs/three-arm.yaml --reps 1000 --seed 12345 --boot 500 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Reps, "reps", 1000, "number of replicates")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "base seed for replicate streams")
	cmd.Flags().IntVar(&opts.Workers, "workers", runtime.NumCPU(), "parallel workers (1 = sequential)")
	cmd.Flags().IntVar(&opts.Boot, "boot", 0, "bootstrap resamples (0 = no bootstrap)")
	cmd.Flags().Uint64Var(&opts.BootSeed, "boot-seed", 1, "base seed for bootstrap streams")
	cmd.Flags().Float64Var(&opts.CIWidth, "ci", 0.95, "bootstrap confidence interval width")
	cmd.Flags().StringVar(&opts.Strategy, "select", "none", "arm selection strategy (control-if-available|best-remaining|list|none)")
	cmd.Flags().StringSliceVar(&opts.Prefer, "prefer", nil, "preference list for --select list")
	cmd.Flags().StringVar(&opts.Restrict, "restrict", "all", "summarised subset (all|superiority|selected)")

	return cmd
}

func runBatch(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	spec, err := loadSpec(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trial definition", err)
	}
	logger.Debug("specification loaded",
		"arms", strings.Join(spec.Arms, ","),
		"looks", len(spec.Looks),
		"spec_hash", spec.Hash(),
	)

	pool := batch.NewPool(opts.Workers)
	defer pool.Close()

	res, err := batch.Run(cmd.Context(), spec, batch.Options{
		Reps:   opts.Reps,
		Seed:   opts.Seed,
		Pool:   pool,
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "simulation failed", err)
	}

	cfg := aggregate.Config{
		Selection: aggregate.Selection{
			Strategy:   aggregate.Strategy(opts.Strategy),
			Preference: opts.Prefer,
		},
		Restrict: aggregate.Restrict(opts.Restrict),
	}
	summary, err := aggregate.Summarize(res, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "aggregation failed", err)
	}

	var boot *aggregate.BootstrapReport
	if opts.Boot > 0 {
		boot, err = aggregate.Bootstrap(cmd.Context(), res, cfg, aggregate.BootstrapOptions{
			N:       opts.Boot,
			Seed:    opts.BootSeed,
			CIWidth: opts.CIWidth,
			Pool:    pool,
		})
		if err != nil {
			return WrapExitError(ExitFailure, "bootstrap failed", err)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.PrintSummary(res, summary, boot)
}
