package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trialsim/adaptr/internal/engine"
	"github.com/trialsim/adaptr/internal/rng"
	"github.com/trialsim/adaptr/internal/trial"
)

// Options configures one batch run.
type Options struct {
	// Reps is the number of independent replicates (n_rep), >= 1.
	Reps int
	// Seed is the base seed of the replicate stream family.
	Seed uint64
	// Pool bounds parallel execution; nil runs sequentially.
	Pool *Pool
	// History enables full-history mode on every replicate.
	History bool
	// Logger receives progress events; nil disables logging.
	Logger *slog.Logger
}

// Result is a completed batch: the ordered replicate records plus the
// originating specification and run metadata.
type Result struct {
	// Replicates holds one record per replicate, ordered by replicate
	// index regardless of completion order.
	Replicates []*engine.Result `json:"replicates"`

	Spec     *trial.Spec   `json:"-"`
	SpecHash string        `json:"spec_hash"`
	RunID    string        `json:"run_id"` // UUIDv7, unique per invocation
	Seed     uint64        `json:"seed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Run executes opts.Reps independent replicates of spec. Replicate i uses
// the i-th stream of the seed family, so the result sequence is identical
// under any worker count. A single replicate failure aborts the whole
// batch: silently dropping a replicate would bias aggregate statistics.
func Run(ctx context.Context, spec *trial.Spec, opts Options) (*Result, error) {
	if opts.Reps < 1 {
		return nil, fmt.Errorf("batch: need at least 1 replicate, got %d", opts.Reps)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	start := time.Now()
	family := rng.NewFamily(opts.Seed)
	results := make([]*engine.Result, opts.Reps)

	logger.Info("batch starting",
		"reps", opts.Reps,
		"seed", opts.Seed,
		"workers", opts.Pool.Workers(),
		"spec_hash", spec.Hash(),
	)

	err := opts.Pool.Each(ctx, opts.Reps, func(i int) error {
		res, err := engine.Run(spec, family.Replicate(i), engine.Options{
			Index:   i,
			History: opts.History,
		})
		if err != nil {
			return fmt.Errorf("replicate %d: %w", i, err)
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logger.Info("batch complete", "reps", opts.Reps, "elapsed", elapsed)

	return &Result{
		Replicates: results,
		Spec:       spec,
		SpecHash:   spec.Hash(),
		RunID:      uuid.Must(uuid.NewV7()).String(),
		Seed:       opts.Seed,
		Elapsed:    elapsed,
	}, nil
}
