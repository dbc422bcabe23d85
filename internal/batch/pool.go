// Package batch executes many independent replicate runs against one
// specification, with deterministic per-replicate random streams and
// index-ordered results.
//
// CRITICAL PATTERNS:
//
// Reproducible Parallelism:
// Replicate i always consumes stream i of the batch's seed family. Workers
// only decide scheduling, never stream assignment, so sequential and
// parallel execution produce bit-identical result sequences.
//
// Caller-Owned Pool:
// Parallelism is an explicit, caller-owned Pool with a create/use/close
// lifecycle. There is no implicit process-wide default; a Pool may be
// reused across batch and bootstrap invocations and is not mutated during
// concurrent use.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is a reusable bound on concurrent task execution. The zero value is
// not usable; create one with NewPool. A nil *Pool means sequential
// execution everywhere a Pool is accepted.
type Pool struct {
	workers int
}

// NewPool creates a pool running at most workers tasks concurrently.
// workers < 1 is treated as 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the pool's concurrency bound.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Close releases the pool. Present for lifecycle symmetry; a Pool holds no
// OS resources.
func (p *Pool) Close() {}

// Each runs fn(i) for i in [0, n) under the pool's concurrency bound. The
// first task error stops submission and is returned; cancellation of ctx
// also stops submission and surfaces as ctx's error. Tasks are stateless
// closures; the pool itself is never mutated.
func (p *Pool) Each(ctx context.Context, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers())
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return fn(i) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
