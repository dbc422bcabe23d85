// Package rng provides the splittable deterministic stream family used by
// the batch runner and the bootstrap aggregator.
//
// Reproducibility contract:
//   - Stream i of a Family is a pure function of (base seed, domain, i).
//   - Streams never share state, so the set of values drawn from stream i is
//     identical regardless of how many workers run concurrently or in what
//     order they complete.
//   - Replicate streams and bootstrap streams live in separate domains:
//     Replicate(i) and Bootstrap(i) never collide even for equal i and seed.
//
// The family is built on math/rand/v2 PCG, seeded per stream with a
// SplitMix64-mixed index. NEVER draw from a process-global generator inside
// the engine; all randomness flows through a Family.
package rng

import "math/rand/v2"

// Domain constants keep stream families disjoint. Arbitrary odd 64-bit
// values; changing them changes every simulated result.
const (
	domainReplicate uint64 = 0x9e3779b97f4a7c15
	domainBootstrap uint64 = 0xbf58476d1ce4e5b9
)

// Family derives independent streams from a single base seed.
type Family struct {
	seed uint64
}

// NewFamily creates a stream family for the given base seed.
func NewFamily(seed uint64) Family {
	return Family{seed: seed}
}

// Seed returns the base seed the family was created with.
func (f Family) Seed() uint64 { return f.seed }

// Replicate returns the stream for replicate index i (0-based).
func (f Family) Replicate(i int) *rand.Rand {
	return f.stream(domainReplicate, uint64(i))
}

// Bootstrap returns the stream for bootstrap resample index i (0-based).
func (f Family) Bootstrap(i int) *rand.Rand {
	return f.stream(domainBootstrap, uint64(i))
}

func (f Family) stream(domain, index uint64) *rand.Rand {
	return rand.New(rand.NewPCG(f.seed, mix(domain^mix(index))))
}

// mix is the SplitMix64 finalizer. It spreads consecutive indices across the
// full 64-bit space so that nearby replicate streams are uncorrelated.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
