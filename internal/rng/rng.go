// Package rng provides the deterministic random stream used by the
// producer pool and the repair scheduler (each builds its own Source): a
// seedable uniform generator, a
// standard-normal transform via polar Box-Muller, and a log-normal delay
// sampler. Consumption order is part of the observable contract — changing
// the order in which callers draw from a Source changes the emitted sequence
// for a given seed.
package rng

import (
	"math"
	"math/rand/v2"
)

// Source is a seedable stream of uniform, normal, and log-normal draws.
// It is not safe for concurrent use; callers that share a Source across
// goroutines (see internal/producer) must serialize access themselves.
type Source struct {
	r *rand.Rand

	haveSpare bool
	spare     float64
}

// New returns a non-reproducible Source backed by a non-deterministic seed.
func New() *Source {
	return &Source{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))} //nolint:gosec // simulation RNG, not cryptographic
}

// NewSeeded returns a fully reproducible Source: the same seed and the same
// consumption order always produce the same sequence of draws.
func NewSeeded(seed uint32) *Source {
	return &Source{r: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Uniform draws a float64 in [0, 1).
func (s *Source) Uniform() float64 {
	return s.r.Float64()
}

// UniformInt draws an integer in [lo, hi], inclusive on both ends.
func (s *Source) UniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}

	return lo + s.r.IntN(hi-lo+1)
}

// StandardNormal draws from N(0,1) using the polar Box-Muller transform.
// The transform naturally produces two independent draws per iteration; the
// second is cached and returned on the next call, matching the "draw pairs,
// cache the spare" discipline callers rely on for determinism.
func (s *Source) StandardNormal() float64 {
	if s.haveSpare {
		s.haveSpare = false
		return s.spare
	}

	var x, y, r2 float64
	for {
		x = 2*s.r.Float64() - 1
		y = 2*s.r.Float64() - 1
		r2 = x*x + y*y
		if r2 > 0 && r2 < 1 {
			break
		}
	}

	mul := math.Sqrt(-2 * math.Log(r2) / r2)
	s.spare = y * mul
	s.haveSpare = true

	return x * mul
}

// clampedNormal draws a standard normal and clamps its magnitude to 3.5,
// matching the tail-clamp logNormalSeconds relies on to avoid pathological
// outliers from an unbounded Gaussian tail.
func (s *Source) clampedNormal() float64 {
	z := s.StandardNormal()
	if z > 3.5 {
		return 3.5
	}
	if z < -3.5 {
		return -3.5
	}

	return z
}

// LogNormalSeconds draws a positive integer number of seconds from a
// log-normal distribution parameterized by its median and 95th percentile,
// per spec: mu = ln(median), sigma = (ln(p95) - mu) / 1.6449, result =
// max(1, round(exp(mu + sigma*Z))) with Z clamped to +/-3.5.
func (s *Source) LogNormalSeconds(medianSec, p95Sec float64) int {
	mu := math.Log(medianSec)
	sigma := (math.Log(p95Sec) - mu) / 1.6449

	z := s.clampedNormal()
	v := math.Round(math.Exp(mu + sigma*z))
	if v < 1 {
		v = 1
	}

	return int(v)
}
