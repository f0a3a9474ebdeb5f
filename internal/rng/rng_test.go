package rng

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeededDeterministic(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)

	for i := 0; i < 50; i++ {
		require.Equal(t, a.Uniform(), b.Uniform(), "draw %d diverged", i)
	}
}

func TestNewSeededDifferentSeedsDiverge(t *testing.T) {
	a := NewSeeded(1)
	b := NewSeeded(2)

	diverged := false
	for i := 0; i < 10; i++ {
		if a.Uniform() != b.Uniform() {
			diverged = true
			break
		}
	}
	assert.True(t, diverged)
}

func TestUniformRange(t *testing.T) {
	s := NewSeeded(7)
	for i := 0; i < 10000; i++ {
		v := s.Uniform()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestUniformIntInclusive(t *testing.T) {
	s := NewSeeded(9)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := s.UniformInt(-5, 5)
		require.GreaterOrEqual(t, v, -5)
		require.LessOrEqual(t, v, 5)
		seen[v] = true
	}
	assert.Len(t, seen, 11, "expected all integers in [-5,5] to appear")
}

func TestUniformIntDegenerateRange(t *testing.T) {
	s := NewSeeded(1)
	assert.Equal(t, 3, s.UniformInt(3, 3))
	assert.Equal(t, 3, s.UniformInt(3, 2))
}

func TestStandardNormalMeanAndVariance(t *testing.T) {
	s := NewSeeded(123)
	const n = 200000
	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		z := s.StandardNormal()
		sum += z
		sumSq += z * z
	}
	mean := sum / n
	variance := sumSq/n - mean*mean

	assert.InDelta(t, 0.0, mean, 0.05)
	assert.InDelta(t, 1.0, variance, 0.05)
}

func TestLogNormalSecondsCalibration(t *testing.T) {
	s := NewSeeded(55)
	const n = 20000
	const median, p95 = 60.0, 150.0

	samples := make([]int, n)
	for i := range samples {
		samples[i] = s.LogNormalSeconds(median, p95)
	}

	sorted := append([]int{}, samples...)
	sort.Ints(sorted)

	empiricalMedian := sorted[len(sorted)/2]
	empiricalP95 := sorted[int(float64(len(sorted))*0.95)]

	assert.GreaterOrEqual(t, empiricalMedian, 55)
	assert.LessOrEqual(t, empiricalMedian, 65)
	assert.GreaterOrEqual(t, empiricalP95, 140)
	assert.LessOrEqual(t, empiricalP95, 160)
}

func TestLogNormalSecondsAlwaysPositive(t *testing.T) {
	s := NewSeeded(3)
	for i := 0; i < 1000; i++ {
		v := s.LogNormalSeconds(1, 2)
		require.GreaterOrEqual(t, v, 1)
	}
}

func TestClampedNormalBounded(t *testing.T) {
	s := NewSeeded(2)
	for i := 0; i < 100000; i++ {
		z := s.clampedNormal()
		require.LessOrEqual(t, math.Abs(z), 3.5)
	}
}
