package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/rng"
)

func sampleJSON() []byte {
	return []byte(`[
		{"name":"a","lat":1,"lng":1,"weight":1,"sigmaKm":5},
		{"name":"b","lat":2,"lng":2,"weight":3,"sigmaKm":5},
		{"name":"c","lat":3,"lng":3,"weight":6,"sigmaKm":5}
	]`)
}

func TestLoadFromJSONEmptyFails(t *testing.T) {
	_, err := LoadFromJSON([]byte(`[]`))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadFromJSONDropsNonPositiveWeight(t *testing.T) {
	data := []byte(`[{"name":"z","lat":1,"lng":1,"weight":0,"sigmaKm":1},{"name":"ok","lat":1,"lng":1,"weight":5,"sigmaKm":1}]`)
	c, err := LoadFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())
}

func TestPrefixMonotonicAndTotal(t *testing.T) {
	c, err := LoadFromJSON(sampleJSON())
	require.NoError(t, err)

	require.Len(t, c.prefix, 3)
	for i := 1; i < len(c.prefix); i++ {
		assert.GreaterOrEqual(t, c.prefix[i], c.prefix[i-1])
	}
	assert.Equal(t, c.totalWeight, c.prefix[len(c.prefix)-1])
}

func TestPickLocationWeightedFrequency(t *testing.T) {
	c, err := LoadFromJSON(sampleJSON())
	require.NoError(t, err)

	source := rng.NewSeeded(42)
	counts := map[string]int{}
	const n = 200000
	for i := 0; i < n; i++ {
		loc := c.PickLocation(source)
		counts[loc.Name]++
	}

	assert.InDelta(t, 0.1, float64(counts["a"])/n, 0.02)
	assert.InDelta(t, 0.3, float64(counts["b"])/n, 0.02)
	assert.InDelta(t, 0.6, float64(counts["c"])/n, 0.02)
}

func TestJitterDeterministicUnderSeed(t *testing.T) {
	c, err := LoadFromJSON(sampleJSON())
	require.NoError(t, err)
	loc := c.locations[0]

	s1 := rng.NewSeeded(7)
	s2 := rng.NewSeeded(7)

	lat1, lon1 := Jitter(loc, 1.0, s1)
	lat2, lon2 := Jitter(loc, 1.0, s2)

	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lon1, lon2)
}

func TestJitterScalesWithSpreadFactor(t *testing.T) {
	c, err := LoadFromJSON(sampleJSON())
	require.NoError(t, err)
	loc := c.locations[0]

	s1 := rng.NewSeeded(1)
	s2 := rng.NewSeeded(1)

	lat1, _ := Jitter(loc, 1.0, s1)
	lat2, _ := Jitter(loc, 2.0, s2)

	d1 := lat1 - loc.Lat
	d2 := lat2 - loc.Lat
	assert.InDelta(t, 2*d1, d2, 1e-9)
}
