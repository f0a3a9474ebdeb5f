// Package catalog loads the immutable set of weighted locations that the
// event shape builder samples from. A catalog is loaded once at process
// startup and never mutated afterward; it is shared by reference across every shard
// of the producer pool.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/relaymesh/incidentforge/internal/rng"
)

// ErrEmpty is returned when a catalog has no eligible entries after loading.
var ErrEmpty = errors.New("catalog: no eligible locations")

// Location is one immutable catalog entry, matching the document shape this
// service's catalog files use: {name, lat, lng, weight, sigmaKm}.
type Location struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Weight  float64 `json:"weight"`
	SigmaKm float64 `json:"sigmaKm"`
}

// Catalog is the loaded, immutable set of locations plus the cumulative
// weight prefix used for weighted sampling.
type Catalog struct {
	locations   []Location
	prefix      []float64
	totalWeight float64
}

// Load reads a JSON array of Location documents from path, drops entries
// with non-finite coordinates or non-positive weight, and builds the
// cumulative-weight prefix. An empty result after filtering is an error:
// empty catalogs fail start.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var raw []Location
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	return build(raw)
}

// LoadFromJSON builds a Catalog directly from an in-memory JSON document,
// useful for tests and for embedding a default catalog in the binary.
func LoadFromJSON(data []byte) (*Catalog, error) {
	var raw []Location
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	return build(raw)
}

func build(raw []Location) (*Catalog, error) {
	locations := make([]Location, 0, len(raw))
	for _, loc := range raw {
		if !isFinite(loc.Lat) || !isFinite(loc.Lng) {
			continue
		}
		if loc.Weight <= 0 {
			continue
		}
		locations = append(locations, loc)
	}

	if len(locations) == 0 {
		return nil, ErrEmpty
	}

	prefix := make([]float64, len(locations))
	var total float64
	for i, loc := range locations {
		total += loc.Weight
		prefix[i] = total
	}

	return &Catalog{locations: locations, prefix: prefix, totalWeight: total}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Size returns the number of eligible locations in the catalog.
func (c *Catalog) Size() int {
	return len(c.locations)
}

// TotalWeight returns the sum of all location weights.
func (c *Catalog) TotalWeight() float64 {
	return c.totalWeight
}

// PickLocation draws r = uniform() * totalWeight and returns the entry whose
// cumulative-prefix interval contains r, found via binary search.
func (c *Catalog) PickLocation(source *rng.Source) Location {
	r := source.Uniform() * c.totalWeight

	idx := sort.Search(len(c.prefix), func(i int) bool {
		return c.prefix[i] > r
	})
	if idx >= len(c.locations) {
		idx = len(c.locations) - 1
	}

	return c.locations[idx]
}

// kmPerDegree is the simple conversion constant spec.md mandates: 1 km is
// treated as 0.009 degrees of latitude/longitude, regardless of latitude.
const kmPerDegree = 0.009

// Jitter draws two independent standard normals, scales each by
// location.SigmaKm*spreadFactor, converts km to degrees via the fixed
// 0.009 deg/km constant, and adds the result to the location's coordinates.
// Returns (lat, lon).
func Jitter(loc Location, spreadFactor float64, source *rng.Source) (float64, float64) {
	dLat := source.StandardNormal() * loc.SigmaKm * spreadFactor * kmPerDegree
	dLon := source.StandardNormal() * loc.SigmaKm * spreadFactor * kmPerDegree

	return loc.Lat + dLat, loc.Lng + dLon
}
