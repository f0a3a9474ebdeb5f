package eventmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/rng"
)

func testLocation() catalog.Location {
	return catalog.Location{Name: "testville", Lat: 10, Lng: 20, Weight: 1, SigmaKm: 5}
}

func TestBuildEventDeterministicUnderSeed(t *testing.T) {
	loc := testLocation()

	s1 := rng.NewSeeded(11)
	s2 := rng.NewSeeded(11)

	e1 := BuildEvent(loc, 10.1, 20.1, s1, "run-1")
	e2 := BuildEvent(loc, 10.1, 20.1, s2, "run-1")

	assert.Equal(t, e1.Issue, e2.Issue)
	assert.Equal(t, e1.LocationName, e2.LocationName)
}

func TestBuildEventShape(t *testing.T) {
	loc := testLocation()
	source := rng.NewSeeded(1)

	e := BuildEvent(loc, 10.5, 20.5, source, "run-xyz")

	require.NotEmpty(t, e.ID)
	assert.Equal(t, "incident", e.Kind)
	assert.Equal(t, "run-xyz", e.RunID)
	assert.Equal(t, loc.Name, e.LocationName)
	assert.Equal(t, 10.5, e.Lat)
	assert.Equal(t, 20.5, e.Lon)
	assert.Equal(t, 20.5, e.Geo.Lon)
	assert.Equal(t, 10.5, e.Geo.Lat)
	assert.NotEmpty(t, e.Issue.Type)
	assert.NotEmpty(t, e.Issue.Category)
}

func TestIsInfrastructureExactMatch(t *testing.T) {
	assert.True(t, IsInfrastructure(Issue{Type: "power_outage", Category: CategoryInfrastructure}))
}

func TestIsInfrastructureSubstringHeuristic(t *testing.T) {
	assert.True(t, IsInfrastructure(Issue{Type: "regional_outage_event", Category: "unknown"}))
}

func TestIsInfrastructureFalseForUnrelated(t *testing.T) {
	assert.False(t, IsInfrastructure(Issue{Type: "billing_dispute", Category: CategoryConsumer}))
}
