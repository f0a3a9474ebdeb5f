// Package eventmodel builds one incident event payload from a sampled
// location, a jittered point, and an RNG stream. Apart from a fresh ID and
// the current timestamp, event construction depends only on its inputs: the
// same location, jitter, and RNG draw always produce the same issue variant
// and event shape.
package eventmodel

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/rng"
)

// Category is one of the five fixed issue-category tags. The infrastructure
// tag is the only one the repair scheduler selects on.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryConsumer       Category = "consumer"
	CategoryBusiness       Category = "business"
	CategoryFederal        Category = "federal"
	CategoryEmergingTech   Category = "emerging_tech"
)

// issueVariant is one entry in the fixed enumeration of issue shapes the
// builder samples from: a Type tag plus the Category it belongs to.
// BuildEvent only ever produces the variants listed in issueVariants.
type issueVariant struct {
	Type     string
	Category Category
}

var issueVariants = []issueVariant{
	{Type: "power_outage", Category: CategoryInfrastructure},
	{Type: "fiber_cut", Category: CategoryInfrastructure},
	{Type: "cell_tower_down", Category: CategoryInfrastructure},
	{Type: "billing_dispute", Category: CategoryConsumer},
	{Type: "service_complaint", Category: CategoryConsumer},
	{Type: "contract_breach", Category: CategoryBusiness},
	{Type: "sla_violation", Category: CategoryBusiness},
	{Type: "spectrum_compliance", Category: CategoryFederal},
	{Type: "lawful_intercept_request", Category: CategoryFederal},
	{Type: "5g_slice_anomaly", Category: CategoryEmergingTech},
	{Type: "edge_compute_latency", Category: CategoryEmergingTech},
}

// Issue is the opaque issue subdocument embedded in an IncidentEvent.
// BuildEvent always sets Type to one of the issueVariants' Type tags. Type
// and Category are plain strings, so a stored document carrying a tag outside
// that list still decodes; there is no separate catch-all variant, and
// IsInfrastructure classifies such an issue by its type token.
type Issue struct {
	Type     string   `json:"type"`
	Category Category `json:"category"`
}

// GeoPoint is the [lon, lat] pair alongside the scalar lat/lon fields,
// matching the dual representation spec.md's data model requires.
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// IncidentEvent is one persisted incident record. Once built it is treated
// as immutable.
type IncidentEvent struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Timestamp      time.Time `json:"timestamp"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Geo            GeoPoint  `json:"geo"`
	LocationName   string    `json:"locationName"`
	LocationWeight float64   `json:"locationWeight"`
	SigmaKm        float64   `json:"sigmaKm"`
	Issue          Issue     `json:"issue"`
	RunID          string    `json:"runId"`
}

// BuildEvent produces one IncidentEvent from a sampled location, its
// jittered coordinates, an RNG stream used only to choose the issue variant,
// and the owning run's ID.
func BuildEvent(loc catalog.Location, lat, lon float64, source *rng.Source, runID string) IncidentEvent {
	variant := issueVariants[source.UniformInt(0, len(issueVariants)-1)]

	return IncidentEvent{
		ID:             uuid.New().String(),
		Kind:           "incident",
		Timestamp:      time.Now().UTC(),
		Lat:            lat,
		Lon:            lon,
		Geo:            GeoPoint{Lon: lon, Lat: lat},
		LocationName:   loc.Name,
		LocationWeight: loc.Weight,
		SigmaKm:        loc.SigmaKm,
		Issue:          Issue{Type: variant.Type, Category: variant.Category},
		RunID:          runID,
	}
}

// infrastructureSubstrings is the fallback heuristic over the issue-type
// token set used when a category tag doesn't exact-match CategoryInfrastructure.
var infrastructureSubstrings = []string{"outage", "fiber", "tower", "infra", "network"}

// IsInfrastructure reports whether issue counts as the infrastructure
// category: an exact tag match, or a substring heuristic over its type
// token when the tag itself doesn't match (e.g. a future catch-all variant).
func IsInfrastructure(issue Issue) bool {
	if issue.Category == CategoryInfrastructure {
		return true
	}

	lower := strings.ToLower(issue.Type)
	for _, token := range infrastructureSubstrings {
		if strings.Contains(lower, token) {
			return true
		}
	}

	return false
}
