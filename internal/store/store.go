// Package store persists run descriptors, incident events, and repair
// events. Documents are modeled as JSONB columns behind a narrow Store
// interface, the way the pack's Postgres-backed services store free-form
// payloads: a handful of indexed scalar columns for querying, plus a JSONB
// column holding the full document.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/incidentforge/internal/eventmodel"
)

// ErrDuplicateRepair is returned when a repair insert violates the unique
// (runId, incidentId) constraint. This is an expected outcome, not a fault:
// callers count it as duplicatesIgnored rather than treating it as an error.
var ErrDuplicateRepair = errors.New("store: duplicate repair for incident")

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("store: not found")

// RunDescriptor is the one-record-per-run document described in spec.md §3.
type RunDescriptor struct {
	RunID        string     `json:"runId"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Rate         int        `json:"rate"`
	Batch        int        `json:"batch"`
	Shards       int        `json:"shards"`
	SpreadFactor float64    `json:"spreadFactor"`
	Seed         *uint32    `json:"seed,omitempty"`
	Note         string     `json:"note,omitempty"`
	CatalogSize  int        `json:"catalogSize"`
	RepairsOn    bool       `json:"repairsEnabled"`
}

// RepairEvent is one persisted repair record, per spec.md §3.
type RepairEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	RunID         string    `json:"runId"`
	IncidentID    string    `json:"incidentId"`
	DecidedAt     time.Time `json:"decidedAt"`
	Category      string    `json:"category"`
	Policy        string    `json:"policy"`
	PolicyVersion string    `json:"policyVersion"`
	Reason        string    `json:"reason"`
	DedupeKey     string    `json:"dedupeKey"`
}

// RecentIncident is the projection the repair scheduler queries for:
// (id, timestamp, issue), nothing else.
type RecentIncident struct {
	ID        string
	Timestamp time.Time
	Issue     eventmodel.Issue
}

// Store is the persistence boundary the producer pool and repair scheduler
// depend on. Implementations must be safe for concurrent use: shards call
// InsertIncidents concurrently, the scheduler's timer callbacks call
// InsertRepair concurrently with each other, and the scheduler's tick calls
// RecentIncidents alongside both.
type Store interface {
	// InsertRunDescriptor persists a new open run descriptor.
	InsertRunDescriptor(ctx context.Context, d RunDescriptor) error
	// CloseRunDescriptor stamps endedAt on the named run's descriptor.
	CloseRunDescriptor(ctx context.Context, runID string, endedAt time.Time) error

	// InsertIncidents bulk-inserts a batch of incident events. Returns the
	// number of documents attempted regardless of a partial or total
	// failure: callers treat a failed batch as fully attempted for
	// accounting purposes (best-effort insert accounting).
	InsertIncidents(ctx context.Context, events []eventmodel.IncidentEvent) (attempted int, err error)

	// RecentIncidents returns up to limit incidents for runID with
	// timestamp >= since, newest first, projected to (id, timestamp, issue).
	RecentIncidents(ctx context.Context, runID string, since time.Time, limit int) ([]RecentIncident, error)

	// InsertRepair persists a repair record. Returns ErrDuplicateRepair on
	// a unique-constraint violation for (runId, incidentId).
	InsertRepair(ctx context.Context, r RepairEvent) error

	// CountRepairs returns the number of persisted repair records for runID.
	CountRepairs(ctx context.Context, runID string) (int, error)

	// PruneExpiredRepairs removes repair records older than the configured
	// TTL and returns how many were removed. A no-op when TTL pruning is
	// disabled.
	PruneExpiredRepairs(ctx context.Context) (int64, error)

	// Ping verifies connectivity, used by the HTTP /healthz endpoint.
	Ping(ctx context.Context) error

	// Close releases underlying resources (connection pool, etc).
	Close()
}
