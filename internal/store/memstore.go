package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relaymesh/incidentforge/internal/eventmodel"
)

// MemStore is an in-memory Store used by the producer and repair scheduler
// test suites in place of a live Postgres instance. It implements the exact
// same concurrency and duplicate-detection contract as PGStore.
type MemStore struct {
	mu sync.Mutex

	runs      map[string]RunDescriptor
	incidents []eventmodel.IncidentEvent
	repairs   map[string]RepairEvent // keyed by runID+"/"+incidentID

	repairTTLDays int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:    map[string]RunDescriptor{},
		repairs: map[string]RepairEvent{},
	}
}

func (m *MemStore) InsertRunDescriptor(_ context.Context, d RunDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[d.RunID] = d
	return nil
}

func (m *MemStore) CloseRunDescriptor(_ context.Context, runID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	d.EndedAt = &endedAt
	m.runs[runID] = d
	return nil
}

func (m *MemStore) InsertIncidents(_ context.Context, events []eventmodel.IncidentEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, events...)
	return len(events), nil
}

func (m *MemStore) RecentIncidents(_ context.Context, runID string, since time.Time, limit int) ([]RecentIncident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []eventmodel.IncidentEvent
	for _, e := range m.incidents {
		if e.RunID == runID && !e.Timestamp.Before(since) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]RecentIncident, len(matched))
	for i, e := range matched {
		out[i] = RecentIncident{ID: e.ID, Timestamp: e.Timestamp, Issue: e.Issue}
	}

	return out, nil
}

func (m *MemStore) InsertRepair(_ context.Context, r RepairEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.RunID + "/" + r.IncidentID
	if _, exists := m.repairs[key]; exists {
		return ErrDuplicateRepair
	}
	m.repairs[key] = r

	return nil
}

func (m *MemStore) CountRepairs(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.repairs {
		if r.RunID == runID {
			count++
		}
	}

	return count, nil
}

// SetRepairTTLDays configures the pruning age PruneExpiredRepairs enforces.
// Zero (the default) disables pruning.
func (m *MemStore) SetRepairTTLDays(days int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairTTLDays = days
}

func (m *MemStore) PruneExpiredRepairs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.repairTTLDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -m.repairTTLDays)

	var removed int64
	for key, r := range m.repairs {
		if r.DecidedAt.Before(cutoff) {
			delete(m.repairs, key)
			removed++
		}
	}

	return removed, nil
}

func (m *MemStore) Ping(_ context.Context) error { return nil }

func (m *MemStore) Close() {}

var _ Store = (*MemStore)(nil)
