package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/eventmodel"
)

func TestMemStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.InsertRunDescriptor(ctx, RunDescriptor{RunID: "r1", StartedAt: time.Now()}))
	require.NoError(t, s.CloseRunDescriptor(ctx, "r1", time.Now()))

	err := s.CloseRunDescriptor(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreInsertIncidentsAttemptedCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	events := []eventmodel.IncidentEvent{
		{ID: "a", RunID: "r1", Timestamp: time.Now()},
		{ID: "b", RunID: "r1", Timestamp: time.Now()},
	}
	n, err := s.InsertIncidents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemStoreRecentIncidentsFiltersByRunAndWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	now := time.Now()
	_, err := s.InsertIncidents(ctx, []eventmodel.IncidentEvent{
		{ID: "old", RunID: "r1", Timestamp: now.Add(-time.Hour), Issue: eventmodel.Issue{Type: "power_outage", Category: eventmodel.CategoryInfrastructure}},
		{ID: "new", RunID: "r1", Timestamp: now, Issue: eventmodel.Issue{Type: "power_outage", Category: eventmodel.CategoryInfrastructure}},
		{ID: "other-run", RunID: "r2", Timestamp: now, Issue: eventmodel.Issue{Type: "power_outage", Category: eventmodel.CategoryInfrastructure}},
	})
	require.NoError(t, err)

	got, err := s.RecentIncidents(ctx, "r1", now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestMemStoreInsertRepairDuplicateDetection(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	r := RepairEvent{ID: "rep1", RunID: "r1", IncidentID: "inc1", DecidedAt: time.Now()}
	require.NoError(t, s.InsertRepair(ctx, r))

	err := s.InsertRepair(ctx, r)
	assert.ErrorIs(t, err, ErrDuplicateRepair)

	count, err := s.CountRepairs(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
