package repair

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/eventmodel"
	"github.com/relaymesh/incidentforge/internal/rng"
	"github.com/relaymesh/incidentforge/internal/store"
)

func seedIncidents(t *testing.T, st store.Store, runID string, n int) {
	t.Helper()

	events := make([]eventmodel.IncidentEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, eventmodel.IncidentEvent{
			ID:        time.Now().Format("20060102150405.000000000") + "-" + string(rune('a'+i)),
			RunID:     runID,
			Timestamp: time.Now(),
			Issue:     eventmodel.Issue{Type: "power_outage", Category: eventmodel.CategoryInfrastructure},
		})
	}

	_, err := st.InsertIncidents(context.Background(), events)
	require.NoError(t, err)
}

func newTestScheduler(t *testing.T) (*Scheduler, store.Store) {
	t.Helper()

	st := store.NewMemStore()
	b, err := bus.Connect("")
	require.NoError(t, err)

	return New(st, b), st
}

func TestStartRequiresRunID(t *testing.T) {
	sched, _ := newTestScheduler(t)
	_, err := sched.Start(RunContext{}, Config{})
	assert.Error(t, err)
}

func TestStartIsIdempotentForSameRun(t *testing.T) {
	sched, _ := newTestScheduler(t)

	seed := uint32(7)
	first, err := sched.Start(RunContext{RunID: "run-1", Seed: &seed}, Config{CadenceMs: 50})
	require.NoError(t, err)
	assert.True(t, first.Running)

	second, err := sched.Start(RunContext{RunID: "run-1", Seed: &seed}, Config{CadenceMs: 50})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)

	sched.Stop()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1000, cfg.CadenceMs)
	assert.Equal(t, 5, cfg.BudgetPerTick)
	assert.Equal(t, 30, cfg.RecentWindowSec)
	assert.InDelta(t, 0.92, cfg.PFixProbability, 1e-9)
	assert.Equal(t, 300, cfg.MaxDelaySec)
}

func TestFisherYatesIsAPermutation(t *testing.T) {
	src := rng.NewSeeded(1)
	order := fisherYates(6, src)

	seen := make(map[int]bool)
	for _, v := range order {
		assert.False(t, seen[v])
		seen[v] = true
	}
	assert.Len(t, order, 6)
}

func TestTickSchedulesFromInfrastructureIncidents(t *testing.T) {
	sched, st := newTestScheduler(t)
	seedIncidents(t, st, "run-2", 3)

	seed := uint32(99)
	_, err := sched.Start(RunContext{RunID: "run-2", Seed: &seed}, Config{
		CadenceMs:       50,
		BudgetPerTick:   5,
		RecentWindowSec: 60,
		PFixProbability: 1,
		DelayMedianSec:  1,
		DelayP95Sec:     2,
		DelayJitterSec:  0,
		MaxDelaySec:     5,
	})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	status := sched.Status()
	assert.GreaterOrEqual(t, status.Scheduled, 1)

	sched.Stop()
	status = sched.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.InFlight)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	sched, _ := newTestScheduler(t)
	status := sched.Stop()
	assert.False(t, status.Running)
}
