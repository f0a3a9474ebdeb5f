package runstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/producer"
	"github.com/relaymesh/incidentforge/internal/repair"
	"github.com/relaymesh/incidentforge/internal/store"
)

const testCatalogJSON = `[{"name":"alpha","lat":10,"lng":20,"weight":1,"sigmaKm":5}]`

func newTestController(t *testing.T) *Controller {
	t.Helper()

	cat, err := catalog.LoadFromJSON([]byte(testCatalogJSON))
	require.NoError(t, err)

	b, err := bus.Connect("")
	require.NoError(t, err)

	st := store.NewMemStore()
	pool := producer.New(st, cat, b, 10, producer.Limits{MaxRate: 1000, MaxBatch: 1000, MaxShards: 64})
	sch := repair.New(st, b)

	return New(st, pool, sch)
}

func TestStartStopLifecycle(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	snap, err := c.Start(ctx, StartRequest{Rate: 2, Batch: 2, Shards: 1, SpreadFactor: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.RunID)
	assert.True(t, snap.Producer.Running)

	time.Sleep(50 * time.Millisecond)

	snap, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Producer.Running)
	assert.Empty(t, c.RunID())
}

func TestStartIsIdempotentWhileActive(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	first, err := c.Start(ctx, StartRequest{Rate: 2, Batch: 2, Shards: 1, SpreadFactor: 1})
	require.NoError(t, err)

	second, err := c.Start(ctx, StartRequest{Rate: 9, Batch: 9, Shards: 9, SpreadFactor: 1})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)

	_, err = c.Stop(ctx)
	require.NoError(t, err)
}

func TestStartWithRepairsEnabled(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	snap, err := c.Start(ctx, StartRequest{
		Rate: 2, Batch: 2, Shards: 1, SpreadFactor: 1,
		RepairsEnabled: true,
		RepairConfig:   repair.Config{CadenceMs: 50},
	})
	require.NoError(t, err)
	assert.True(t, snap.SchedulerOn)
	require.NotNil(t, snap.PersistedCount)

	_, err = c.Stop(ctx)
	require.NoError(t, err)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	c := newTestController(t)
	snap, err := c.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.RunID)
}
