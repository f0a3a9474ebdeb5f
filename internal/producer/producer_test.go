package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/store"
)

const testCatalogJSON = `[
	{"name":"alpha","lat":10,"lng":20,"weight":1,"sigmaKm":5},
	{"name":"beta","lat":11,"lng":21,"weight":2,"sigmaKm":5}
]`

func newTestPool(t *testing.T) (*Pool, store.Store) {
	t.Helper()

	cat, err := catalog.LoadFromJSON([]byte(testCatalogJSON))
	require.NoError(t, err)

	b, err := bus.Connect("")
	require.NoError(t, err)

	st := store.NewMemStore()
	limits := Limits{MaxRate: 1000, MaxBatch: 1000, MaxShards: 64}

	return New(st, cat, b, 10, limits), st
}

func TestSplitRateDistributesRemainder(t *testing.T) {
	out := splitRate(10, 3)
	assert.Equal(t, []int{4, 3, 3}, out)

	sum := 0
	for _, v := range out {
		sum += v
	}
	assert.Equal(t, 10, sum)
}

func TestBatchSizesTruncatesLast(t *testing.T) {
	out := batchSizes(7, 3)
	assert.Equal(t, []int{3, 3, 1}, out)

	out = batchSizes(0, 3)
	assert.Nil(t, out)
}

func TestStartValidatesParams(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Start(ctx, "run-1", Params{Rate: 0, Batch: 10, Shards: 1, SpreadFactor: 1})
	assert.Error(t, err)

	_, err = pool.Start(ctx, "run-1", Params{Rate: 10, Batch: 10, Shards: 20, SpreadFactor: 1})
	assert.Error(t, err)

	_, err = pool.Start(ctx, "run-1", Params{Rate: 10, Batch: 10, Shards: 1, SpreadFactor: 10})
	assert.Error(t, err)
}

func TestStartStopLifecycle(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	seed := uint32(42)
	status, err := pool.Start(ctx, "run-2", Params{Rate: 4, Batch: 2, Shards: 2, SpreadFactor: 1, Seed: &seed})
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "run-2", status.RunID)

	time.Sleep(1200 * time.Millisecond)

	status, err = pool.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Greater(t, status.AttemptedTotal, int64(0))

	recent, err := st.RecentIncidents(ctx, "run-2", time.Now().Add(-time.Minute), 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)
}

func TestStartIsIdempotentForSameRun(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	first, err := pool.Start(ctx, "run-3", Params{Rate: 2, Batch: 2, Shards: 1, SpreadFactor: 1})
	require.NoError(t, err)

	second, err := pool.Start(ctx, "run-3", Params{Rate: 2, Batch: 2, Shards: 1, SpreadFactor: 1})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)

	_, err = pool.Stop(ctx)
	require.NoError(t, err)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	pool, _ := newTestPool(t)
	status, err := pool.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
}
