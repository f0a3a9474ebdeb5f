// Package producer implements the rate-governed sharded producer pool:
// K independent shards that together sustain an aggregate insert rate of R
// incident events per second, writing bounded batches against the store and
// tracking a moving-average throughput from a shared rolling history.
package producer

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/relaymesh/incidentforge/internal/apierr"
	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/eventmodel"
	"github.com/relaymesh/incidentforge/internal/rng"
	"github.com/relaymesh/incidentforge/internal/store"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// Params are the validated start-time inputs for one run of the producer
// pool, per spec.md §4.D.2.
type Params struct {
	Rate         int
	Batch        int
	Shards       int
	SpreadFactor float64
	Seed         *uint32
	Note         string
}

// Limits are the resource caps a Pool enforces against Params, sourced from
// config at wiring time.
type Limits struct {
	MaxRate   int
	MaxBatch  int
	MaxShards int
}

// Status is a point-in-time snapshot of the pool's effective state, per
// spec.md §4.D.2's status() operation.
type Status struct {
	Running         bool
	RunID           string
	StartedAt       time.Time
	Rate            int
	Batch           int
	Shards          int
	SpreadFactor    float64
	CatalogSize     int
	WindowSec       int
	MovingAvgRate   int
	ActiveShards    int
	DroppedBatches  int64
	AttemptedTotal  int64
}

// Pool is the sharded producer pool. One Pool instance is created per
// process and reused across runs: Start establishes a new run identity each
// time, Stop tears the current run down.
type Pool struct {
	st       store.Store
	cat      *catalog.Catalog
	b        *bus.Bus
	windowS  int
	limits   Limits

	mu        sync.Mutex
	running   bool
	runID     string
	startedAt time.Time
	params    Params
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	rngMu sync.Mutex
	rngSrc *rng.Source

	history *history

	activeShards   atomic.Int64
	droppedBatches atomic.Int64
	attemptedTotal atomic.Int64
	tickAccum      atomic.Int64
}

// New builds a Pool bound to a store, a catalog, an optional event bus, the
// configured moving-average window, and the configured resource caps.
func New(st store.Store, cat *catalog.Catalog, b *bus.Bus, windowSec int, limits Limits) *Pool {
	return &Pool{
		st:      st,
		cat:     cat,
		b:       b,
		windowS: windowSec,
		limits:  limits,
		history: newHistory(),
	}
}

// Start validates params and, unless a run with the same runId is already
// active, establishes a new run: fresh runId, persisted descriptor, seeded
// RNG, zeroed history, and a fresh shard set. Idempotent when called again
// while the same run is already running.
func (p *Pool) Start(ctx context.Context, runID string, params Params) (Status, error) {
	if err := p.validate(params); err != nil {
		return Status{}, err
	}

	p.mu.Lock()
	if p.running {
		if p.runID == runID {
			status := p.snapshotLocked()
			p.mu.Unlock()
			return status, nil
		}
		p.mu.Unlock()
		return Status{}, apierr.InvalidArgument("producer: already running a different run")
	}
	p.mu.Unlock()

	if p.cat.Size() == 0 {
		return Status{}, apierr.Resource("producer: catalog is empty", catalog.ErrEmpty)
	}

	var seed uint32
	if params.Seed != nil {
		seed = *params.Seed
	} else {
		seed = uint32(time.Now().UnixNano())
	}

	descriptor := store.RunDescriptor{
		RunID:        runID,
		StartedAt:    time.Now().UTC(),
		Rate:         params.Rate,
		Batch:        params.Batch,
		Shards:       params.Shards,
		SpreadFactor: params.SpreadFactor,
		Seed:         params.Seed,
		Note:         params.Note,
		CatalogSize:  p.cat.Size(),
	}
	if err := p.st.InsertRunDescriptor(ctx, descriptor); err != nil {
		return Status{}, apierr.Resource("producer: insert run descriptor", err)
	}

	p.mu.Lock()
	p.running = true
	p.runID = runID
	p.startedAt = descriptor.StartedAt
	p.params = params
	p.history.reset()
	p.activeShards.Store(0)
	p.droppedBatches.Store(0)
	p.attemptedTotal.Store(0)
	p.tickAccum.Store(0)

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.rngSrc = rng.NewSeeded(seed)

	shardCounts := splitRate(params.Rate, params.Shards)
	for shardID, shardRate := range shardCounts {
		p.wg.Add(1)
		go p.runShard(runCtx, shardID, shardRate)
	}

	p.wg.Add(1)
	go p.runAggregator(runCtx)

	status := p.snapshotLocked()
	p.mu.Unlock()

	return status, nil
}

// Stop signals every shard and the aggregator to exit after their current
// tick, waits for them to drain, then closes the run descriptor. Idempotent:
// calling Stop when nothing is running is a no-op that returns a stopped
// status.
func (p *Pool) Stop(ctx context.Context) (Status, error) {
	p.mu.Lock()
	if !p.running {
		status := p.snapshotLocked()
		p.mu.Unlock()
		return status, nil
	}

	runID := p.runID
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	if err := p.st.CloseRunDescriptor(ctx, runID, time.Now().UTC()); err != nil {
		telemetry.EmitWarn(ctx, "producer: close run descriptor failed",
			attribute.String("runId", runID), attribute.String("error", err.Error()))
	}

	p.mu.Lock()
	p.running = false
	status := p.snapshotLocked()
	p.mu.Unlock()

	return status, nil
}

// Status returns a non-blocking snapshot of the pool's current state.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() Status {
	return Status{
		Running:        p.running,
		RunID:          p.runID,
		StartedAt:      p.startedAt,
		Rate:           p.params.Rate,
		Batch:          p.params.Batch,
		Shards:         p.params.Shards,
		SpreadFactor:   p.params.SpreadFactor,
		CatalogSize:    p.cat.Size(),
		WindowSec:      p.windowS,
		MovingAvgRate:  p.history.movingAverage(p.windowS),
		ActiveShards:   int(p.activeShards.Load()),
		DroppedBatches: p.droppedBatches.Load(),
		AttemptedTotal: p.attemptedTotal.Load(),
	}
}

func (p *Pool) validate(params Params) error {
	if params.Rate < 1 || params.Rate > p.limits.MaxRate {
		return apierr.InvalidArgumentf("producer: rate %d out of range [1,%d]", params.Rate, p.limits.MaxRate)
	}
	if params.Batch < 1 || params.Batch > p.limits.MaxBatch {
		return apierr.InvalidArgumentf("producer: batch %d out of range [1,%d]", params.Batch, p.limits.MaxBatch)
	}
	if params.Shards < 1 || params.Shards > p.limits.MaxShards {
		return apierr.InvalidArgumentf("producer: shards %d out of range [1,%d]", params.Shards, p.limits.MaxShards)
	}
	if params.Shards > params.Rate {
		return apierr.InvalidArgumentf("producer: shards %d cannot exceed rate %d", params.Shards, params.Rate)
	}
	if params.SpreadFactor < 0.2 || params.SpreadFactor > 5.0 {
		return apierr.InvalidArgumentf("producer: spreadFactor %f out of range [0.2,5.0]", params.SpreadFactor)
	}

	return nil
}

// splitRate divides rate across shards count shards per spec.md §4.D.3:
// floor(R/K) per shard, the first R mod K shards get one additional unit.
func splitRate(rate, shards int) []int {
	base := rate / shards
	remainder := rate % shards

	out := make([]int, shards)
	for i := 0; i < shards; i++ {
		out[i] = base
		if i < remainder {
			out[i]++
		}
	}

	return out
}

// batchSizes splits shardRate into at most batch-sized insert calls per
// tick, per spec.md §4.D.3: batches = max(1, ceil(shardRate/batch)), with
// the last batch truncated so the sum equals shardRate.
func batchSizes(shardRate, batch int) []int {
	if shardRate <= 0 {
		return nil
	}

	count := int(math.Ceil(float64(shardRate) / float64(batch)))
	if count < 1 {
		count = 1
	}

	out := make([]int, 0, count)
	remaining := shardRate
	for i := 0; i < count; i++ {
		n := batch
		if n > remaining {
			n = remaining
		}
		out = append(out, n)
		remaining -= n
	}

	return out
}

func (p *Pool) runShard(ctx context.Context, shardID, shardRate int) {
	defer p.wg.Done()

	p.activeShards.Add(1)
	defer p.activeShards.Add(-1)

	p.mu.Lock()
	runID := p.runID
	batch := p.params.Batch
	spread := p.params.SpreadFactor
	p.mu.Unlock()

	sizes := batchSizes(shardRate, batch)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t0 := time.Now()

		if runID == "" {
			telemetry.EmitError(ctx, "producer: shard exiting, missing runId", attribute.Int("shardId", shardID))
			return
		}

		attempted := p.runTick(ctx, runID, shardID, sizes, spread)

		p.tickAccum.Add(int64(attempted))
		p.attemptedTotal.Add(int64(attempted))

		elapsed := time.Since(t0)
		sleep := time.Second - elapsed
		if sleep > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
		}
	}
}

func (p *Pool) runTick(ctx context.Context, runID string, shardID int, sizes []int, spread float64) int {
	ctx, span := telemetry.StartInternal(ctx, telemetry.NameDB("insert", "incidents"))
	defer span.End()

	var attempted int
	for _, n := range sizes {
		events := p.buildBatch(runID, n, spread)

		count, err := p.st.InsertIncidents(ctx, events)
		attempted += count
		if err != nil {
			p.droppedBatches.Add(1)
			telemetry.RecordError(ctx, err)
			telemetry.EmitWarn(ctx, "producer: batch insert failed, dropping",
				attribute.String("runId", runID), attribute.Int("shardId", shardID),
				attribute.String("error", err.Error()))
			telemetry.IncDroppedBatches(ctx, runID)
			continue
		}

		p.b.PublishIncidentBatch(ctx, runID, shardID, count)
	}

	telemetry.SetSuccess(ctx)
	telemetry.SetAttributes(ctx, attribute.Int("shardId", shardID), attribute.Int("attempted", attempted))

	return attempted
}

func (p *Pool) buildBatch(runID string, n int, spread float64) []eventmodel.IncidentEvent {
	events := make([]eventmodel.IncidentEvent, 0, n)

	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	for i := 0; i < n; i++ {
		loc := p.cat.PickLocation(p.rngSrc)
		lat, lon := catalog.Jitter(loc, spread, p.rngSrc)
		events = append(events, eventmodel.BuildEvent(loc, lat, lon, p.rngSrc, runID))
	}

	return events
}

// runAggregator rotates the shared per-second accumulator into the rolling
// history once per wall-clock second, producing the "per-tick aggregate
// count across shards" spec.md §4.D.5 describes while letting each shard's
// own tick loop in runShard run independently of the others.
func (p *Pool) runAggregator(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v := p.tickAccum.Swap(0)
			p.history.append(int(v))
			return
		case <-ticker.C:
			v := p.tickAccum.Swap(0)
			p.history.append(int(v))

			p.mu.Lock()
			runID := p.runID
			avg := p.history.movingAverage(p.windowS)
			p.mu.Unlock()
			telemetry.RecordMovingAverageRate(ctx, runID, avg)
		}
	}
}
