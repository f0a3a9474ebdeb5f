// Package runstate owns the Run Controller: the single source of truth for
// the active run's identity, and the orchestration of the producer pool and
// the repair scheduler as one unit. Exactly one Controller exists per
// process.
package runstate

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaymesh/incidentforge/internal/apierr"
	"github.com/relaymesh/incidentforge/internal/producer"
	"github.com/relaymesh/incidentforge/internal/repair"
	"github.com/relaymesh/incidentforge/internal/store"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// StartRequest is the validated input to Controller.Start, matching the
// POST /start request body shape in spec.md §6.
type StartRequest struct {
	Rate           int
	Batch          int
	Shards         int
	SpreadFactor   float64
	Seed           *uint32
	Note           string
	RepairsEnabled bool
	RepairConfig   repair.Config
}

// Snapshot is the combined status the HTTP control surface's GET /status
// returns, per spec.md §6.
type Snapshot struct {
	RunID          string
	Producer       producer.Status
	Scheduler      repair.Status
	SchedulerOn    bool
	PersistedCount *int
}

// Controller serializes start/stop/status against the producer pool and the
// repair scheduler so only one run is ever active at a time.
type Controller struct {
	st   store.Store
	pool *producer.Pool
	sch  *repair.Scheduler

	mu    sync.Mutex
	runID string
}

// New builds a Controller bound to the store, producer pool, and repair
// scheduler it orchestrates.
func New(st store.Store, pool *producer.Pool, sch *repair.Scheduler) *Controller {
	return &Controller{st: st, pool: pool, sch: sch}
}

// Start establishes one run identity, starts the producer pool, and
// optionally the repair scheduler. If a run is already active, this is
// idempotent and returns the current snapshot unchanged.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	c.mu.Lock()
	active := c.runID != ""
	runID := c.runID
	c.mu.Unlock()

	if active {
		return c.Snapshot(ctx), nil
	}

	runID = uuid.New().String()

	ctx, span := telemetry.StartInternal(ctx, "run.start")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String("runId", runID))

	_, err := c.pool.Start(ctx, runID, producer.Params{
		Rate:         req.Rate,
		Batch:        req.Batch,
		Shards:       req.Shards,
		SpreadFactor: req.SpreadFactor,
		Seed:         req.Seed,
		Note:         req.Note,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return Snapshot{}, err
	}

	if req.RepairsEnabled {
		if _, err := c.sch.Start(repair.RunContext{RunID: runID, Seed: req.Seed}, req.RepairConfig); err != nil {
			telemetry.RecordError(ctx, err)
			_, _ = c.pool.Stop(ctx)
			return Snapshot{}, err
		}
	}

	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()

	telemetry.SetSuccess(ctx)

	return c.Snapshot(ctx), nil
}

// Stop halts the scheduler and the producer pool for the active run, and
// clears the current run identity. Idempotent when no run is active.
func (c *Controller) Stop(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	runID := c.runID
	c.mu.Unlock()

	if runID == "" {
		return c.Snapshot(ctx), nil
	}

	ctx, span := telemetry.StartInternal(ctx, "run.stop")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String("runId", runID))

	c.sch.Stop()

	if _, err := c.pool.Stop(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		return Snapshot{}, apierr.Resource("runstate: stop producer pool", err)
	}

	c.mu.Lock()
	c.runID = ""
	c.mu.Unlock()

	telemetry.SetSuccess(ctx)

	return c.Snapshot(ctx), nil
}

// Snapshot returns the combined producer/scheduler status, plus the
// persisted repair count for the active run (nil when no run is active or
// the count query fails).
func (c *Controller) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	runID := c.runID
	c.mu.Unlock()

	snap := Snapshot{
		RunID:     runID,
		Producer:  c.pool.Status(),
		Scheduler: c.sch.Status(),
	}
	snap.SchedulerOn = snap.Scheduler.Running

	if runID == "" {
		return snap
	}

	count, err := c.st.CountRepairs(ctx, runID)
	if err != nil {
		telemetry.EmitWarn(ctx, "runstate: count repairs failed", attribute.String("runId", runID), attribute.String("error", err.Error()))
		return snap
	}

	snap.PersistedCount = &count

	return snap
}

// RunID returns the currently active run's ID, or empty if none.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}
