// Package repair implements the repair scheduler: for a subset of recent
// infrastructure-category incidents, it schedules delayed "repair" records
// whose insertion time is drawn from a log-normal distribution, and persists
// each exactly once per run.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaymesh/incidentforge/internal/apierr"
	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/eventmodel"
	"github.com/relaymesh/incidentforge/internal/rng"
	"github.com/relaymesh/incidentforge/internal/store"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// state is the scheduler's internal lifecycle state, per spec.md §4.E.2.
type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopping
)

// defaultSeed is the fixed RNG fallback used when a run context carries no
// seed, per spec.md §4.E.2.
const defaultSeed uint32 = 0x5ca1ab1e

// Config is the scheduler's configurable parameter set, per spec.md §4.E.3.
// Zero-valued fields fall back to the built-in defaults at Start time, so
// each effective value is the call-site value when set and the built-in
// default otherwise; there is no configured-default layer between the two.
type Config struct {
	CadenceMs       int
	BudgetPerTick   int
	RecentWindowSec int
	DelayMedianSec  float64
	DelayP95Sec     float64
	DelayJitterSec  int
	PFixProbability float64
	MaxDelaySec     int
	Policy          string
	Version         string
}

func (c Config) withDefaults() Config {
	if c.CadenceMs <= 0 {
		c.CadenceMs = 1000
	}
	if c.BudgetPerTick <= 0 {
		c.BudgetPerTick = 5
	}
	if c.RecentWindowSec <= 0 {
		c.RecentWindowSec = 30
	}
	if c.DelayMedianSec <= 0 {
		c.DelayMedianSec = 60
	}
	if c.DelayP95Sec <= 0 {
		c.DelayP95Sec = 150
	}
	if c.DelayJitterSec <= 0 {
		c.DelayJitterSec = 10
	}
	if c.PFixProbability <= 0 {
		c.PFixProbability = 0.92
	}
	if c.MaxDelaySec <= 0 {
		c.MaxDelaySec = 300
	}
	if c.Policy == "" {
		c.Policy = "log-normal-delay"
	}
	if c.Version == "" {
		c.Version = "v1"
	}

	return c
}

// RunContext identifies the run a scheduler instance is attached to, per
// spec.md §4.E.2's start(runContext, config) signature.
type RunContext struct {
	RunID string
	Seed  *uint32
}

// Status is a point-in-time snapshot of the scheduler's state.
type Status struct {
	Running           bool
	RunID             string
	Scheduled         int
	Persisted         int
	DuplicatesIgnored int
	Dropped           int
	InFlight          int
}

// pendingTimer tracks an outstanding one-shot repair timer keyed by
// incidentId, per spec.md's in-flight table.
type pendingTimer struct {
	timer *time.Timer
	dueAt time.Time
}

// Scheduler is the repair scheduler state machine. One instance is created
// per process and reused across runs.
type Scheduler struct {
	st store.Store
	b  *bus.Bus

	mu      sync.Mutex
	phase     state
	runID   string
	cfg     Config
	rngSrc  *rng.Source
	ticking bool

	cadenceCancel context.CancelFunc
	cadenceDone   chan struct{}

	timersMu sync.Mutex
	timers   map[string]*pendingTimer

	scheduled         int
	persisted         int
	duplicatesIgnored int
	dropped           int
}

// New builds a Scheduler bound to a store and an optional event bus.
func New(st store.Store, b *bus.Bus) *Scheduler {
	return &Scheduler{
		st:     st,
		b:      b,
		phase:    stateIdle,
		timers: make(map[string]*pendingTimer),
	}
}

// Start transitions idle -> running. A missing runId fails with
// invalid-argument. Calling Start again while already running the same
// runId is a no-op that returns the current status.
func (s *Scheduler) Start(rc RunContext, cfg Config) (Status, error) {
	if rc.RunID == "" {
		return Status{}, apierr.InvalidArgument("repair: runContext.runId is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == stateRunning && s.runID == rc.RunID {
		return s.snapshotLocked(), nil
	}
	if s.phase != stateIdle {
		return Status{}, apierr.InvalidArgument("repair: scheduler is not idle")
	}

	seed := defaultSeed
	if rc.Seed != nil {
		seed = *rc.Seed
	}

	s.phase = stateRunning
	s.runID = rc.RunID
	s.cfg = cfg.withDefaults()
	s.rngSrc = rng.NewSeeded(seed)
	s.scheduled = 0
	s.persisted = 0
	s.duplicatesIgnored = 0
	s.dropped = 0

	ctx, cancel := context.WithCancel(context.Background())
	s.cadenceCancel = cancel
	s.cadenceDone = make(chan struct{})

	go s.runCadence(ctx, s.cadenceDone)

	return s.snapshotLocked(), nil
}

// Stop transitions running -> stopping -> idle: waits for any in-flight
// tick to finish (bounded), cancels the periodic timer and every
// outstanding delay timer, then returns to idle. Idempotent.
func (s *Scheduler) Stop() Status {
	s.mu.Lock()
	if s.phase != stateRunning {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}

	s.phase = stateStopping
	cancel := s.cadenceCancel
	done := s.cadenceDone
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
	}

	s.cancelAllTimers()

	s.mu.Lock()
	s.phase = stateIdle
	status := s.snapshotLocked()
	s.mu.Unlock()

	return status
}

// Status returns a non-blocking snapshot of the scheduler's state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Status {
	s.timersMu.Lock()
	inFlight := len(s.timers)
	s.timersMu.Unlock()

	return Status{
		Running:           s.phase == stateRunning,
		RunID:             s.runID,
		Scheduled:         s.scheduled,
		Persisted:         s.persisted,
		DuplicatesIgnored: s.duplicatesIgnored,
		Dropped:           s.dropped,
		InFlight:          inFlight,
	}
}

func (s *Scheduler) cancelAllTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	for id, pt := range s.timers {
		pt.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) runCadence(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	cadence := time.Duration(s.cfg.CadenceMs) * time.Millisecond
	s.mu.Unlock()

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling pass, per spec.md §4.E.4. Reentrancy is forbidden
// via the ticking guard: an overlapping tick (a slow store read outlasting
// the cadence) is dropped rather than queued.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		return
	}
	s.ticking = true
	runID := s.runID
	cfg := s.cfg
	source := s.rngSrc
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	ctx, span := telemetry.StartInternal(ctx, telemetry.NameDB("select", "incidents"))
	defer span.End()

	since := time.Now().Add(-time.Duration(cfg.RecentWindowSec) * time.Second)
	limit := cfg.BudgetPerTick * 5

	recent, err := s.st.RecentIncidents(ctx, runID, since, limit)
	if err != nil {
		telemetry.RecordError(ctx, err)
		telemetry.EmitWarn(ctx, "repair: recent incidents query failed, skipping tick",
			attribute.String("runId", runID), attribute.String("error", err.Error()))
		return
	}

	candidates := filterInfrastructure(recent)
	order := fisherYates(len(candidates), source)

	emitted := 0
	for _, idx := range order {
		if emitted >= cfg.BudgetPerTick {
			break
		}

		candidate := candidates[idx]
		dedupeKey := strings.Join([]string{runID, string(candidate.Issue.Category), candidate.ID, cfg.Version}, "/")

		telemetry.EmitInfo(ctx, "WOULD_FIX",
			attribute.String("runId", runID),
			attribute.String("incidentId", candidate.ID),
			attribute.String("dedupeKey", dedupeKey))

		if source.Uniform() < 1-cfg.PFixProbability {
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			continue
		}

		s.scheduleRepair(ctx, runID, candidate, cfg, source, dedupeKey)
		emitted++
	}

	telemetry.SetSuccess(ctx)
}

func filterInfrastructure(recent []store.RecentIncident) []store.RecentIncident {
	out := make([]store.RecentIncident, 0, len(recent))
	for _, r := range recent {
		if eventmodel.IsInfrastructure(r.Issue) {
			out = append(out, r)
		}
	}

	return out
}

// fisherYates returns a deterministic permutation of [0, n) driven by
// source, per spec.md §4.E.4.3.
func fisherYates(n int, source *rng.Source) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for i := n - 1; i > 0; i-- {
		j := source.UniformInt(0, i)
		order[i], order[j] = order[j], order[i]
	}

	return order
}

func (s *Scheduler) scheduleRepair(ctx context.Context, runID string, candidate store.RecentIncident, cfg Config, source *rng.Source, dedupeKey string) {
	s.timersMu.Lock()
	_, exists := s.timers[candidate.ID]
	s.timersMu.Unlock()
	if exists {
		return
	}

	base := source.LogNormalSeconds(cfg.DelayMedianSec, cfg.DelayP95Sec)
	jitter := source.UniformInt(-cfg.DelayJitterSec, cfg.DelayJitterSec)
	delaySec := clamp(max1(base+jitter), 1, cfg.MaxDelaySec)
	delay := time.Duration(delaySec) * time.Second

	dueAt := time.Now().Add(delay)

	pt := &pendingTimer{dueAt: dueAt}
	pt.timer = time.AfterFunc(delay, func() {
		s.fireTimer(runID, candidate, cfg, dedupeKey)
	})

	s.timersMu.Lock()
	s.timers[candidate.ID] = pt
	s.timersMu.Unlock()

	s.mu.Lock()
	s.scheduled++
	s.mu.Unlock()

	telemetry.IncScheduledRepairs(ctx, runID)
}

// fireTimer inserts the repair record when a one-shot timer fires, per
// spec.md §4.E.5.
func (s *Scheduler) fireTimer(runID string, candidate store.RecentIncident, cfg Config, dedupeKey string) {
	ctx := context.Background()

	s.timersMu.Lock()
	delete(s.timers, candidate.ID)
	s.timersMu.Unlock()

	rec := store.RepairEvent{
		ID:            uuid.New().String(),
		Kind:          "repair",
		RunID:         runID,
		IncidentID:    candidate.ID,
		DecidedAt:     time.Now().UTC(),
		Category:      string(candidate.Issue.Category),
		Policy:        cfg.Policy,
		PolicyVersion: cfg.Version,
		Reason:        fmt.Sprintf("issue=%s", candidate.Issue.Type),
		DedupeKey:     dedupeKey,
	}

	ctx, span := telemetry.StartInternal(ctx, telemetry.NameDB("insert", "repairs"))
	defer span.End()

	err := s.st.InsertRepair(ctx, rec)
	switch {
	case err == nil:
		s.mu.Lock()
		s.persisted++
		s.mu.Unlock()
		telemetry.SetSuccess(ctx)
		telemetry.IncPersistedRepairs(ctx, runID)
		s.b.PublishRepair(ctx, runID, candidate.ID, rec.ID, cfg.Policy, rec.DecidedAt)
	case errors.Is(err, store.ErrDuplicateRepair):
		s.mu.Lock()
		s.duplicatesIgnored++
		s.mu.Unlock()
		telemetry.SetSuccess(ctx)
		telemetry.IncDuplicatesIgnored(ctx, runID)
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		telemetry.RecordError(ctx, err)
		telemetry.EmitWarn(ctx, "repair: insert repair failed, dropping",
			attribute.String("runId", runID), attribute.String("incidentId", candidate.ID),
			attribute.String("error", err.Error()))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

func max1(v int) int {
	if v < 1 {
		return 1
	}

	return v
}
