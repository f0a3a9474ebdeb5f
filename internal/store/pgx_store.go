package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaymesh/incidentforge/internal/eventmodel"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique-constraint violation.
const pgUniqueViolation = "23505"

// Options configures the table names and retention policy a PGStore uses.
// Named for parity with spec.md's "incident collection"/"repair collection"
// and "repair TTL days" environment settings even though this store is
// relational, not a Mongo-style database-of-collections.
type Options struct {
	// IncidentsTable and RepairsTable name the two document tables.
	// Empty falls back to "incidents"/"repairs".
	IncidentsTable string
	RepairsTable   string

	// RepairTTLDays, when positive, is the age past which PruneExpiredRepairs
	// removes repair rows. Zero disables pruning. This stands in for the
	// Mongo TTL index spec.md's persisted-state layout calls for: Postgres
	// has no native self-expiring index, so the same effect is achieved by
	// a periodic DELETE (see cmd/incidentgen's pruning loop).
	RepairTTLDays int
}

func (o Options) withDefaults() Options {
	if o.IncidentsTable == "" {
		o.IncidentsTable = "incidents"
	}
	if o.RepairsTable == "" {
		o.RepairsTable = "repairs"
	}

	return o
}

// PGStore is the pgx-backed Store implementation. Incidents and repairs are
// stored as one JSONB document column each, plus the indexed scalar columns
// queries actually filter on (runId, timestamp, a geo point). This mirrors
// the document-with-sidecar-columns convention the pack's Postgres-backed
// services use for free-form payloads.
type PGStore struct {
	pool *pgxpool.Pool
	opts Options

	incidentsTable string
	repairsTable   string
}

// Open connects to Postgres and returns a ready PGStore. Callers must call
// EnsureSchema once before first use (normally done by cmd/incidentgen at
// startup) and Close when done.
func Open(ctx context.Context, dsn string, opts Options) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	opts = opts.withDefaults()

	return &PGStore{
		pool:           pool,
		opts:           opts,
		incidentsTable: pgx.Identifier{opts.IncidentsTable}.Sanitize(),
		repairsTable:   pgx.Identifier{opts.RepairsTable}.Sanitize(),
	}, nil
}

// EnsureSchema creates the runs/incidents/repairs tables and their indexes
// if they don't already exist. The geo GiST index on incidents stands in
// for the MongoDB 2dsphere index spec.md's persisted-state layout calls for
// (see DESIGN.md for the geo-index substitution rationale).
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, span := telemetry.StartInternal(ctx, "store.EnsureSchema")
	defer span.End()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			doc JSONB NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			city TEXT NOT NULL,
			geo POINT,
			doc JSONB NOT NULL
		)`, s.incidentsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS incidents_ts_idx ON %s (ts)`, s.incidentsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS incidents_run_ts_idx ON %s (run_id, ts DESC)`, s.incidentsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS incidents_city_ts_idx ON %s (city, ts DESC)`, s.incidentsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS incidents_geo_gist_idx ON %s USING GIST (geo)`, s.incidentsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			incident_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			doc JSONB NOT NULL,
			UNIQUE (run_id, incident_id)
		)`, s.repairsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS repairs_run_ts_idx ON %s (run_id, ts DESC)`, s.repairsTable),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			telemetry.RecordError(ctx, err)
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}

	return nil
}

// InsertRunDescriptor implements Store.
func (s *PGStore) InsertRunDescriptor(ctx context.Context, d RunDescriptor) error {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("INSERT", "runs"))
	defer span.End()

	doc, err := json.Marshal(d)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("store: marshal run descriptor: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (run_id, started_at, doc) VALUES ($1, $2, $3)`,
		d.RunID, d.StartedAt, doc,
	)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("store: insert run descriptor: %w", err)
	}

	return nil
}

// CloseRunDescriptor implements Store.
func (s *PGStore) CloseRunDescriptor(ctx context.Context, runID string, endedAt time.Time) error {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("UPDATE", "runs"))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET ended_at = $2, doc = jsonb_set(doc, '{endedAt}', to_jsonb($2::timestamptz)) WHERE run_id = $1`,
		runID, endedAt,
	)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("store: close run descriptor: %w", err)
	}

	return nil
}

// InsertIncidents implements Store. A failed batch is still reported as
// fully attempted: see spec.md's best-effort insert accounting.
func (s *PGStore) InsertIncidents(ctx context.Context, events []eventmodel.IncidentEvent) (int, error) {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("INSERT", "incidents"))
	defer span.End()

	attempted := len(events)
	if attempted == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		doc, err := json.Marshal(e)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return attempted, fmt.Errorf("store: marshal incident: %w", err)
		}
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (id, run_id, ts, city, geo, doc) VALUES ($1, $2, $3, $4, point($5, $6), $7)
			 ON CONFLICT (id) DO NOTHING`, s.incidentsTable),
			e.ID, e.RunID, e.Timestamp, e.LocationName, e.Lon, e.Lat, doc,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var firstErr error
	for i := 0; i < len(events); i++ {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		telemetry.RecordError(ctx, firstErr)
		return attempted, fmt.Errorf("store: insert incidents batch: %w", firstErr)
	}

	return attempted, nil
}

// RecentIncidents implements Store.
func (s *PGStore) RecentIncidents(ctx context.Context, runID string, since time.Time, limit int) ([]RecentIncident, error) {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("SELECT", "incidents"))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, ts, doc->'issue' FROM %s WHERE run_id = $1 AND ts >= $2 ORDER BY ts DESC LIMIT $3`, s.incidentsTable),
		runID, since, limit,
	)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("store: query recent incidents: %w", err)
	}
	defer rows.Close()

	var out []RecentIncident
	for rows.Next() {
		var rec RecentIncident
		var issueRaw []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &issueRaw); err != nil {
			telemetry.RecordError(ctx, err)
			return nil, fmt.Errorf("store: scan recent incident: %w", err)
		}
		if err := json.Unmarshal(issueRaw, &rec.Issue); err != nil {
			telemetry.RecordError(ctx, err)
			return nil, fmt.Errorf("store: unmarshal issue: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("store: rows: %w", err)
	}

	return out, nil
}

// InsertRepair implements Store.
func (s *PGStore) InsertRepair(ctx context.Context, r RepairEvent) error {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("INSERT", "repairs"))
	defer span.End()

	doc, err := json.Marshal(r)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("store: marshal repair: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, run_id, incident_id, ts, doc) VALUES ($1, $2, $3, $4, $5)`, s.repairsTable),
		r.ID, r.RunID, r.IncidentID, r.DecidedAt, doc,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateRepair
		}
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("store: insert repair: %w", err)
	}

	return nil
}

// CountRepairs implements Store.
func (s *PGStore) CountRepairs(ctx context.Context, runID string) (int, error) {
	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("SELECT", "repairs"))
	defer span.End()

	var count int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE run_id = $1`, s.repairsTable), runID).Scan(&count)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, fmt.Errorf("store: count repairs: %w", err)
	}

	return count, nil
}

// PruneExpiredRepairs deletes repair rows older than the configured TTL and
// returns how many rows were removed. A no-op returning (0, nil) when
// RepairTTLDays is zero.
func (s *PGStore) PruneExpiredRepairs(ctx context.Context) (int64, error) {
	if s.opts.RepairTTLDays <= 0 {
		return 0, nil
	}

	ctx, span := telemetry.StartClient(ctx, telemetry.NameDB("DELETE", "repairs"))
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.opts.RepairTTLDays)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, s.repairsTable), cutoff)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, fmt.Errorf("store: prune expired repairs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Ping implements Store.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PGStore) Close() {
	s.pool.Close()
}

var _ Store = (*PGStore)(nil)
