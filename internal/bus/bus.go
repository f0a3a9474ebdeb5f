// Package bus publishes a best-effort live feed of a run's incident batches
// and persisted repairs onto NATS JetStream, so other services can tail a
// run without polling the document store. It is entirely optional: when no
// NATS URL is configured, Bus is a no-op and every publish call returns
// immediately without publishing.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// Bus fans incident/repair activity out to JetStream subjects scoped by run.
// A nil *Bus (or one built with an empty URL) is a valid, inert no-op value.
type Bus struct {
	conn *nats.Conn
	pub  *Publisher
}

// Connect dials NATS and binds a JetStream context. An empty url disables
// the bus: Connect returns a non-nil *Bus whose methods are no-ops, so
// callers never need a nil check.
func Connect(url string, opts ...nats.Option) (*Bus, error) {
	if url == "" {
		return &Bus{}, nil
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream: %w", err)
	}

	return &Bus{conn: nc, pub: NewPublisher(js)}, nil
}

// Enabled reports whether this Bus actually publishes anywhere.
func (b *Bus) Enabled() bool {
	return b != nil && b.pub != nil
}

// Close closes the underlying NATS connection, if any.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}

// incidentBatchEvent is the envelope published to incidents.<runId> after a
// shard's batch insert completes without error.
type incidentBatchEvent struct {
	RunID     string    `json:"runId"`
	Attempted int       `json:"attempted"`
	ShardID   int       `json:"shardId"`
	At        time.Time `json:"at"`
}

// repairEvent is the envelope published to repairs.<runId> when a repair
// record is successfully persisted.
type repairEvent struct {
	RunID      string    `json:"runId"`
	IncidentID string    `json:"incidentId"`
	RepairID   string    `json:"repairId"`
	Policy     string    `json:"policy"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// PublishIncidentBatch announces a batch that was attempted against the
// store for runID. Failures are logged through the telemetry log bridge and
// swallowed: bus delivery never blocks or fails the insert path it reports on.
func (b *Bus) PublishIncidentBatch(ctx context.Context, runID string, shardID, attempted int) {
	if !b.Enabled() {
		return
	}

	payload, err := json.Marshal(incidentBatchEvent{
		RunID:     runID,
		Attempted: attempted,
		ShardID:   shardID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		telemetry.EmitWarn(ctx, "bus: marshal incident batch event failed")
		return
	}

	if _, err := b.pub.Publish(ctx, "incidents."+runID, payload); err != nil {
		telemetry.EmitWarn(ctx, "bus: publish incident batch failed", attribute.String("runId", runID), attribute.String("error", err.Error()))
	}
}

// PublishRepair announces a successfully persisted repair record for runID.
func (b *Bus) PublishRepair(ctx context.Context, runID, incidentID, repairID, policy string, decidedAt time.Time) {
	if !b.Enabled() {
		return
	}

	payload, err := json.Marshal(repairEvent{
		RunID:      runID,
		IncidentID: incidentID,
		RepairID:   repairID,
		Policy:     policy,
		DecidedAt:  decidedAt,
	})
	if err != nil {
		telemetry.EmitWarn(ctx, "bus: marshal repair event failed")
		return
	}

	if _, err := b.pub.Publish(ctx, "repairs."+runID, payload); err != nil {
		telemetry.EmitWarn(ctx, "bus: publish repair failed", attribute.String("runId", runID), attribute.String("error", err.Error()))
	}
}
