package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every instrument below.
const meterName = "github.com/relaymesh/incidentforge/internal/telemetry"

// instruments holds the lazily-initialized counters and gauge shared by the
// producer pool and the repair scheduler. Initialization is deferred to
// first use so packages can call these helpers before InitTracing/a meter
// provider is installed; before that point, otel.GetMeterProvider returns
// the no-op provider and every instrument below is a harmless no-op.
type instruments struct {
	droppedBatches    metric.Int64Counter
	persistedRepairs  metric.Int64Counter
	duplicatesIgnored metric.Int64Counter
	scheduledRepairs  metric.Int64Counter
	movingAvgRate     metric.Int64Gauge
}

var (
	instrumentsOnce sync.Once
	inst            instruments
)

func metrics() *instruments {
	instrumentsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)

		inst.droppedBatches, _ = meter.Int64Counter(
			"incidentgen.producer.dropped_batches",
			metric.WithDescription("Batches a producer shard failed to insert and dropped."),
		)
		inst.persistedRepairs, _ = meter.Int64Counter(
			"incidentgen.repair.persisted",
			metric.WithDescription("Repair events successfully persisted."),
		)
		inst.duplicatesIgnored, _ = meter.Int64Counter(
			"incidentgen.repair.duplicates_ignored",
			metric.WithDescription("Repair events rejected as duplicates by the (runId, incidentId) unique constraint."),
		)
		inst.scheduledRepairs, _ = meter.Int64Counter(
			"incidentgen.repair.scheduled",
			metric.WithDescription("Repairs scheduled via a one-shot delay timer."),
		)
		inst.movingAvgRate, _ = meter.Int64Gauge(
			"incidentgen.producer.moving_average_rate",
			metric.WithDescription("Moving-average attempted-insert rate across the producer pool's tick history."),
		)
	})

	return &inst
}

// IncDroppedBatches records a producer shard batch insert failure.
func IncDroppedBatches(ctx context.Context, runID string) {
	metrics().droppedBatches.Add(ctx, 1, metric.WithAttributes(attribute.String("runId", runID)))
}

// IncPersistedRepairs records a successfully persisted repair event.
func IncPersistedRepairs(ctx context.Context, runID string) {
	metrics().persistedRepairs.Add(ctx, 1, metric.WithAttributes(attribute.String("runId", runID)))
}

// IncDuplicatesIgnored records a repair event rejected as a duplicate.
func IncDuplicatesIgnored(ctx context.Context, runID string) {
	metrics().duplicatesIgnored.Add(ctx, 1, metric.WithAttributes(attribute.String("runId", runID)))
}

// IncScheduledRepairs records a repair scheduled via a one-shot delay timer.
func IncScheduledRepairs(ctx context.Context, runID string) {
	metrics().scheduledRepairs.Add(ctx, 1, metric.WithAttributes(attribute.String("runId", runID)))
}

// RecordMovingAverageRate records the producer pool's current moving-average
// attempted-insert rate.
func RecordMovingAverageRate(ctx context.Context, runID string, rate int) {
	metrics().movingAvgRate.Record(ctx, int64(rate), metric.WithAttributes(attribute.String("runId", runID)))
}
