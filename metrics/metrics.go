// Package metrics publishes pipeline counters through the OpenTelemetry
// metric API. Without an installed SDK the global meter provider is a
// no-op.
package metrics

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/davidvella/logclean"

var (
	recordsExtracted metric.Int64Counter
	linesSkipped     metric.Int64Counter
	partitionsSorted metric.Int64Counter
	recordsWritten   metric.Int64Counter
	duplicates       metric.Int64Counter
	stageDuration    metric.Float64Histogram
)

func init() {
	meter := otel.Meter(meterName)

	var err error

	recordsExtracted, err = meter.Int64Counter(
		"logclean.records.extracted",
		metric.WithDescription("Number of index entries extracted from the source"),
	)
	if err != nil {
		log.Fatalf("failed to create records.extracted counter: %v", err)
	}

	linesSkipped, err = meter.Int64Counter(
		"logclean.lines.skipped",
		metric.WithDescription("Number of malformed source lines skipped"),
	)
	if err != nil {
		log.Fatalf("failed to create lines.skipped counter: %v", err)
	}

	partitionsSorted, err = meter.Int64Counter(
		"logclean.partitions.sorted",
		metric.WithDescription("Number of partitions written as sorted tables"),
	)
	if err != nil {
		log.Fatalf("failed to create partitions.sorted counter: %v", err)
	}

	recordsWritten, err = meter.Int64Counter(
		"logclean.records.written",
		metric.WithDescription("Number of records written to the cleaned log"),
	)
	if err != nil {
		log.Fatalf("failed to create records.written counter: %v", err)
	}

	duplicates, err = meter.Int64Counter(
		"logclean.records.duplicates",
		metric.WithDescription("Number of duplicate records dropped"),
	)
	if err != nil {
		log.Fatalf("failed to create records.duplicates counter: %v", err)
	}

	stageDuration, err = meter.Float64Histogram(
		"logclean.stage.duration",
		metric.WithDescription("Duration of a pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Fatalf("failed to create stage.duration histogram: %v", err)
	}
}

func RecordExtracted(ctx context.Context, n int) {
	recordsExtracted.Add(ctx, int64(n))
}

func RecordSkipped(ctx context.Context, n int) {
	linesSkipped.Add(ctx, int64(n))
}

func RecordPartitionSorted(ctx context.Context) {
	partitionsSorted.Add(ctx, 1)
}

func RecordWritten(ctx context.Context, n int) {
	recordsWritten.Add(ctx, int64(n))
}

func RecordDuplicates(ctx context.Context, n int) {
	duplicates.Add(ctx, int64(n))
}

// RecordStageDuration observes d for the named stage.
func RecordStageDuration(ctx context.Context, stage string, d time.Duration) {
	stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
