package internaltelemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// StorageMetrics holds the metric instruments for the buffer pool and the
// edge heap files built on it.
type StorageMetrics struct {
	RecordsInserted  metric.Int64Counter
	RecordsDeleted   metric.Int64Counter
	RecordsUpdated   metric.Int64Counter
	RecordsRead      metric.Int64Counter
	PagesAllocated   metric.Int64Counter
	PagesFreed       metric.Int64Counter
	DirPagesSpliced  metric.Int64Counter
	OpDuration       metric.Float64Histogram
	BufferPoolHits   metric.Int64Counter
	BufferPoolMisses metric.Int64Counter
	BufferPoolEvicts metric.Int64Counter
}

// NewStorageMetrics creates and registers all storage instruments on meter.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	m := &StorageMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.RecordsInserted, "edgeheap.records.inserted", "Edge records inserted."},
		{&m.RecordsDeleted, "edgeheap.records.deleted", "Edge records deleted."},
		{&m.RecordsUpdated, "edgeheap.records.updated", "Edge records overwritten in place."},
		{&m.RecordsRead, "edgeheap.records.read", "Edge records read by id."},
		{&m.PagesAllocated, "edgeheap.pages.allocated", "Data and directory pages allocated."},
		{&m.PagesFreed, "edgeheap.pages.freed", "Data and directory pages released."},
		{&m.DirPagesSpliced, "edgeheap.dirpages.spliced", "Empty directory pages unlinked from a directory chain."},
		{&m.BufferPoolHits, "bufferpool.hits", "Page fetches served from a resident frame."},
		{&m.BufferPoolMisses, "bufferpool.misses", "Page fetches that read from disk."},
		{&m.BufferPoolEvicts, "bufferpool.evictions", "Frames reclaimed from another page."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	opDuration, err := meter.Float64Histogram(
		"edgeheap.op.duration",
		metric.WithDescription("Latency of edge heap file operations."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.OpDuration = opDuration
	return m, nil
}

// NewNoopStorageMetrics returns instruments that record nothing.
func NewNoopStorageMetrics() *StorageMetrics {
	m, _ := NewStorageMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// RecordOp records the duration of one heap file operation.
func (m *StorageMetrics) RecordOp(ctx context.Context, op string, ms float64, failed bool) {
	m.OpDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("failed", failed),
	))
}
