package vecfs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// prom provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordBatchInsert is called after each batch insert.
	// count is the number of vectors in the batch; a failed batch inserts none.
	RecordBatchInsert(count int, duration time.Duration, err error)

	// RecordSearch is called after each search. kind is one of "knn",
	// "range", "filtered", "multi" or "hybrid"; scanned counts distance
	// evaluations.
	RecordSearch(kind string, k, scanned int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordCompaction is called after each compaction batch.
	RecordCompaction(duration time.Duration, freed int, err error)

	// RecordScrub is called after each scrub pass.
	RecordScrub(duration time.Duration, blocks, corrupt int, err error)

	// RecordDegraded is called when a search falls back to a linear scan.
	RecordDegraded(kind string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBatchInsert(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordSearch(string, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordCompaction(time.Duration, int, error)          {}
func (NoopMetricsCollector) RecordScrub(time.Duration, int, int, error)          {}
func (NoopMetricsCollector) RecordDegraded(string)                               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BatchInsertCount  atomic.Int64
	BatchInsertItems  atomic.Int64
	BatchInsertErrors atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	VectorsScanned    atomic.Int64
	DegradedSearches  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
	CompactionBatches atomic.Int64
	CompactionFreed   atomic.Int64
	ScrubCount        atomic.Int64
	CorruptBlocks     atomic.Int64
}

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count int, _ time.Duration, err error) {
	b.BatchInsertCount.Add(1)
	if err != nil {
		b.BatchInsertErrors.Add(1)
		return
	}
	b.BatchInsertItems.Add(int64(count))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ string, _, scanned int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	b.VectorsScanned.Add(int64(scanned))
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(_ time.Duration, freed int, _ error) {
	b.CompactionBatches.Add(1)
	b.CompactionFreed.Add(int64(freed))
}

// RecordScrub implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScrub(_ time.Duration, _, corrupt int, _ error) {
	b.ScrubCount.Add(1)
	b.CorruptBlocks.Add(int64(corrupt))
}

// RecordDegraded implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDegraded(string) {
	b.DegradedSearches.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BatchInsertCount:  b.BatchInsertCount.Load(),
		BatchInsertItems:  b.BatchInsertItems.Load(),
		BatchInsertErrors: b.BatchInsertErrors.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    b.getAvgSearchNanos(),
		VectorsScanned:    b.VectorsScanned.Load(),
		DegradedSearches:  b.DegradedSearches.Load(),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
		CompactionBatches: b.CompactionBatches.Load(),
		CompactionFreed:   b.CompactionFreed.Load(),
		ScrubCount:        b.ScrubCount.Load(),
		CorruptBlocks:     b.CorruptBlocks.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BatchInsertCount  int64
	BatchInsertItems  int64
	BatchInsertErrors int64
	SearchCount       int64
	SearchErrors      int64
	SearchAvgNanos    int64
	VectorsScanned    int64
	DegradedSearches  int64
	DeleteCount       int64
	DeleteErrors      int64
	CompactionBatches int64
	CompactionFreed   int64
	ScrubCount        int64
	CorruptBlocks     int64
}

// engineObserver forwards engine events to a MetricsCollector.
type engineObserver struct {
	mc MetricsCollector
}

func (o engineObserver) OnCompaction(d time.Duration, freed int, err error) {
	o.mc.RecordCompaction(d, freed, err)
}

func (o engineObserver) OnScrub(d time.Duration, blocks, corrupt int, err error) {
	o.mc.RecordScrub(d, blocks, corrupt, err)
}

func (o engineObserver) OnDegraded(op string) {
	o.mc.RecordDegraded(op)
}
