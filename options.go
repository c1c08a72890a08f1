package vecfs

import (
	"log/slog"
	"time"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

type (
	// Limits is the per-operation stack and memory budget.
	Limits = resource.Limits
	// ResourceConfig holds process-wide resource limits.
	ResourceConfig = resource.Config
)

type options struct {
	m              int
	efConstruction int
	efSearch       int
	metric         distance.Metric
	heuristic      bool
	seed           uint64
	limits         resource.Limits

	elementType        layout.ElementType
	alignment          uint32
	alignmentThreshold int
	flags              layout.Flags
	compression        layout.Compression
	originalSize       uint32

	backend    blockstore.Backend
	cacheBytes int64
	resources  resource.Config

	metricsCollector MetricsCollector
	logger           *Logger
	schema           metadata.Schema
	clock            func() time.Time

	batchParallelism    int
	filterScanThreshold int
	compactionThreshold float64
	compactionBatch     int
}

// Option configures Open.
type Option func(*options)

// WithM sets the number of links per node on layers >= 1. Layer 0 keeps 2*M.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the candidate beam width used while inserting.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEFSearch sets the default candidate beam width of searches.
// Searches never use a beam narrower than k.
func WithEFSearch(ef int) Option {
	return func(o *options) {
		o.efSearch = ef
	}
}

// WithMetric sets the metric the graph is built with. Queries may use a
// different metric; traversal then follows the query metric.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithHeuristic toggles diversity-aware neighbor selection (default on).
func WithHeuristic(enabled bool) Option {
	return func(o *options) {
		o.heuristic = enabled
	}
}

// WithSeed makes level assignment reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLimits sets the per-operation stack and memory budget.
//
// Searches that exceed the budget fall back to a linear scan over the stored
// vectors; inserts fail with ErrStackBudgetExceeded and leave the index
// unchanged.
func WithLimits(l Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithElementType sets the storage type of vector components (default float32).
func WithElementType(t layout.ElementType) Option {
	return func(o *options) {
		o.elementType = t
	}
}

// WithAlignment sets the SIMD alignment in bytes (16, 32 or 64).
// By default it is detected from the running CPU.
func WithAlignment(bytes uint32) Option {
	return func(o *options) {
		o.alignment = bytes
	}
}

// WithAlignmentThreshold sets the raw vector size from which vectors are
// stored SIMD-aligned instead of tightly packed.
func WithAlignmentThreshold(bytes int) Option {
	return func(o *options) {
		o.alignmentThreshold = bytes
	}
}

// WithFlags sets the descriptor flags. FlagNormalized stores every vector
// L2-normalized.
func WithFlags(f layout.Flags) Option {
	return func(o *options) {
		o.flags = f
	}
}

// WithCompression stores payloads compressed with c. The slot budget per
// vector is originalSize bytes, or the worst case when zero.
//
// Example:
//
//	st, _ := vecfs.Open(768, vecfs.WithCompression(layout.CompressionZstd, 0))
func WithCompression(c layout.Compression, originalSize uint32) Option {
	return func(o *options) {
		o.compression = c
		o.originalSize = originalSize
		if c != layout.CompressionNone {
			o.flags |= layout.FlagCompressed
		}
	}
}

// WithBackend sets the block storage backend. The store takes ownership and
// closes it on Close. Defaults to an in-memory backend.
//
// Example:
//
//	fs, _ := blockstore.OpenFileStore("/var/lib/vecfs/blocks")
//	st, _ := vecfs.Open(128, vecfs.WithBackend(fs))
func WithBackend(b blockstore.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithBlockCache puts an LRU block cache of the given capacity in front of
// the backend. Cache hits and misses are reported by SearchStats.
func WithBlockCache(capacityBytes int64) Option {
	return func(o *options) {
		o.cacheBytes = capacityBytes
	}
}

// WithResources sets the process resource limits: block cache memory,
// background workers and background IO rate.
func WithResources(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecfs.BasicMetricsCollector{}
//	st, _ := vecfs.Open(128, vecfs.WithMetricsCollector(metrics))
//	// ... use st ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecfs.NewJSONLogger(slog.LevelInfo)
//	st, _ := vecfs.Open(128, vecfs.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSchema constrains the kinds of metadata fields.
func WithSchema(s metadata.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithClock sets the monotonic clock used for search timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithBatchParallelism bounds the concurrent queries of a multi-vector
// search. Values <= 1 run queries sequentially.
func WithBatchParallelism(n int) Option {
	return func(o *options) {
		o.batchParallelism = n
	}
}

// WithFilterScanThreshold sets the category prefilter cardinality up to
// which filtered searches scan candidates exactly.
func WithFilterScanThreshold(n int) Option {
	return func(o *options) {
		o.filterScanThreshold = n
	}
}

// WithCompaction sets the tombstone ratio that starts background compaction
// and the number of nodes repaired per write lock. A negative threshold
// disables background compaction; Compact still works.
func WithCompaction(threshold float64, batch int) Option {
	return func(o *options) {
		o.compactionThreshold = threshold
		o.compactionBatch = batch
	}
}

func applyOptions(optFns []Option) options {
	g := hnsw.DefaultOptions()
	o := options{
		m:                g.M,
		efConstruction:   g.EFConstruction,
		efSearch:         g.EFSearch,
		metric:           g.Metric,
		heuristic:        g.Heuristic,
		limits:           g.Limits,
		elementType:      layout.Float32,
		alignment:        layout.DetectSIMDAlignment(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o *options) descriptor(dimension uint32) layout.VectorDescriptor {
	return layout.VectorDescriptor{
		Dimension:     dimension,
		ElementType:   o.elementType,
		SIMDAlignment: o.alignment,
		Flags:         o.flags,
		OriginalSize:  o.originalSize,
		Compression:   o.compression,
	}
}

func (o *options) graphOptions() hnsw.Options {
	return hnsw.Options{
		M:              o.m,
		EFConstruction: o.efConstruction,
		EFSearch:       o.efSearch,
		Metric:         o.metric,
		Heuristic:      o.heuristic,
		Seed:           o.seed,
		Limits:         o.limits,
	}
}
