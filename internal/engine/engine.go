package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/block"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

const (
	// DefaultFilterScanThreshold is the prefilter cardinality up to which a
	// filtered search scans its candidates exactly instead of traversing.
	DefaultFilterScanThreshold = 256
	// DefaultCompactionThreshold is the tombstone ratio that triggers
	// background compaction.
	DefaultCompactionThreshold = 0.1
	// DefaultCompactionBatch is the number of nodes repaired per write lock.
	DefaultCompactionBatch = 256

	scanChunk = 256
)

// Config wires the engine to its collaborators.
type Config struct {
	Descriptor layout.VectorDescriptor
	Graph      *hnsw.Graph
	Blocks     *block.Store
	Metadata   *metadata.Index
	Controller *resource.Controller
	Logger     *slog.Logger
	Metrics    MetricsObserver

	// Clock times searches. Defaults to time.Now.
	Clock func() time.Time

	// BatchParallelism bounds concurrent queries of a multi-query search.
	// Values <= 1 run queries sequentially.
	BatchParallelism int

	FilterScanThreshold int

	// CompactionThreshold is the tombstone ratio that starts background
	// compaction after a delete. A negative value disables it.
	CompactionThreshold float64
	CompactionBatch     int
}

// Engine is the search engine over one graph and one block store.
type Engine struct {
	desc atomic.Pointer[layout.VectorDescriptor]

	graph    *hnsw.Graph
	blocks   *block.Store
	meta     *metadata.Index
	rc       *resource.Controller
	logger   *slog.Logger
	metrics  MetricsObserver
	clock    func() time.Time
	parallel int

	filterScanThreshold int
	compactionThreshold float64
	compactionBatch     int

	searches    atomic.Uint64
	searchNanos atomic.Int64
	scanned     atomic.Uint64
	degraded    atomic.Uint64

	bgMu   sync.Mutex
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Graph == nil || cfg.Blocks == nil {
		return nil, fmt.Errorf("%w: graph and block store are required", ErrInvalidArgument)
	}
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}
	if cfg.Metadata == nil {
		cfg.Metadata = metadata.NewIndex(nil)
	}
	if cfg.Controller == nil {
		cfg.Controller = resource.NewController(resource.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetricsObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.FilterScanThreshold <= 0 {
		cfg.FilterScanThreshold = DefaultFilterScanThreshold
	}
	if cfg.CompactionThreshold == 0 {
		cfg.CompactionThreshold = DefaultCompactionThreshold
	}
	if cfg.CompactionBatch <= 0 {
		cfg.CompactionBatch = DefaultCompactionBatch
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		graph:               cfg.Graph,
		blocks:              cfg.Blocks,
		meta:                cfg.Metadata,
		rc:                  cfg.Controller,
		logger:              cfg.Logger,
		metrics:             cfg.Metrics,
		clock:               cfg.Clock,
		parallel:            max(cfg.BatchParallelism, 1),
		filterScanThreshold: cfg.FilterScanThreshold,
		compactionThreshold: cfg.CompactionThreshold,
		compactionBatch:     cfg.CompactionBatch,
		ctx:                 ctx,
		cancel:              cancel,
	}
	desc := cfg.Descriptor
	e.desc.Store(&desc)
	return e, nil
}

// Descriptor returns the current vector descriptor.
func (e *Engine) Descriptor() layout.VectorDescriptor {
	return *e.desc.Load()
}

// Metric returns the metric the graph is built with.
func (e *Engine) Metric() distance.Metric { return e.graph.Options().Metric }

// SetDescriptor replaces the vector descriptor. The engine must be empty.
func (e *Engine) SetDescriptor(ctx context.Context, desc layout.VectorDescriptor) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	return e.graph.Update(ctx, func(tx *hnsw.Txn) error {
		if tx.Len() > 0 {
			return fmt.Errorf("%w: descriptor can only change while the store is empty", ErrInvalidArgument)
		}
		// Tombstoned nodes are still traversed; drop them before the
		// dimension can change.
		for tx.CompactionPending() {
			if _, err := tx.CompactBatch(ctx, e.compactionBatch); err != nil {
				return err
			}
		}
		e.desc.Store(&desc)
		return nil
	})
}

// Len returns the number of live vectors.
func (e *Engine) Len(ctx context.Context) (int, error) {
	var n int
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		n = s.Len()
		return nil
	})
	return n, err
}

// Metadata returns the metadata index.
func (e *Engine) Metadata() *metadata.Index { return e.meta }

// Blocks returns the block store.
func (e *Engine) Blocks() *block.Store { return e.blocks }

// Stats summarizes the engine.
type Stats struct {
	TotalVectors  uint64
	TotalSearches uint64
	// SearchTime is the accumulated search time.
	SearchTime time.Duration
	// VectorsScanned counts distance evaluations across all searches.
	VectorsScanned  uint64
	DegradedScans   uint64
	GraphBytes      int64
	Graph           hnsw.Stats
	Layout          layout.Stats
	Codec           block.CodecStats
	Guard           map[hnsw.Op]resource.Report
	BackgroundIO    int64
	CompactionDirty bool
}

// AvgSearchTime returns the mean search latency.
func (s Stats) AvgSearchTime() time.Duration {
	if s.TotalSearches == 0 {
		return 0
	}
	return s.SearchTime / time.Duration(s.TotalSearches)
}

// IndexBytes is the memory held by the graph plus the bytes of allocated blocks.
func (s Stats) IndexBytes() int64 {
	return s.GraphBytes + int64(s.Layout.BytesAllocated)
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		TotalSearches:  e.searches.Load(),
		SearchTime:     time.Duration(e.searchNanos.Load()),
		VectorsScanned: e.scanned.Load(),
		DegradedScans:  e.degraded.Load(),
		Layout:         e.blocks.Layout().Stats(),
		Codec:          e.blocks.Codec().Stats(),
		Guard:          e.graph.Reports(),
		BackgroundIO:   e.rc.BackgroundIOBytes(),
	}
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		st.Graph = s.Stats()
		st.TotalVectors = uint64(s.Len())
		st.GraphBytes = st.Graph.Bytes
		st.CompactionDirty = s.CompactionPending()
		return nil
	})
	return st, err
}

// Close stops background work and waits for it to finish.
func (e *Engine) Close() error {
	e.bgMu.Lock()
	if e.closed.Load() {
		e.bgMu.Unlock()
		return nil
	}
	e.closed.Store(true)
	e.bgMu.Unlock()

	e.cancel()
	e.wg.Wait()
	return e.blocks.Sync()
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (e *Engine) checkQuery(q []float32) error {
	dim := int(e.Descriptor().Dimension)
	if len(q) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(q)}
	}
	if !distance.Finite(q) {
		return fmt.Errorf("%w: query contains non-finite values", ErrInvalidArgument)
	}
	return nil
}

func isBudgetError(err error) bool {
	return errors.Is(err, resource.ErrStackBudgetExceeded)
}
