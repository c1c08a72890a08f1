package vecfs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/block"
	"github.com/hupe1980/vecfs/internal/cache"
	"github.com/hupe1980/vecfs/internal/engine"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

type (
	// Stats is the detailed statistics snapshot of a store.
	Stats = engine.Stats
	// CompactionStats summarizes a compaction run.
	CompactionStats = engine.CompactionStats
	// ScrubReport lists the blocks that failed verification.
	ScrubReport = engine.ScrubReport
)

// Store is an embedded vector block store: vectors live in checksummed 4 KiB
// blocks of a storage backend and are indexed by an in-memory HNSW graph.
//
// A Store is safe for concurrent use.
type Store struct {
	eng        *engine.Engine
	backend    blockstore.Backend
	caching    *blockstore.CachingStore
	blockCache cache.BlockCache

	efSearch int
	schema   metadata.Schema
	logger   *Logger
	metrics  MetricsCollector
	clock    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open creates an empty store for vectors of the given dimension.
//
// The store owns the backend passed with WithBackend only once Open
// succeeds; on error the caller still has to close it.
func Open(dimension uint32, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	if o.efSearch <= 0 {
		return nil, fmt.Errorf("%w: ef_search must be positive, got %d", ErrInvalidArgument, o.efSearch)
	}

	desc := o.descriptor(dimension)
	if err := desc.Validate(); err != nil {
		return nil, translateError(err)
	}
	graph, err := hnsw.New(o.graphOptions())
	if err != nil {
		return nil, translateError(err)
	}

	rc := resource.NewController(o.resources)
	backend := o.backend
	if backend == nil {
		backend = blockstore.NewMemoryStore()
	}
	s := &Store{
		efSearch: o.efSearch,
		schema:   o.schema,
		logger:   o.logger,
		metrics:  o.metricsCollector,
		clock:    o.clock,
	}
	if o.cacheBytes > 0 {
		s.blockCache = cache.NewShardedLRUBlockCache(o.cacheBytes, rc)
		s.caching = blockstore.NewCachingStore(backend, s.blockCache, "vecfs")
		backend = s.caching
	}
	s.backend = backend

	blocks := block.NewStore(backend, layout.NewManager(layout.Config{
		AlignmentThreshold: o.alignmentThreshold,
	}))
	s.eng, err = engine.New(engine.Config{
		Descriptor:          desc,
		Graph:               graph,
		Blocks:              blocks,
		Metadata:            metadata.NewIndex(o.schema),
		Controller:          rc,
		Logger:              o.logger.With("component", "engine").Logger,
		Metrics:             engineObserver{mc: o.metricsCollector},
		Clock:               o.clock,
		BatchParallelism:    o.batchParallelism,
		FilterScanThreshold: o.filterScanThreshold,
		CompactionThreshold: o.compactionThreshold,
		CompactionBatch:     o.compactionBatch,
	})
	if err != nil {
		return nil, translateError(err)
	}

	o.logger.Info("store opened",
		"dimension", dimension,
		"element_type", desc.ElementType.String(),
		"alignment", desc.SIMDAlignment,
		"metric", o.metric.String(),
	)
	return s, nil
}

// Close stops background compaction, flushes the backend and closes it.
// Close is idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		errs := []error{s.eng.Close(), s.backend.Close()}
		if s.blockCache != nil {
			errs = append(errs, s.blockCache.Close())
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("store closed")
	})
	return s.closeErr
}

// Descriptor returns the current vector descriptor.
func (s *Store) Descriptor() layout.VectorDescriptor {
	return s.eng.Descriptor()
}

// Len returns the number of live vectors.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := s.eng.Len(ctx)
	return n, translateError(err)
}

// SetVectorMetadata replaces the vector descriptor. The store must be empty.
func (s *Store) SetVectorMetadata(ctx context.Context, req SetVectorMetadataRequest) (SetVectorMetadataResponse, error) {
	resp, err := s.setVectorMetadata(ctx, &req)
	err = translateError(err)
	resp.Code = Code(err)
	s.logger.LogDescriptor(ctx, req, err)
	return resp, err
}

func (s *Store) setVectorMetadata(ctx context.Context, req *SetVectorMetadataRequest) (SetVectorMetadataResponse, error) {
	var resp SetVectorMetadataResponse
	if err := validate.Struct(req); err != nil {
		return resp, err
	}
	if req.ElementType > math.MaxUint8 || !layout.ElementType(req.ElementType).Valid() {
		return resp, fmt.Errorf("%w: %d", ErrUnsupportedElementType, req.ElementType)
	}
	if req.StorageFormat > math.MaxUint16 {
		return resp, fmt.Errorf("%w: storage format %#x", ErrInvalidArgument, req.StorageFormat)
	}
	if req.CompressionType > uint32(layout.CompressionZstd) {
		return resp, fmt.Errorf("%w: compression type %d", ErrInvalidArgument, req.CompressionType)
	}

	desc := layout.VectorDescriptor{
		Dimension:     req.Dimension,
		ElementType:   layout.ElementType(req.ElementType),
		SIMDAlignment: req.AlignmentBytes,
		Flags:         layout.Flags(req.StorageFormat),
		OriginalSize:  s.eng.Descriptor().OriginalSize,
		Compression:   layout.Compression(req.CompressionType),
	}
	if desc.Compression != layout.CompressionNone {
		desc.Flags |= layout.FlagCompressed
	}

	plan, err := s.eng.Blocks().Layout().Plan(desc, int(req.VectorCount))
	if err != nil {
		return resp, err
	}
	if uint64(plan.BlocksAllocated) > math.MaxUint32 {
		return resp, fmt.Errorf("%w: %d vectors need %d blocks", ErrCapacityExceeded, req.VectorCount, plan.BlocksAllocated)
	}
	if err := s.eng.SetDescriptor(ctx, desc); err != nil {
		return resp, err
	}
	resp.Plan = plan
	return resp, nil
}

// BatchInsert validates and inserts a batch. The batch is atomic: on any
// error the store is unchanged.
func (s *Store) BatchInsert(ctx context.Context, req BatchInsertRequest) (BatchInsertResponse, error) {
	start := s.clock()
	n, err := s.batchInsert(ctx, &req)
	err = translateError(err)
	s.metrics.RecordBatchInsert(n, s.clock().Sub(start), err)
	s.logger.LogBatchInsert(ctx, int(req.VectorCount), err)
	return BatchInsertResponse{Code: Code(err), InsertedCount: uint32(n)}, err
}

func (s *Store) batchInsert(ctx context.Context, req *BatchInsertRequest) (int, error) {
	if err := validate.Struct(req); err != nil {
		return 0, err
	}
	if req.Flags&^insertFlagsMask != 0 {
		return 0, fmt.Errorf("%w: unknown insert flags %#x", ErrInvalidArgument, req.Flags&^insertFlagsMask)
	}
	if want := s.eng.Descriptor().Dimension; req.Dimensions != want {
		return 0, &DimensionMismatchError{Expected: int(want), Actual: int(req.Dimensions)}
	}
	n, dim := int(req.VectorCount), int(req.Dimensions)
	if len(req.Vectors) != n*dim {
		return 0, fmt.Errorf("%w: %d values for %d vectors of dimension %d", ErrInvalidArgument, len(req.Vectors), n, dim)
	}
	if len(req.VectorIDs) != n {
		return 0, fmt.Errorf("%w: %d ids for %d vectors", ErrInvalidArgument, len(req.VectorIDs), n)
	}

	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = req.Vectors[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return s.insert(ctx, req.VectorIDs, vecs, req.Metadata, engine.InsertOptions{
		Normalize: req.Flags&InsertFlagNormalize != 0,
		Upsert:    req.Flags&InsertFlagUpsert != 0,
	})
}

// insert checks documents before anything is written so that a schema
// violation rejects the whole batch. Documents of replaced ids are kept
// unless new ones are given.
func (s *Store) insert(ctx context.Context, ids []uint64, vecs [][]float32, docs []metadata.Document, opts engine.InsertOptions) (int, error) {
	if len(docs) != 0 && len(docs) != len(ids) {
		return 0, fmt.Errorf("%w: %d documents for %d vectors", ErrInvalidArgument, len(docs), len(ids))
	}
	for i, doc := range docs {
		if err := s.schema.Validate(doc); err != nil {
			return 0, fmt.Errorf("document %d: %w", i, err)
		}
	}

	n, err := s.eng.InsertBatch(ctx, ids, vecs, opts)
	if err != nil {
		return 0, err
	}
	meta := s.eng.Metadata()
	for i, doc := range docs {
		if err := meta.Set(ids[i], doc); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Insert stores vec under id with an optional metadata document.
func (s *Store) Insert(ctx context.Context, id uint64, vec []float32, doc metadata.Document) error {
	return s.insertOne(ctx, id, vec, doc, engine.InsertOptions{})
}

// Upsert stores vec under id, replacing a live vector with the same id.
func (s *Store) Upsert(ctx context.Context, id uint64, vec []float32, doc metadata.Document) error {
	return s.insertOne(ctx, id, vec, doc, engine.InsertOptions{Upsert: true})
}

func (s *Store) insertOne(ctx context.Context, id uint64, vec []float32, doc metadata.Document, opts engine.InsertOptions) error {
	start := s.clock()
	var docs []metadata.Document
	if doc != nil {
		docs = []metadata.Document{doc}
	}
	n, err := s.insert(ctx, []uint64{id}, [][]float32{vec}, docs, opts)
	err = translateError(err)
	s.metrics.RecordBatchInsert(n, s.clock().Sub(start), err)
	s.logger.LogBatchInsert(ctx, 1, err)
	return err
}

// Delete removes id. Its block slot is reclaimed at once; the graph node is
// tombstoned until compaction.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	start := s.clock()
	err := translateError(s.eng.Delete(ctx, id))
	s.metrics.RecordDelete(s.clock().Sub(start), err)
	s.logger.LogDelete(ctx, id, err)
	return err
}

// DeleteBatch removes ids. If any id is unknown nothing is deleted.
func (s *Store) DeleteBatch(ctx context.Context, ids []uint64) (int, error) {
	start := s.clock()
	n, err := s.eng.DeleteBatch(ctx, ids)
	err = translateError(err)
	s.metrics.RecordDelete(s.clock().Sub(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "batch delete failed", "count", len(ids), "deleted", n, "error", err)
	}
	return n, err
}

// Get returns the stored vector and metadata of id. Vectors come back
// decoded from their element type.
func (s *Store) Get(ctx context.Context, id uint64) ([]float32, metadata.Document, error) {
	vec, doc, err := s.eng.Get(ctx, id)
	return vec, doc, translateError(err)
}

// SetMetadata replaces the metadata document of a live id.
func (s *Store) SetMetadata(ctx context.Context, id uint64, doc metadata.Document) error {
	return translateError(s.eng.SetMetadata(ctx, id, doc))
}

// Compact strips tombstones from the graph. Compaction also runs in the
// background once enough vectors were deleted.
func (s *Store) Compact(ctx context.Context) (CompactionStats, error) {
	st, err := s.eng.Compact(ctx)
	err = translateError(err)
	s.logger.LogCompaction(ctx, st.Freed, err)
	return st, err
}

// Scrub verifies the checksums of every stored block. Reads are throttled
// by the configured background IO limit.
func (s *Store) Scrub(ctx context.Context) (ScrubReport, error) {
	rep, err := s.eng.Scrub(ctx)
	return rep, translateError(err)
}

// Stats returns detailed statistics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st, err := s.eng.Stats(ctx)
	return st, translateError(err)
}

// CacheStats returns block cache hits and misses. It is zero without a
// block cache.
func (s *Store) CacheStats() blockstore.CacheStats {
	if s.caching == nil {
		return blockstore.CacheStats{}
	}
	return s.caching.Stats()
}

// SearchStats summarizes the store.
func (s *Store) SearchStats(ctx context.Context) (SearchStatsResponse, error) {
	st, err := s.Stats(ctx)
	cs := s.CacheStats()
	return SearchStatsResponse{
		Code:            Code(err),
		TotalVectors:    st.TotalVectors,
		TotalSearches:   st.TotalSearches,
		AvgSearchTimeMs: uint32(st.AvgSearchTime().Milliseconds()),
		IndexSizeBytes:  uint64(st.IndexBytes()),
		CacheHits:       uint64(cs.Hits),
		CacheMisses:     uint64(cs.Misses),
		IndexEfficiency: uint32(math.Round(st.Layout.PackingEfficiency)),
	}, err
}

// Search returns the k nearest neighbors of q under the build metric.
func (s *Store) Search(ctx context.Context, q []float32, k int) ([]SearchResult, error) {
	resp, err := s.KnnSearch(ctx, KnnSearchRequest{
		QueryVector:    q,
		Dimensions:     uint32(len(q)),
		K:              uint32(max(k, 0)),
		DistanceMetric: uint32(s.eng.Metric()),
	})
	return resp.Results, err
}

// KnnSearch returns the K nearest neighbors of the query.
func (s *Store) KnnSearch(ctx context.Context, req KnnSearchRequest) (SearchResponse, error) {
	return s.search(ctx, "knn", req.K, func() ([]engine.Result, engine.Trace, error) {
		q, err := s.query(&req, req.QueryVector, req.Dimensions, req.K, req.DistanceMetric, req.SearchFlags)
		if err != nil {
			return nil, engine.Trace{}, err
		}
		if req.EF > 0 {
			q.EF = max(int(req.EF), q.K)
		}
		return s.eng.KNN(ctx, q)
	})
}

// RangeSearch returns up to MaxResults neighbors within MaxDistance,
// nearest first.
func (s *Store) RangeSearch(ctx context.Context, req RangeSearchRequest) (SearchResponse, error) {
	return s.search(ctx, "range", req.MaxResults, func() ([]engine.Result, engine.Trace, error) {
		q, err := s.query(&req, req.QueryVector, req.Dimensions, req.MaxResults, req.DistanceMetric, req.SearchFlags)
		if err != nil {
			return nil, engine.Trace{}, err
		}
		return s.eng.Range(ctx, q, DistanceFromBits(req.MaxDistance))
	})
}

// FilteredSearch returns the K nearest neighbors whose metadata satisfies
// every filter.
func (s *Store) FilteredSearch(ctx context.Context, req FilteredSearchRequest) (SearchResponse, error) {
	return s.search(ctx, "filtered", req.K, func() ([]engine.Result, engine.Trace, error) {
		q, err := s.query(&req, req.QueryVector, req.Dimensions, req.K, req.DistanceMetric, req.SearchFlags)
		if err != nil {
			return nil, engine.Trace{}, err
		}
		return s.eng.Filtered(ctx, q, req.Filters)
	})
}

// HybridSearch ranks by the weighted sum of two metrics. Score is the
// negated combined distance.
func (s *Store) HybridSearch(ctx context.Context, req HybridSearchRequest) (SearchResponse, error) {
	return s.search(ctx, "hybrid", req.K, func() ([]engine.Result, engine.Trace, error) {
		q, err := s.query(&req, req.QueryVector, req.Dimensions, req.K, req.PrimaryMetric, req.SearchFlags)
		if err != nil {
			return nil, engine.Trace{}, err
		}
		return s.eng.Hybrid(ctx, q, engine.HybridParams{
			Primary:         distance.Metric(req.PrimaryMetric),
			Secondary:       distance.Metric(req.SecondaryMetric),
			PrimaryWeight:   req.PrimaryWeight,
			SecondaryWeight: req.SecondaryWeight,
		})
	})
}

// MultiVectorSearch runs several queries under one read snapshot. Either all
// queries succeed or the response holds no results.
func (s *Store) MultiVectorSearch(ctx context.Context, req MultiVectorSearchRequest) (MultiVectorSearchResponse, error) {
	start := s.clock()
	resp := MultiVectorSearchResponse{KPerQuery: req.KPerQuery}
	var scanned, degraded int
	err := func() error {
		if err := validate.Struct(&req); err != nil {
			return err
		}
		n, dim := int(req.QueryCount), int(req.Dimensions)
		if len(req.QueryVectors) != n*dim {
			return fmt.Errorf("%w: %d values for %d queries of dimension %d", ErrInvalidArgument, len(req.QueryVectors), n, dim)
		}
		qs := make([]engine.Query, n)
		for i := range qs {
			v := req.QueryVectors[i*dim : (i+1)*dim : (i+1)*dim]
			q, err := s.query(nil, v, req.Dimensions, req.KPerQuery, req.DistanceMetric, req.SearchFlags)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			qs[i] = q
		}

		results, traces, err := s.eng.Multi(ctx, qs)
		for _, tr := range traces {
			scanned += tr.Scanned
			if tr.Degraded {
				degraded++
			}
		}
		if err != nil {
			return err
		}

		k := int(req.KPerQuery)
		resp.Results = make([]SearchResult, n*k)
		resp.ResultCounts = make([]uint32, n)
		for i, rs := range results {
			copy(resp.Results[i*k:(i+1)*k], fromEngine(rs))
			resp.ResultCounts[i] = uint32(len(rs))
		}
		return nil
	}()
	err = translateError(err)

	elapsed := s.clock().Sub(start)
	resp.Code = Code(err)
	resp.SearchTimeNs = uint64(max(elapsed, 0))
	resp.VectorsScanned = uint32(scanned)
	s.metrics.RecordSearch("multi", int(req.KPerQuery), scanned, elapsed, err)
	s.logger.LogSearch(ctx, "multi", int(req.KPerQuery), len(resp.Results), degraded > 0, err)
	return resp, err
}

// query validates req and converts the common search fields. req may be nil
// when the caller validated already.
func (s *Store) query(req any, vec []float32, dims, k, metric, flags uint32) (engine.Query, error) {
	if req != nil {
		if err := validate.Struct(req); err != nil {
			return engine.Query{}, err
		}
	}
	if uint32(len(vec)) != dims {
		return engine.Query{}, fmt.Errorf("%w: query has %d values, dimensions is %d", ErrInvalidArgument, len(vec), dims)
	}
	if want := s.eng.Descriptor().Dimension; dims != want {
		return engine.Query{}, &DimensionMismatchError{Expected: int(want), Actual: int(dims)}
	}
	if flags&^searchFlagsMask != 0 {
		return engine.Query{}, fmt.Errorf("%w: unknown search flags %#x", ErrInvalidArgument, flags&^searchFlagsMask)
	}
	m := distance.Metric(metric)
	if !m.Valid() {
		return engine.Query{}, fmt.Errorf("%w: unknown distance metric %d", ErrInvalidArgument, metric)
	}
	return engine.Query{
		Vector: vec,
		K:      int(k),
		EF:     max(s.efSearch, int(k)),
		Metric: m,
		Exact:  flags&SearchFlagExact != 0,
	}, nil
}

func (s *Store) search(ctx context.Context, kind string, k uint32, fn func() ([]engine.Result, engine.Trace, error)) (SearchResponse, error) {
	start := s.clock()
	res, tr, err := fn()
	err = translateError(err)

	elapsed := tr.Elapsed
	if elapsed == 0 {
		elapsed = s.clock().Sub(start)
	}
	s.metrics.RecordSearch(kind, int(k), tr.Scanned, elapsed, err)
	s.logger.LogSearch(ctx, kind, int(k), len(res), tr.Degraded, err)
	return SearchResponse{
		Code:           Code(err),
		Results:        fromEngine(res),
		ResultsFound:   uint32(len(res)),
		SearchTimeNs:   uint64(max(elapsed, 0)),
		VectorsScanned: uint32(tr.Scanned),
		Degraded:       tr.Degraded,
	}, err
}
