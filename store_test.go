package vecfs

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
	"github.com/hupe1980/vecfs/testutil"
)

var exampleVectors = [][]float32{
	{1, 2, 3, 4},
	{2, 3, 4, 5},
	{3, 4, 5, 6},
	{1.5, 2.5, 3.5, 4.5},
	{10, 11, 12, 13},
}

var exampleQuery = []float32{1.1, 2.1, 3.1, 4.1}

func flatten(vecs [][]float32) []float32 {
	var out []float32
	for _, v := range vecs {
		out = append(out, v...)
	}
	return out
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{WithAlignment(16), WithSeed(7)}
	st, err := Open(4, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertExample(t *testing.T, st *Store, docs ...metadata.Document) {
	t.Helper()
	resp, err := st.BatchInsert(context.Background(), BatchInsertRequest{
		Vectors:     flatten(exampleVectors),
		VectorCount: 5,
		Dimensions:  4,
		VectorIDs:   []uint64{1, 2, 3, 4, 5},
		Metadata:    docs,
	})
	require.NoError(t, err)
	require.Equal(t, CodeOK, resp.Code)
	require.Equal(t, uint32(5), resp.InsertedCount)
}

func resultIDs(rs []SearchResult) []uint64 {
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func storeLen(t *testing.T, st *Store) int {
	t.Helper()
	n, err := st.Len(context.Background())
	require.NoError(t, err)
	return n
}

func TestStore_KnnSearchExample(t *testing.T) {
	st := newTestStore(t)
	insertExample(t, st)

	resp, err := st.KnnSearch(context.Background(), KnnSearchRequest{
		QueryVector: exampleQuery,
		Dimensions:  4,
		K:           3,
	})
	require.NoError(t, err)
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, []uint64{1, 4, 2}, resultIDs(resp.Results))
	assert.Equal(t, uint32(3), resp.ResultsFound)
	assert.Positive(t, resp.VectorsScanned)
	assert.False(t, resp.Degraded)

	// Squared Euclidean: 4 * 0.1^2.
	assert.InDelta(t, 0.04, resp.Results[0].Distance, 1e-5)
	w := resp.Results[0].Wire()
	assert.Equal(t, uint64(1), w.VectorID)
	assert.Equal(t, resp.Results[0].Distance, DistanceFromBits(w.Distance))

	for i := 1; i < len(resp.Results); i++ {
		assert.LessOrEqual(t, resp.Results[i-1].Distance, resp.Results[i].Distance)
	}
}

func TestStore_InsertedVectorIsTopResult(t *testing.T) {
	const dim = 16
	st, err := Open(dim, WithAlignment(32), WithSeed(3))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	rng := testutil.NewRNG(42)
	vecs := rng.UniformVectors(300, dim)
	for i, v := range vecs {
		require.NoError(t, st.Insert(ctx, uint64(i+1), v, nil))
		res, err := st.Search(ctx, v, 1)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		assert.InDelta(t, 0, res[0].Distance, 1e-6, "vector %d", i+1)
	}

	res, err := st.Search(ctx, vecs[10], 10)
	require.NoError(t, err)
	seen := make(map[uint64]bool)
	for _, r := range res {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
	assert.LessOrEqual(t, len(res), 10)
}

func TestStore_BatchInsertAtomic(t *testing.T) {
	ctx := context.Background()

	t.Run("DimensionMismatch", func(t *testing.T) {
		st := newTestStore(t)
		insertExample(t, st)

		resp, err := st.BatchInsert(ctx, BatchInsertRequest{
			Vectors:     []float32{1, 1, 1, 2, 2, 2},
			VectorCount: 2,
			Dimensions:  3,
			VectorIDs:   []uint64{10, 11},
		})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		var dm *DimensionMismatchError
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
		assert.Equal(t, CodeDimensionMismatch, resp.Code)
		assert.Zero(t, resp.InsertedCount)
		assert.Equal(t, 5, storeLen(t, st))
	})

	t.Run("NonFinite", func(t *testing.T) {
		st := newTestStore(t)
		insertExample(t, st)

		resp, err := st.BatchInsert(ctx, BatchInsertRequest{
			Vectors:     []float32{1, 1, 1, 1, 0, float32(math.NaN()), 0, 0},
			VectorCount: 2,
			Dimensions:  4,
			VectorIDs:   []uint64{10, 11},
		})
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, CodeInvalidArgument, resp.Code)
		assert.Equal(t, 5, storeLen(t, st))

		_, _, err = st.Get(ctx, 10)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		st := newTestStore(t)
		insertExample(t, st)

		resp, err := st.BatchInsert(ctx, BatchInsertRequest{
			Vectors:     []float32{9, 9, 9, 9, 8, 8, 8, 8},
			VectorCount: 2,
			Dimensions:  4,
			VectorIDs:   []uint64{10, 3},
		})
		require.ErrorIs(t, err, ErrDuplicateID)
		assert.Equal(t, CodeInvalidArgument, resp.Code)
		assert.Equal(t, 5, storeLen(t, st))

		v, _, err := st.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, exampleVectors[2], v)
	})

	t.Run("BackendFailure", func(t *testing.T) {
		faulty := blockstore.NewFaultyStore(blockstore.NewMemoryStore())
		st := newTestStore(t, WithBackend(faulty))
		insertExample(t, st)

		faulty.SetFault(blockstore.Fault{FailAfterWrites: 0})
		resp, err := st.BatchInsert(ctx, BatchInsertRequest{
			Vectors:     []float32{9, 9, 9, 9, 8, 8, 8, 8},
			VectorCount: 2,
			Dimensions:  4,
			VectorIDs:   []uint64{10, 11},
		})
		faulty.Clear()
		require.ErrorIs(t, err, blockstore.ErrInjected)
		assert.Equal(t, CodeInternal, resp.Code)
		assert.Equal(t, 5, storeLen(t, st))
	})

	t.Run("SchemaViolation", func(t *testing.T) {
		st := newTestStore(t, WithSchema(metadata.Schema{"year": metadata.KindInt}))
		resp, err := st.BatchInsert(ctx, BatchInsertRequest{
			Vectors:     flatten(exampleVectors[:2]),
			VectorCount: 2,
			Dimensions:  4,
			VectorIDs:   []uint64{1, 2},
			Metadata: []metadata.Document{
				{"year": metadata.Int(2024)},
				{"year": metadata.String("last year")},
			},
		})
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, CodeInvalidArgument, resp.Code)
		assert.Zero(t, storeLen(t, st))
	})
}

func TestStore_BatchInsertValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  BatchInsertRequest
	}{
		{"NoVectors", BatchInsertRequest{VectorCount: 1, Dimensions: 4, VectorIDs: []uint64{1}}},
		{"ZeroCount", BatchInsertRequest{Vectors: []float32{1, 2, 3, 4}, Dimensions: 4, VectorIDs: []uint64{1}}},
		{"ShortVectors", BatchInsertRequest{Vectors: []float32{1, 2, 3}, VectorCount: 1, Dimensions: 4, VectorIDs: []uint64{1}}},
		{"IDCount", BatchInsertRequest{Vectors: []float32{1, 2, 3, 4}, VectorCount: 1, Dimensions: 4, VectorIDs: []uint64{1, 2}}},
		{"UnknownFlags", BatchInsertRequest{Vectors: []float32{1, 2, 3, 4}, VectorCount: 1, Dimensions: 4, VectorIDs: []uint64{1}, Flags: 1 << 5}},
		{"DocumentCount", BatchInsertRequest{Vectors: []float32{1, 2, 3, 4}, VectorCount: 1, Dimensions: 4, VectorIDs: []uint64{1}, Metadata: []metadata.Document{{}, {}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := st.BatchInsert(ctx, tt.req)
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, CodeInvalidArgument, resp.Code)
		})
	}
	assert.Zero(t, storeLen(t, st))
}

func TestStore_BatchInsertFlags(t *testing.T) {
	st := newTestStore(t)
	insertExample(t, st)
	ctx := context.Background()

	resp, err := st.BatchInsert(ctx, BatchInsertRequest{
		Vectors:     []float32{3, 0, 0, 4},
		VectorCount: 1,
		Dimensions:  4,
		VectorIDs:   []uint64{2},
		Flags:       InsertFlagUpsert | InsertFlagNormalize,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), resp.InsertedCount)
	assert.Equal(t, 5, storeLen(t, st))

	v, _, err := st.Get(ctx, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0, 0, 0.8}, v, 1e-6)
}

func TestStore_RangeSearch(t *testing.T) {
	st := newTestStore(t)
	insertExample(t, st)

	resp, err := st.RangeSearch(context.Background(), RangeSearchRequest{
		QueryVector: exampleQuery,
		Dimensions:  4,
		MaxDistance: DistanceBits(1),
		MaxResults:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4}, resultIDs(resp.Results))
	for _, r := range resp.Results {
		assert.LessOrEqual(t, r.Distance, float32(1))
	}

	resp, err = st.RangeSearch(context.Background(), RangeSearchRequest{
		QueryVector: exampleQuery,
		Dimensions:  4,
		MaxDistance: DistanceBits(float32(math.NaN())),
		MaxResults:  10,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, CodeInvalidArgument, resp.Code)
}

func TestStore_FilteredSearch(t *testing.T) {
	docs := []metadata.Document{
		{"color": metadata.String("red"), "price": metadata.Int(10)},
		{"color": metadata.String("blue"), "price": metadata.Int(20)},
		{"color": metadata.String("red"), "price": metadata.Int(30)},
		{"color": metadata.String("blue"), "price": metadata.Int(40)},
		{"color": metadata.String("red"), "price": metadata.Int(50)},
	}
	ctx := context.Background()

	for _, threshold := range []int{1, 1000} {
		st := newTestStore(t, WithFilterScanThreshold(threshold))
		insertExample(t, st, docs...)

		resp, err := st.FilteredSearch(ctx, FilteredSearchRequest{
			QueryVector: exampleQuery,
			Dimensions:  4,
			K:           5,
			Filters: metadata.FilterSet{
				metadata.Category("color", "red"),
				metadata.Range("price", metadata.OpGe, 20),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 5}, resultIDs(resp.Results), "threshold %d", threshold)
		for _, r := range resp.Results {
			_, doc, err := st.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, "red", doc["color"].StringValue())
		}
	}
}

func TestStore_MultiVectorSearch(t *testing.T) {
	st := newTestStore(t, WithBatchParallelism(2))
	insertExample(t, st)
	ctx := context.Background()

	resp, err := st.MultiVectorSearch(ctx, MultiVectorSearchRequest{
		QueryVectors:   append(append([]float32{}, exampleQuery...), 10, 11, 12, 13),
		QueryCount:     2,
		Dimensions:     4,
		KPerQuery:      2,
		DistanceMetric: uint32(distance.Euclidean),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 4)
	assert.Equal(t, []uint32{2, 2}, resp.ResultCounts)
	assert.Equal(t, []uint64{1, 4}, resultIDs(resp.QueryResults(0)))
	assert.Equal(t, []uint64{5, 3}, resultIDs(resp.QueryResults(1)))
	assert.Nil(t, resp.QueryResults(2))

	resp, err = st.MultiVectorSearch(ctx, MultiVectorSearchRequest{
		QueryVectors: []float32{1, 2, 3, 4, 5},
		QueryCount:   2,
		Dimensions:   4,
		KPerQuery:    2,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, CodeInvalidArgument, resp.Code)
	assert.Empty(t, resp.Results)
}

func TestStore_HybridSearch(t *testing.T) {
	req := HybridSearchRequest{
		QueryVector:     exampleQuery,
		Dimensions:      4,
		K:               5,
		PrimaryMetric:   uint32(distance.Euclidean),
		SecondaryMetric: uint32(distance.Cosine),
		PrimaryWeight:   0.7,
		SecondaryWeight: 0.3,
	}
	ctx := context.Background()

	var runs [][]SearchResult
	for range 2 {
		st := newTestStore(t)
		insertExample(t, st)
		resp, err := st.HybridSearch(ctx, req)
		require.NoError(t, err)
		runs = append(runs, resp.Results)
	}
	assert.Equal(t, []uint64{1, 4, 2, 3, 5}, resultIDs(runs[0]))
	assert.Equal(t, runs[0], runs[1])

	st := newTestStore(t)
	bad := req
	bad.PrimaryWeight, bad.SecondaryWeight = 0, 0
	resp, err := st.HybridSearch(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, CodeInvalidArgument, resp.Code)
}

func TestStore_SearchValidation(t *testing.T) {
	st := newTestStore(t)
	insertExample(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		req  KnnSearchRequest
		code ErrorCode
	}{
		{"ZeroK", KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4}, CodeInvalidArgument},
		{"NoQuery", KnnSearchRequest{Dimensions: 4, K: 1}, CodeInvalidArgument},
		{"LengthMismatch", KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 3, K: 1}, CodeInvalidArgument},
		{"DimensionMismatch", KnnSearchRequest{QueryVector: []float32{1, 2, 3}, Dimensions: 3, K: 1}, CodeDimensionMismatch},
		{"UnknownMetric", KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 1, DistanceMetric: 9}, CodeInvalidArgument},
		{"UnknownFlags", KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 1, SearchFlags: 1 << 4}, CodeInvalidArgument},
		{"NonFinite", KnnSearchRequest{QueryVector: []float32{1, float32(math.Inf(1)), 3, 4}, Dimensions: 4, K: 1}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := st.KnnSearch(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.code, Code(err))
			assert.Empty(t, resp.Results)
		})
	}
}

func TestStore_EmptyIndex(t *testing.T) {
	st := newTestStore(t)
	resp, err := st.KnnSearch(context.Background(), KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 3})
	require.NoError(t, err)
	assert.Equal(t, CodeOK, resp.Code)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.ResultsFound)
}

func TestStore_ExactSearchFlag(t *testing.T) {
	st := newTestStore(t)
	insertExample(t, st)

	resp, err := st.KnnSearch(context.Background(), KnnSearchRequest{
		QueryVector: exampleQuery,
		Dimensions:  4,
		K:           3,
		SearchFlags: SearchFlagExact,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4, 2}, resultIDs(resp.Results))
	assert.Equal(t, uint32(5), resp.VectorsScanned)
}

func TestStore_DegradedScan(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	st := newTestStore(t, WithLimits(Limits{AuxBytes: 64}), WithMetricsCollector(metrics))
	ctx := context.Background()

	// A single node links without a traversal.
	require.NoError(t, st.Insert(ctx, 1, exampleVectors[0], nil))

	resp, err := st.KnnSearch(ctx, KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 1})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, []uint64{1}, resultIDs(resp.Results))
	assert.Equal(t, int64(1), metrics.GetStats().DegradedSearches)

	err = st.Insert(ctx, 2, exampleVectors[1], nil)
	assert.ErrorIs(t, err, ErrStackBudgetExceeded)
	assert.Equal(t, CodeStackBudgetExceeded, Code(err))
	assert.Equal(t, 1, storeLen(t, st))
}

func TestStore_SetVectorMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("LayoutExample", func(t *testing.T) {
		st := newTestStore(t)
		resp, err := st.SetVectorMetadata(ctx, SetVectorMetadataRequest{
			Dimension:      768,
			ElementType:    uint32(layout.Float32),
			VectorCount:    10,
			DataOffset:     layout.BlockSize,
			IndexOffset:    8 * layout.BlockSize,
			AlignmentBytes: 32,
		})
		require.NoError(t, err)
		assert.Equal(t, CodeOK, resp.Code)
		assert.Equal(t, 3072, resp.Plan.RawSize)
		assert.Equal(t, 3072, resp.Plan.AlignedSize)
		assert.Equal(t, 1, resp.Plan.VectorsPerBlock)
		assert.Equal(t, 8, resp.Plan.BlocksNeeded)
		assert.Equal(t, 10, resp.Plan.BlocksAllocated)
		assert.Equal(t, 70, resp.Plan.Fragmentation)
		assert.Equal(t, uint32(768), st.Descriptor().Dimension)

		vec := make([]float32, 768)
		vec[0] = 1
		require.NoError(t, st.Insert(ctx, 1, vec, nil))
		res, err := st.Search(ctx, vec, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1}, resultIDs(res))
	})

	t.Run("Errors", func(t *testing.T) {
		st := newTestStore(t)
		valid := SetVectorMetadataRequest{Dimension: 8, ElementType: uint32(layout.Float32), AlignmentBytes: 16}

		tests := []struct {
			name   string
			modify func(r *SetVectorMetadataRequest)
			code   ErrorCode
		}{
			{"ZeroDimension", func(r *SetVectorMetadataRequest) { r.Dimension = 0 }, CodeInvalidArgument},
			{"TooLarge", func(r *SetVectorMetadataRequest) { r.Dimension = 70000 }, CodeCapacityExceeded},
			{"ElementType", func(r *SetVectorMetadataRequest) { r.ElementType = 99 }, CodeUnsupportedElementType},
			{"Alignment", func(r *SetVectorMetadataRequest) { r.AlignmentBytes = 24 }, CodeMisalignedAlignment},
			{"DataOffset", func(r *SetVectorMetadataRequest) { r.DataOffset = 100 }, CodeInvalidArgument},
			{"Compression", func(r *SetVectorMetadataRequest) { r.CompressionType = 7 }, CodeInvalidArgument},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := valid
				tt.modify(&req)
				resp, err := st.SetVectorMetadata(ctx, req)
				require.Error(t, err)
				assert.Equal(t, tt.code, resp.Code)
			})
		}
		assert.Equal(t, uint32(4), st.Descriptor().Dimension)
	})

	t.Run("NotEmpty", func(t *testing.T) {
		st := newTestStore(t)
		insertExample(t, st)
		resp, err := st.SetVectorMetadata(ctx, SetVectorMetadataRequest{Dimension: 8, AlignmentBytes: 16})
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, CodeInvalidArgument, resp.Code)

		// Once every vector is gone the descriptor can change again.
		_, err = st.DeleteBatch(ctx, []uint64{1, 2, 3, 4, 5})
		require.NoError(t, err)
		_, err = st.SetVectorMetadata(ctx, SetVectorMetadataRequest{Dimension: 8, AlignmentBytes: 16})
		require.NoError(t, err)
	})

	t.Run("Compressed", func(t *testing.T) {
		st := newTestStore(t)
		_, err := st.SetVectorMetadata(ctx, SetVectorMetadataRequest{
			Dimension:       64,
			ElementType:     uint32(layout.Float16),
			CompressionType: uint32(layout.CompressionZstd),
			AlignmentBytes:  16,
		})
		require.NoError(t, err)
		assert.True(t, st.Descriptor().IsCompressed())

		vec := make([]float32, 64)
		for i := range vec {
			vec[i] = float32(i % 4)
		}
		require.NoError(t, st.Insert(ctx, 1, vec, nil))
		got, _, err := st.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, vec, got)
	})
}

func TestStore_DeleteAndGet(t *testing.T) {
	st := newTestStore(t, WithCompaction(-1, 0))
	docs := make([]metadata.Document, 5)
	for i := range docs {
		docs[i] = metadata.Document{"title": metadata.String(fmt.Sprintf("doc-%d", i+1))}
	}
	insertExample(t, st, docs...)
	ctx := context.Background()

	v, doc, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, exampleVectors[0], v)
	assert.Equal(t, "doc-1", doc["title"].StringValue())

	require.NoError(t, st.SetMetadata(ctx, 2, metadata.Document{"title": metadata.String("two")}))
	_, doc, err = st.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "two", doc["title"].StringValue())
	require.NoError(t, st.Delete(ctx, 1))

	_, _, err = st.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
	assert.ErrorIs(t, st.Delete(ctx, 1), ErrNotFound)
	assert.ErrorIs(t, st.SetMetadata(ctx, 1, metadata.Document{}), ErrNotFound)

	res, err := st.Search(ctx, exampleQuery, 5)
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(res), uint64(1))
	assert.Len(t, res, 4)

	n, err := st.DeleteBatch(ctx, []uint64{2, 99})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, n)
	assert.Equal(t, 4, storeLen(t, st))

	stats, err := st.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Freed)
}

func TestStore_Corruption(t *testing.T) {
	mem := blockstore.NewMemoryStore()
	st := newTestStore(t, WithBackend(mem))
	insertExample(t, st)
	ctx := context.Background()

	blocks := st.eng.Blocks().Layout().Blocks()
	require.NotEmpty(t, blocks)
	require.True(t, mem.Corrupt(blocks[0], layout.HeaderSize+1))

	resp, err := st.KnnSearch(ctx, KnnSearchRequest{
		QueryVector: exampleQuery,
		Dimensions:  4,
		K:           1,
		SearchFlags: SearchFlagExact,
	})
	require.ErrorIs(t, err, ErrIndexCorrupt)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, CodeChecksumMismatch, resp.Code)

	rep, err := st.Scrub(ctx)
	require.NoError(t, err)
	assert.Equal(t, []layout.BlockID{blocks[0]}, rep.Corrupt)
}

func TestStore_SearchStats(t *testing.T) {
	tick := time.Unix(0, 0)
	clock := func() time.Time {
		tick = tick.Add(2 * time.Millisecond)
		return tick
	}
	st := newTestStore(t, WithBlockCache(1<<20), WithClock(clock))
	insertExample(t, st)
	ctx := context.Background()

	for range 2 {
		_, err := st.KnnSearch(ctx, KnnSearchRequest{
			QueryVector: exampleQuery,
			Dimensions:  4,
			K:           2,
			SearchFlags: SearchFlagExact,
		})
		require.NoError(t, err)
	}

	resp, err := st.SearchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, uint64(5), resp.TotalVectors)
	assert.Equal(t, uint64(2), resp.TotalSearches)
	assert.Equal(t, uint32(2), resp.AvgSearchTimeMs)
	assert.Positive(t, resp.IndexSizeBytes)
	assert.Positive(t, resp.CacheHits)
	assert.Positive(t, resp.IndexEfficiency)
	assert.LessOrEqual(t, resp.IndexEfficiency, uint32(100))
}

func TestStore_Metrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	st := newTestStore(t, WithMetricsCollector(metrics))
	insertExample(t, st)
	ctx := context.Background()

	_, err := st.KnnSearch(ctx, KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 2})
	require.NoError(t, err)
	_, err = st.KnnSearch(ctx, KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4})
	require.Error(t, err)
	require.NoError(t, st.Delete(ctx, 5))

	s := metrics.GetStats()
	assert.Equal(t, int64(1), s.BatchInsertCount)
	assert.Equal(t, int64(5), s.BatchInsertItems)
	assert.Equal(t, int64(2), s.SearchCount)
	assert.Equal(t, int64(1), s.SearchErrors)
	assert.Positive(t, s.VectorsScanned)
	assert.Equal(t, int64(1), s.DeleteCount)
}

func TestStore_Closed(t *testing.T) {
	st, err := Open(4, WithAlignment(16))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	ctx := context.Background()
	resp, err := st.KnnSearch(ctx, KnnSearchRequest{QueryVector: exampleQuery, Dimensions: 4, K: 1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, CodeClosed, resp.Code)
	assert.ErrorIs(t, st.Insert(ctx, 1, exampleVectors[0], nil), ErrClosed)
}

func TestOpen_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		dim  uint32
		opts []Option
		code ErrorCode
	}{
		{"ZeroDimension", 0, nil, CodeInvalidArgument},
		{"TooLarge", layout.MaxDimension + 1, nil, CodeCapacityExceeded},
		{"Alignment", 4, []Option{WithAlignment(8)}, CodeMisalignedAlignment},
		{"ZeroEFSearch", 4, []Option{WithEFSearch(0)}, CodeInvalidArgument},
		{"SmallM", 4, []Option{WithM(1)}, CodeInvalidArgument},
		{"Metric", 4, []Option{WithMetric(distance.Metric(42))}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.dim, tt.opts...)
			require.Error(t, err)
			assert.Equal(t, tt.code, Code(err))
		})
	}
}
