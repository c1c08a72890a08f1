package vecfs

import (
	"math"

	"github.com/hupe1980/vecfs/internal/engine"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

// Search flags.
const (
	// SearchFlagExact scans every stored vector instead of traversing the graph.
	SearchFlagExact uint32 = 1 << 0

	searchFlagsMask = SearchFlagExact
)

// Batch insert flags.
const (
	// InsertFlagNormalize stores L2-normalized vectors.
	InsertFlagNormalize uint32 = 1 << 0
	// InsertFlagUpsert replaces live ids instead of rejecting the batch.
	InsertFlagUpsert uint32 = 1 << 1

	insertFlagsMask = InsertFlagNormalize | InsertFlagUpsert
)

// SearchResult is one hit, ascending by distance within a result set.
type SearchResult struct {
	ID       uint64
	Distance float32
	// Score grows with similarity. Its scale depends on the metric.
	Score float32
}

// WireResult is the fixed-size form of a SearchResult. Distance carries the
// IEEE-754 bits of the float32 distance.
type WireResult struct {
	VectorID uint64
	Distance uint32
}

// Wire returns the fixed-size form of r.
func (r SearchResult) Wire() WireResult {
	return WireResult{VectorID: r.ID, Distance: math.Float32bits(r.Distance)}
}

// DistanceBits encodes a distance for the u32 wire fields.
func DistanceBits(d float32) uint32 { return math.Float32bits(d) }

// DistanceFromBits decodes a u32 wire distance.
func DistanceFromBits(b uint32) float32 { return math.Float32frombits(b) }

func fromEngine(rs []engine.Result) []SearchResult {
	if len(rs) == 0 {
		return nil
	}
	out := make([]SearchResult, len(rs))
	for i, r := range rs {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance, Score: r.Score}
	}
	return out
}

// SetVectorMetadataRequest describes the vectors the store holds. It can
// only change while the store is empty.
type SetVectorMetadataRequest struct {
	Dimension   uint32
	ElementType uint32
	// VectorCount is the expected number of vectors. It is checked against
	// the block id space and used to plan the layout.
	VectorCount uint32
	// StorageFormat carries the descriptor flags.
	StorageFormat uint32
	// DataOffset and IndexOffset locate the regions in the host file. They
	// must be block aligned and are recorded, not interpreted.
	DataOffset      uint64 `validate:"blockaligned"`
	IndexOffset     uint64 `validate:"blockaligned"`
	CompressionType uint32
	AlignmentBytes  uint32
}

// SetVectorMetadataResponse reports the resulting layout.
type SetVectorMetadataResponse struct {
	Code ErrorCode
	Plan layout.Plan
}

// BatchInsertRequest inserts VectorCount vectors stored back to back in
// Vectors.
type BatchInsertRequest struct {
	Vectors     []float32 `validate:"required"`
	VectorCount uint32    `validate:"gt=0"`
	Dimensions  uint32
	VectorIDs   []uint64 `validate:"required"`
	Flags       uint32
	// Metadata is empty or holds one document per vector.
	Metadata []metadata.Document
}

// BatchInsertResponse reports a batch insert. A failed batch inserts nothing.
type BatchInsertResponse struct {
	Code          ErrorCode
	InsertedCount uint32
}

// KnnSearchRequest asks for the K nearest neighbors of QueryVector.
type KnnSearchRequest struct {
	QueryVector    []float32 `validate:"required"`
	Dimensions     uint32
	K              uint32 `validate:"gt=0"`
	DistanceMetric uint32
	SearchFlags    uint32
	// EF overrides the configured search beam width when positive.
	EF uint32
}

// RangeSearchRequest asks for up to MaxResults neighbors within MaxDistance.
type RangeSearchRequest struct {
	QueryVector []float32 `validate:"required"`
	Dimensions  uint32
	// MaxDistance carries the IEEE-754 bits of the float32 bound.
	MaxDistance    uint32
	DistanceMetric uint32
	MaxResults     uint32 `validate:"gt=0"`
	SearchFlags    uint32
}

// FilteredSearchRequest asks for the K nearest neighbors that satisfy every
// filter.
type FilteredSearchRequest struct {
	QueryVector    []float32 `validate:"required"`
	Dimensions     uint32
	K              uint32 `validate:"gt=0"`
	DistanceMetric uint32
	Filters        metadata.FilterSet
	SearchFlags    uint32
}

// HybridSearchRequest ranks by
// PrimaryWeight*primary + SecondaryWeight*secondary.
//
// Raw metric values are combined. Metrics have very different ranges, so
// callers must choose weights that account for that.
type HybridSearchRequest struct {
	QueryVector     []float32 `validate:"required"`
	Dimensions      uint32
	K               uint32 `validate:"gt=0"`
	PrimaryMetric   uint32
	SecondaryMetric uint32
	PrimaryWeight   float32
	SecondaryWeight float32
	SearchFlags     uint32
}

// SearchResponse is returned by single-query searches. Counters and timings
// are filled in even when the search fails.
type SearchResponse struct {
	Code           ErrorCode
	Results        []SearchResult
	ResultsFound   uint32
	SearchTimeNs   uint64
	VectorsScanned uint32
	// Degraded reports a linear scan after the graph traversal exceeded its
	// budget.
	Degraded bool
}

// MultiVectorSearchRequest runs QueryCount queries stored back to back in
// QueryVectors under one read snapshot.
type MultiVectorSearchRequest struct {
	QueryVectors   []float32 `validate:"required"`
	QueryCount     uint32    `validate:"gt=0"`
	Dimensions     uint32
	KPerQuery      uint32 `validate:"gt=0"`
	DistanceMetric uint32
	SearchFlags    uint32
}

// MultiVectorSearchResponse holds QueryCount*KPerQuery result slots. Query i
// owns slots [i*KPerQuery, (i+1)*KPerQuery), of which ResultCounts[i] are set.
type MultiVectorSearchResponse struct {
	Code           ErrorCode
	Results        []SearchResult
	ResultCounts   []uint32
	KPerQuery      uint32
	SearchTimeNs   uint64
	VectorsScanned uint32
}

// QueryResults returns the results of query i.
func (r *MultiVectorSearchResponse) QueryResults(i int) []SearchResult {
	if i < 0 || i >= len(r.ResultCounts) {
		return nil
	}
	start := i * int(r.KPerQuery)
	return r.Results[start : start+int(r.ResultCounts[i])]
}

// SearchStatsResponse summarizes the store.
type SearchStatsResponse struct {
	Code            ErrorCode
	TotalVectors    uint64
	TotalSearches   uint64
	AvgSearchTimeMs uint32
	IndexSizeBytes  uint64
	CacheHits       uint64
	CacheMisses     uint64
	// IndexEfficiency is the packing efficiency in percent.
	IndexEfficiency uint32
}
