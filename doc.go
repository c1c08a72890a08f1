// Package vecfs provides an embedded vector block store with approximate
// nearest neighbor search.
//
// Vectors are packed into fixed 4 KiB blocks with a checksummed 64-byte
// header and indexed by an HNSW graph whose traversals are iterative and
// bounded by ef, so search and insert run in constant stack space no matter
// how large the index grows.
//
// # Quick Start
//
//	ctx := context.Background()
//	st, _ := vecfs.Open(4, vecfs.WithMetric(distance.Euclidean))
//	defer st.Close()
//
//	_, _ = st.BatchInsert(ctx, vecfs.BatchInsertRequest{
//	    Vectors:     []float32{1, 2, 3, 4, 2, 3, 4, 5},
//	    VectorCount: 2,
//	    Dimensions:  4,
//	    VectorIDs:   []uint64{1, 2},
//	})
//
//	resp, _ := st.KnnSearch(ctx, vecfs.KnnSearchRequest{
//	    QueryVector: []float32{1.1, 2.1, 3.1, 4.1},
//	    Dimensions:  4,
//	    K:           1,
//	})
//	fmt.Println(resp.Results[0].ID, resp.Results[0].Distance)
//
// # Control Surface
//
// Every operation takes a request struct and returns a response struct
// carrying a structured ErrorCode plus the counters and timings gathered
// before a failure:
//
//   - SetVectorMetadata: dimension, element type, alignment, flags, compression
//   - BatchInsert: atomic; nothing is inserted if any vector is rejected
//   - KnnSearch, RangeSearch, FilteredSearch, HybridSearch
//   - MultiVectorSearch: several queries under one read snapshot
//   - SearchStats
//
// Distance fields on the wire carry IEEE-754 float32 bits (see DistanceBits).
// Metric codes are 0 Euclidean (squared), 1 Cosine, 2 DotProduct, 3 Manhattan.
//
// # Storage
//
// Blocks go to a blockstore.Backend: in memory by default, a single file
// (blockstore.OpenFileStore), or object storage (blockstore/s3,
// blockstore/minio, blockstore/dynamodb). WithBlockCache adds an LRU block
// cache. Corrupt blocks surface as ErrIndexCorrupt and are never skipped;
// Scrub verifies every block.
//
// # Resource Limits
//
// Each graph operation runs under a guard that tracks simulated stack depth
// and auxiliary memory. A search that exceeds its budget falls back to an
// exact linear scan over the stored vectors (SearchResponse.Degraded).
// Deletes tombstone graph nodes; compaction repairs neighbor lists in the
// background once enough nodes are deleted.
//
// # Observability
//
// WithLogger attaches a slog-based Logger and WithMetricsCollector a
// MetricsCollector; package prom exports metrics to Prometheus.
package vecfs
