// Package hnsw implements an iterative Hierarchical Navigable Small World graph.
//
// No function in this package recurses. Layer descent is a loop, and the
// only traversal primitive, searchLayer, works from a candidate min-heap and
// a result max-heap whose capacities are fixed before the search starts. The
// auxiliary memory of an insert or search is O(ef + M·layers) and does not
// grow with the number of nodes; every operation runs under a
// resource.Guard that records its depth and memory high-water marks.
//
// # Concurrency
//
// One reader/writer lock guards the entry point, the top layer and all
// adjacency lists. View runs a function under the read lock and Update under
// the write lock, so a batch of searches or inserts pays for the lock once.
//
// # Deletion
//
// Delete tombstones a node. Tombstoned nodes are skipped by traversal and
// never returned. CompactBatch later strips them from adjacency lists in
// bounded batches, repairs the affected neighborhoods and frees the slots.
//
// # Parameters
//
//   - M: max connections per node on layers >= 1 (default 16); layer 0 uses 2M
//   - EFConstruction: beam width while inserting (default 200)
//   - EFSearch: default beam width for searches (default 50)
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
