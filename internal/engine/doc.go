// Package engine implements the search engine of the vector store.
//
// The engine orchestrates:
//   - payload placement through the block store and graph linking
//   - k-NN, range, filtered, multi-query and hybrid-metric search
//   - the degraded linear scan used when a traversal exceeds its stack budget
//   - tombstone compaction and block scrubbing in the background
//
// Searches run under the graph's read lock; a multi-query batch shares one
// snapshot. Inserts place payloads outside the graph lock and link the whole
// batch under a single write lock.
package engine
