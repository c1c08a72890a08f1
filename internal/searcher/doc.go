// Package searcher provides the bounded scratch structures used by graph
// traversal and linear scans.
//
// Every structure has a fixed capacity chosen before the search starts, so a
// traversal's memory use is known up front and charged against the request's
// budget. Running out of room is reported to the caller instead of growing:
//
//   - PriorityQueue: binary heap of (slot, distance) items
//   - VisitedSet: open-addressing hash set with a dirty list for O(visited) reset
//   - Searcher: pooled bundle of the above plus neighbor and vector buffers
package searcher
