// Package cache provides in-memory LRU caching of storage blocks.
//
// LRUBlockCache is a single-mutex LRU bounded by bytes. ShardedLRUBlockCache
// spreads keys over 64 LRU shards to reduce lock contention under parallel
// search load. Both reserve their bytes through a resource.Controller when
// one is supplied, so the cache respects the process memory limit.
package cache
