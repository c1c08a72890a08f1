package cache

import (
	"context"
	"hash/maphash"

	"github.com/hupe1980/vecfs/internal/resource"
)

const numShards = 64

// ShardedLRUBlockCache distributes blocks over 64 LRU shards.
type ShardedLRUBlockCache struct {
	shards [numShards]*LRUBlockCache
	seed   maphash.Seed
}

// NewShardedLRUBlockCache creates a sharded cache; capacity is split evenly.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	per := max(capacity/numShards, 1)
	s := &ShardedLRUBlockCache{seed: maphash.MakeSeed()}
	for i := range numShards {
		s.shards[i] = NewLRUBlockCache(per, rc)
	}
	return s
}

func (s *ShardedLRUBlockCache) shard(key Key) *LRUBlockCache {
	h := uint64(key.Block) * 0x9E3779B97F4A7C15
	if key.Namespace != "" {
		h ^= maphash.String(s.seed, key.Namespace)
	}
	return s.shards[(h>>32)%numShards]
}

// Get returns a cached block.
func (s *ShardedLRUBlockCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRUBlockCache) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Remove drops key from the cache.
func (s *ShardedLRUBlockCache) Remove(key Key) {
	s.shard(key).Remove(key)
}

// Invalidate removes entries matching the predicate from every shard.
func (s *ShardedLRUBlockCache) Invalidate(predicate func(key Key) bool) {
	for _, sh := range s.shards {
		sh.Invalidate(predicate)
	}
}

// Close closes all shards.
func (s *ShardedLRUBlockCache) Close() error {
	for _, sh := range s.shards {
		if err := sh.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns aggregated hit and miss counters.
func (s *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the cached bytes across all shards.
func (s *ShardedLRUBlockCache) Size() int64 {
	var total int64
	for _, sh := range s.shards {
		total += sh.Size()
	}
	return total
}
