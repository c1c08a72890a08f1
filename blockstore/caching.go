package blockstore

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/vecfs/internal/cache"
	"github.com/hupe1980/vecfs/layout"
)

// CacheStats reports block cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// HitRatio returns hits / (hits+misses), or 0 when nothing was read.
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CachingStore wraps a Backend with a read-through block cache.
// Writes go to the backend first and then replace the cached image.
type CachingStore struct {
	inner     Backend
	cache     cache.BlockCache
	namespace string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingStore wraps inner. namespace separates stores sharing one cache.
func NewCachingStore(inner Backend, c cache.BlockCache, namespace string) *CachingStore {
	return &CachingStore{inner: inner, cache: c, namespace: namespace}
}

func (s *CachingStore) key(id layout.BlockID) cache.Key {
	return cache.Key{Kind: cache.KindBlock, Namespace: s.namespace, Block: uint32(id)}
}

// ReadBlock serves from the cache when possible.
func (s *CachingStore) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	if b, ok := s.cache.Get(ctx, s.key(id)); ok {
		s.hits.Add(1)
		return b, nil
	}
	s.misses.Add(1)

	b, err := s.inner.ReadBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, s.key(id), b)
	return b, nil
}

// WriteBlock writes through to the backend.
func (s *CachingStore) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	if err := s.inner.WriteBlock(ctx, id, data); err != nil {
		s.cache.Remove(s.key(id))
		return err
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.cache.Set(ctx, s.key(id), copied)
	return nil
}

// DeleteBlock drops the cached image and deletes the block.
func (s *CachingStore) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	s.cache.Remove(s.key(id))
	return s.inner.DeleteBlock(ctx, id)
}

// Stats returns read hit and miss counts observed by this store.
func (s *CachingStore) Stats() CacheStats {
	return CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Sync forwards to the inner backend when it buffers writes.
func (s *CachingStore) Sync() error {
	if syncer, ok := s.inner.(Syncer); ok {
		return syncer.Sync()
	}
	return nil
}

// Close invalidates this store's entries and closes the inner backend.
func (s *CachingStore) Close() error {
	ns := s.namespace
	s.cache.Invalidate(func(k cache.Key) bool { return k.Namespace == ns })
	return s.inner.Close()
}
