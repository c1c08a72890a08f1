package cache

import "context"

// Kind separates key spaces sharing one cache.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindBlock holds full 4 KiB storage block images.
	KindBlock
)

// Key identifies a cached block.
type Key struct {
	Kind Kind
	// Namespace distinguishes stores sharing a cache (e.g. a bucket prefix).
	Namespace string
	Block     uint32
}

// BlockCache is a byte-oriented cache for block images.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The cache retains b; callers must not modify it afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Remove drops a single entry.
	Remove(key Key)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases any resources.
	Close() error
	// Stats returns hit and miss counters.
	Stats() (hits, misses int64)
}
