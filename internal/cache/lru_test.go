package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecfs/internal/resource"
)

func blockKey(id uint32) Key {
	return Key{Kind: KindBlock, Block: id}
}

func TestLRUBlockCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(100, nil)

	_, ok := c.Get(ctx, blockKey(1))
	assert.False(t, ok)

	c.Set(ctx, blockKey(1), []byte("hello"))
	v, ok := c.Get(ctx, blockKey(1))
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUBlockCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(30, nil)

	c.Set(ctx, blockKey(1), make([]byte, 10))
	c.Set(ctx, blockKey(2), make([]byte, 10))
	c.Set(ctx, blockKey(3), make([]byte, 10))

	// Touch 1 so that 2 becomes the eviction victim.
	_, _ = c.Get(ctx, blockKey(1))
	c.Set(ctx, blockKey(4), make([]byte, 10))

	_, ok := c.Get(ctx, blockKey(2))
	assert.False(t, ok)
	_, ok = c.Get(ctx, blockKey(1))
	assert.True(t, ok)
	assert.Equal(t, int64(30), c.Size())

	// Oversized values are never cached.
	c.Set(ctx, blockKey(5), make([]byte, 31))
	_, ok = c.Get(ctx, blockKey(5))
	assert.False(t, ok)
}

func TestLRUBlockCache_Replace(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(100, nil)

	c.Set(ctx, blockKey(1), make([]byte, 10))
	c.Set(ctx, blockKey(1), make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	assert.Equal(t, 1, c.Len())
}

func TestLRUBlockCache_ResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 15})
	c := NewLRUBlockCache(100, rc)

	c.Set(ctx, blockKey(1), make([]byte, 10))
	c.Set(ctx, blockKey(2), make([]byte, 10))
	assert.Equal(t, int64(10), rc.MemoryUsage())
	assert.Equal(t, 1, c.Len())

	c.Remove(blockKey(1))
	assert.Zero(t, rc.MemoryUsage())

	c.Set(ctx, blockKey(2), make([]byte, 10))
	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestLRUBlockCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1000, nil)
	for i := range uint32(10) {
		c.Set(ctx, Key{Kind: KindBlock, Namespace: fmt.Sprint(i % 2), Block: i}, []byte{byte(i)})
	}

	c.Invalidate(func(k Key) bool { return k.Namespace == "0" })
	assert.Equal(t, 5, c.Len())
}

func TestShardedLRUBlockCache(t *testing.T) {
	ctx := context.Background()
	c := NewShardedLRUBlockCache(64*4096, nil)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range uint32(100) {
				id := uint32(w)*1000 + i
				c.Set(ctx, blockKey(id), []byte{byte(i)})
				v, ok := c.Get(ctx, blockKey(id))
				if assert.True(t, ok) {
					assert.Equal(t, byte(i), v[0])
				}
			}
		}()
	}
	wg.Wait()

	hits, misses := c.Stats()
	assert.Equal(t, int64(800), hits)
	assert.Zero(t, misses)
	assert.Equal(t, int64(800), c.Size())

	c.Remove(blockKey(1))
	_, ok := c.Get(ctx, blockKey(1))
	assert.False(t, ok)

	c.Invalidate(func(Key) bool { return true })
	assert.Zero(t, c.Size())
	require.NoError(t, c.Close())
}
