package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue_MinHeap(t *testing.T) {
	pq := NewPriorityQueue(false, 8)
	for i, d := range []float32{5, 1, 4, 2, 3} {
		require.True(t, pq.Push(Item{Slot: uint32(i), Distance: d}))
	}

	var got []float32
	for pq.Len() > 0 {
		it, ok := pq.Pop()
		require.True(t, ok)
		got = append(got, it.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)

	_, ok := pq.Pop()
	assert.False(t, ok)
}

func TestPriorityQueue_PushFailsWhenFull(t *testing.T) {
	pq := NewPriorityQueue(false, 2)
	assert.True(t, pq.Push(Item{Slot: 1}))
	assert.True(t, pq.Push(Item{Slot: 2}))
	assert.True(t, pq.Full())
	assert.False(t, pq.Push(Item{Slot: 3}))
	assert.Equal(t, 2, pq.Len())
}

func TestPriorityQueue_PushBoundedKeepsNearest(t *testing.T) {
	pq := NewPriorityQueue(true, 3)
	for i, d := range []float32{9, 1, 8, 2, 7, 3} {
		pq.PushBounded(Item{Slot: uint32(i), Distance: d})
	}
	top, ok := pq.Top()
	require.True(t, ok)
	assert.Equal(t, float32(3), top.Distance)

	out := pq.Drain(nil)
	require.Len(t, out, 3)
	assert.Equal(t, []Item{{1, 1}, {3, 2}, {5, 3}}, out)
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueue_TiesBreakOnSlot(t *testing.T) {
	pq := NewPriorityQueue(true, 2)
	pq.PushBounded(Item{Slot: 7, Distance: 1})
	pq.PushBounded(Item{Slot: 3, Distance: 1})
	pq.PushBounded(Item{Slot: 5, Distance: 1})

	out := pq.Drain(nil)
	assert.Equal(t, []Item{{3, 1}, {7, 1}}, out)
}

func TestPriorityQueue_ZeroCapacity(t *testing.T) {
	pq := NewPriorityQueue(true, 0)
	assert.False(t, pq.PushBounded(Item{Slot: 1}))
	assert.False(t, pq.Push(Item{Slot: 1}))
}

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(4)
	added, ok := v.Visit(10)
	assert.True(t, added)
	assert.True(t, ok)

	added, ok = v.Visit(10)
	assert.False(t, added)
	assert.True(t, ok)

	for _, s := range []uint32{0, 1, 1 << 20} {
		_, ok = v.Visit(s)
		require.True(t, ok)
	}
	assert.Equal(t, 4, v.Len())

	// Full: new slots are rejected, known slots still answer.
	_, ok = v.Visit(99)
	assert.False(t, ok)
	assert.True(t, v.Visited(1<<20))
	assert.False(t, v.Visited(99))

	v.Reset(4)
	assert.Equal(t, 0, v.Len())
	assert.False(t, v.Visited(10))
	added, ok = v.Visit(99)
	assert.True(t, added)
	assert.True(t, ok)
}

func TestVisitedSet_CollidingSlots(t *testing.T) {
	v := NewVisitedSet(1000)
	for i := range uint32(1000) {
		added, ok := v.Visit(i * 64)
		require.True(t, ok)
		require.True(t, added)
	}
	for i := range uint32(1000) {
		assert.True(t, v.Visited(i*64))
		assert.False(t, v.Visited(i*64+1))
	}
}

func TestSearcherPool(t *testing.T) {
	s := Get(100, 10, 5)
	assert.Equal(t, 100, s.Visited.Cap())
	assert.Equal(t, 10, s.Candidates.Cap())
	assert.Equal(t, 5, s.Results.Cap())
	assert.Positive(t, s.Bytes())

	s.Visited.Visit(1)
	s.Results.Push(Item{Slot: 1})
	Put(s)

	s = Get(100, 10, 5)
	defer Put(s)
	assert.Equal(t, 0, s.Visited.Len())
	assert.Equal(t, 0, s.Results.Len())
}
