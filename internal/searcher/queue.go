package searcher

// Item is a graph slot with its distance to the query.
type Item struct {
	Slot     uint32
	Distance float32
}

// PriorityQueue is a binary heap of Items with a fixed capacity.
// It does NOT implement container/heap to avoid interface overhead.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
	limit     int
}

// NewPriorityQueue creates a heap holding at most limit items.
// A max-heap keeps the farthest item on top, a min-heap the nearest.
func NewPriorityQueue(isMaxHeap bool, limit int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: isMaxHeap,
		items:     make([]Item, 0, limit),
		limit:     limit,
	}
}

// Reset clears the queue and sets a new capacity.
func (pq *PriorityQueue) Reset(limit int) {
	pq.items = pq.items[:0]
	pq.limit = limit
	if cap(pq.items) < limit {
		pq.items = make([]Item, 0, limit)
	}
}

// Len returns the number of items.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Cap returns the capacity.
func (pq *PriorityQueue) Cap() int { return pq.limit }

// Full reports whether the queue is at capacity.
func (pq *PriorityQueue) Full() bool { return len(pq.items) >= pq.limit }

// Top returns the top item.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts item. It returns false without modifying the queue when full.
func (pq *PriorityQueue) Push(item Item) bool {
	if len(pq.items) >= pq.limit {
		return false
	}
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
	return true
}

// PushBounded inserts item into a max-heap acting as a top-k collector.
// When full, item replaces the top only if it is strictly nearer.
// It reports whether item was kept.
func (pq *PriorityQueue) PushBounded(item Item) bool {
	if len(pq.items) < pq.limit {
		pq.items = append(pq.items, item)
		pq.siftUp(len(pq.items) - 1)
		return true
	}
	if pq.limit == 0 {
		return false
	}
	top := pq.items[0]
	if pq.isMaxHeap && item.Distance < top.Distance || !pq.isMaxHeap && item.Distance > top.Distance {
		pq.items[0] = item
		pq.siftDown(0)
		return true
	}
	return false
}

// Pop removes and returns the top item.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return item, true
}

// Items returns the heap contents in heap order. The slice aliases the queue.
func (pq *PriorityQueue) Items() []Item { return pq.items }

// Drain pops every item into dst, nearest first, and returns it.
func (pq *PriorityQueue) Drain(dst []Item) []Item {
	n := len(pq.items)
	start := len(dst)
	dst = append(dst, make([]Item, n)...)
	if pq.isMaxHeap {
		for i := n - 1; i >= 0; i-- {
			dst[start+i], _ = pq.Pop()
		}
	} else {
		for i := range n {
			dst[start+i], _ = pq.Pop()
		}
	}
	return dst
}

func (pq *PriorityQueue) less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if a.Distance == b.Distance {
		// Deterministic order on ties: lower slot is nearer.
		if pq.isMaxHeap {
			return a.Slot > b.Slot
		}
		return a.Slot < b.Slot
	}
	if pq.isMaxHeap {
		return a.Distance > b.Distance
	}
	return a.Distance < b.Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.items[i], pq.items[parent] = pq.items[parent], pq.items[i]
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.items[i], pq.items[child] = pq.items[child], pq.items[i]
		i = child
	}
}
