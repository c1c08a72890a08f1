package searcher

import "sync"

// Searcher bundles the scratch memory of one search. It is not safe for
// concurrent use; take one from the pool per request.
type Searcher struct {
	// Visited tracks slots already evaluated.
	Visited *VisitedSet
	// Candidates is a min-heap of slots still to expand.
	Candidates *PriorityQueue
	// Results is a max-heap of the best slots found so far.
	Results *PriorityQueue
	// Neighbors is a reusable adjacency snapshot buffer.
	Neighbors []uint32
	// Items is a reusable output buffer.
	Items []Item
	// Vec is a reusable vector buffer.
	Vec []float32
}

var pool = sync.Pool{
	New: func() any {
		return &Searcher{
			Visited:    NewVisitedSet(1024),
			Candidates: NewPriorityQueue(false, 64),
			Results:    NewPriorityQueue(true, 64),
			Neighbors:  make([]uint32, 0, 64),
		}
	},
}

// Get returns a pooled Searcher sized for the given limits.
func Get(visitedCap, candidateCap, resultCap int) *Searcher {
	s := pool.Get().(*Searcher)
	s.Visited.Reset(visitedCap)
	s.Candidates.Reset(candidateCap)
	s.Results.Reset(resultCap)
	s.Neighbors = s.Neighbors[:0]
	s.Items = s.Items[:0]
	return s
}

// Put returns s to the pool.
func Put(s *Searcher) {
	pool.Put(s)
}

// Bytes returns the memory reserved by the visited set and heaps for the
// current limits.
func (s *Searcher) Bytes() int64 {
	const itemSize = 8
	return s.Visited.Bytes() + int64(s.Candidates.Cap()+s.Results.Cap())*itemSize
}
