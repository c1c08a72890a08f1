package engine

import (
	"cmp"
	"context"
	"slices"

	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/layout"
)

// scan evaluates p against stored vectors read back through the block
// store, in chunks of scanChunk locations. Memory is O(k + scanChunk).
func (e *Engine) scan(ctx context.Context, s *hnsw.Snapshot, q []float32, p *plan) ([]Result, int, error) {
	top := topK{k: p.k}
	ids := make([]uint64, 0, scanChunk)
	locs := make([]layout.Location, 0, scanChunk)
	scanned := 0

	flush := func() error {
		if len(locs) == 0 {
			return nil
		}
		err := e.blocks.GetBatch(ctx, locs, func(i int, v []float32) error {
			d := p.dist(q, v)
			scanned++
			if p.accept == nil || p.accept(ids[i], d) {
				top.push(ids[i], d)
			}
			return nil
		})
		ids, locs = ids[:0], locs[:0]
		return err
	}

	var err error
	visit := func(id uint64, loc layout.Location) bool {
		ids = append(ids, id)
		locs = append(locs, loc)
		if len(locs) == scanChunk {
			err = flush()
		}
		return err == nil
	}

	if p.candidates != nil {
		it := p.candidates.Iterator()
		for it.HasNext() {
			id := it.Next()
			loc, ok := s.Lookup(id)
			if !ok {
				continue
			}
			if !visit(id, loc) {
				break
			}
		}
	} else {
		s.Scan(visit)
	}
	if err == nil {
		err = flush()
	}
	if err != nil {
		return nil, scanned, err
	}

	for i := range top.items {
		top.items[i].Score = p.score(top.items[i].Distance)
	}
	return top.items, scanned, nil
}

// topK keeps the k best results sorted by (distance, id).
type topK struct {
	k     int
	items []Result
}

func compareResult(a, b Result) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (t *topK) push(id uint64, d float32) {
	r := Result{ID: id, Distance: d}
	if len(t.items) == t.k && compareResult(r, t.items[len(t.items)-1]) >= 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(t.items, r, compareResult)
	if len(t.items) == t.k {
		t.items = t.items[:len(t.items)-1]
	}
	t.items = slices.Insert(t.items, i, r)
}
