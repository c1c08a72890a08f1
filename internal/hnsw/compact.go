package hnsw

import (
	"context"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/internal/searcher"
)

// CompactBatch advances the compaction pass by up to batch slots.
//
// A pass starts by freezing the current tombstones. Every slot is then
// visited once: links to frozen tombstones are removed and the neighborhood
// of each affected live node is repaired from the removed nodes' own live
// neighbors. When the last slot has been visited the frozen tombstones are
// freed for reuse. Deletes made during a pass are handled by the next one.
func (tx *Txn) CompactBatch(ctx context.Context, batch int) (CompactResult, error) {
	g := tx.g
	if batch <= 0 {
		batch = 1
	}

	if g.pending == nil {
		if g.tombstones.IsEmpty() {
			return CompactResult{Done: true}, nil
		}
		g.pending = g.tombstones.Clone()
		g.cursor = 0
	}

	guard := resource.NewGuard(g.opts.Limits, resource.AuxBudget(g.opts.M, g.opts.M, g.maxLevel+1))
	res, err := g.compactBatch(ctx, guard, batch)
	g.record(OpCompact, guard.Report())
	return res, err
}

func (g *Graph) compactBatch(ctx context.Context, guard *resource.Guard, batch int) (CompactResult, error) {
	var res CompactResult
	if err := guard.Enter(frameOperation); err != nil {
		return res, err
	}
	defer guard.Exit(frameOperation)

	for res.Scanned < batch && int(g.cursor) < len(g.nodes) {
		if err := guard.Tick(ctx); err != nil {
			return res, err
		}
		slot := g.cursor
		g.cursor++
		if g.nodes[slot] == nil || g.pending.Contains(slot) {
			continue
		}
		res.Scanned++

		repaired, err := g.repair(guard, slot)
		if err != nil {
			return res, err
		}
		if repaired {
			res.Repaired++
		}
	}

	if int(g.cursor) < len(g.nodes) {
		return res, nil
	}

	res.Freed = g.freePending()
	res.Done = g.tombstones.IsEmpty()
	return res, nil
}

// repair strips frozen tombstones from the links of slot. Live nodes that
// lost neighbors are relinked from the union of their remaining links and
// the live links of the removed nodes.
func (g *Graph) repair(guard *resource.Guard, slot uint32) (bool, error) {
	n := g.nodes[slot]
	isLive := !g.tombstones.Contains(slot)
	changed := false

	for level := range n.links {
		links := n.links[level]
		if !slices.ContainsFunc(links, func(s uint32) bool { return g.pending.Contains(s) }) {
			continue
		}
		changed = true

		if !isLive {
			n.links[level] = slices.DeleteFunc(links, func(s uint32) bool { return g.pending.Contains(s) })
			continue
		}

		if err := guard.Enter(frameLink); err != nil {
			return false, err
		}
		cands, err := g.repairCandidates(guard, n, slot, level)
		if err != nil {
			guard.Exit(frameLink)
			return false, err
		}
		n.links[level] = g.selectNeighbors(cands, g.maxConns(level), links[:0])
		guard.Uncharge(int64(cap(cands)) * 8)
		g.scratch = cands
		guard.Exit(frameLink)
	}
	return changed, nil
}

func (g *Graph) repairCandidates(guard *resource.Guard, n *node, slot uint32, level int) ([]searcher.Item, error) {
	seen := roaring.New()
	seen.Add(slot)
	cands := g.scratch[:0]

	add := func(s uint32) {
		if seen.Contains(s) || !g.alive(s) || g.pending.Contains(s) {
			return
		}
		seen.Add(s)
		cands = append(cands, searcher.Item{Slot: s, Distance: g.dist(n.vec, g.nodes[s].vec)})
	}

	for _, s := range n.links[level] {
		if !g.pending.Contains(s) {
			add(s)
			continue
		}
		if gone := g.nodes[s]; gone != nil && level < len(gone.links) {
			for _, t := range gone.links[level] {
				add(t)
			}
		}
	}

	if err := guard.Charge(int64(cap(cands)) * 8); err != nil {
		return nil, err
	}
	sortItems(cands)
	return cands, nil
}

// freePending releases every frozen tombstone and ends the pass.
func (g *Graph) freePending() int {
	freed := 0
	it := g.pending.Iterator()
	for it.HasNext() {
		slot := it.Next()
		n := g.nodes[slot]
		if n == nil {
			continue
		}
		if cur, ok := g.ids.Get(n.id); ok && cur == slot {
			g.ids.Delete(n.id)
		}
		g.nodes[slot] = nil
		g.free = append(g.free, slot)
		g.tombstones.Remove(slot)
		freed++
	}
	g.pending = nil
	g.cursor = 0
	return freed
}

// CompactionPending reports whether a pass is in progress or tombstones wait.
func (s *Snapshot) CompactionPending() bool {
	return s.g.pending != nil || !s.g.tombstones.IsEmpty()
}
