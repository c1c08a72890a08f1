package hnsw

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/btree"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/internal/searcher"
	"github.com/hupe1980/vecfs/layout"
)

type node struct {
	id    uint64
	level int
	vec   []float32
	// links[l] holds the neighbor slots on layer l.
	links [][]uint32
	loc   layout.Location
}

// Graph is an HNSW index over dense internal slots.
type Graph struct {
	lock *resource.RWLock

	opts Options
	dist distance.Func
	mL   float64
	m0   int

	// Guarded by the write lock.
	rng        *rand.Rand
	nodes      []*node
	free       []uint32
	ids        btree.Map[uint64, uint32]
	tombstones *roaring.Bitmap
	entry      uint32
	hasEntry   bool
	maxLevel   int
	live       int
	scratch    []searcher.Item

	// Compaction pass state.
	pending *roaring.Bitmap
	cursor  uint32

	mu      sync.Mutex
	reports map[Op]resource.Report
}

// New creates an empty graph.
func New(opts Options) (*Graph, error) {
	if opts.M < minimumM {
		return nil, fmt.Errorf("%w: M must be >= %d, got %d", ErrInvalidOptions, minimumM, opts.M)
	}
	if opts.EFConstruction <= 0 || opts.EFSearch <= 0 {
		return nil, fmt.Errorf("%w: ef values must be positive", ErrInvalidOptions)
	}
	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Graph{
		lock:       resource.NewRWLock(),
		opts:       opts,
		dist:       dist,
		mL:         1 / math.Log(float64(opts.M)),
		m0:         2 * opts.M,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
		tombstones: roaring.New(),
		reports:    make(map[Op]resource.Report),
	}, nil
}

// Options returns the graph options.
func (g *Graph) Options() Options { return g.opts }

// View runs fn under the read lock.
func (g *Graph) View(ctx context.Context, fn func(*Snapshot) error) error {
	if err := g.lock.RLock(ctx); err != nil {
		return err
	}
	defer g.lock.RUnlock()

	return fn(&Snapshot{g: g})
}

// Update runs fn under the write lock.
func (g *Graph) Update(ctx context.Context, fn func(*Txn) error) error {
	if err := g.lock.Lock(ctx); err != nil {
		return err
	}
	defer g.lock.Unlock()

	return fn(&Txn{Snapshot: Snapshot{g: g}})
}

// Insert adds one vector under its own write lock.
func (g *Graph) Insert(ctx context.Context, id uint64, vec []float32, loc layout.Location) error {
	return g.Update(ctx, func(tx *Txn) error {
		return tx.Insert(ctx, id, vec, loc)
	})
}

// Delete tombstones id under its own write lock.
func (g *Graph) Delete(ctx context.Context, id uint64) (layout.Location, error) {
	var loc layout.Location
	err := g.Update(ctx, func(tx *Txn) error {
		var err error
		loc, err = tx.Delete(id)
		return err
	})
	return loc, err
}

// Search runs one query under its own read lock.
func (g *Graph) Search(ctx context.Context, q []float32, p SearchParams) ([]Result, Trace, error) {
	var (
		res   []Result
		trace Trace
	)
	err := g.View(ctx, func(s *Snapshot) error {
		var err error
		res, trace, err = s.Search(ctx, q, p)
		return err
	})
	return res, trace, err
}

// Reports returns the merged guard high-water marks per operation kind.
func (g *Graph) Reports() map[Op]resource.Report {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[Op]resource.Report, len(g.reports))
	for op, r := range g.reports {
		out[op] = r
	}
	return out
}

func (g *Graph) record(op Op, r resource.Report) {
	g.mu.Lock()
	g.reports[op] = g.reports[op].Merge(r)
	g.mu.Unlock()
}

func (g *Graph) maxConns(level int) int {
	if level == 0 {
		return g.m0
	}
	return g.opts.M
}

func (g *Graph) randomLevel() int {
	u := 1 - g.rng.Float64() // (0, 1]
	level := int(math.Floor(-math.Log(u) * g.mL))
	return min(level, MaxLevel)
}

func (g *Graph) alive(slot uint32) bool {
	return int(slot) < len(g.nodes) && g.nodes[slot] != nil && !g.tombstones.Contains(slot)
}

func (g *Graph) lookup(id uint64) (uint32, bool) {
	slot, ok := g.ids.Get(id)
	if !ok || !g.alive(slot) {
		return 0, false
	}
	return slot, true
}

// op carries the per-operation state of one guarded traversal.
type op struct {
	ctx   context.Context
	guard *resource.Guard
	s     *searcher.Searcher
	dist  distance.Func
	evals int
}

func (o *op) distance(q []float32, n *node) float32 {
	o.evals++
	return o.dist(q, n.vec)
}

// greedyDescent walks from the entry point down to layer target+1, moving to
// the nearest live neighbor until no neighbor improves the distance.
func (g *Graph) greedyDescent(o *op, q []float32, target int) (searcher.Item, error) {
	if err := o.guard.Enter(frameDescent); err != nil {
		return searcher.Item{}, err
	}
	defer o.guard.Exit(frameDescent)

	cur := searcher.Item{Slot: g.entry, Distance: o.distance(q, g.nodes[g.entry])}
	for level := g.maxLevel; level > target; level-- {
		for changed := true; changed; {
			changed = false
			n := g.nodes[cur.Slot]
			if level >= len(n.links) {
				break
			}
			for _, next := range n.links[level] {
				if err := o.guard.Tick(o.ctx); err != nil {
					return searcher.Item{}, err
				}
				if !g.alive(next) {
					continue
				}
				d := o.distance(q, g.nodes[next])
				if d < cur.Distance || d == cur.Distance && next < cur.Slot {
					cur = searcher.Item{Slot: next, Distance: d}
					changed = true
				}
			}
		}
	}
	return cur, nil
}

// searchLayer runs a beam search of width ef on one layer starting at ep.
// Tombstoned nodes are neither expanded nor returned; nodes rejected by
// accept are expanded but not returned. The result heap of o.s holds the
// outcome.
func (g *Graph) searchLayer(o *op, q []float32, ep searcher.Item, level, ef int, accept func(slot uint32, d float32) bool) error {
	if err := o.guard.Enter(frameSearchLayer); err != nil {
		return err
	}
	defer o.guard.Exit(frameSearchLayer)

	s := o.s
	visitedCap := resource.VisitedCapacity(ef, g.m0)
	s.Visited.Reset(visitedCap)
	s.Candidates.Reset(visitedCap)
	s.Results.Reset(ef)

	s.Visited.Visit(ep.Slot)
	s.Candidates.Push(ep)
	if accept == nil || accept(ep.Slot, ep.Distance) {
		s.Results.PushBounded(ep)
	}

	for s.Candidates.Len() > 0 {
		cur, _ := s.Candidates.Pop()
		if worst, ok := s.Results.Top(); ok && s.Results.Full() && cur.Distance > worst.Distance {
			break
		}

		n := g.nodes[cur.Slot]
		if level >= len(n.links) {
			continue
		}
		for _, next := range n.links[level] {
			if err := o.guard.Tick(o.ctx); err != nil {
				return err
			}
			if !g.alive(next) {
				continue
			}
			added, ok := s.Visited.Visit(next)
			if !ok {
				return fmt.Errorf("%w: visited set full at %d nodes", resource.ErrStackBudgetExceeded, s.Visited.Cap())
			}
			if !added {
				continue
			}

			d := o.distance(q, g.nodes[next])
			if worst, ok := s.Results.Top(); ok && s.Results.Full() && d > worst.Distance {
				continue
			}
			item := searcher.Item{Slot: next, Distance: d}
			if !s.Candidates.Push(item) {
				return fmt.Errorf("%w: candidate heap full at %d items", resource.ErrStackBudgetExceeded, s.Candidates.Cap())
			}
			if accept == nil || accept(next, d) {
				s.Results.PushBounded(item)
			}
		}
	}
	return nil
}

// selectNeighbors picks up to m neighbors from cands, which must be sorted
// nearest first. With the heuristic enabled a candidate is skipped when it
// is nearer to an already selected neighbor than to the base. Pruned
// candidates stay pruned even when fewer than m survive. When cands already
// fit in m no candidate is pruned.
func (g *Graph) selectNeighbors(cands []searcher.Item, m int, dst []uint32) []uint32 {
	dst = dst[:0]
	if !g.opts.Heuristic || len(cands) <= m {
		for _, c := range cands {
			if len(dst) == m {
				break
			}
			dst = append(dst, c.Slot)
		}
		return dst
	}

	for _, c := range cands {
		if len(dst) == m {
			break
		}
		cv := g.nodes[c.Slot].vec
		good := true
		for _, sel := range dst {
			if g.dist(cv, g.nodes[sel].vec) < c.Distance {
				good = false
				break
			}
		}
		if good {
			dst = append(dst, c.Slot)
		}
	}
	return dst
}

func sortItems(items []searcher.Item) {
	slices.SortFunc(items, func(a, b searcher.Item) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
}

// addConnection links src to dst on level, pruning src's list back to its
// capacity when it overflows.
func (g *Graph) addConnection(src, dst uint32, level int) {
	n := g.nodes[src]
	links := n.links[level]
	if slices.Contains(links, dst) {
		return
	}
	limit := g.maxConns(level)
	if len(links) < limit {
		n.links[level] = append(links, dst)
		return
	}

	cands := g.scratch[:0]
	for _, l := range links {
		if g.alive(l) {
			cands = append(cands, searcher.Item{Slot: l, Distance: g.dist(n.vec, g.nodes[l].vec)})
		}
	}
	cands = append(cands, searcher.Item{Slot: dst, Distance: g.dist(n.vec, g.nodes[dst].vec)})
	sortItems(cands)
	n.links[level] = g.selectNeighbors(cands, limit, links[:0])
	g.scratch = cands
}

func (g *Graph) allocSlot(n *node) uint32 {
	if k := len(g.free); k > 0 {
		slot := g.free[k-1]
		g.free = g.free[:k-1]
		g.nodes[slot] = n
		return slot
	}
	g.nodes = append(g.nodes, n)
	return uint32(len(g.nodes) - 1)
}

// electEntry picks the live node with the highest level as entry point.
func (g *Graph) electEntry() {
	g.hasEntry = false
	g.maxLevel = 0
	for slot, n := range g.nodes {
		if n == nil || g.tombstones.Contains(uint32(slot)) {
			continue
		}
		if !g.hasEntry || n.level > g.maxLevel {
			g.entry = uint32(slot)
			g.maxLevel = n.level
			g.hasEntry = true
		}
	}
}

// Trace describes the work done by one search.
type Trace struct {
	// Evaluations counts distance computations.
	Evaluations int
	Report      resource.Report
}

// Snapshot is a read view of the graph, valid inside View or Update.
type Snapshot struct {
	g *Graph
}

// Len returns the number of live nodes.
func (s *Snapshot) Len() int { return s.g.live }

// Metric returns the build metric.
func (s *Snapshot) Metric() distance.Metric { return s.g.opts.Metric }

// Lookup returns the payload location of a live id.
func (s *Snapshot) Lookup(id uint64) (layout.Location, bool) {
	slot, ok := s.g.lookup(id)
	if !ok {
		return layout.Location{}, false
	}
	return s.g.nodes[slot].loc, true
}

// Vector returns a copy of the stored vector of a live id.
func (s *Snapshot) Vector(id uint64) ([]float32, bool) {
	slot, ok := s.g.lookup(id)
	if !ok {
		return nil, false
	}
	return slices.Clone(s.g.nodes[slot].vec), true
}

// Scan calls fn for every live node in slot order until fn returns false.
func (s *Snapshot) Scan(fn func(id uint64, loc layout.Location) bool) {
	for slot, n := range s.g.nodes {
		if n == nil || s.g.tombstones.Contains(uint32(slot)) {
			continue
		}
		if !fn(n.id, n.loc) {
			return
		}
	}
}

// Search returns up to p.K live nodes nearest to q, ascending by distance.
func (s *Snapshot) Search(ctx context.Context, q []float32, p SearchParams) ([]Result, Trace, error) {
	g := s.g
	if p.K <= 0 {
		return nil, Trace{}, fmt.Errorf("%w: k must be positive", ErrInvalidOptions)
	}
	ef := p.EF
	if ef <= 0 {
		ef = g.opts.EFSearch
	}
	ef = max(ef, p.K)

	if !g.hasEntry {
		return nil, Trace{}, nil
	}

	dist := p.Dist
	if dist == nil {
		dist = g.dist
	}

	guard := resource.NewGuard(g.opts.Limits, resource.AuxBudget(ef, g.opts.M, g.maxLevel+1))
	o := &op{ctx: ctx, guard: guard, dist: dist}
	res, err := g.search(o, q, p, ef)
	trace := Trace{Evaluations: o.evals, Report: guard.Report()}
	g.record(OpSearch, trace.Report)
	return res, trace, err
}

func (g *Graph) search(o *op, q []float32, p SearchParams, ef int) ([]Result, error) {
	if err := o.guard.Enter(frameOperation); err != nil {
		return nil, err
	}
	defer o.guard.Exit(frameOperation)

	visitedCap := resource.VisitedCapacity(ef, g.m0)
	o.s = searcher.Get(visitedCap, visitedCap, ef)
	defer searcher.Put(o.s)
	if err := o.guard.Charge(o.s.Bytes()); err != nil {
		return nil, err
	}

	ep, err := g.greedyDescent(o, q, 0)
	if err != nil {
		return nil, err
	}

	var accept func(uint32, float32) bool
	if p.Accept != nil {
		accept = func(slot uint32, d float32) bool {
			return p.Accept(g.nodes[slot].id, d)
		}
	}
	if err := g.searchLayer(o, q, ep, 0, ef, accept); err != nil {
		return nil, err
	}

	o.s.Items = o.s.Results.Drain(o.s.Items[:0])
	n := min(p.K, len(o.s.Items))
	out := make([]Result, n)
	for i, it := range o.s.Items[:n] {
		nd := g.nodes[it.Slot]
		out[i] = Result{ID: nd.id, Distance: it.Distance, Loc: nd.loc}
	}
	return out, nil
}

// Txn is a write view of the graph, valid inside Update.
type Txn struct {
	Snapshot
	journal []change
}

// change records one Insert or Delete for Rollback.
type change struct {
	slot    uint32
	insert  bool
	prev    uint32
	hadPrev bool
}

// Rollback undoes every Insert and Delete made through tx, newest first.
// Rolled back inserts stay in the graph as tombstones until compaction;
// rolled back deletes are live again.
func (tx *Txn) Rollback() {
	g := tx.g
	for i := len(tx.journal) - 1; i >= 0; i-- {
		c := tx.journal[i]
		n := g.nodes[c.slot]
		if c.insert {
			g.tombstones.Add(c.slot)
			g.live--
			if c.hadPrev {
				g.ids.Set(n.id, c.prev)
			} else {
				g.ids.Delete(n.id)
			}
			continue
		}
		g.tombstones.Remove(c.slot)
		g.ids.Set(n.id, c.slot)
		g.live++
	}
	if len(tx.journal) > 0 {
		g.electEntry()
	}
	tx.journal = tx.journal[:0]
}

// Insert adds vec under id with its payload location. Re-inserting an id
// that was deleted but not yet compacted is allowed; the new node gets a
// fresh slot. The graph keeps its own copy of vec.
func (tx *Txn) Insert(ctx context.Context, id uint64, vec []float32, loc layout.Location) error {
	g := tx.g
	if _, ok := g.lookup(id); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	level := g.randomLevel()
	n := &node{
		id:    id,
		level: level,
		vec:   slices.Clone(vec),
		links: make([][]uint32, level+1),
		loc:   loc,
	}

	prev, hadPrev := g.ids.Get(id)

	if !g.hasEntry {
		slot := g.allocSlot(n)
		g.ids.Set(id, slot)
		g.entry, g.maxLevel, g.hasEntry = slot, level, true
		g.live++
		tx.journal = append(tx.journal, change{slot: slot, insert: true, prev: prev, hadPrev: hadPrev})
		return nil
	}

	ef := g.opts.EFConstruction
	guard := resource.NewGuard(g.opts.Limits, resource.AuxBudget(ef, g.opts.M, g.maxLevel+1))
	o := &op{ctx: ctx, guard: guard, dist: g.dist}
	slot, err := g.insert(o, n)
	g.record(OpInsert, guard.Report())
	if err != nil {
		return err
	}
	tx.journal = append(tx.journal, change{slot: slot, insert: true, prev: prev, hadPrev: hadPrev})
	return nil
}

// insert searches every layer first and links only when all searches
// succeeded, so a failed insert leaves the graph untouched.
func (g *Graph) insert(o *op, n *node) (uint32, error) {
	if err := o.guard.Enter(frameOperation); err != nil {
		return 0, err
	}
	defer o.guard.Exit(frameOperation)

	ef := g.opts.EFConstruction
	visitedCap := resource.VisitedCapacity(ef, g.m0)
	o.s = searcher.Get(visitedCap, visitedCap, ef)
	defer searcher.Put(o.s)
	if err := o.guard.Charge(o.s.Bytes()); err != nil {
		return 0, err
	}

	ep, err := g.greedyDescent(o, n.vec, n.level)
	if err != nil {
		return 0, err
	}

	for level := min(n.level, g.maxLevel); level >= 0; level-- {
		if err := g.searchLayer(o, n.vec, ep, level, ef, nil); err != nil {
			return 0, err
		}
		o.s.Items = o.s.Results.Drain(o.s.Items[:0])
		if len(o.s.Items) > 0 {
			ep = o.s.Items[0]
		}
		limit := g.maxConns(level)
		n.links[level] = g.selectNeighbors(o.s.Items, limit, make([]uint32, 0, limit))
		if err := o.guard.Charge(int64(cap(n.links[level])) * 4); err != nil {
			return 0, err
		}
	}

	if err := o.guard.Enter(frameLink); err != nil {
		return 0, err
	}
	defer o.guard.Exit(frameLink)

	slot := g.allocSlot(n)
	g.ids.Set(n.id, slot)
	g.live++
	for level := min(n.level, g.maxLevel); level >= 0; level-- {
		for _, nb := range n.links[level] {
			g.addConnection(nb, slot, level)
		}
	}
	if n.level > g.maxLevel {
		g.entry, g.maxLevel = slot, n.level
	}
	return slot, nil
}

// Delete tombstones id and returns its payload location. Deleting the entry
// point elects a new one immediately.
func (tx *Txn) Delete(id uint64) (layout.Location, error) {
	g := tx.g
	slot, ok := g.lookup(id)
	if !ok {
		return layout.Location{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	g.tombstones.Add(slot)
	g.live--
	if slot == g.entry {
		g.electEntry()
	}
	tx.journal = append(tx.journal, change{slot: slot})
	return g.nodes[slot].loc, nil
}
