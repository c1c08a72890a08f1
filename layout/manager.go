package layout

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Config configures a Manager.
type Config struct {
	// AlignmentThreshold is the raw vector size from which vectors are
	// stored SIMD-aligned. Defaults to DefaultAlignmentThreshold.
	AlignmentThreshold int
}

// Stats is a snapshot of the manager's running statistics.
type Stats struct {
	BlocksAllocated   uint64
	BlocksInUse       uint64
	BytesAllocated    uint64
	RawBytesUsed      uint64
	AlignmentWaste    uint64
	PackingEfficiency float64
	Fragmentation     uint64
	FreeBlocks        uint64
	VectorsStored     uint64
}

type blockState struct {
	desc  VectorDescriptor
	plan  Plan
	used  [4]uint64
	live  int
	slots int
}

func (b *blockState) freeSlot() int {
	for w := range b.used {
		if inv := ^b.used[w]; inv != 0 {
			slot := w*64 + bits.TrailingZeros64(inv)
			if slot < b.slots {
				return slot
			}
			return -1
		}
	}
	return -1
}

func (b *blockState) set(slot int)        { b.used[slot/64] |= 1 << (slot % 64) }
func (b *blockState) clear(slot int)      { b.used[slot/64] &^= 1 << (slot % 64) }
func (b *blockState) isSet(slot int) bool { return b.used[slot/64]&(1<<(slot%64)) != 0 }

// Manager allocates block slots and tracks layout statistics.
// It never performs I/O; callers persist and delete blocks themselves.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	next   BlockID
	free   *roaring.Bitmap
	blocks map[BlockID]*blockState
	vacant map[VectorDescriptor]*roaring.Bitmap

	stats Stats
}

// NewManager creates a layout manager.
func NewManager(cfg Config) *Manager {
	if cfg.AlignmentThreshold <= 0 {
		cfg.AlignmentThreshold = DefaultAlignmentThreshold
	}
	return &Manager{
		cfg:    cfg,
		free:   roaring.New(),
		blocks: make(map[BlockID]*blockState),
		vacant: make(map[VectorDescriptor]*roaring.Bitmap),
	}
}

// Plan computes the layout for count vectors without allocating anything.
func (m *Manager) Plan(desc VectorDescriptor, count int) (Plan, error) {
	return NewPlan(desc, count, m.cfg.AlignmentThreshold)
}

// Allocate reserves slots for count vectors. Partially filled blocks of the
// same descriptor are filled first, then free-listed blocks, then new ones.
// The returned locations are in allocation order.
func (m *Manager) Allocate(desc VectorDescriptor, count int) ([]Location, Plan, error) {
	plan, err := m.Plan(desc, count)
	if err != nil {
		return nil, Plan{}, err
	}
	if count == 0 {
		return nil, plan, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	locs := make([]Location, 0, count)
	fresh := 0

	if plan.VectorsPerBlock == 0 {
		for range count {
			id, err := m.newRunLocked(plan.ExtentsPerVector)
			if err != nil {
				m.rollbackLocked(locs)
				return nil, Plan{}, err
			}
			b := &blockState{desc: desc, plan: plan, slots: 1}
			m.blocks[id] = b
			m.placeLocked(b, 0)
			fresh += plan.ExtentsPerVector
			locs = append(locs, Location{Block: id})
		}
	} else {
		vacant := m.vacant[desc]
		if vacant == nil {
			vacant = roaring.New()
			m.vacant[desc] = vacant
		}
		for len(locs) < count {
			var id BlockID
			if !vacant.IsEmpty() {
				id = BlockID(vacant.Minimum())
			} else {
				nid, err := m.newRunLocked(1)
				if err != nil {
					m.rollbackLocked(locs)
					return nil, Plan{}, err
				}
				id = nid
				m.blocks[id] = &blockState{desc: desc, plan: plan, slots: plan.VectorsPerBlock}
				vacant.Add(uint32(id))
				fresh++
			}
			b := m.blocks[id]
			for len(locs) < count {
				slot := b.freeSlot()
				if slot < 0 {
					break
				}
				m.placeLocked(b, slot)
				locs = append(locs, Location{Block: id, Slot: uint16(slot)})
			}
			if b.live == b.slots {
				vacant.Remove(uint32(id))
			}
		}
	}

	m.stats.BlocksAllocated += uint64(fresh)
	m.stats.BytesAllocated += uint64(fresh) * BlockSize
	if fresh > 1 {
		m.stats.Fragmentation += uint64(fresh-1) * 10
	}
	return locs, plan, nil
}

// Reserve reserves a single vector slot.
func (m *Manager) Reserve(desc VectorDescriptor) (Location, Plan, error) {
	locs, plan, err := m.Allocate(desc, 1)
	if err != nil {
		return Location{}, Plan{}, err
	}
	return locs[0], plan, nil
}

// Release returns a slot. When the owning block becomes empty its block ids
// (all extents) are moved to the free list and returned so the caller can
// drop them from storage.
func (m *Manager) Release(loc Location) ([]BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.releaseLocked(loc)
}

func (m *Manager) releaseLocked(loc Location) ([]BlockID, error) {
	b, ok := m.blocks[loc.Block]
	if !ok || int(loc.Slot) >= b.slots || !b.isSet(int(loc.Slot)) {
		return nil, fmt.Errorf("%w: slot %s is not allocated", ErrInvalidDescriptor, loc)
	}

	b.clear(int(loc.Slot))
	b.live--
	m.stats.VectorsStored--
	m.stats.RawBytesUsed -= uint64(b.plan.RawSize)
	m.stats.AlignmentWaste -= uint64(b.plan.AlignedSize - b.plan.RawSize)

	vacant := m.vacant[b.desc]
	if b.live > 0 {
		if vacant != nil {
			vacant.Add(uint32(loc.Block))
		}
		return nil, nil
	}

	if vacant != nil {
		vacant.Remove(uint32(loc.Block))
	}
	delete(m.blocks, loc.Block)

	ids := make([]BlockID, 0, b.plan.ExtentsPerVector)
	for i := range b.plan.ExtentsPerVector {
		id := loc.Block + BlockID(i)
		m.free.Add(uint32(id))
		ids = append(ids, id)
	}
	m.stats.BlocksInUse -= uint64(len(ids))
	return ids, nil
}

// Lookup returns the plan and descriptor of an allocated block.
func (m *Manager) Lookup(id BlockID) (VectorDescriptor, Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return VectorDescriptor{}, Plan{}, false
	}
	return b.desc, b.plan, true
}

// Blocks returns the ids of all blocks that hold at least one vector,
// excluding trailing extents, in ascending order.
func (m *Manager) Blocks() []BlockID {
	m.mu.Lock()
	defer m.mu.Unlock()

	bm := roaring.New()
	for id := range m.blocks {
		bm.Add(uint32(id))
	}
	out := make([]BlockID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, BlockID(it.Next()))
	}
	return out
}

// Stats returns a snapshot of the running statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.FreeBlocks = m.free.GetCardinality()
	if s.BlocksInUse > 0 {
		s.PackingEfficiency = 100 * float64(s.RawBytesUsed) / float64(s.BlocksInUse*BlockSize)
	}
	return s
}

func (m *Manager) placeLocked(b *blockState, slot int) {
	b.set(slot)
	b.live++
	m.stats.VectorsStored++
	m.stats.RawBytesUsed += uint64(b.plan.RawSize)
	m.stats.AlignmentWaste += uint64(b.plan.AlignedSize - b.plan.RawSize)
}

// newRunLocked returns the first id of n consecutive unused block ids.
// Single blocks prefer the lowest free-listed id.
func (m *Manager) newRunLocked(n int) (BlockID, error) {
	if n == 1 && !m.free.IsEmpty() {
		id := m.free.Minimum()
		m.free.Remove(id)
		m.stats.BlocksInUse++
		return BlockID(id), nil
	}
	if uint64(m.next)+uint64(n) > uint64(^BlockID(0)) {
		return 0, fmt.Errorf("%w: block id space exhausted", ErrCapacityExceeded)
	}
	id := m.next
	m.next += BlockID(n)
	m.stats.BlocksInUse += uint64(n)
	return id, nil
}

func (m *Manager) rollbackLocked(locs []Location) {
	for _, loc := range locs {
		_, _ = m.releaseLocked(loc)
	}
}
