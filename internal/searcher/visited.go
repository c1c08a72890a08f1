package searcher

import "math/bits"

const emptySlot = ^uint32(0)

// VisitedSet tracks visited slots in a fixed-size open-addressing table.
// Reset costs O(visited) thanks to the dirty list.
type VisitedSet struct {
	table []uint32
	mask  uint32
	dirty []uint32
	limit int
}

// NewVisitedSet creates a set that accepts up to capacity distinct slots.
func NewVisitedSet(capacity int) *VisitedSet {
	v := &VisitedSet{}
	v.Reset(capacity)
	return v
}

func tableSize(capacity int) int {
	// Keep the load factor at or below one half.
	n := max(capacity*2, 16)
	return 1 << bits.Len(uint(n-1))
}

// Reset clears the set and sets a new capacity.
func (v *VisitedSet) Reset(capacity int) {
	size := tableSize(capacity)
	if len(v.table) != size {
		v.table = make([]uint32, size)
		for i := range v.table {
			v.table[i] = emptySlot
		}
		v.dirty = v.dirty[:0]
	} else {
		for _, pos := range v.dirty {
			v.table[pos] = emptySlot
		}
		v.dirty = v.dirty[:0]
	}
	v.mask = uint32(size - 1)
	v.limit = capacity
}

func (v *VisitedSet) probe(slot uint32) uint32 {
	// Fibonacci hashing spreads sequential slots.
	return (slot * 0x9E3779B1) & v.mask
}

// Visit marks slot as visited. added is false when slot was already present.
// ok is false when the set is full and slot could not be recorded.
func (v *VisitedSet) Visit(slot uint32) (added, ok bool) {
	pos := v.probe(slot)
	for {
		switch v.table[pos] {
		case slot:
			return false, true
		case emptySlot:
			if len(v.dirty) >= v.limit {
				return false, false
			}
			v.table[pos] = slot
			v.dirty = append(v.dirty, pos)
			return true, true
		}
		pos = (pos + 1) & v.mask
	}
}

// Visited reports whether slot has been visited.
func (v *VisitedSet) Visited(slot uint32) bool {
	pos := v.probe(slot)
	for {
		switch v.table[pos] {
		case slot:
			return true
		case emptySlot:
			return false
		}
		pos = (pos + 1) & v.mask
	}
}

// Len returns the number of visited slots.
func (v *VisitedSet) Len() int { return len(v.dirty) }

// Cap returns the capacity.
func (v *VisitedSet) Cap() int { return v.limit }

// Bytes returns the memory held by the table and dirty list.
func (v *VisitedSet) Bytes() int64 {
	return int64(len(v.table))*4 + int64(v.limit)*4
}
