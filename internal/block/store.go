package block

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/layout"
)

// Store places vectors into blocks. Slot allocation is delegated to a
// layout.Manager; the Store encodes vectors into those slots and keeps
// every block header consistent with its contents.
type Store struct {
	codec  *Codec
	layout *layout.Manager
}

// NewStore creates a vector store over backend using mgr for placement.
func NewStore(backend blockstore.Backend, mgr *layout.Manager) *Store {
	return &Store{codec: NewCodec(backend), layout: mgr}
}

// Codec returns the block codec.
func (s *Store) Codec() *Codec { return s.codec }

// Layout returns the layout manager.
func (s *Store) Layout() *layout.Manager { return s.layout }

type undo struct {
	id   layout.BlockID
	prev []byte
}

// PutBatch stores vecs and returns their locations in input order.
// The batch is atomic: on any error every touched block is restored and the
// slots are released.
func (s *Store) PutBatch(ctx context.Context, desc layout.VectorDescriptor, vecs [][]float32) ([]layout.Location, error) {
	if len(vecs) == 0 {
		return nil, nil
	}
	for i, v := range vecs {
		if len(v) != int(desc.Dimension) {
			return nil, fmt.Errorf("%w: vector %d has %d components, want %d", layout.ErrInvalidDescriptor, i, len(v), desc.Dimension)
		}
	}

	locs, plan, err := s.layout.Allocate(desc, len(vecs))
	if err != nil {
		return nil, err
	}

	var journal []undo
	if plan.ExtentsPerVector > 1 {
		for i, loc := range locs {
			if err = s.writeExtents(ctx, desc, plan, loc.Block, vecs[i], &journal); err != nil {
				break
			}
		}
	} else {
		err = s.writeSlots(ctx, desc, plan, locs, vecs, &journal)
	}

	if err != nil {
		s.rollback(ctx, journal, locs)
		return nil, err
	}
	return locs, nil
}

// Put stores a single vector.
func (s *Store) Put(ctx context.Context, desc layout.VectorDescriptor, v []float32) (layout.Location, error) {
	locs, err := s.PutBatch(ctx, desc, [][]float32{v})
	if err != nil {
		return layout.Location{}, err
	}
	return locs[0], nil
}

func (s *Store) writeSlots(ctx context.Context, desc layout.VectorDescriptor, plan layout.Plan, locs []layout.Location, vecs [][]float32, journal *[]undo) error {
	// Group by block, keeping first-seen block order.
	var order []layout.BlockID
	byBlock := make(map[layout.BlockID][]int)
	for i, loc := range locs {
		if _, ok := byBlock[loc.Block]; !ok {
			order = append(order, loc.Block)
		}
		byBlock[loc.Block] = append(byBlock[loc.Block], i)
	}

	for _, id := range order {
		idx := byBlock[id]
		prev, err := s.codec.Modify(ctx, id, func(h *Header, payload []byte, exists bool) error {
			if !exists {
				*h = NewHeader(desc, plan)
			}
			for _, i := range idx {
				off := plan.SlotOffset(int(locs[i].Slot))
				slot := payload[off : off+plan.Stride]
				clear(slot)
				if _, err := EncodeVector(desc, slot, vecs[i]); err != nil {
					return err
				}
				h.VectorCount++
				if end := uint32(off + plan.Stride); end > h.DataSize {
					h.DataSize = end
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("write block %d: %w", id, err)
		}
		*journal = append(*journal, undo{id: id, prev: prev})
	}
	return nil
}

func (s *Store) writeExtents(ctx context.Context, desc layout.VectorDescriptor, plan layout.Plan, base layout.BlockID, v []float32, journal *[]undo) error {
	buf := make([]byte, plan.ExtentsPerVector*layout.PayloadSize)
	if _, err := EncodeVector(desc, buf[:plan.Stride], v); err != nil {
		return err
	}

	for i := range plan.ExtentsPerVector {
		id := base + layout.BlockID(i)
		h := NewHeader(desc, plan)
		if i > 0 {
			h.Type = TypeExtent
		}
		h.ExtentIndex = uint16(i)
		h.VectorCount = 1

		start := i * layout.PayloadSize
		end := min(start+layout.PayloadSize, plan.Stride)
		if err := s.codec.WriteBlock(ctx, id, h, buf[start:end]); err != nil {
			return fmt.Errorf("write extent %d of block %d: %w", i, base, err)
		}
		*journal = append(*journal, undo{id: id})
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, journal []undo, locs []layout.Location) {
	ctx = context.WithoutCancel(ctx)
	for i := len(journal) - 1; i >= 0; i-- {
		_ = s.codec.Restore(ctx, journal[i].id, journal[i].prev)
	}
	for _, loc := range locs {
		_, _ = s.layout.Release(loc)
	}
}

// Get decodes the vector at loc into a new slice.
func (s *Store) Get(ctx context.Context, loc layout.Location) ([]float32, error) {
	h, data, err := s.codec.ReadBlock(ctx, loc.Block)
	if err != nil {
		return nil, err
	}
	return s.decodeSlot(ctx, loc, h, data)
}

// GetBatch decodes the vectors at locs, reading each block once.
// fn is called with the input index of every vector in block order.
func (s *Store) GetBatch(ctx context.Context, locs []layout.Location, fn func(i int, v []float32) error) error {
	var order []layout.BlockID
	byBlock := make(map[layout.BlockID][]int)
	for i, loc := range locs {
		if _, ok := byBlock[loc.Block]; !ok {
			order = append(order, loc.Block)
		}
		byBlock[loc.Block] = append(byBlock[loc.Block], i)
	}

	for _, id := range order {
		h, data, err := s.codec.ReadBlock(ctx, id)
		if err != nil {
			return err
		}
		for _, i := range byBlock[id] {
			v, err := s.decodeSlot(ctx, locs[i], h, data)
			if err != nil {
				return err
			}
			if err := fn(i, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) decodeSlot(ctx context.Context, loc layout.Location, h Header, data []byte) ([]float32, error) {
	if h.Type != TypeData {
		return nil, fmt.Errorf("%w: block %d is an extent, not a vector head", ErrIndexCorrupt, loc.Block)
	}
	desc := h.Descriptor()
	out := make([]float32, desc.Dimension)
	stride := int(h.VectorStride)

	if h.ExtentCount > 1 {
		full, err := s.readExtents(ctx, loc.Block, h, data)
		if err != nil {
			return nil, err
		}
		if err := DecodeVector(desc, full, out); err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrIndexCorrupt, loc.Block, err)
		}
		return out, nil
	}

	off := int(loc.Slot) * stride
	if off+stride > len(data) {
		return nil, fmt.Errorf("%w: slot %s outside data region", ErrIndexCorrupt, loc)
	}
	if err := DecodeVector(desc, data[off:off+stride], out); err != nil {
		return nil, fmt.Errorf("%w: slot %s: %w", ErrIndexCorrupt, loc, err)
	}
	return out, nil
}

func (s *Store) readExtents(ctx context.Context, base layout.BlockID, head Header, first []byte) ([]byte, error) {
	full := make([]byte, 0, int(head.ExtentCount)*layout.PayloadSize)
	full = append(full, first...)
	for i := 1; i < int(head.ExtentCount); i++ {
		h, data, err := s.codec.ReadBlock(ctx, base+layout.BlockID(i))
		if err != nil {
			return nil, err
		}
		if h.Type != TypeExtent || int(h.ExtentIndex) != i || h.ExtentCount != head.ExtentCount {
			return nil, fmt.Errorf("%w: block %d is not extent %d of %d", ErrIndexCorrupt, base+layout.BlockID(i), i, base)
		}
		full = append(full, data...)
	}
	if len(full) < int(head.VectorStride) {
		return nil, fmt.Errorf("%w: vector at block %d truncated", ErrIndexCorrupt, base)
	}
	return full[:head.VectorStride], nil
}

// Delete removes the vector at loc. Blocks left empty are deleted from the
// backend; otherwise the slot is zeroed and the header updated.
func (s *Store) Delete(ctx context.Context, loc layout.Location) error {
	freed, err := s.layout.Release(loc)
	if err != nil {
		return err
	}
	if len(freed) > 0 {
		for _, id := range freed {
			if err := s.codec.DeleteBlock(ctx, id); err != nil {
				return fmt.Errorf("delete block %d: %w", id, err)
			}
		}
		return nil
	}

	_, err = s.codec.Modify(ctx, loc.Block, func(h *Header, payload []byte, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: block %d missing", ErrIndexCorrupt, loc.Block)
		}
		off := int(loc.Slot) * int(h.VectorStride)
		end := off + int(h.VectorStride)
		if end > int(h.DataSize) {
			return fmt.Errorf("%w: slot %s outside data region", ErrIndexCorrupt, loc)
		}
		clear(payload[off:end])
		if h.VectorCount > 0 {
			h.VectorCount--
		}
		return nil
	})
	return err
}

// Sync flushes the backend when it buffers writes.
func (s *Store) Sync() error {
	if syncer, ok := s.codec.backend.(blockstore.Syncer); ok {
		return syncer.Sync()
	}
	return nil
}
