package block

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/internal/hash"
	"github.com/hupe1980/vecfs/layout"
)

const lockStripes = 64

// CodecStats counts block I/O.
type CodecStats struct {
	BlocksRead    uint64
	BlocksWritten uint64
	BlocksDeleted uint64
	CorruptBlocks uint64
}

// Codec reads and writes validated blocks through a backend.
// Writers of the same block are serialized; readers never see a torn block
// because backends write whole blocks atomically.
type Codec struct {
	backend blockstore.Backend
	stripes [lockStripes]sync.RWMutex
	now     func() time.Time

	reads   atomic.Uint64
	writes  atomic.Uint64
	deletes atomic.Uint64
	corrupt atomic.Uint64
}

// NewCodec creates a codec on backend.
func NewCodec(backend blockstore.Backend) *Codec {
	return &Codec{backend: backend, now: time.Now}
}

// Backend returns the underlying block backend.
func (c *Codec) Backend() blockstore.Backend { return c.backend }

func (c *Codec) stripe(id layout.BlockID) *sync.RWMutex {
	return &c.stripes[uint32(id)%lockStripes]
}

// ReadBlock reads and validates block id. It returns the header and the used
// data region of the payload.
func (c *Codec) ReadBlock(ctx context.Context, id layout.BlockID) (Header, []byte, error) {
	mu := c.stripe(id)
	mu.RLock()
	raw, err := c.readRaw(ctx, id)
	mu.RUnlock()
	if err != nil {
		return Header{}, nil, err
	}
	return c.decode(id, raw)
}

// WriteBlock seals h over payload and writes the block.
func (c *Codec) WriteBlock(ctx context.Context, id layout.BlockID, h Header, payload []byte) error {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	raw, err := c.encode(&h, payload)
	if err != nil {
		return err
	}
	return c.writeRaw(ctx, id, raw)
}

// DeleteBlock removes block id from the backend.
func (c *Codec) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	if err := c.backend.DeleteBlock(ctx, id); err != nil {
		return err
	}
	c.deletes.Add(1)
	return nil
}

// ModifyFunc edits a block in place. exists is false when the block has not
// been written yet; h is then zero and payload is zeroed.
type ModifyFunc func(h *Header, payload []byte, exists bool) error

// Modify performs a read-modify-write of block id under its stripe lock.
// It returns the previous raw image, or nil when the block did not exist.
func (c *Codec) Modify(ctx context.Context, id layout.BlockID, fn ModifyFunc) ([]byte, error) {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	prev, err := c.readRaw(ctx, id)
	exists := true
	if errors.Is(err, blockstore.ErrNotFound) {
		prev, exists = nil, false
	} else if err != nil {
		return nil, err
	}

	var h Header
	payload := make([]byte, layout.PayloadSize)
	if exists {
		dh, data, err := c.decode(id, prev)
		if err != nil {
			return nil, err
		}
		h = dh
		copy(payload, data)
	}

	if err := fn(&h, payload, exists); err != nil {
		return nil, err
	}

	raw, err := c.encode(&h, payload[:h.DataSize])
	if err != nil {
		return nil, err
	}
	if err := c.writeRaw(ctx, id, raw); err != nil {
		return nil, err
	}
	return prev, nil
}

// Restore puts a previous raw image back, or deletes the block when prev is nil.
func (c *Codec) Restore(ctx context.Context, id layout.BlockID, prev []byte) error {
	if prev == nil {
		return c.DeleteBlock(ctx, id)
	}
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()
	return c.writeRaw(ctx, id, prev)
}

// Verify reads block id and reports any integrity error.
func (c *Codec) Verify(ctx context.Context, id layout.BlockID) error {
	_, _, err := c.ReadBlock(ctx, id)
	return err
}

// Stats returns the I/O counters.
func (c *Codec) Stats() CodecStats {
	return CodecStats{
		BlocksRead:    c.reads.Load(),
		BlocksWritten: c.writes.Load(),
		BlocksDeleted: c.deletes.Load(),
		CorruptBlocks: c.corrupt.Load(),
	}
}

func (c *Codec) readRaw(ctx context.Context, id layout.BlockID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.backend.ReadBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	c.reads.Add(1)
	if len(raw) != layout.BlockSize {
		c.corrupt.Add(1)
		return nil, fmt.Errorf("%w: block %d has %d bytes", ErrIndexCorrupt, id, len(raw))
	}
	return raw, nil
}

func (c *Codec) writeRaw(ctx context.Context, id layout.BlockID, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.backend.WriteBlock(ctx, id, raw); err != nil {
		return err
	}
	c.writes.Add(1)
	return nil
}

func (c *Codec) encode(h *Header, payload []byte) ([]byte, error) {
	if len(payload) > layout.PayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds block", layout.ErrCapacityExceeded, len(payload))
	}
	h.Magic = Magic
	h.DataOffset = layout.HeaderSize
	h.DataSize = uint32(len(payload))
	h.PayloadChecksum = hash.CRC32C(payload)
	if h.CreationTime == 0 {
		h.CreationTime = c.now().UnixNano()
	}
	h.Seal()
	if err := validate(0, *h); err != nil {
		return nil, fmt.Errorf("refusing to write invalid block: %w", err)
	}

	raw := make([]byte, layout.BlockSize)
	h.MarshalTo(raw)
	copy(raw[layout.HeaderSize:], payload)
	return raw, nil
}

func (c *Codec) decode(id layout.BlockID, raw []byte) (Header, []byte, error) {
	h, err := UnmarshalHeader(raw)
	if err != nil {
		c.corrupt.Add(1)
		return Header{}, nil, err
	}
	if err := validate(id, h); err != nil {
		c.corrupt.Add(1)
		return Header{}, nil, err
	}
	data := raw[h.DataOffset : h.DataOffset+h.DataSize]
	if sum, ok := hash.Verify(data, h.PayloadChecksum); !ok {
		c.corrupt.Add(1)
		return Header{}, nil, &ChecksumMismatchError{Block: id, Field: "payload", Expected: h.PayloadChecksum, Actual: sum}
	}
	return h, data, nil
}
