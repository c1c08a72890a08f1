package blockstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/hupe1980/vecfs/layout"
)

// ErrNotFound is returned when a block does not exist.
// It matches os.ErrNotExist.
var ErrNotFound = fmt.Errorf("block not found: %w", os.ErrNotExist)

// ErrInvalidBlock is returned when a write does not carry exactly one block.
var ErrInvalidBlock = errors.New("invalid block size")

// Backend is a block-atomic store of fixed-size blocks.
type Backend interface {
	// ReadBlock returns the block image. The returned slice must be treated as read-only.
	ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error)
	// WriteBlock stores a full block image atomically.
	WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error
	// DeleteBlock removes a block. Deleting a missing block is not an error.
	DeleteBlock(ctx context.Context, id layout.BlockID) error
	// Close releases backend resources.
	Close() error
}

// Syncer is implemented by backends that buffer writes.
type Syncer interface {
	Sync() error
}

// CheckBlock validates the size of a block image.
func CheckBlock(data []byte) error {
	if len(data) != layout.BlockSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidBlock, len(data), layout.BlockSize)
	}
	return nil
}

// Key returns the object key of a block below prefix.
func Key(prefix string, id layout.BlockID) string {
	return path.Join(prefix, fmt.Sprintf("%08x.blk", uint32(id)))
}
