package blockstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/vecfs/layout"
)

var zeroBlock [layout.BlockSize]byte

// FileStore keeps all blocks in one file; block id i lives at offset i*BlockSize.
// Deleted blocks are zeroed; an all-zero slot reads as ErrNotFound.
type FileStore struct {
	mu     sync.RWMutex
	f      *os.File
	dirty  bool
	closed bool
}

// OpenFileStore opens or creates the block file at path.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open block file: %w", err)
	}
	return &FileStore{f: f}, nil
}

// ReadBlock reads a block from the file.
func (s *FileStore) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, os.ErrClosed
	}

	buf := make([]byte, layout.BlockSize)
	n, err := s.f.ReadAt(buf, int64(id)*layout.BlockSize)
	if errors.Is(err, io.EOF) {
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("block %d: short read of %d bytes: %w", id, n, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, err
	}
	if [layout.BlockSize]byte(buf) == zeroBlock {
		return nil, ErrNotFound
	}
	return buf, nil
}

// WriteBlock writes a full block in place with a single positioned write.
func (s *FileStore) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	if err := CheckBlock(data); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	if _, err := s.f.WriteAt(data, int64(id)*layout.BlockSize); err != nil {
		return fmt.Errorf("write block %d: %w", id, err)
	}
	s.dirty = true
	return nil
}

// DeleteBlock zeroes the block slot.
func (s *FileStore) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	fi, err := s.f.Stat()
	if err != nil {
		return err
	}
	off := int64(id) * layout.BlockSize
	if off >= fi.Size() {
		return nil
	}
	if _, err := s.f.WriteAt(zeroBlock[:], off); err != nil {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	s.dirty = true
	return nil
}

// Sync flushes written blocks to stable storage.
func (s *FileStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dirty {
		return nil
	}
	if err := datasync(s.f); err != nil {
		return fmt.Errorf("sync block file: %w", err)
	}
	s.dirty = false
	return nil
}

// Close syncs and closes the file.
func (s *FileStore) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
