package blockstore

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/vecfs/layout"
)

// ErrInjected is the default error returned by FaultyStore.
var ErrInjected = errors.New("injected fault")

// Fault describes when a FaultyStore fails.
type Fault struct {
	// FailAfterWrites fails every write once this many writes succeeded. -1 disables.
	FailAfterWrites int
	// FailReads fails every read.
	FailReads bool
	// FailDeletes fails every delete.
	FailDeletes bool
	// Blocks restricts the fault to the given ids. Empty means all blocks.
	Blocks []layout.BlockID
	Err    error
}

// FaultyStore wraps a Backend and injects errors.
type FaultyStore struct {
	inner Backend

	mu      sync.Mutex
	fault   Fault
	written int
}

// NewFaultyStore wraps inner with faults disabled.
func NewFaultyStore(inner Backend) *FaultyStore {
	return &FaultyStore{inner: inner, fault: Fault{FailAfterWrites: -1}}
}

// SetFault replaces the active fault and resets the write counter.
func (f *FaultyStore) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.fault = fault
	f.written = 0
}

// Clear disables fault injection.
func (f *FaultyStore) Clear() {
	f.SetFault(Fault{FailAfterWrites: -1})
}

// Writes returns the number of successful writes since the last SetFault.
func (f *FaultyStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *FaultyStore) targets(id layout.BlockID) bool {
	if len(f.fault.Blocks) == 0 {
		return true
	}
	for _, b := range f.fault.Blocks {
		if b == id {
			return true
		}
	}
	return false
}

// ReadBlock fails when FailReads targets id.
func (f *FaultyStore) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	f.mu.Lock()
	fail := f.fault.FailReads && f.targets(id)
	err := f.fault.Err
	f.mu.Unlock()
	if fail {
		return nil, err
	}
	return f.inner.ReadBlock(ctx, id)
}

// WriteBlock fails once the write budget is exhausted.
func (f *FaultyStore) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	f.mu.Lock()
	if f.fault.FailAfterWrites >= 0 && f.written >= f.fault.FailAfterWrites && f.targets(id) {
		err := f.fault.Err
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	if err := f.inner.WriteBlock(ctx, id, data); err != nil {
		return err
	}
	f.mu.Lock()
	f.written++
	f.mu.Unlock()
	return nil
}

// DeleteBlock fails when FailDeletes targets id.
func (f *FaultyStore) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	f.mu.Lock()
	fail := f.fault.FailDeletes && f.targets(id)
	err := f.fault.Err
	f.mu.Unlock()
	if fail {
		return err
	}
	return f.inner.DeleteBlock(ctx, id)
}

// Close closes the inner backend.
func (f *FaultyStore) Close() error { return f.inner.Close() }
