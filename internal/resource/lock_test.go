package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWLock_SharedReaders(t *testing.T) {
	l := NewRWLock()
	ctx := context.Background()

	require.NoError(t, l.RLock(ctx))
	require.NoError(t, l.RLock(ctx))
	assert.False(t, l.TryLock())
	l.RUnlock()
	l.RUnlock()
	assert.True(t, l.TryLock())
	l.Unlock()
}

func TestRWLock_Timeout(t *testing.T) {
	l := NewRWLock()
	require.NoError(t, l.Lock(context.Background()))
	defer l.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.RLock(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = l.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRWLock_Exclusive(t *testing.T) {
	l := NewRWLock()
	ctx := context.Background()

	var inside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				require.NoError(t, l.Lock(ctx))
				assert.Equal(t, int32(1), inside.Add(1))
				inside.Add(-1)
				l.Unlock()
			}
		}()
	}
	wg.Wait()
}
