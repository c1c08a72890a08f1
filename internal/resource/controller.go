package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a memory reservation would exceed the limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// BlockBytes is the IO cost of moving one storage block.
const BlockBytes = 4096

// Config holds process-wide resource limits.
type Config struct {
	// MemoryLimitBytes caps memory reserved through the controller (block
	// cache). Zero only tracks usage.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes" validate:"gte=0"`

	// MaxBackgroundWorkers bounds concurrent compaction passes. Defaults to 1.
	MaxBackgroundWorkers int64 `yaml:"max_background_workers" validate:"gte=0"`

	// IOLimitBytesPerSec throttles background block IO. Zero disables throttling.
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec" validate:"gte=0"`
}

// Controller enforces Config.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	bgSem    *semaphore.Weighted
	bgActive atomic.Int64

	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		burst := max(cfg.IOLimitBytesPerSec, BlockBytes)
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(burst))
	}
	return c
}

// TryAcquireMemory reserves n bytes without blocking.
func (c *Controller) TryAcquireMemory(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(n) {
		return false
	}
	c.memUsed.Add(n)
	return true
}

// AcquireMemory reserves n bytes or fails with ErrMemoryLimitExceeded.
func (c *Controller) AcquireMemory(n int64) error {
	if !c.TryAcquireMemory(n) {
		return ErrMemoryLimitExceeded
	}
	return nil
}

// ReleaseMemory returns n reserved bytes.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(n)
	}
	c.memUsed.Add(-n)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBackground waits for a background worker slot.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.bgActive.Add(1)
	return nil
}

// TryAcquireBackground reserves a worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	if !c.bgSem.TryAcquire(1) {
		return false
	}
	c.bgActive.Add(1)
	return true
}

// ReleaseBackground returns a worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgActive.Add(-1)
	c.bgSem.Release(1)
}

// BackgroundActive returns the number of held worker slots.
func (c *Controller) BackgroundActive() int64 {
	if c == nil {
		return 0
	}
	return c.bgActive.Load()
}

// ThrottleBlocks waits until n blocks of background IO are allowed.
func (c *Controller) ThrottleBlocks(ctx context.Context, n int) error {
	if c == nil || n <= 0 {
		return nil
	}
	bytes := n * BlockBytes
	c.ioBytes.Add(int64(bytes))
	if c.ioLimiter == nil {
		return nil
	}
	// WaitN rejects requests above the burst; split them.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		step := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		bytes -= step
	}
	return nil
}

// BackgroundIOBytes returns the total bytes accounted by ThrottleBlocks.
func (c *Controller) BackgroundIOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}
