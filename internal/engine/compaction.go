package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecfs/internal/hnsw"
)

// CompactionStats summarizes a compaction run.
type CompactionStats struct {
	Batches  int
	Scanned  int
	Repaired int
	Freed    int
}

func (s *CompactionStats) add(r hnsw.CompactResult) {
	s.Batches++
	s.Scanned += r.Scanned
	s.Repaired += r.Repaired
	s.Freed += r.Freed
}

// Compact strips tombstones from the graph until none are left. Each batch
// takes the write lock once, so searches interleave with a long pass.
func (e *Engine) Compact(ctx context.Context) (CompactionStats, error) {
	if err := e.checkOpen(); err != nil {
		return CompactionStats{}, err
	}
	if err := e.rc.AcquireBackground(ctx); err != nil {
		return CompactionStats{}, err
	}
	defer e.rc.ReleaseBackground()

	return e.compact(ctx)
}

// maybeCompact starts a background pass when the tombstone ratio reaches the
// threshold and a background slot is free.
func (e *Engine) maybeCompact(ctx context.Context) {
	if e.compactionThreshold < 0 {
		return
	}
	var ratio float64
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		ratio = s.TombstoneRatio()
		return nil
	})
	if err != nil || ratio < e.compactionThreshold {
		return
	}
	if !e.rc.TryAcquireBackground() {
		return
	}

	started := e.goBackground(func(ctx context.Context) {
		defer e.rc.ReleaseBackground()

		e.logger.Debug("starting background compaction", "tombstone_ratio", ratio)
		if _, err := e.compact(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("background compaction failed", "error", err)
		}
	})
	if !started {
		e.rc.ReleaseBackground()
	}
}

func (e *Engine) compact(ctx context.Context) (CompactionStats, error) {
	var total CompactionStats
	start := e.clock()
	for {
		batchStart := e.clock()
		var res hnsw.CompactResult
		err := e.graph.Update(ctx, func(tx *hnsw.Txn) error {
			var err error
			res, err = tx.CompactBatch(ctx, e.compactionBatch)
			return err
		})
		e.metrics.OnCompaction(e.clock().Sub(batchStart), res.Freed, err)
		total.add(res)
		if err != nil {
			return total, fmt.Errorf("compaction batch %d: %w", total.Batches, err)
		}
		if res.Done {
			break
		}
	}

	e.logger.Info("compaction finished",
		"batches", total.Batches,
		"repaired", total.Repaired,
		"freed", total.Freed,
		"duration", e.clock().Sub(start))
	return total, nil
}

// goBackground runs fn on a tracked goroutine unless the engine is closed.
func (e *Engine) goBackground(fn func(ctx context.Context)) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()

	if e.closed.Load() {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
	return true
}
