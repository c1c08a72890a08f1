package engine

import (
	"context"
	"errors"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/internal/block"
	"github.com/hupe1980/vecfs/layout"
)

// ScrubReport lists the blocks that failed verification.
type ScrubReport struct {
	Blocks  int
	Corrupt []layout.BlockID
	Missing []layout.BlockID
}

// Scrub reads back every allocated block, extents included, and verifies
// its header and payload checksums. Reads are throttled by the resource
// controller's IO limit. Corrupt blocks are reported, never repaired.
func (e *Engine) Scrub(ctx context.Context) (ScrubReport, error) {
	var rep ScrubReport
	if err := e.checkOpen(); err != nil {
		return rep, err
	}
	if err := e.rc.AcquireBackground(ctx); err != nil {
		return rep, err
	}
	defer e.rc.ReleaseBackground()

	start := e.clock()
	err := e.scrub(ctx, &rep)
	e.metrics.OnScrub(e.clock().Sub(start), rep.Blocks, len(rep.Corrupt), err)
	if err != nil {
		return rep, err
	}

	level := e.logger.Info
	if len(rep.Corrupt)+len(rep.Missing) > 0 {
		level = e.logger.Warn
	}
	level("scrub finished", "blocks", rep.Blocks, "corrupt", len(rep.Corrupt), "missing", len(rep.Missing))
	return rep, nil
}

func (e *Engine) scrub(ctx context.Context, rep *ScrubReport) error {
	mgr := e.blocks.Layout()
	codec := e.blocks.Codec()
	for _, head := range mgr.Blocks() {
		_, plan, ok := mgr.Lookup(head)
		if !ok {
			// Released since the listing.
			continue
		}
		extents := max(plan.ExtentsPerVector, 1)
		if err := e.rc.ThrottleBlocks(ctx, extents); err != nil {
			return err
		}
		for i := range extents {
			id := head + layout.BlockID(i)
			rep.Blocks++
			err := codec.Verify(ctx, id)
			switch {
			case err == nil:
			case errors.Is(err, block.ErrIndexCorrupt):
				e.logger.Warn("corrupt block", "block", id, "error", err)
				rep.Corrupt = append(rep.Corrupt, id)
			case errors.Is(err, blockstore.ErrNotFound):
				if _, _, still := mgr.Lookup(head); still {
					rep.Missing = append(rep.Missing, id)
				}
			default:
				return err
			}
		}
	}
	return nil
}
