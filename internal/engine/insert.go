package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

// InsertOptions controls a batch insert.
type InsertOptions struct {
	// Normalize stores L2-normalized copies of the vectors.
	Normalize bool
	// Upsert replaces live ids instead of failing with hnsw.ErrDuplicateID.
	Upsert bool
}

// InsertBatch stores vecs and links them into the graph under ids.
//
// The batch is atomic. Every vector is validated before anything is
// written; payloads are placed outside the graph lock, and the whole batch
// is linked under one write lock. If any step fails, linked nodes are rolled
// back and the new payload slots are reclaimed.
func (e *Engine) InsertBatch(ctx context.Context, ids []uint64, vecs [][]float32, opts InsertOptions) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if len(ids) != len(vecs) {
		return 0, fmt.Errorf("%w: %d ids for %d vectors", ErrInvalidArgument, len(ids), len(vecs))
	}
	if len(vecs) == 0 {
		return 0, nil
	}

	descPtr := e.desc.Load()
	desc := *descPtr
	vecs, err := validateBatch(desc, ids, vecs, opts.Normalize || desc.Flags.Has(layout.FlagNormalized))
	if err != nil {
		return 0, err
	}

	locs, err := e.blocks.PutBatch(ctx, desc, vecs)
	if err != nil {
		return 0, err
	}

	var replaced []layout.Location
	err = e.graph.Update(ctx, func(tx *hnsw.Txn) error {
		if e.desc.Load() != descPtr {
			return fmt.Errorf("%w: descriptor changed during insert", ErrInvalidArgument)
		}
		for i, id := range ids {
			if opts.Upsert {
				if loc, ok := tx.Lookup(id); ok {
					if _, err := tx.Delete(id); err != nil {
						tx.Rollback()
						return err
					}
					replaced = append(replaced, loc)
				}
			}
			if err := tx.Insert(ctx, id, vecs[i], locs[i]); err != nil {
				tx.Rollback()
				return fmt.Errorf("vector %d (id %d): %w", i, id, err)
			}
		}
		return nil
	})
	if err != nil {
		e.reclaim(ctx, locs)
		return 0, err
	}

	e.reclaim(ctx, replaced)
	if len(replaced) > 0 {
		e.maybeCompact(ctx)
	}
	return len(ids), nil
}

func validateBatch(desc layout.VectorDescriptor, ids []uint64, vecs [][]float32, normalize bool) ([][]float32, error) {
	dim := int(desc.Dimension)
	seen := make(map[uint64]struct{}, len(ids))
	out := vecs
	if normalize {
		out = make([][]float32, len(vecs))
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d: %w", i, &DimensionMismatchError{Expected: dim, Actual: len(v)})
		}
		if !distance.Finite(v) {
			return nil, fmt.Errorf("%w: vector %d contains non-finite values", ErrInvalidArgument, i)
		}
		if _, dup := seen[ids[i]]; dup {
			return nil, fmt.Errorf("%w: id %d appears twice in batch", ErrInvalidArgument, ids[i])
		}
		seen[ids[i]] = struct{}{}
		if normalize {
			n, ok := distance.NormalizeL2Copy(v)
			if !ok {
				return nil, fmt.Errorf("%w: vector %d has zero norm", ErrInvalidArgument, i)
			}
			out[i] = n
		}
	}
	return out, nil
}

// reclaim releases payload slots that are no longer referenced by the graph.
func (e *Engine) reclaim(ctx context.Context, locs []layout.Location) {
	ctx = context.WithoutCancel(ctx)
	for _, loc := range locs {
		if err := e.blocks.Delete(ctx, loc); err != nil {
			e.logger.Error("failed to reclaim payload slot", "location", loc.String(), "error", err)
		}
	}
}

// Delete removes id. The node is tombstoned, its payload slot reclaimed and
// its metadata dropped.
func (e *Engine) Delete(ctx context.Context, id uint64) error {
	_, err := e.DeleteBatch(ctx, []uint64{id})
	return err
}

// DeleteBatch removes ids atomically: if any id is unknown, nothing is
// deleted.
func (e *Engine) DeleteBatch(ctx context.Context, ids []uint64) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	locs := make([]layout.Location, 0, len(ids))
	err := e.graph.Update(ctx, func(tx *hnsw.Txn) error {
		for _, id := range ids {
			loc, err := tx.Delete(id)
			if err != nil {
				tx.Rollback()
				return err
			}
			locs = append(locs, loc)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		e.meta.Delete(id)
		if err := e.blocks.Delete(context.WithoutCancel(ctx), locs[i]); err != nil {
			return i, fmt.Errorf("reclaim %s of id %d: %w", locs[i], id, err)
		}
	}
	e.maybeCompact(ctx)
	return len(ids), nil
}

// Get returns the stored vector and metadata of id.
func (e *Engine) Get(ctx context.Context, id uint64) ([]float32, metadata.Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, nil, err
	}
	var vec []float32
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		loc, ok := s.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %d", hnsw.ErrNotFound, id)
		}
		var err error
		vec, err = e.blocks.Get(ctx, loc)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	doc, _ := e.meta.Get(id)
	return vec, doc, nil
}

// SetMetadata replaces the metadata document of a live id.
func (e *Engine) SetMetadata(ctx context.Context, id uint64, doc metadata.Document) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		if _, ok := s.Lookup(id); !ok {
			return fmt.Errorf("%w: %d", hnsw.ErrNotFound, id)
		}
		if err := e.meta.Set(id, doc); err != nil {
			if errors.Is(err, metadata.ErrSchemaViolation) {
				return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			return err
		}
		return nil
	})
}
