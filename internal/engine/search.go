package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/metadata"
)

// Query is one search request.
type Query struct {
	Vector []float32
	K      int
	EF     int
	Metric distance.Metric
	// Exact scans every live vector instead of traversing the graph.
	Exact bool
}

// Result is one search hit.
type Result struct {
	ID       uint64
	Distance float32
	Score    float32
}

// Trace reports the cost of one search. It is filled in even when the
// search fails.
type Trace struct {
	// Scanned counts distance evaluations.
	Scanned  int
	Elapsed  time.Duration
	Degraded bool
	Report   resource.Report
}

// HybridParams combines two metrics as
// PrimaryWeight*primary + SecondaryWeight*secondary.
// Raw metric values are combined; ranges are not normalized.
type HybridParams struct {
	Primary         distance.Metric
	Secondary       distance.Metric
	PrimaryWeight   float32
	SecondaryWeight float32
}

// plan is a validated query.
type plan struct {
	op     string
	k, ef  int
	exact  bool
	dist   distance.Func
	score  func(d float32) float32
	accept func(id uint64, d float32) bool
	// candidates restricts an exact scan to these ids.
	candidates *roaring64.Bitmap
}

func (e *Engine) prepare(op string, q Query) (plan, error) {
	if err := e.checkOpen(); err != nil {
		return plan{}, err
	}
	if q.K <= 0 {
		return plan{}, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, q.K)
	}
	if q.EF <= 0 {
		return plan{}, fmt.Errorf("%w: ef must be positive, got %d", ErrInvalidArgument, q.EF)
	}
	if err := e.checkQuery(q.Vector); err != nil {
		return plan{}, err
	}
	dist, err := distance.Provider(q.Metric)
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	metric := q.Metric
	return plan{
		op:    op,
		k:     q.K,
		ef:    q.EF,
		exact: q.Exact,
		dist:  dist,
		score: func(d float32) float32 { return distance.Score(metric, d) },
	}, nil
}

// KNN returns the k nearest neighbors of q.Vector.
func (e *Engine) KNN(ctx context.Context, q Query) ([]Result, Trace, error) {
	p, err := e.prepare("knn", q)
	if err != nil {
		return nil, Trace{}, err
	}
	return e.view(ctx, q.Vector, &p)
}

// Range returns up to q.K neighbors within maxDistance.
func (e *Engine) Range(ctx context.Context, q Query, maxDistance float32) ([]Result, Trace, error) {
	p, err := e.prepare("range", q)
	if err != nil {
		return nil, Trace{}, err
	}
	if math.IsNaN(float64(maxDistance)) {
		return nil, Trace{}, fmt.Errorf("%w: max distance is NaN", ErrInvalidArgument)
	}
	p.accept = func(_ uint64, d float32) bool { return d <= maxDistance }
	return e.view(ctx, q.Vector, &p)
}

// Filtered returns the k nearest neighbors that satisfy every filter in fs.
// Filters only decide admission to the result set; rejected nodes are still
// traversed. Small category prefilters are scanned exactly instead.
func (e *Engine) Filtered(ctx context.Context, q Query, fs metadata.FilterSet) ([]Result, Trace, error) {
	p, err := e.prepare("filtered", q)
	if err != nil {
		return nil, Trace{}, err
	}
	if err := fs.Validate(); err != nil {
		return nil, Trace{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if len(fs) > 0 {
		score := p.score
		p.accept = func(id uint64, d float32) bool {
			return e.meta.Match(fs, id, score(d))
		}
		if bm, ok := e.meta.Candidates(fs); ok && bm.GetCardinality() <= uint64(e.filterScanThreshold) {
			p.candidates = bm
		}
	}
	return e.view(ctx, q.Vector, &p)
}

// Hybrid ranks by the weighted sum of two metrics. The traversal itself
// uses the combined distance. Score is the negated combined distance.
func (e *Engine) Hybrid(ctx context.Context, q Query, h HybridParams) ([]Result, Trace, error) {
	q.Metric = h.Primary
	p, err := e.prepare("hybrid", q)
	if err != nil {
		return nil, Trace{}, err
	}
	secondary, err := distance.Provider(h.Secondary)
	if err != nil {
		return nil, Trace{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !distance.Finite([]float32{h.PrimaryWeight, h.SecondaryWeight}) {
		return nil, Trace{}, fmt.Errorf("%w: weights must be finite", ErrInvalidArgument)
	}
	if h.PrimaryWeight == 0 && h.SecondaryWeight == 0 {
		return nil, Trace{}, fmt.Errorf("%w: at least one weight must be non-zero", ErrInvalidArgument)
	}
	p.dist = distance.Weighted(p.dist, h.PrimaryWeight, secondary, h.SecondaryWeight)
	p.score = func(d float32) float32 { return -d }
	return e.view(ctx, q.Vector, &p)
}

// Multi runs independent queries under one read snapshot. Queries run
// concurrently up to the configured batch parallelism.
func (e *Engine) Multi(ctx context.Context, qs []Query) ([][]Result, []Trace, error) {
	plans := make([]plan, len(qs))
	for i, q := range qs {
		p, err := e.prepare("multi", q)
		if err != nil {
			return nil, nil, fmt.Errorf("query %d: %w", i, err)
		}
		plans[i] = p
	}

	out := make([][]Result, len(qs))
	traces := make([]Trace, len(qs))
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallel)
		for i := range plans {
			g.Go(func() error {
				res, tr, err := e.run(gctx, s, qs[i].Vector, &plans[i])
				out[i], traces[i] = res, tr
				if err != nil {
					return fmt.Errorf("query %d: %w", i, err)
				}
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, traces, err
	}
	return out, traces, nil
}

func (e *Engine) view(ctx context.Context, q []float32, p *plan) ([]Result, Trace, error) {
	var (
		res []Result
		tr  Trace
	)
	err := e.graph.View(ctx, func(s *hnsw.Snapshot) error {
		var err error
		res, tr, err = e.run(ctx, s, q, p)
		return err
	})
	return res, tr, err
}

// run executes p against one snapshot. A traversal aborted by the guard is
// retried as a linear scan over the stored vectors.
func (e *Engine) run(ctx context.Context, s *hnsw.Snapshot, q []float32, p *plan) ([]Result, Trace, error) {
	start := e.clock()
	var (
		res []Result
		tr  Trace
		err error
	)

	switch {
	case s.Len() == 0:
	case p.exact || p.candidates != nil:
		res, tr.Scanned, err = e.scan(ctx, s, q, p)
	default:
		var (
			hits []hnsw.Result
			gt   hnsw.Trace
		)
		hits, gt, err = s.Search(ctx, q, hnsw.SearchParams{K: p.k, EF: p.ef, Dist: p.dist, Accept: p.accept})
		tr.Scanned, tr.Report = gt.Evaluations, gt.Report
		switch {
		case isBudgetError(err):
			e.logger.Warn("search exceeded stack budget, falling back to linear scan",
				"op", p.op, "peak_stack", gt.Report.PeakStack, "peak_aux_bytes", gt.Report.PeakAuxBytes)
			e.degraded.Add(1)
			e.metrics.OnDegraded(p.op)
			tr.Degraded = true

			var n int
			res, n, err = e.scan(ctx, s, q, p)
			tr.Scanned += n
		case err == nil:
			res = make([]Result, len(hits))
			for i, h := range hits {
				res[i] = Result{ID: h.ID, Distance: h.Distance, Score: p.score(h.Distance)}
			}
		}
	}

	tr.Elapsed = e.clock().Sub(start)
	e.searches.Add(1)
	e.searchNanos.Add(int64(tr.Elapsed))
	e.scanned.Add(uint64(tr.Scanned))
	return res, tr, err
}
