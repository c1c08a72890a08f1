package testutil

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/vecfs/distance"
	"github.com/viterin/vek/vek32"
)

// SearchResult is an id with its distance to a query.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// RNG is a seeded, goroutine-safe random source.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed uint64
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{rand: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)), seed: seed}
}

// Reset rewinds the RNG to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9E3779B97F4A7C15))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 { return r.seed }

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with values in [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformVectors generates num vectors with values in [0, 1).
// The vectors share one backing array.
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

// UnitVectors generates num L2-normalized vectors, uniform on the sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim : (i+1)*dim]
		r.unitLocked(vec)
		vectors[i] = vec
	}
	return vectors
}

// UnitVector generates a single L2-normalized vector.
func (r *RNG) UnitVector(dim int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, dim)
	r.unitLocked(vec)
	return vec
}

func (r *RNG) unitLocked(vec []float32) {
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}
	vek32.MulNumber_Inplace(vec, float32(1/math.Sqrt(norm)))
}

// BruteForceSearch returns the exact k nearest vectors under dist. IDs are
// positions in vectors; ties break on the lower id.
func BruteForceSearch(vectors [][]float32, query []float32, k int, dist distance.Func) []SearchResult {
	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		results[i] = SearchResult{ID: uint64(i), Distance: dist(query, v)}
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ComputeRecall returns the fraction of the first len(approximate) ground
// truth ids found in approximate.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))
	truth := make(map[uint64]struct{}, k)
	for i := range k {
		truth[groundTruth[i].ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truth[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}
