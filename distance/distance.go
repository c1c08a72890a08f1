package distance

import (
	"fmt"
	"math"
	"slices"

	"github.com/viterin/vek/vek32"
)

// Metric represents the distance metric used for vector comparison.
// The numeric values are the wire codes of the control surface.
type Metric uint32

const (
	Euclidean Metric = iota
	Cosine
	DotProduct
	Manhattan
)

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "Euclidean"
	case Cosine:
		return "Cosine"
	case DotProduct:
		return "DotProduct"
	case Manhattan:
		return "Manhattan"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m <= Manhattan
}

// Func is a function type for distance calculation.
// Both slices must have the same length.
type Func func(a, b []float32) float32

// SquaredEuclidean returns the squared L2 distance between a and b.
func SquaredEuclidean(a, b []float32) float32 {
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		distance += d * d
	}
	return distance
}

// CosineDistance returns 1 - dot(a,b)/(|a|*|b|).
// A zero vector has no direction and is treated as orthogonal to everything.
func CosineDistance(a, b []float32) float32 {
	if len(a) == 0 {
		return 1
	}
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - vek32.Dot(a, b)/(na*nb)
}

// NegativeDot returns -dot(a,b) so that larger inner products rank first.
func NegativeDot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return -vek32.Dot(a, b)
}

// ManhattanDistance returns the L1 distance between a and b.
func ManhattanDistance(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.ManhattanDistance(a, b)
}

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case Euclidean:
		return SquaredEuclidean, nil
	case Cosine:
		return CosineDistance, nil
	case DotProduct:
		return NegativeDot, nil
	case Manhattan:
		return ManhattanDistance, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Score converts a distance into a similarity score where larger is better.
func Score(m Metric, d float32) float32 {
	switch m {
	case Cosine:
		return 1 - d
	case DotProduct:
		return -d
	default:
		return 1 / (1 + d)
	}
}

// Weighted returns a distance function computing wa*fa(q,v) + wb*fb(q,v).
// Raw metric values are combined as-is; no range normalization is applied.
func Weighted(fa Func, wa float32, fb Func, wb float32) Func {
	return func(a, b []float32) float32 {
		return wa*fa(a, b) + wb*fb(a, b)
	}
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := vek32.Norm(v)
	if norm == 0 {
		return false
	}
	vek32.MulNumber_Inplace(v, 1/norm)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Finite reports whether every component of v is a finite number.
func Finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
