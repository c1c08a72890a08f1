package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredEuclidean(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Simple", []float32{1, 2, 3, 4}, []float32{1.1, 2.1, 3.1, 4.1}, 0.04},
		{"Unit", []float32{0, 0}, []float32{3, 4}, 25},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredEuclidean(tt.a, tt.b), 1e-4)
		})
	}
}

func TestSquaredEuclidean_ExactOnIntegers(t *testing.T) {
	assert.Equal(t, float32(2), SquaredEuclidean([]float32{0, 0, 0}, []float32{1, 1, 0}))
	assert.Equal(t, float32(30), SquaredEuclidean([]float32{1, 2, 3, 4}, []float32{2, 4, 6, 8}))
	assert.Equal(t, float32(243), SquaredEuclidean([]float32{1, 2, 3}, []float32{10, 11, 12}))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 1, CosineDistance([]float32{0, 0}, []float32{1, 1}), 1e-6)
}

func TestNegativeDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, -32, NegativeDot(a, b), 1e-5)

	// Larger inner product must rank closer.
	near := []float32{10, 10, 10}
	far := []float32{1, 1, 1}
	assert.Less(t, NegativeDot(a, near), NegativeDot(a, far))
}

func TestManhattanDistance(t *testing.T) {
	assert.InDelta(t, 7, ManhattanDistance([]float32{0, 0}, []float32{3, -4}), 1e-6)
	assert.InDelta(t, 0, ManhattanDistance([]float32{}, []float32{}), 1e-6)
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{Euclidean, Cosine, DotProduct, Manhattan} {
		fn, err := Provider(m)
		require.NoError(t, err, m.String())
		require.NotNil(t, fn)
	}

	_, err := Provider(Metric(42))
	require.Error(t, err)
	assert.False(t, Metric(42).Valid())
	assert.Equal(t, "Unknown(42)", Metric(42).String())
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 1, Score(Euclidean, 0), 1e-6)
	assert.InDelta(t, 0.5, Score(Manhattan, 1), 1e-6)
	assert.InDelta(t, 0.75, Score(Cosine, 0.25), 1e-6)
	assert.InDelta(t, 32, Score(DotProduct, -32), 1e-6)
}

func TestWeighted(t *testing.T) {
	fn := Weighted(SquaredEuclidean, 0.7, CosineDistance, 0.3)
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.7*2+0.3*1, fn(a, b), 1e-5)
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, ok := NormalizeL2Copy([]float32{0, 0})
	assert.False(t, ok)
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite([]float32{1, 2}))
	assert.False(t, Finite([]float32{1, float32(math.NaN())}))
	assert.False(t, Finite([]float32{float32(math.Inf(-1))}))
}
