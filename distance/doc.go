// Package distance provides the vector distance metrics used by the index.
//
// All metrics return a distance: smaller means more similar. Kernels are
// backed by github.com/viterin/vek, which dispatches to AVX2/FMA code paths
// when the CPU supports them.
//
// # Supported Metrics
//
//   - Euclidean: squared Euclidean distance (no square root)
//   - Cosine: 1 - cos(a, b)
//   - DotProduct: negated inner product
//   - Manhattan: sum of absolute differences
//
// # Usage
//
//	fn, err := distance.Provider(distance.Cosine)
//	d := fn(a, b)
package distance
