// Package testutil provides deterministic test data and exact reference
// search for vecfs tests.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(42)
//	vecs := rng.UniformVectors(1000, 32)   // uniform [0, 1)
//	unit := rng.UnitVectors(1000, 32)      // on the unit sphere
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(vecs, query, 10, distance.SquaredEuclidean)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
