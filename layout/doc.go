// Package layout decides how vectors are laid out inside fixed-size storage
// blocks.
//
// A VectorDescriptor describes the shape of the stored vectors (dimension,
// element type, SIMD alignment, flags). NewPlan turns a descriptor and a
// requested vector count into a deterministic Plan:
//
//  1. compressed descriptors use Compressed strategy with Tight packing
//  2. sparse descriptors use Sparse strategy with no packing
//  3. vectors whose raw size reaches the alignment threshold use Aligned/Aligned
//  4. everything else uses Packed/Tight
//
// The Manager hands out block slots according to a plan, keeps a free list of
// released blocks and tracks running layout statistics.
package layout
