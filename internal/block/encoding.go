package block

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/hupe1980/vecfs/layout"
)

// EncodeVector writes v into dst using the encoding described by desc and
// returns the number of bytes used. dst must be at least desc.RawSize() long.
func EncodeVector(desc layout.VectorDescriptor, dst []byte, v []float32) (int, error) {
	if len(v) != int(desc.Dimension) {
		return 0, fmt.Errorf("%w: vector has %d components, descriptor %d", layout.ErrInvalidDescriptor, len(v), desc.Dimension)
	}
	if desc.IsCompressed() {
		return encodeCompressed(desc, dst, v)
	}
	return encodeInner(desc, dst, v)
}

// DecodeVector reads a vector encoded by EncodeVector into dst.
func DecodeVector(desc layout.VectorDescriptor, src []byte, dst []float32) error {
	if len(dst) != int(desc.Dimension) {
		return fmt.Errorf("%w: output has %d components, descriptor %d", layout.ErrInvalidDescriptor, len(dst), desc.Dimension)
	}
	if desc.IsCompressed() {
		return decodeCompressed(desc, src, dst)
	}
	return decodeInner(desc, src, dst)
}

func encodeInner(desc layout.VectorDescriptor, dst []byte, v []float32) (int, error) {
	if desc.IsSparse() {
		return encodeSparse(dst, v)
	}
	n := desc.DenseSize()
	if len(dst) < n {
		return 0, fmt.Errorf("%w: slot of %d bytes cannot hold %d", layout.ErrCapacityExceeded, len(dst), n)
	}
	le := binary.LittleEndian
	switch desc.ElementType {
	case layout.Float32:
		for i, x := range v {
			le.PutUint32(dst[i*4:], math.Float32bits(x))
		}
	case layout.Float64:
		for i, x := range v {
			le.PutUint64(dst[i*8:], math.Float64bits(float64(x)))
		}
	case layout.Float16:
		for i, x := range v {
			le.PutUint16(dst[i*2:], float16.Fromfloat32(x).Bits())
		}
	case layout.BFloat16:
		for i, x := range v {
			le.PutUint16(dst[i*2:], toBFloat16(x))
		}
	case layout.Int8:
		for i, x := range v {
			dst[i] = byte(int8(saturate(x, math.MinInt8, math.MaxInt8)))
		}
	case layout.Uint8:
		for i, x := range v {
			dst[i] = uint8(saturate(x, 0, math.MaxUint8))
		}
	case layout.Int16:
		for i, x := range v {
			le.PutUint16(dst[i*2:], uint16(int16(saturate(x, math.MinInt16, math.MaxInt16))))
		}
	case layout.Uint16:
		for i, x := range v {
			le.PutUint16(dst[i*2:], uint16(saturate(x, 0, math.MaxUint16)))
		}
	case layout.Int32:
		for i, x := range v {
			le.PutUint32(dst[i*4:], uint32(int32(saturate(x, math.MinInt32, math.MaxInt32))))
		}
	case layout.Uint32:
		for i, x := range v {
			le.PutUint32(dst[i*4:], uint32(saturate(x, 0, math.MaxUint32)))
		}
	case layout.Binary:
		clear(dst[:n])
		for i, x := range v {
			if x > 0 {
				dst[i/8] |= 1 << (i % 8)
			}
		}
	default:
		return 0, fmt.Errorf("%w: %s", layout.ErrUnsupportedElementType, desc.ElementType)
	}
	return n, nil
}

func decodeInner(desc layout.VectorDescriptor, src []byte, dst []float32) error {
	if desc.IsSparse() {
		return decodeSparse(src, dst)
	}
	if n := desc.DenseSize(); len(src) < n {
		return fmt.Errorf("%w: slot of %d bytes, need %d", ErrIndexCorrupt, len(src), n)
	}
	le := binary.LittleEndian
	switch desc.ElementType {
	case layout.Float32:
		for i := range dst {
			dst[i] = math.Float32frombits(le.Uint32(src[i*4:]))
		}
	case layout.Float64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(le.Uint64(src[i*8:])))
		}
	case layout.Float16:
		for i := range dst {
			dst[i] = float16.Frombits(le.Uint16(src[i*2:])).Float32()
		}
	case layout.BFloat16:
		for i := range dst {
			dst[i] = fromBFloat16(le.Uint16(src[i*2:]))
		}
	case layout.Int8:
		for i := range dst {
			dst[i] = float32(int8(src[i]))
		}
	case layout.Uint8:
		for i := range dst {
			dst[i] = float32(src[i])
		}
	case layout.Int16:
		for i := range dst {
			dst[i] = float32(int16(le.Uint16(src[i*2:])))
		}
	case layout.Uint16:
		for i := range dst {
			dst[i] = float32(le.Uint16(src[i*2:]))
		}
	case layout.Int32:
		for i := range dst {
			dst[i] = float32(int32(le.Uint32(src[i*4:])))
		}
	case layout.Uint32:
		for i := range dst {
			dst[i] = float32(le.Uint32(src[i*4:]))
		}
	case layout.Binary:
		for i := range dst {
			if src[i/8]&(1<<(i%8)) != 0 {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	default:
		return fmt.Errorf("%w: %s", layout.ErrUnsupportedElementType, desc.ElementType)
	}
	return nil
}

// encodeSparse stores the non-zero components as (u32 index, f32 value) pairs
// preceded by a u32 count.
func encodeSparse(dst []byte, v []float32) (int, error) {
	nnz := 0
	for _, x := range v {
		if x != 0 {
			nnz++
		}
	}
	n := layout.SparseSize(nnz)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: %d non-zero entries need %d bytes, slot has %d", layout.ErrCapacityExceeded, nnz, n, len(dst))
	}
	le := binary.LittleEndian
	le.PutUint32(dst, uint32(nnz))
	off := 4
	for i, x := range v {
		if x == 0 {
			continue
		}
		le.PutUint32(dst[off:], uint32(i))
		le.PutUint32(dst[off+4:], math.Float32bits(x))
		off += 8
	}
	return n, nil
}

func decodeSparse(src []byte, dst []float32) error {
	if len(src) < 4 {
		return fmt.Errorf("%w: sparse slot too small", ErrIndexCorrupt)
	}
	le := binary.LittleEndian
	nnz := int(le.Uint32(src))
	if nnz > len(dst) || layout.SparseSize(nnz) > len(src) {
		return fmt.Errorf("%w: sparse entry count %d out of range", ErrIndexCorrupt, nnz)
	}
	clear(dst)
	off := 4
	for range nnz {
		idx := le.Uint32(src[off:])
		if int(idx) >= len(dst) {
			return fmt.Errorf("%w: sparse index %d out of range", ErrIndexCorrupt, idx)
		}
		dst[idx] = math.Float32frombits(le.Uint32(src[off+4:]))
		off += 8
	}
	return nil
}

func saturate(x float32, lo, hi float64) int64 {
	r := math.RoundToEven(float64(x))
	switch {
	case math.IsNaN(r):
		return 0
	case r < lo:
		return int64(lo)
	case r > hi:
		return int64(hi)
	default:
		return int64(r)
	}
}

// toBFloat16 truncates a float32 to bfloat16 with round-to-nearest-even.
func toBFloat16(x float32) uint16 {
	b := math.Float32bits(x)
	if b&0x7fffffff > 0x7f800000 {
		return uint16(b>>16) | 0x0040
	}
	b += 0x7fff + (b>>16)&1
	return uint16(b >> 16)
}

func fromBFloat16(h uint16) float32 {
	return math.Float32frombits(uint32(h) << 16)
}
