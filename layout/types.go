package layout

import (
	"errors"
	"fmt"
)

const (
	// BlockSize is the size of every storage block in bytes.
	BlockSize = 4096
	// HeaderSize is the size of the block header.
	HeaderSize = 64
	// PayloadSize is the usable payload region of a block.
	PayloadSize = BlockSize - HeaderSize
	// MaxDimension is the largest supported vector dimension.
	MaxDimension = 65535
	// DefaultAlignmentThreshold is the raw vector size (bytes) from which
	// vectors are stored SIMD-aligned.
	DefaultAlignmentThreshold = 64
	// MaxVectorsPerBlock bounds the slot count of a single block.
	MaxVectorsPerBlock = PayloadSize / 16
)

var (
	// ErrInvalidDescriptor is returned for zero dimensions and other malformed descriptor fields.
	ErrInvalidDescriptor = errors.New("invalid vector descriptor")
	// ErrUnsupportedElementType is returned for unknown element types.
	ErrUnsupportedElementType = errors.New("unsupported element type")
	// ErrMisalignedAlignment is returned when the SIMD alignment is not 16, 32 or 64.
	ErrMisalignedAlignment = errors.New("simd alignment must be 16, 32 or 64 bytes")
	// ErrCapacityExceeded is returned when a hard size limit is exceeded.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// ElementType is the storage type of a single vector component.
type ElementType uint8

const (
	Float32 ElementType = iota
	Float64
	Float16
	BFloat16
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Binary
	Sparse
)

var elementNames = [...]string{
	Float32:  "float32",
	Float64:  "float64",
	Float16:  "float16",
	BFloat16: "bfloat16",
	Int8:     "int8",
	Uint8:    "uint8",
	Int16:    "int16",
	Uint16:   "uint16",
	Int32:    "int32",
	Uint32:   "uint32",
	Binary:   "binary",
	Sparse:   "sparse",
}

func (e ElementType) String() string {
	if int(e) < len(elementNames) {
		return elementNames[e]
	}
	return fmt.Sprintf("ElementType(%d)", e)
}

// Valid reports whether e is one of the enumerated element types.
func (e ElementType) Valid() bool {
	return e <= Sparse
}

// Size returns the byte size of one element.
// Binary and Sparse have no fixed per-element size and return 0.
func (e ElementType) Size() int {
	switch e {
	case Float64:
		return 8
	case Float32, Int32, Uint32:
		return 4
	case Float16, BFloat16, Int16, Uint16:
		return 2
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// Flags is the descriptor flag bitset.
type Flags uint16

const (
	FlagNormalized Flags = 1 << iota
	FlagIndexed
	FlagQuantized
	FlagCompressed
	FlagSparse
	FlagImmutable
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// Compression selects the codec for compressed payloads.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// Strategy is the block allocation strategy.
type Strategy uint8

const (
	// StrategyContiguous is reserved; the planner never selects it.
	StrategyContiguous Strategy = iota
	StrategyAligned
	StrategyPacked
	StrategySparse
	StrategyCompressed
)

func (s Strategy) String() string {
	switch s {
	case StrategyContiguous:
		return "contiguous"
	case StrategyAligned:
		return "aligned"
	case StrategyPacked:
		return "packed"
	case StrategySparse:
		return "sparse"
	case StrategyCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

// Packing governs the stride of vectors inside a block.
type Packing uint8

const (
	PackingNone Packing = iota
	PackingTight
	PackingAligned
	// PackingQuantized is reserved; the planner never selects it.
	PackingQuantized
)

func (p Packing) String() string {
	switch p {
	case PackingNone:
		return "none"
	case PackingTight:
		return "tight"
	case PackingAligned:
		return "aligned"
	case PackingQuantized:
		return "quantized"
	default:
		return fmt.Sprintf("Packing(%d)", p)
	}
}

// VectorDescriptor describes the shape and encoding of stored vectors.
type VectorDescriptor struct {
	Dimension     uint32
	ElementType   ElementType
	SIMDAlignment uint32
	Flags         Flags
	// OriginalSize is the per-vector slot budget for sparse and compressed
	// payloads. Zero selects the worst case.
	OriginalSize uint32
	Compression  Compression
}

// Validate checks the descriptor invariants.
func (d VectorDescriptor) Validate() error {
	if d.Dimension == 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidDescriptor)
	}
	if d.Dimension > MaxDimension {
		return fmt.Errorf("%w: dimension %d exceeds %d", ErrCapacityExceeded, d.Dimension, MaxDimension)
	}
	if !d.ElementType.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedElementType, d.ElementType)
	}
	switch d.SIMDAlignment {
	case 16, 32, 64:
	default:
		return fmt.Errorf("%w: got %d", ErrMisalignedAlignment, d.SIMDAlignment)
	}
	if d.Compression > CompressionZstd {
		return fmt.Errorf("%w: compression type %d", ErrInvalidDescriptor, d.Compression)
	}
	return nil
}

// IsSparse reports whether payloads are stored as index/value pairs.
func (d VectorDescriptor) IsSparse() bool {
	return d.Flags.Has(FlagSparse) || d.ElementType == Sparse
}

// IsCompressed reports whether payloads are stored compressed.
func (d VectorDescriptor) IsCompressed() bool {
	return d.Flags.Has(FlagCompressed)
}

// DenseSize returns the encoded size of one vector before compression.
func (d VectorDescriptor) DenseSize() int {
	dim := int(d.Dimension)
	switch d.ElementType {
	case Binary:
		return (dim + 7) / 8
	case Sparse:
		return SparseSize(dim)
	default:
		return dim * d.ElementType.Size()
	}
}

// SparseSize is the worst-case encoded size of a sparse vector with nnz entries.
func SparseSize(nnz int) int {
	return 4 + 8*nnz
}

// RawSize returns the per-vector slot size in bytes.
func (d VectorDescriptor) RawSize() int {
	switch {
	case d.IsCompressed():
		if d.OriginalSize > 0 {
			return int(d.OriginalSize)
		}
		return 4 + d.DenseSize()
	case d.IsSparse():
		if d.OriginalSize > 0 {
			return int(d.OriginalSize)
		}
		return SparseSize(int(d.Dimension))
	default:
		return d.DenseSize()
	}
}

// BlockID identifies a storage block.
type BlockID uint32

// Location addresses one vector slot.
type Location struct {
	Block BlockID
	Slot  uint16
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Block, l.Slot)
}
