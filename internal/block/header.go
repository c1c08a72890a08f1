package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/vecfs/internal/hash"
	"github.com/hupe1980/vecfs/layout"
)

// Magic identifies a vector block ("VFB1").
const Magic uint32 = 0x31424656

var (
	// ErrIndexCorrupt is returned when a block fails validation.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrChecksumMismatch is returned when a stored checksum does not match.
	// Errors carrying it also match ErrIndexCorrupt.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ChecksumMismatchError reports a header or payload checksum failure.
type ChecksumMismatchError struct {
	Block    layout.BlockID
	Field    string
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("block %d: %s checksum mismatch: expected %08x, got %08x", e.Block, e.Field, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() []error {
	return []error{ErrChecksumMismatch, ErrIndexCorrupt}
}

// Type distinguishes data blocks from extent blocks of spanning vectors.
type Type uint8

const (
	TypeData Type = iota + 1
	TypeExtent
)

// Header is the fixed 64-byte block header.
type Header struct {
	Magic            uint32
	Type             Type
	ElementType      layout.ElementType
	Packing          layout.Packing
	Strategy         layout.Strategy
	VectorCount      uint32
	Dimension        uint32
	SIMDAlignment    uint16
	Flags            layout.Flags
	DataOffset       uint32
	DataSize         uint32
	Checksum         uint32
	CreationTime     int64
	VectorStride     uint32
	AlignmentPadding uint32
	OriginalSize     uint32
	ExtentIndex      uint16
	ExtentCount      uint16
	PayloadChecksum  uint32
	Compression      layout.Compression
}

// NewHeader builds a header for a data block holding vectors of desc laid out per plan.
func NewHeader(desc layout.VectorDescriptor, plan layout.Plan) Header {
	return Header{
		Magic:            Magic,
		Type:             TypeData,
		ElementType:      desc.ElementType,
		Packing:          plan.Packing,
		Strategy:         plan.Strategy,
		Dimension:        desc.Dimension,
		SIMDAlignment:    uint16(desc.SIMDAlignment),
		Flags:            desc.Flags,
		DataOffset:       layout.HeaderSize,
		VectorStride:     uint32(plan.Stride),
		AlignmentPadding: uint32(plan.AlignedSize - plan.RawSize),
		OriginalSize:     desc.OriginalSize,
		ExtentCount:      uint16(plan.ExtentsPerVector),
		Compression:      desc.Compression,
	}
}

// Descriptor reconstructs the vector descriptor stored in the header.
func (h *Header) Descriptor() layout.VectorDescriptor {
	return layout.VectorDescriptor{
		Dimension:     h.Dimension,
		ElementType:   h.ElementType,
		SIMDAlignment: uint32(h.SIMDAlignment),
		Flags:         h.Flags,
		OriginalSize:  h.OriginalSize,
		Compression:   h.Compression,
	}
}

// HeaderChecksum computes the header checksum over magic, vector count,
// dimension and data size.
func HeaderChecksum(magic, vectorCount, dimension, dataSize uint32) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:], magic)
	binary.LittleEndian.PutUint32(buf[4:], vectorCount)
	binary.LittleEndian.PutUint32(buf[8:], dimension)
	binary.LittleEndian.PutUint32(buf[12:], dataSize)
	return hash.CRC32C(buf[:])
}

// Seal fills in the header checksum.
func (h *Header) Seal() {
	h.Checksum = HeaderChecksum(h.Magic, h.VectorCount, h.Dimension, h.DataSize)
}

// MarshalTo encodes h into the first HeaderSize bytes of dst.
func (h *Header) MarshalTo(dst []byte) {
	_ = dst[layout.HeaderSize-1]
	le := binary.LittleEndian
	le.PutUint32(dst[0:], h.Magic)
	dst[4] = byte(h.Type)
	dst[5] = byte(h.ElementType)
	dst[6] = byte(h.Packing)
	dst[7] = byte(h.Strategy)
	le.PutUint32(dst[8:], h.VectorCount)
	le.PutUint32(dst[12:], h.Dimension)
	le.PutUint16(dst[16:], h.SIMDAlignment)
	le.PutUint16(dst[18:], uint16(h.Flags))
	le.PutUint32(dst[20:], h.DataOffset)
	le.PutUint32(dst[24:], h.DataSize)
	le.PutUint32(dst[28:], h.Checksum)
	le.PutUint64(dst[32:], uint64(h.CreationTime))
	le.PutUint32(dst[40:], h.VectorStride)
	le.PutUint32(dst[44:], h.AlignmentPadding)
	le.PutUint32(dst[48:], h.OriginalSize)
	le.PutUint16(dst[52:], h.ExtentIndex)
	le.PutUint16(dst[54:], h.ExtentCount)
	le.PutUint32(dst[56:], h.PayloadChecksum)
	dst[60] = byte(h.Compression)
	dst[61], dst[62], dst[63] = 0, 0, 0
}

// UnmarshalHeader decodes a header from src.
func UnmarshalHeader(src []byte) (Header, error) {
	if len(src) < layout.HeaderSize {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrIndexCorrupt, len(src))
	}
	le := binary.LittleEndian
	return Header{
		Magic:            le.Uint32(src[0:]),
		Type:             Type(src[4]),
		ElementType:      layout.ElementType(src[5]),
		Packing:          layout.Packing(src[6]),
		Strategy:         layout.Strategy(src[7]),
		VectorCount:      le.Uint32(src[8:]),
		Dimension:        le.Uint32(src[12:]),
		SIMDAlignment:    le.Uint16(src[16:]),
		Flags:            layout.Flags(le.Uint16(src[18:])),
		DataOffset:       le.Uint32(src[20:]),
		DataSize:         le.Uint32(src[24:]),
		Checksum:         le.Uint32(src[28:]),
		CreationTime:     int64(le.Uint64(src[32:])),
		VectorStride:     le.Uint32(src[40:]),
		AlignmentPadding: le.Uint32(src[44:]),
		OriginalSize:     le.Uint32(src[48:]),
		ExtentIndex:      le.Uint16(src[52:]),
		ExtentCount:      le.Uint16(src[54:]),
		PayloadChecksum:  le.Uint32(src[56:]),
		Compression:      layout.Compression(src[60]),
	}, nil
}

// MaxVectors returns the largest vector count a block with this header may hold.
func (h *Header) MaxVectors() uint32 {
	if h.Type == TypeExtent || h.ExtentCount > 1 {
		return 1
	}
	if h.VectorStride == 0 {
		return 0
	}
	return layout.PayloadSize / h.VectorStride
}

// Validate checks the structural invariants of a block header.
func Validate(h Header) error {
	return validate(0, h)
}

func validate(id layout.BlockID, h Header) error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: block %d: bad magic %08x", ErrIndexCorrupt, id, h.Magic)
	}
	if h.Type != TypeData && h.Type != TypeExtent {
		return fmt.Errorf("%w: block %d: unknown block type %d", ErrIndexCorrupt, id, h.Type)
	}
	if h.VectorCount == 0 || h.VectorCount > h.MaxVectors() {
		return fmt.Errorf("%w: block %d: vector count %d out of range", ErrIndexCorrupt, id, h.VectorCount)
	}
	if h.Dimension == 0 || h.Dimension > layout.MaxDimension {
		return fmt.Errorf("%w: block %d: dimension %d out of range", ErrIndexCorrupt, id, h.Dimension)
	}
	if h.DataOffset != layout.HeaderSize || uint64(h.DataOffset)+uint64(h.DataSize) > layout.BlockSize {
		return fmt.Errorf("%w: block %d: data region %d+%d exceeds block", ErrIndexCorrupt, id, h.DataOffset, h.DataSize)
	}
	if sum := HeaderChecksum(h.Magic, h.VectorCount, h.Dimension, h.DataSize); sum != h.Checksum {
		return &ChecksumMismatchError{Block: id, Field: "header", Expected: h.Checksum, Actual: sum}
	}
	return nil
}
