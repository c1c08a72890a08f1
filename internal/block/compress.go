package block

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vecfs/layout"
)

// Compressed slots start with a u32 length word. The top bit marks a
// compressed body; without it the body is the plain inner encoding.
const compressedBit = 1 << 31

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
	innerBufPool    sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func getInnerBuf(n int) *[]byte {
	if v := innerBufPool.Get(); v != nil {
		b := v.(*[]byte)
		if cap(*b) >= n {
			*b = (*b)[:n]
			return b
		}
	}
	b := make([]byte, n)
	return &b
}

func encodeCompressed(desc layout.VectorDescriptor, dst []byte, v []float32) (int, error) {
	innerSize := desc.DenseSize()
	bufp := getInnerBuf(innerSize)
	defer innerBufPool.Put(bufp)
	inner := *bufp
	clear(inner)

	if _, err := encodeInner(desc, inner, v); err != nil {
		return 0, err
	}

	body, err := compress(desc.Compression, inner)
	if err != nil {
		return 0, err
	}

	le := binary.LittleEndian
	if body != nil && len(body) < len(inner) && 4+len(body) <= len(dst) {
		le.PutUint32(dst, uint32(len(body))|compressedBit)
		copy(dst[4:], body)
		return 4 + len(body), nil
	}

	if 4+len(inner) > len(dst) {
		return 0, fmt.Errorf("%w: compressed slot of %d bytes cannot hold %d", layout.ErrCapacityExceeded, len(dst), 4+len(inner))
	}
	le.PutUint32(dst, uint32(len(inner)))
	copy(dst[4:], inner)
	return 4 + len(inner), nil
}

func decodeCompressed(desc layout.VectorDescriptor, src []byte, dst []float32) error {
	if len(src) < 4 {
		return fmt.Errorf("%w: compressed slot too small", ErrIndexCorrupt)
	}
	word := binary.LittleEndian.Uint32(src)
	n := int(word &^ compressedBit)
	if 4+n > len(src) {
		return fmt.Errorf("%w: compressed length %d exceeds slot", ErrIndexCorrupt, n)
	}
	body := src[4 : 4+n]
	if word&compressedBit == 0 {
		return decodeInner(desc, body, dst)
	}

	bufp := getInnerBuf(desc.DenseSize())
	defer innerBufPool.Put(bufp)

	inner, err := decompress(desc.Compression, body, *bufp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexCorrupt, err)
	}
	return decodeInner(desc, inner, dst)
}

// compress returns nil when the codec produced no gain.
func compress(c layout.Compression, data []byte) ([]byte, error) {
	switch c {
	case layout.CompressionNone:
		return nil, nil
	case layout.CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return out[:n], nil
	case layout.CompressionZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: compression type %d", layout.ErrInvalidDescriptor, c)
	}
}

func decompress(c layout.Compression, body, out []byte) ([]byte, error) {
	switch c {
	case layout.CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		if n != len(out) {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", n, len(out))
		}
		return out, nil
	case layout.CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, err
		}
		if len(decoded) != len(out) {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", len(decoded), len(out))
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("compressed body without codec (type %d)", c)
	}
}
