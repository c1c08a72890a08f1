package hash

import (
	"hash"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32C checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Update extends crc with data. Update(0, b) == CRC32C(b).
func Update(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}

// Verify reports whether data matches the expected checksum.
func Verify(data []byte, expected uint32) (actual uint32, ok bool) {
	actual = CRC32C(data)
	return actual, actual == expected
}

// NewCRC32C returns a streaming CRC32C hash.
func NewCRC32C() hash.Hash32 {
	return crc32.New(castagnoli)
}
