// Package block implements the on-disk format of vector storage blocks.
//
// Every block is exactly layout.BlockSize bytes: a 64-byte little-endian
// Header followed by a payload region of packed vector slots. Vectors larger
// than the payload region span consecutive extent blocks.
//
// Header layout:
//
//	off  size  field
//	0    4     magic
//	4    1     block type (data, extent)
//	5    1     element type
//	6    1     packing
//	7    1     strategy
//	8    4     vector count
//	12   4     dimension
//	16   2     simd alignment
//	18   2     flags
//	20   4     data offset
//	24   4     data size
//	28   4     header checksum (CRC32C of magic, vector count, dimension, data size)
//	32   8     creation time (unix nanoseconds)
//	40   4     vector stride
//	44   4     alignment padding
//	48   4     original size
//	52   2     extent index
//	54   2     extent count
//	56   4     payload checksum (CRC32C of the used payload)
//	60   1     compression
//	61   3     reserved
//
// The Codec writes whole blocks through a blockstore.Backend and validates
// every block it reads. The Store builds on it to place, fetch and remove
// individual vectors.
package block
