// Package hash provides the CRC32-Castagnoli checksums used for block integrity.
//
// Block headers carry two checksums: one over the identifying header fields
// and one over the payload region. Both use CRC32C, which Go computes with
// SSE4.2 or the ARM CRC extension when available.
//
//	sum := hash.CRC32C(payload)
//
//	sum = hash.Update(0, part1)
//	sum = hash.Update(sum, part2)
package hash
