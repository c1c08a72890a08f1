// Package blockstore provides storage backends for fixed-size vector blocks.
//
// A Backend reads and writes whole blocks addressed by layout.BlockID. Writes
// are block-atomic: a reader observes either the previous image of a block or
// the new one, never a mix. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory map, for tests and ephemeral indexes
//   - FileStore: a single file with one 4 KiB slot per block
//   - CachingStore: wraps any Backend with an LRU block cache
//   - FaultyStore: wraps any Backend and injects failures (testing)
//   - s3.Store, minio.Store, dynamodb.Store: object and item stores
//
// # Custom Implementations
//
//	type Backend interface {
//	    ReadBlock(ctx, id) ([]byte, error)
//	    WriteBlock(ctx, id, data) error
//	    DeleteBlock(ctx, id) error
//	    Close() error
//	}
package blockstore
