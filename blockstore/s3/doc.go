// Package s3 stores vector blocks as objects in Amazon S3.
//
// Each block is one object named "<prefix>/<id>.blk". Writes are single
// PutObject calls carrying a CRC32C checksum, so S3 rejects torn uploads and a
// block is replaced atomically. Reads use the transfer manager's downloader.
//
// Wrap the store in blockstore.CachingStore to avoid a round trip per block:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "bucket", "index-1")
//	cached := blockstore.NewCachingStore(store, cache.NewShardedLRUBlockCache(64<<20, nil), "index-1")
package s3
