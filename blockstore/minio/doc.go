// Package minio stores vector blocks in MinIO or any S3-compatible server.
//
// Blocks are objects named "<prefix>/<id>.blk". A PutObject of a full block is
// atomic on the server, which gives the block-atomic write contract.
package minio
