package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/layout"
	"github.com/minio/minio-go/v7"
)

// Store implements blockstore.Backend for MinIO.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blockstore.Backend = (*Store)(nil)

// NewStore creates a MinIO block store.
// prefix is prepended to all keys (e.g. "vectors").
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(id layout.BlockID) string {
	return blockstore.Key(s.prefix, id)
}

// ReadBlock fetches a block object.
func (s *Store) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(id, err)
	}
	defer func() { _ = obj.Close() }()

	buf := make([]byte, layout.BlockSize)
	n, err := io.ReadFull(obj, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("block %d: object has %d bytes: %w", id, n, blockstore.ErrInvalidBlock)
		}
		return nil, s.translate(id, err)
	}
	return buf, nil
}

// WriteBlock uploads a block object.
func (s *Store) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	if err := blockstore.CheckBlock(data); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:    "application/octet-stream",
		SendContentMd5: true,
	})
	if err != nil {
		return fmt.Errorf("put block %d: %w", id, err)
	}
	return nil
}

// DeleteBlock removes a block object.
func (s *Store) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(id), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }

func (s *Store) translate(id layout.BlockID, err error) error {
	if isNotFound(err) {
		return blockstore.ErrNotFound
	}
	return fmt.Errorf("get block %d: %w", id, err)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
