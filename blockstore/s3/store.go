package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/internal/hash"
	"github.com/hupe1980/vecfs/layout"
)

// Client is the subset of the S3 API used by Store.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures a Store.
type Options struct {
	// DisableChecksum skips the CRC32C upload checksum.
	DisableChecksum bool
	// Concurrency bounds parallel ranged reads per block. Default: 1.
	Concurrency int
}

// Store implements blockstore.Backend on S3.
type Store struct {
	client     Client
	bucket     string
	prefix     string
	opts       Options
	downloader *manager.Downloader
}

var _ blockstore.Backend = (*Store)(nil)

// NewStore creates an S3 block store.
// prefix is prepended to all keys (e.g. "my-index").
func NewStore(client Client, bucket, prefix string, optFns ...func(*Options)) *Store {
	opts := Options{Concurrency: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		opts:   opts,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = layout.BlockSize
			d.Concurrency = opts.Concurrency
		}),
	}
}

func (s *Store) key(id layout.BlockID) string {
	return blockstore.Key(s.prefix, id)
}

// ReadBlock downloads a block object.
func (s *Store) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(make([]byte, 0, layout.BlockSize))

	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blockstore.ErrNotFound
		}
		return nil, fmt.Errorf("get block %d: %w", id, err)
	}
	if n != layout.BlockSize {
		return nil, fmt.Errorf("get block %d: object has %d bytes: %w", id, n, blockstore.ErrInvalidBlock)
	}
	return buf.Bytes(), nil
}

// WriteBlock uploads a block object.
func (s *Store) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	if err := blockstore.CheckBlock(data); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if !s.opts.DisableChecksum {
		input.ChecksumCRC32C = aws.String(checksumCRC32C(data))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put block %d: %w", id, err)
	}
	return nil
}

// DeleteBlock removes a block object.
func (s *Store) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

// checksumCRC32C returns the base64 big-endian CRC32C that S3 expects.
func checksumCRC32C(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(b[:])
}

// NewStoreFromConfig loads the default AWS configuration (environment,
// shared config files, instance roles) and creates a Store.
func NewStoreFromConfig(ctx context.Context, bucket, prefix string, optFns ...func(*Options)) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, prefix, optFns...), nil
}
