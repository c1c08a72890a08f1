package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/layout"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_Integration requires a running MinIO instance.
// Set VECFS_MINIO_ENDPOINT (e.g. localhost:9000) to enable it.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("VECFS_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("VECFS_MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	bucket := "vecfs-test"

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "it")

	data := make([]byte, layout.BlockSize)
	for i := range data {
		data[i] = byte(i * 3)
	}
	require.NoError(t, store.WriteBlock(ctx, 9, data))

	got, err := store.ReadBlock(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.DeleteBlock(ctx, 9))
	_, err = store.ReadBlock(ctx, 9)
	assert.ErrorIs(t, err, blockstore.ErrNotFound)

	require.NoError(t, store.DeleteBlock(ctx, 9))
}

func TestStore_RejectsPartialBlock(t *testing.T) {
	store := NewStore(nil, "bucket", "")
	err := store.WriteBlock(context.Background(), 1, []byte{1})
	assert.ErrorIs(t, err, blockstore.ErrInvalidBlock)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}
