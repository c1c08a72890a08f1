package vecfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/layout"
)

const testConfigYAML = `
dimension: 4
index:
  m: 8
  ef_construction: 100
  ef_search: 32
  metric: cosine
  seed: 7
  limits:
    stack_bytes: 65536
storage:
  element_type: float16
  alignment: 16
  compression: lz4
  cache_bytes: 1048576
search:
  batch_parallelism: 2
log:
  format: none
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cfg.Dimension)
	assert.Equal(t, 8, cfg.Index.M)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, 65536, cfg.Index.Limits.StackBytes)
	assert.Equal(t, int64(1<<20), cfg.Storage.CacheBytes)

	opts, err := cfg.Options(context.Background())
	require.NoError(t, err)
	o := applyOptions(opts)
	assert.Equal(t, 8, o.m)
	assert.Equal(t, 32, o.efSearch)
	assert.Equal(t, distance.Cosine, o.metric)
	assert.Equal(t, uint64(7), o.seed)
	assert.Equal(t, layout.Float16, o.elementType)
	assert.Equal(t, uint32(16), o.alignment)
	assert.Equal(t, layout.CompressionLZ4, o.compression)
	assert.True(t, o.flags.Has(layout.FlagCompressed))
	assert.Equal(t, 2, o.batchParallelism)
	assert.Nil(t, o.backend)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"MissingDimension", "index:\n  m: 8\n"},
		{"DimensionTooLarge", "dimension: 70000\n"},
		{"UnknownField", "dimension: 4\nshards: 3\n"},
		{"Metric", "dimension: 4\nindex:\n  metric: hamming\n"},
		{"SmallM", "dimension: 4\nindex:\n  m: 1\n"},
		{"ElementType", "dimension: 4\nstorage:\n  element_type: complex64\n"},
		{"Alignment", "dimension: 4\nstorage:\n  alignment: 24\n"},
		{"FileWithoutPath", "dimension: 4\nstorage:\n  backend: file\n"},
		{"S3WithoutBucket", "dimension: 4\nstorage:\n  backend: s3\n"},
		{"NegativeLimit", "dimension: 4\nresources:\n  io_limit_bytes_per_sec: -1\n"},
		{"LogLevel", "dimension: 4\nlog:\n  level: trace\n"},
		{"Syntax", "dimension: [4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, CodeInvalidArgument, Code(err))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vecfs.yaml")
	blocks := filepath.Join(dir, "blocks")
	data := "dimension: 4\nstorage:\n  backend: file\n  path: " + blocks + "\n  alignment: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	ctx := context.Background()
	st, err := OpenConfig(ctx, cfg, WithSeed(7))
	require.NoError(t, err)
	insertExample(t, st)

	res, err := st.Search(ctx, exampleQuery, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, resultIDs(res))
	require.NoError(t, st.Close())

	info, err := os.Stat(blocks)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Zero(t, info.Size()%layout.BlockSize)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenConfig_InvalidOptions(t *testing.T) {
	cfg := Config{Dimension: 4}
	cfg.Index.Limits.StackBytes = -1
	_, err := OpenConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
