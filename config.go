package vecfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/blockstore/s3"
	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/layout"
)

// Config is the file form of the store options.
//
// Example:
//
//	dimension: 768
//	index:
//	  m: 16
//	  ef_construction: 200
//	  ef_search: 64
//	  metric: cosine
//	storage:
//	  backend: file
//	  path: /var/lib/vecfs/blocks
//	  element_type: float16
//	  cache_bytes: 67108864
//	resources:
//	  io_limit_bytes_per_sec: 8388608
type Config struct {
	Dimension uint32 `yaml:"dimension" validate:"required,gt=0,lte=65535"`

	Index     IndexConfig    `yaml:"index"`
	Storage   StorageConfig  `yaml:"storage"`
	Search    SearchConfig   `yaml:"search"`
	Resources ResourceConfig `yaml:"resources"`
	Log       LogConfig      `yaml:"log"`
}

// IndexConfig configures the graph.
type IndexConfig struct {
	M              int    `yaml:"m" validate:"omitempty,gte=2"`
	EFConstruction int    `yaml:"ef_construction" validate:"gte=0"`
	EFSearch       int    `yaml:"ef_search" validate:"gte=0"`
	Metric         string `yaml:"metric" validate:"omitempty,oneof=euclidean cosine dot manhattan"`
	Heuristic      *bool  `yaml:"heuristic"`
	Seed           uint64 `yaml:"seed"`
	Limits         Limits `yaml:"limits"`

	CompactionThreshold float64 `yaml:"compaction_threshold" validate:"lte=1"`
	CompactionBatch     int     `yaml:"compaction_batch" validate:"gte=0"`
}

// StorageConfig selects the backend and the block encoding.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory file s3"`
	// Path is the block file of the file backend.
	Path string `yaml:"path" validate:"required_if=Backend file"`
	// Bucket and Prefix locate the blocks of the s3 backend.
	Bucket string `yaml:"bucket" validate:"required_if=Backend s3"`
	Prefix string `yaml:"prefix"`

	ElementType        string `yaml:"element_type" validate:"omitempty,elementtype"`
	Alignment          uint32 `yaml:"alignment" validate:"omitempty,oneof=16 32 64"`
	AlignmentThreshold int    `yaml:"alignment_threshold" validate:"gte=0"`
	Normalized         bool   `yaml:"normalized"`
	Compression        string `yaml:"compression" validate:"omitempty,oneof=none lz4 zstd"`
	OriginalSize       uint32 `yaml:"original_size"`
	CacheBytes         int64  `yaml:"cache_bytes" validate:"gte=0"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	BatchParallelism    int `yaml:"batch_parallelism" validate:"gte=0"`
	FilterScanThreshold int `yaml:"filter_scan_threshold" validate:"gte=0"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Format string `yaml:"format" validate:"omitempty,oneof=text json none"`
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// validate checks configs and requests.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("elementtype", validateElementType)
	_ = validate.RegisterValidation("blockaligned", validateBlockAligned)
}

func validateElementType(fl validator.FieldLevel) bool {
	_, ok := parseElementType(fl.Field().String())
	return ok
}

// validateBlockAligned accepts offsets on a storage block boundary.
func validateBlockAligned(fl validator.FieldLevel) bool {
	return fl.Field().Uint()%layout.BlockSize == 0
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML config. Unknown fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %w", ErrInvalidArgument, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

// Options converts the config into options for Open. Backends named by the
// config are opened here; the returned options hand them to the store.
func (c *Config) Options(ctx context.Context) ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var opts []Option
	ix := c.Index
	if ix.M > 0 {
		opts = append(opts, WithM(ix.M))
	}
	if ix.EFConstruction > 0 {
		opts = append(opts, WithEFConstruction(ix.EFConstruction))
	}
	if ix.EFSearch > 0 {
		opts = append(opts, WithEFSearch(ix.EFSearch))
	}
	if ix.Metric != "" {
		m, _ := parseMetric(ix.Metric)
		opts = append(opts, WithMetric(m))
	}
	if ix.Heuristic != nil {
		opts = append(opts, WithHeuristic(*ix.Heuristic))
	}
	if ix.Seed != 0 {
		opts = append(opts, WithSeed(ix.Seed))
	}
	if ix.Limits != (Limits{}) {
		opts = append(opts, WithLimits(ix.Limits))
	}
	if ix.CompactionThreshold != 0 || ix.CompactionBatch != 0 {
		opts = append(opts, WithCompaction(ix.CompactionThreshold, ix.CompactionBatch))
	}

	st := c.Storage
	if st.ElementType != "" {
		t, _ := parseElementType(st.ElementType)
		opts = append(opts, WithElementType(t))
	}
	if st.Alignment != 0 {
		opts = append(opts, WithAlignment(st.Alignment))
	}
	if st.AlignmentThreshold > 0 {
		opts = append(opts, WithAlignmentThreshold(st.AlignmentThreshold))
	}
	if st.Normalized {
		opts = append(opts, WithFlags(layout.FlagNormalized))
	}
	if st.Compression != "" {
		opts = append(opts, WithCompression(parseCompression(st.Compression), st.OriginalSize))
	}
	if st.CacheBytes > 0 {
		opts = append(opts, WithBlockCache(st.CacheBytes))
	}

	opts = append(opts,
		WithResources(c.Resources),
		WithBatchParallelism(c.Search.BatchParallelism),
		WithFilterScanThreshold(c.Search.FilterScanThreshold),
	)
	if l := c.Log.logger(); l != nil {
		opts = append(opts, WithLogger(l))
	}

	backend, err := st.open(ctx)
	if err != nil {
		return nil, err
	}
	if backend != nil {
		opts = append(opts, WithBackend(backend))
	}
	return opts, nil
}

func (s StorageConfig) open(ctx context.Context) (blockstore.Backend, error) {
	switch s.Backend {
	case "file":
		return blockstore.OpenFileStore(s.Path)
	case "s3":
		return s3.NewStoreFromConfig(ctx, s.Bucket, s.Prefix)
	default:
		return nil, nil
	}
}

func (l LogConfig) logger() *Logger {
	level := slogLevel(l.Level)
	switch l.Format {
	case "json":
		return NewJSONLogger(level)
	case "text":
		return NewTextLogger(level)
	case "none":
		return NoopLogger()
	default:
		return nil
	}
}

// OpenConfig opens a store described by cfg.
func OpenConfig(ctx context.Context, cfg Config, extra ...Option) (*Store, error) {
	opts, err := cfg.Options(ctx)
	if err != nil {
		return nil, err
	}
	st, err := Open(cfg.Dimension, append(opts, extra...)...)
	if err != nil {
		o := applyOptions(opts)
		if o.backend != nil {
			err = errors.Join(err, o.backend.Close())
		}
		return nil, err
	}
	return st, nil
}

func slogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseMetric(s string) (distance.Metric, bool) {
	switch s {
	case "euclidean":
		return distance.Euclidean, true
	case "cosine":
		return distance.Cosine, true
	case "dot":
		return distance.DotProduct, true
	case "manhattan":
		return distance.Manhattan, true
	default:
		return 0, false
	}
}

func parseElementType(s string) (layout.ElementType, bool) {
	for t := layout.Float32; t.Valid(); t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

func parseCompression(s string) layout.Compression {
	switch s {
	case "lz4":
		return layout.CompressionLZ4
	case "zstd":
		return layout.CompressionZstd
	default:
		return layout.CompressionNone
	}
}
