package hnsw

import (
	"errors"

	"github.com/hupe1980/vecfs/distance"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/layout"
)

const (
	// DefaultM is the default number of links per node on layers >= 1.
	DefaultM = 16
	// DefaultEFConstruction is the default insert beam width.
	DefaultEFConstruction = 200
	// DefaultEFSearch is the default search beam width.
	DefaultEFSearch = 50
	// MaxLevel caps the level drawn for a new node.
	MaxLevel = 16

	minimumM = 2
)

// Simulated frame sizes reported to the guard.
const (
	frameOperation   = 512
	frameDescent     = 256
	frameSearchLayer = 512
	frameLink        = 256
)

var (
	// ErrDuplicateID is returned when inserting an id that is already live.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound is returned for unknown or deleted ids.
	ErrNotFound = errors.New("id not found")
	// ErrInvalidOptions is returned for out-of-range parameters.
	ErrInvalidOptions = errors.New("invalid graph options")
)

// Options configures a Graph.
type Options struct {
	M              int
	EFConstruction int
	EFSearch       int
	Metric         distance.Metric
	// Heuristic enables diversity-aware neighbor selection.
	Heuristic bool
	// Seed makes level assignment reproducible. Zero picks a random seed.
	Seed uint64
	// Limits bounds the stack and memory of every operation.
	Limits resource.Limits
}

// DefaultOptions returns the default graph options.
func DefaultOptions() Options {
	return Options{
		M:              DefaultM,
		EFConstruction: DefaultEFConstruction,
		EFSearch:       DefaultEFSearch,
		Metric:         distance.Euclidean,
		Heuristic:      true,
		Limits:         resource.DefaultLimits(),
	}
}

// Result is one search hit.
type Result struct {
	ID       uint64
	Distance float32
	Loc      layout.Location
}

// SearchParams configures one search.
type SearchParams struct {
	K  int
	EF int
	// Dist overrides the graph metric for this search.
	Dist distance.Func
	// Accept, when set, admits a node into the result set. Rejected nodes
	// are still traversed.
	Accept func(id uint64, dist float32) bool
}

// Op names a guarded operation kind.
type Op string

const (
	OpInsert  Op = "insert"
	OpSearch  Op = "search"
	OpCompact Op = "compact"
)

// LevelStats describes one layer.
type LevelStats struct {
	Level int
	Nodes int
	Edges int
}

// Stats is a snapshot of graph state.
type Stats struct {
	Nodes      int
	Tombstones int
	MaxLevel   int
	EntryID    uint64
	Levels     []LevelStats
	// Bytes estimates memory held by vectors and adjacency lists.
	Bytes int64
}

// CompactResult reports the progress of a compaction batch.
type CompactResult struct {
	// Scanned is the number of slots examined.
	Scanned int
	// Repaired is the number of live nodes whose links changed.
	Repaired int
	// Freed is the number of tombstoned slots released.
	Freed int
	// Done is true when the pass finished and nothing is pending.
	Done bool
}
