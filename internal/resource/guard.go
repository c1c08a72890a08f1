package resource

import (
	"context"
	"errors"
	"fmt"
)

// ErrStackBudgetExceeded is returned when an operation exceeds its stack,
// depth or auxiliary memory budget.
var ErrStackBudgetExceeded = errors.New("stack budget exceeded")

const (
	// DefaultStackBytes is the default simulated stack threshold per operation.
	DefaultStackBytes = 6 * 1024
	// DefaultMaxDepth is the default bound on nested guarded frames.
	DefaultMaxDepth = 16

	// interruptEvery is the iteration interval at which Tick polls the context.
	interruptEvery = 64
)

// Limits configures a Guard.
type Limits struct {
	// StackBytes is the threshold for the sum of active frame sizes.
	StackBytes int `yaml:"stack_bytes" validate:"gte=0"`
	// MaxDepth bounds the number of nested frames.
	MaxDepth int `yaml:"max_depth" validate:"gte=0"`
	// AuxBytes overrides the derived auxiliary memory budget when positive.
	AuxBytes int64 `yaml:"aux_bytes" validate:"gte=0"`
}

// DefaultLimits returns the default guard limits.
func DefaultLimits() Limits {
	return Limits{StackBytes: DefaultStackBytes, MaxDepth: DefaultMaxDepth}
}

func (l Limits) withDefaults() Limits {
	if l.StackBytes <= 0 {
		l.StackBytes = DefaultStackBytes
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	return l
}

// Report is the high-water summary of a guarded operation.
type Report struct {
	MaxDepth     int
	PeakStack    int
	PeakAuxBytes int64
	Iterations   int64
}

// Merge keeps the per-field maximum of r and o.
func (r Report) Merge(o Report) Report {
	r.MaxDepth = max(r.MaxDepth, o.MaxDepth)
	r.PeakStack = max(r.PeakStack, o.PeakStack)
	r.PeakAuxBytes = max(r.PeakAuxBytes, o.PeakAuxBytes)
	r.Iterations = max(r.Iterations, o.Iterations)
	return r
}

// Guard tracks the resources of one operation. It is not safe for
// concurrent use; every operation owns its guard.
type Guard struct {
	limits   Limits
	auxLimit int64

	depth int
	stack int
	aux   int64
	iter  int64

	report Report
}

// NewGuard creates a guard with the given limits and auxiliary byte budget.
// limits.AuxBytes, when set, takes precedence over auxBudget.
func NewGuard(limits Limits, auxBudget int64) *Guard {
	limits = limits.withDefaults()
	if limits.AuxBytes > 0 {
		auxBudget = limits.AuxBytes
	}
	return &Guard{limits: limits, auxLimit: auxBudget}
}

// Reset prepares the guard for another operation.
func (g *Guard) Reset(limits Limits, auxBudget int64) {
	*g = Guard{}
	limits = limits.withDefaults()
	if limits.AuxBytes > 0 {
		auxBudget = limits.AuxBytes
	}
	g.limits = limits
	g.auxLimit = auxBudget
}

// Enter records a frame of the given size.
func (g *Guard) Enter(frame int) error {
	g.depth++
	g.stack += frame
	g.report.MaxDepth = max(g.report.MaxDepth, g.depth)
	g.report.PeakStack = max(g.report.PeakStack, g.stack)
	if g.depth > g.limits.MaxDepth || g.stack > g.limits.StackBytes {
		return fmt.Errorf("%w: depth %d, stack %d/%d bytes", ErrStackBudgetExceeded, g.depth, g.stack, g.limits.StackBytes)
	}
	return nil
}

// Exit pops a frame recorded by Enter.
func (g *Guard) Exit(frame int) {
	g.depth--
	g.stack -= frame
}

// Charge accounts n auxiliary bytes.
func (g *Guard) Charge(n int64) error {
	g.aux += n
	g.report.PeakAuxBytes = max(g.report.PeakAuxBytes, g.aux)
	if g.auxLimit > 0 && g.aux > g.auxLimit {
		return fmt.Errorf("%w: auxiliary memory %d/%d bytes", ErrStackBudgetExceeded, g.aux, g.auxLimit)
	}
	return nil
}

// Uncharge returns n auxiliary bytes.
func (g *Guard) Uncharge(n int64) {
	g.aux -= n
}

// Tick counts one loop iteration and periodically checks ctx so callers can
// abort between iterations.
func (g *Guard) Tick(ctx context.Context) error {
	g.iter++
	g.report.Iterations = g.iter
	if g.iter%interruptEvery == 0 {
		return ctx.Err()
	}
	return nil
}

// Report returns the high-water marks observed so far.
func (g *Guard) Report() Report {
	return g.report
}

// Item sizes used by AuxBudget; a heap item is a (uint32, float32) pair.
const (
	heapItemBytes    = 8
	visitedSlotBytes = 4
)

// VisitedCapacity is the fixed capacity of the visited set for one
// search_layer pass at beam width ef and layer-0 fan-out m0.
func VisitedCapacity(ef, m0 int) int {
	return max(ef*m0*4, 1024)
}

// AuxBudget returns the auxiliary byte budget of an operation with beam
// width ef, max connections m and the given number of layers. It covers the
// candidate and result heaps, the visited set and per-layer neighbor buffers.
// The visited table is open-addressed at load <= 1/2 and rounded up to a
// power of two, so it is budgeted at four slots per entry.
func AuxBudget(ef, m, layers int) int64 {
	m0 := 2 * m
	visited := VisitedCapacity(ef, m0)
	heaps := (visited + ef + 1) * heapItemBytes
	table := 4 * visited * visitedSlotBytes
	dirty := visited * visitedSlotBytes
	neighbors := (m0 + 1) * (layers + 1) * heapItemBytes * 2
	return int64(heaps + table + dirty + neighbors)
}
