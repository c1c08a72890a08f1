package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnCompaction is called when a compaction batch completes.
	OnCompaction(duration time.Duration, freed int, err error)

	// OnScrub is called when a scrub pass completes.
	OnScrub(duration time.Duration, blocks int, corrupt int, err error)

	// OnDegraded is called when a search falls back to a linear scan.
	OnDegraded(op string)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnCompaction(time.Duration, int, error) {}
func (NoopMetricsObserver) OnScrub(time.Duration, int, int, error) {}
func (NoopMetricsObserver) OnDegraded(string)                      {}
