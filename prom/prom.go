// Package prom exports vecfs metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, err := prom.NewCollector(reg)
//	if err != nil {
//		return err
//	}
//	st, err := vecfs.Open(768, vecfs.WithMetricsCollector(mc))
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/vecfs"
)

// Namespace prefixes every metric name.
const Namespace = "vecfs"

// Collector implements vecfs.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	insertItems prometheus.Counter
	scanned     *prometheus.CounterVec
	searchK     *prometheus.HistogramVec
	degraded    *prometheus.CounterVec
	compactions *prometheus.CounterVec
	freed       prometheus.Counter
	scrubBlocks prometheus.Counter
	corrupt     prometheus.Counter
}

var _ vecfs.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of store operations",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"op", "status"}),
		insertItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inserted_vectors_total",
			Help:      "Vectors inserted by successful batches",
		}),
		scanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_vectors_scanned_total",
			Help:      "Distance evaluations performed by searches",
		}, []string{"kind"}),
		searchK: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_k",
			Help:      "Requested result count per search",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}, []string{"kind"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "degraded_searches_total",
			Help:      "Searches that fell back to a linear scan",
		}, []string{"kind"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "compaction_batches_total",
			Help:      "Compaction batches completed",
		}, []string{"status"}),
		freed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "compaction_freed_nodes_total",
			Help:      "Graph slots released by compaction",
		}),
		scrubBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scrub_blocks_total",
			Help:      "Blocks verified by scrub",
		}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scrub_corrupt_blocks_total",
			Help:      "Blocks that failed scrub verification",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.opLatency, c.insertItems, c.scanned, c.searchK, c.degraded,
		c.compactions, c.freed, c.scrubBlocks, c.corrupt,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector is like NewCollector but panics on registration errors.
func MustNewCollector(reg prometheus.Registerer) *Collector {
	c, err := NewCollector(reg)
	if err != nil {
		panic(err)
	}
	return c
}

// status labels an outcome by its error code.
func status(err error) string {
	if err == nil {
		return "ok"
	}
	return vecfs.Code(err).String()
}

// RecordBatchInsert implements vecfs.MetricsCollector.
func (c *Collector) RecordBatchInsert(count int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("batch_insert", status(err)).Observe(d.Seconds())
	if err == nil {
		c.insertItems.Add(float64(count))
	}
}

// RecordSearch implements vecfs.MetricsCollector.
func (c *Collector) RecordSearch(kind string, k, scanned int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("search_"+kind, status(err)).Observe(d.Seconds())
	c.scanned.WithLabelValues(kind).Add(float64(scanned))
	if k > 0 {
		c.searchK.WithLabelValues(kind).Observe(float64(k))
	}
}

// RecordDelete implements vecfs.MetricsCollector.
func (c *Collector) RecordDelete(d time.Duration, err error) {
	c.opLatency.WithLabelValues("delete", status(err)).Observe(d.Seconds())
}

// RecordCompaction implements vecfs.MetricsCollector.
func (c *Collector) RecordCompaction(d time.Duration, freed int, err error) {
	c.opLatency.WithLabelValues("compaction", status(err)).Observe(d.Seconds())
	c.compactions.WithLabelValues(status(err)).Inc()
	c.freed.Add(float64(freed))
}

// RecordScrub implements vecfs.MetricsCollector.
func (c *Collector) RecordScrub(d time.Duration, blocks, corrupt int, err error) {
	c.opLatency.WithLabelValues("scrub", status(err)).Observe(d.Seconds())
	c.scrubBlocks.Add(float64(blocks))
	c.corrupt.Add(float64(corrupt))
}

// RecordDegraded implements vecfs.MetricsCollector.
func (c *Collector) RecordDegraded(kind string) {
	c.degraded.WithLabelValues(kind).Inc()
}
