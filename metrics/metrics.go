// Package metrics exports Prometheus counters/gauges for the core's
// internal caches and transactions. Core packages (icache, bufcache, wal)
// call into this package directly; no package in this module serves the
// metrics over HTTP, so importing this package never pulls in net/http
// through the core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// InodeCacheHits/Misses count icache.Iget outcomes.
	InodeCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kfs_inode_cache_hits_total",
		Help: "Inode cache lookups that found an already-referenced slot.",
	})
	InodeCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kfs_inode_cache_misses_total",
		Help: "Inode cache lookups that installed a new identity into a free slot.",
	})

	// AllocatorExhausted counts balloc/ialloc exhaustion events (which are
	// otherwise fatal per spec.md §7, so this counter should stay at 0 in
	// a healthy deployment).
	AllocatorExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kfs_allocator_exhausted_total",
		Help: "Times balloc or ialloc found no free resource.",
	})

	// BufferCacheEvictions counts bufcache LRU evictions.
	BufferCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kfs_buffer_cache_evictions_total",
		Help: "Buffer cache entries recycled to satisfy a new block read.",
	})

	// TransactionLatency measures wal.Txn.End latency.
	TransactionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kfs_transaction_commit_seconds",
		Help:    "Time spent in wal.Txn.End, including fsyncs.",
		Buckets: prometheus.DefBuckets,
	})
)

// Registry returns a registry with every kfs metric registered, for the
// caller to expose however it likes (e.g. with promhttp.HandlerFor).
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(InodeCacheHits, InodeCacheMisses, AllocatorExhausted, BufferCacheEvictions, TransactionLatency)
	return r
}
