// Package metrics instruments the streaming orchestrator and metadata
// cache with Prometheus gauges/counters (SPEC_FULL.md §4.11). It only
// produces this module's own series; exposing them is left to the host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups every series one scan run reports. Multiple Registries
// may share a single *prometheus.Registry (e.g. one per ReaderPool) or
// each may own a private one for isolated tests.
type Registry struct {
	RowsDecoded       *prometheus.CounterVec
	ChunksEmitted     *prometheus.CounterVec
	ActiveWorkers     prometheus.Gauge
	ParseErrors       *prometheus.CounterVec
	MetadataCacheHits prometheus.Counter
	MetadataCacheMiss prometheus.Counter
}

// NewRegistry constructs and registers every series against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RowsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statreader",
			Name:      "rows_decoded_total",
			Help:      "Rows decoded from a source file, by file kind.",
		}, []string{"kind"}),
		ChunksEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statreader",
			Name:      "chunks_emitted_total",
			Help:      "Chunks sealed and emitted to the consumer, by file kind.",
		}, []string{"kind"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "statreader",
			Name:      "active_workers",
			Help:      "Chunk builder goroutines currently running across all scans.",
		}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statreader",
			Name:      "parse_errors_total",
			Help:      "Parse failures, by file kind and error kind.",
		}, []string{"kind", "error_kind"}),
		MetadataCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statreader",
			Name:      "metadata_cache_hits_total",
			Help:      "Metadata Cache lookups served from cache.",
		}),
		MetadataCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statreader",
			Name:      "metadata_cache_misses_total",
			Help:      "Metadata Cache lookups that required a fresh metadata pass.",
		}),
	}

	reg.MustRegister(
		m.RowsDecoded,
		m.ChunksEmitted,
		m.ActiveWorkers,
		m.ParseErrors,
		m.MetadataCacheHits,
		m.MetadataCacheMiss,
	)
	return m
}

// Noop returns a Registry wired to a private registry, for callers (tests,
// one-off CLI invocations) that don't want to touch the default registry.
func Noop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
