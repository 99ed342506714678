// Package metrics exposes prometheus collectors for scanning and the
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "asset_registry"

type Metrics struct {
	FilesDiscovered prometheus.Counter
	FilesDecoded    prometheus.Counter
	DecodeFailures  prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter

	PendingFiles   prometheus.Gauge
	PendingPaths   prometheus.Gauge
	RegistryAssets prometheus.Gauge
	DependsNodes   prometheus.Gauge

	// TickDuration observes the time spent merging results per tick.
	TickDuration prometheus.Histogram
}

// New registers all collectors on reg. A nil reg registers nothing, which
// keeps the collectors usable without exporting them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FilesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "files_discovered_total",
			Help:      "Content files found by directory discovery",
		}),
		FilesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "files_decoded_total",
			Help:      "Content files decoded or served from the scan cache",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "decode_failures_total",
			Help:      "Content files skipped because they could not be decoded",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "cache_hits_total",
			Help:      "Decode results served from the scan cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "cache_misses_total",
			Help:      "Files that had to be decoded from disk",
		}),
		PendingFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "pending_files",
			Help:      "Discovered files waiting to be decoded",
		}),
		PendingPaths: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gatherer",
			Name:      "pending_paths",
			Help:      "Directories waiting to be walked",
		}),
		RegistryAssets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assets",
			Help:      "Asset records held by the registry",
		}),
		DependsNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "depends_nodes",
			Help:      "Nodes in the dependency graph",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent merging gatherer results per tick",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}
