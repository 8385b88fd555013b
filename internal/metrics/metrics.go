// Package metrics exposes the Prometheus counters shared by the rule
// resolver, the interception transport and the diagnostics routes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts interception outcomes by decision label
	// ("serve_cache", "persist", "no_cache", "stale_if_error", ...).
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlcache_decisions_total",
			Help: "Total number of interception decisions",
		},
		[]string{"decision"},
	)

	// StoreErrors tracks artifact store failures that were degraded to a live fetch.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlcache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "load", "write", "clear"
	)

	// EscapedPaths counts rule paths rejected for escaping the cache root.
	EscapedPaths = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "urlcache_escaped_paths_total",
			Help: "Total number of generated cache paths rejected for escaping the storage root",
		},
	)
)
