package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Memory cache metrics
	CacheACRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cradle_cache_ac_records",
			Help: "Total number of action cache records",
		},
	)

	CacheACInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cradle_cache_ac_records_in_use",
			Help: "Number of action cache records referenced by a live pointer",
		},
	)

	CacheACPendingEviction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cradle_cache_ac_records_pending_eviction",
			Help: "Number of action cache records on the eviction list",
		},
	)

	CacheCASRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cradle_cache_cas_records",
			Help: "Total number of CAS records",
		},
	)

	CacheCASSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cradle_cache_cas_size_bytes",
			Help: "Total deep size of the values stored in the CAS",
		},
	)

	CacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cradle_cache_evictions_total",
			Help: "Total number of action cache records evicted",
		},
	)

	// Resolution metrics
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cradle_resolutions_total",
			Help: "Total number of request resolutions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cradle_resolution_duration_seconds",
			Help:    "Wall time of top-level request resolutions",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Secondary storage metrics
	SecondaryReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cradle_secondary_reads_total",
			Help: "Secondary storage reads by outcome (hit, miss, error)",
		},
		[]string{"outcome"},
	)

	SecondaryWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cradle_secondary_writes_total",
			Help: "Secondary storage writes by outcome (ok, error)",
		},
		[]string{"outcome"},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cradle_rpc_requests_total",
			Help: "RPC requests served by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

var registerOnce sync.Once

// Register installs all collectors in the default registry. Idempotent.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheACRecords,
			CacheACInUse,
			CacheACPendingEviction,
			CacheCASRecords,
			CacheCASSize,
			CacheEvictions,
			ResolutionsTotal,
			ResolutionDuration,
			SecondaryReads,
			SecondaryWrites,
			RPCRequestsTotal,
		)
	})
}

// UpdateCacheInfo sets the cache gauges from a summary snapshot.
func UpdateCacheInfo(acRecords, acInUse, acPending, casRecords int, casSize uint64) {
	CacheACRecords.Set(float64(acRecords))
	CacheACInUse.Set(float64(acInUse))
	CacheACPendingEviction.Set(float64(acPending))
	CacheCASRecords.Set(float64(casRecords))
	CacheCASSize.Set(float64(casSize))
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
