package server

import (
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the compile service.
// Each Metrics owns its registry so several services can live in one process.
type Metrics struct {
	reg       *prometheus.Registry
	store     *boltstore.Store
	startTime time.Time

	resolutions     *prometheus.CounterVec
	resolveSeconds  prometheus.Histogram
	cacheHits       prometheus.Counter
	grammarReloads  prometheus.Counter
	treesCached     prometheus.Gauge
	scriptsTotal    prometheus.Gauge
	wsClients       prometheus.Gauge
	uptimeSeconds   prometheus.Gauge
	memoryHeapBytes prometheus.Gauge
	goroutines      prometheus.Gauge
}

// NewMetrics creates and registers the service metrics. store may be nil.
func NewMetrics(store *boltstore.Store, startTime time.Time) *Metrics {
	m := &Metrics{
		reg:       prometheus.NewRegistry(),
		store:     store,
		startTime: startTime,
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridscript_resolutions_total",
			Help: "Expressions resolved, by outcome.",
		}, []string{"outcome"}),
		resolveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridscript_resolve_seconds",
			Help:    "Time spent lexing, resolving and folding one expression.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridscript_tree_cache_hits_total",
			Help: "Compilations answered from the resolved tree cache.",
		}),
		grammarReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridscript_grammar_reloads_total",
			Help: "Grammar files loaded since start.",
		}),
		treesCached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_trees_cached",
			Help: "Resolved trees held in the cache.",
		}),
		scriptsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_scripts_total",
			Help: "Saved scripts.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_websocket_clients",
			Help: "Open WebSocket sessions.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_uptime_seconds",
			Help: "Service uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridscript_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.reg.MustRegister(
		m.resolutions,
		m.resolveSeconds,
		m.cacheHits,
		m.grammarReloads,
		m.treesCached,
		m.scriptsTotal,
		m.wsClients,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// ObserveResolve counts one compilation. outcome is "ok", "cached" or "error".
func (m *Metrics) ObserveResolve(outcome string, d time.Duration) {
	m.resolutions.WithLabelValues(outcome).Inc()
	if outcome == "cached" {
		m.cacheHits.Inc()
		return
	}
	m.resolveSeconds.Observe(d.Seconds())
}

// Update refreshes all gauge metrics.
func (m *Metrics) Update() {
	if m.store != nil {
		if c, err := m.store.Counts(); err == nil {
			m.treesCached.Set(float64(c.Trees))
			m.scriptsTotal.Set(float64(c.Scripts))
		} else {
			log.Printf("metrics: store counts: %v", err)
		}
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
