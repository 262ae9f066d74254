package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// initMetrics registers collectors on a registry owned by the router, so the
// hub gauges always describe this router's hub.
func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.registry = prometheus.NewRegistry()

		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livelog",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livelog",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livelog",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})

		r.errorsIngested = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livelog",
			Subsystem: "api",
			Name:      "errors_ingested_total",
			Help:      "Error reports accepted by the ingress endpoint",
		})

		r.persistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livelog",
			Subsystem: "api",
			Name:      "persistence_failures_total",
			Help:      "Accepted error reports that could not be archived",
		})

		collectorsToRegister := []prometheus.Collector{
			r.requestTotal,
			r.requestLatency,
			r.rateLimitHits,
			r.errorsIngested,
			r.persistenceFailures,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		}
		if r.hub != nil {
			hub := r.hub
			collectorsToRegister = append(collectorsToRegister,
				prometheus.NewGaugeFunc(prometheus.GaugeOpts{
					Namespace: "livelog",
					Subsystem: "stream",
					Name:      "subscribers",
					Help:      "Live stream connections",
				}, func() float64 { return float64(hub.ClientCount()) }),
				prometheus.NewGaugeFunc(prometheus.GaugeOpts{
					Namespace: "livelog",
					Subsystem: "stream",
					Name:      "buffered_events",
					Help:      "Events waiting in the offline buffer",
				}, func() float64 { return float64(hub.BufferedCount()) }),
				prometheus.NewCounterFunc(prometheus.CounterOpts{
					Namespace: "livelog",
					Subsystem: "stream",
					Name:      "evictions_total",
					Help:      "Connections closed by the per-address cap",
				}, func() float64 { return float64(hub.Stats().Evicted) }),
				prometheus.NewCounterFunc(prometheus.CounterOpts{
					Namespace: "livelog",
					Subsystem: "stream",
					Name:      "reaped_total",
					Help:      "Connections removed after a failed write",
				}, func() float64 { return float64(hub.Stats().Reaped) }),
			)
		}
		for _, collector := range collectorsToRegister {
			if err := r.registry.Register(collector); err != nil {
				r.logger.Warn("metrics collector registration failed", "error", err)
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) metricsHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (r *Router) recordIngest(persistErr error) {
	if !r.metricsInitialized {
		return
	}
	r.errorsIngested.Inc()
	if persistErr != nil {
		r.persistenceFailures.Inc()
	}
}
