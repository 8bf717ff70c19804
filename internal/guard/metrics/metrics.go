package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector records validation decision metrics via Prometheus
type Collector struct {
	decisionsTotal *prometheus.CounterVec
	validationTime *prometheus.HistogramVec
	dnsLookupTime  prometheus.Histogram
	activeRequests prometheus.Gauge

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewCollector creates a Collector registered on the default registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, logger)
}

// NewCollectorWithRegistry creates a Collector with a custom registry (used in tests)
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, gatherer prometheus.Gatherer, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger}

	c.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Validation decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	c.validationTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "validation_duration_seconds",
			Help:      "Time taken to validate a URL",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	c.dnsLookupTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "dns_lookup_duration_seconds",
			Help:      "Time spent in DNS resolution during validation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	c.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "active_requests",
			Help:      "Validation requests currently in flight",
		},
	)

	registerer.MustRegister(c.decisionsTotal, c.validationTime, c.dnsLookupTime, c.activeRequests)

	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)

	return c
}

// RecordDecision records one validation decision
func (c *Collector) RecordDecision(safe bool, reason string, mode string, duration time.Duration) {
	outcome := "blocked"
	if safe {
		outcome = "safe"
		reason = ""
	}
	c.decisionsTotal.WithLabelValues(outcome, reason).Inc()
	c.validationTime.WithLabelValues(mode).Observe(duration.Seconds())

	c.logger.Debug("Recorded decision metric",
		zap.String("outcome", outcome),
		zap.String("reason", reason),
		zap.String("mode", mode),
		zap.Duration("duration", duration))
}

// ObserveDNSLookup records the duration of a DNS resolution
func (c *Collector) ObserveDNSLookup(duration time.Duration) {
	c.dnsLookupTime.Observe(duration.Seconds())
}

// IncActiveRequests increments the in-flight request gauge
func (c *Collector) IncActiveRequests() {
	c.activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight request gauge
func (c *Collector) DecActiveRequests() {
	c.activeRequests.Dec()
}

// ServeHTTP serves the Prometheus exposition endpoint over fasthttp
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}
