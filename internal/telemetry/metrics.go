// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transcript"

// =============================================================================
// COLLECTOR
// =============================================================================

// Collector owns every metric the application exports. It satisfies the
// metrics hooks of the transcript store, the sqlite storage layer and the
// HTTP server.
type Collector struct {
	registry *prometheus.Registry

	mutations     *prometheus.CounterVec
	notifications prometheus.Counter
	notifyLatency prometheus.Histogram
	subscribers   prometheus.Gauge
	cacheLookups  *prometheus.CounterVec
	storageWrites *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// New creates a Collector backed by its own registry, with the Go runtime
// and process collectors included.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Transcript store mutations by operation.",
		}, []string{"op"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "notifications_total",
			Help:      "Notification passes delivered to subscribers.",
		}),
		notifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "notification_seconds",
			Help:      "Time spent in a notification pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "subscribers",
			Help:      "Subscribers reached by the last notification pass.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Derived-view cache lookups by view and result.",
		}, []string{"view", "result"}),
		storageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "message_writes_total",
			Help:      "Message upserts by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.mutations,
		c.notifications,
		c.notifyLatency,
		c.subscribers,
		c.cacheLookups,
		c.storageWrites,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// HOOKS
// =============================================================================

// ObserveMutation counts one store mutation.
func (c *Collector) ObserveMutation(op string) {
	c.mutations.WithLabelValues(op).Inc()
}

// ObserveNotification records one notification pass.
func (c *Collector) ObserveNotification(subscribers int, took time.Duration) {
	c.notifications.Inc()
	c.subscribers.Set(float64(subscribers))
	c.notifyLatency.Observe(took.Seconds())
}

// ObserveCache records a derived-view cache lookup.
func (c *Collector) ObserveCache(view string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(view, result).Inc()
}

// ObserveWrites records how many messages a save wrote and how many it
// skipped because their content was unchanged.
func (c *Collector) ObserveWrites(written, skipped int) {
	c.storageWrites.WithLabelValues("written").Add(float64(written))
	c.storageWrites.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int, took time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(took.Seconds())
}
