// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics registers and serves the proxy's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks per-operation request counts and upstream call latency.
type Metrics struct {
	registry *prometheus.Registry

	// requestsTotal counts completed operations by outcome status.
	requestsTotal *prometheus.CounterVec
	// upstreamDuration observes the timed upstream call of each operation.
	upstreamDuration *prometheus.HistogramVec
}

// New creates the metric vectors and registers them, together with the
// standard process and Go runtime collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ghcp",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxy operations processed",
			},
			[]string{"operation", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ghcp",
				Subsystem: "proxy",
				Name:      "upstream_duration_seconds",
				Help:      "Duration of the timed upstream call per operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest counts one completed operation with its response status.
func (m *Metrics) RecordRequest(operation string, status int) {
	m.requestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records the wall-clock duration of an upstream call.
func (m *Metrics) ObserveUpstream(operation string, elapsed time.Duration) {
	m.upstreamDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
