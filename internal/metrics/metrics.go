// Package metrics provides Prometheus collectors for the client: transfer
// outcomes, request counts, and listing refreshes. Collectors live on a
// private registry and are exported as a node_exporter textfile.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds every metric the client exports.
type Collectors struct {
	registry *prometheus.Registry

	transfersTotal  *prometheus.CounterVec
	transferBytes   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshDuration prometheus.Histogram
	refreshFailures prometheus.Counter
	listingEntries  prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,

		// Transfer metrics
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clouddrive_transfers_total",
				Help: "Total number of finished transfers",
			},
			[]string{"kind", "status"},
		),
		transferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clouddrive_transfer_bytes_total",
				Help: "Total bytes moved by successful transfers",
			},
			[]string{"kind"},
		),

		// Transport metrics
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clouddrive_requests_total",
				Help: "Total number of API requests by method and status class",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clouddrive_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		// Listing metrics
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clouddrive_listing_refresh_duration_seconds",
				Help:    "Time to fetch the full file listing",
				Buckets: prometheus.DefBuckets,
			},
		),
		refreshFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "clouddrive_listing_refresh_failures_total",
				Help: "Total number of failed listing refreshes",
			},
		),
		listingEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "clouddrive_listing_entries",
				Help: "Number of entries in the last successful listing",
			},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// TransferFinished records a terminal transfer.
func (c *Collectors) TransferFinished(kind, status string, bytes int64) {
	c.transfersTotal.WithLabelValues(kind, status).Inc()

	if bytes > 0 {
		c.transferBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// RequestDone records one API round trip. status 0 means no response.
func (c *Collectors) RequestDone(method string, status int, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RefreshDone records a listing refresh attempt.
func (c *Collectors) RefreshDone(elapsed time.Duration, count int, err error) {
	c.refreshDuration.Observe(elapsed.Seconds())

	if err != nil {
		c.refreshFailures.Inc()
		return
	}

	c.listingEntries.Set(float64(count))
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The write is atomic, so a concurrently scraping collector never sees a
// partial file.
func (c *Collectors) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: writing %s: %w", path, err)
	}

	return nil
}

// statusClass collapses an HTTP status to "2xx", "4xx", ... or "error".
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}

	return strconv.Itoa(status/100) + "xx"
}
