// Package metrics exposes netsniff counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all netsniff Prometheus metrics
type Metrics struct {
	// Fast path
	PacketsDecoded  prometheus.Counter
	PacketsDropped  prometheus.Counter
	PacketsFiltered prometheus.Counter
	BytesAccepted   prometheus.Counter

	// Devices
	DevicesTracked prometheus.Gauge
	DevicesPruned  prometheus.Counter

	// Classification
	Classifications      *prometheus.CounterVec
	ClassificationErrors prometheus.Counter
	ScanDuration         prometheus.Histogram

	// Publishing
	PublishErrors prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_packets_decoded_total",
			Help: "Total number of IPv4 packets decoded",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_packets_dropped_total",
			Help: "Total number of frames rejected by the header decoder",
		}),
		PacketsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_packets_filtered_total",
			Help: "Total number of decoded packets rejected by the packet filter",
		}),
		BytesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_bytes_accepted_total",
			Help: "Total bytes of packets that passed the filter",
		}),
		DevicesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netsniff_devices_tracked",
			Help: "Number of addresses with a traffic profile",
		}),
		DevicesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_devices_pruned_total",
			Help: "Total number of idle devices evicted",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netsniff_classifications_total",
			Help: "Total number of device classifications by winning method",
		}, []string{"method"}),
		ClassificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_classification_errors_total",
			Help: "Total number of device classifications that failed",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netsniff_classification_scan_seconds",
			Help:    "Duration of classification scans",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsniff_publish_errors_total",
			Help: "Total number of classification events that could not be published",
		}),
	}

	reg.MustRegister(
		m.PacketsDecoded,
		m.PacketsDropped,
		m.PacketsFiltered,
		m.BytesAccepted,
		m.DevicesTracked,
		m.DevicesPruned,
		m.Classifications,
		m.ClassificationErrors,
		m.ScanDuration,
		m.PublishErrors,
	)
	return m
}

// ObserveScan records the outcome of one classification scan. methods
// holds the method label of every successful classification.
func (m *Metrics) ObserveScan(took time.Duration, methods []string, failed int) {
	m.ScanDuration.Observe(took.Seconds())
	for _, method := range methods {
		if method == "" {
			method = "none"
		}
		m.Classifications.WithLabelValues(method).Inc()
	}
	m.ClassificationErrors.Add(float64(failed))
}
