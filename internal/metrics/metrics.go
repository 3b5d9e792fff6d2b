// Package metrics holds the Prometheus instruments for manager operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foundryctl",
			Subsystem: "manager",
			Name:      "downloads_total",
			Help:      "Total model downloads by terminal status",
		},
		[]string{"status"},
	)

	downloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "foundryctl",
			Subsystem: "manager",
			Name:      "download_bytes_total",
			Help:      "Total bytes transferred by completed downloads",
		},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foundryctl",
			Subsystem: "manager",
			Name:      "loads_total",
			Help:      "Total model load requests by outcome",
		},
		[]string{"status"},
	)

	serviceStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "foundryctl",
			Subsystem: "supervisor",
			Name:      "service_start_seconds",
			Help:      "Time from start request to a healthy daemon",
			Buckets:   prometheus.DefBuckets,
		},
	)

	healthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foundryctl",
			Subsystem: "supervisor",
			Name:      "health_probes_total",
			Help:      "Health probes issued against the daemon",
		},
		[]string{"outcome"},
	)

	inflightDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "foundryctl",
			Subsystem: "manager",
			Name:      "inflight_downloads",
			Help:      "Downloads currently in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(
		downloadsTotal,
		downloadBytesTotal,
		loadsTotal,
		serviceStartDuration,
		healthProbesTotal,
		inflightDownloads,
	)
}

// DownloadStarted marks a transfer as in flight.
func DownloadStarted() { inflightDownloads.Inc() }

// DownloadFinished records the terminal status of a transfer.
func DownloadFinished(status string, bytes int64) {
	inflightDownloads.Dec()
	downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		downloadBytesTotal.Add(float64(bytes))
	}
}

// LoadFinished records the outcome of a load request.
func LoadFinished(status string) { loadsTotal.WithLabelValues(status).Inc() }

// ServiceStarted records how long the daemon took to become healthy.
func ServiceStarted(d time.Duration) { serviceStartDuration.Observe(d.Seconds()) }

// HealthProbe records one probe outcome ("ok" or "fail").
func HealthProbe(outcome string) { healthProbesTotal.WithLabelValues(outcome).Inc() }
