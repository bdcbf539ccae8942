// Package metrics provides Prometheus metrics for dnsswitcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "dnsswitcher"

var (
	// BuildInfo is always 1, labelled with version information.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "go_version"})

	// OperationsTotal counts engine operations by operation and result
	// (success, conflict, rejected, channel_failure, error).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "operations_total",
		Help:      "Reconciliation operations by operation and result.",
	}, []string{"operation", "result"})

	// OperationDuration observes engine operation latency, including the wait
	// for the device transaction slot.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Reconciliation operation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// DeviceCommandsTotal counts device commands by path and outcome
	// (done, trap, fatal, channel_failure).
	DeviceCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_commands_total",
		Help:      "Commands sent to the device by command and outcome.",
	}, []string{"command", "outcome"})

	// ConflictsTotal counts refused operations on records owned by another tool.
	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "conflicts_total",
		Help:      "Ownership conflicts by record kind.",
	}, []string{"kind"})

	// DeviceConnected is 1 while a device connection is open.
	DeviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "device_connected",
		Help:      "Whether a device connection is currently open (1) or not (0).",
	})

	// DeviceDialsTotal counts connection attempts by result.
	DeviceDialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_dials_total",
		Help:      "Device connection attempts by result.",
	}, []string{"result"})

	// HTTPRequestsTotal counts API requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests by route, method and status code.",
	}, []string{"route", "method", "code"})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
