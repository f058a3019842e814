package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Device metrics
	DeviceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletkit_device_operations_total",
			Help: "Total number of device round-trips",
		},
		[]string{"operation", "status"},
	)

	DeviceOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletkit_device_operation_duration_seconds",
			Help:    "Time spent waiting on the device, including user confirmation",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		},
		[]string{"operation"},
	)

	ScanBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletkit_account_scan_batches_total",
			Help: "Total number of account batches derived from a device",
		},
		[]string{"scheme", "status"},
	)

	// Error metrics
	ClassifiedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletkit_classified_errors_total",
			Help: "Errors returned by wallet strategies, by kind and operation",
		},
		[]string{"kind", "module"},
	)

	// Chain metrics
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletkit_broadcasts_total",
			Help: "Signed transactions submitted to the chain",
		},
		[]string{"chain_id", "status"},
	)

	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletkit_rpc_requests_total",
			Help: "JSON-RPC calls made to chain endpoints",
		},
		[]string{"chain", "method", "status"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletkit_rpc_request_duration_seconds",
			Help:    "JSON-RPC call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)
)
