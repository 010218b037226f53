// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts decoded frames by interface and ethertype
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_frames_received_total",
			Help: "Total number of frames received and decoded",
		},
		[]string{"interface", "ethertype"},
	)

	// FramesSentTotal counts frames written to the device
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_frames_sent_total",
			Help: "Total number of frames sent",
		},
		[]string{"interface", "ethertype"},
	)

	// DecodeErrorsTotal counts frames that failed to decode
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_decode_errors_total",
			Help: "Total number of frames that failed to decode",
		},
		[]string{"interface"},
	)

	// FramesDroppedTotal counts frames a layer received but did not deliver
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_frames_dropped_total",
			Help: "Total number of frames discarded by a layer",
		},
		[]string{"interface", "layer"},
	)

	// ARPRequestsSentTotal counts broadcast ARP requests
	ARPRequestsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_arp_requests_sent_total",
			Help: "Total number of ARP requests sent",
		},
		[]string{"interface"},
	)

	// ARPRepliesSentTotal counts ARP replies answering requests for our address
	ARPRepliesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_arp_replies_sent_total",
			Help: "Total number of ARP replies sent",
		},
		[]string{"interface"},
	)

	// ARPResolveTotal counts resolutions by outcome (cached, resolved, timeout, canceled, error)
	ARPResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendium_arp_resolve_total",
			Help: "Total number of address resolutions by result",
		},
		[]string{"interface", "result"},
	)

	// ARPCacheEntries tracks the neighbor table size
	ARPCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tendium_arp_cache_entries",
			Help: "Current number of entries in the ARP cache",
		},
		[]string{"interface"},
	)

	// ARPResolveSeconds measures time spent resolving uncached addresses
	ARPResolveSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tendium_arp_resolve_seconds",
			Help:    "Latency of ARP resolution in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"interface"},
	)
)

// Resolve results
const (
	ResultCached   = "cached"
	ResultResolved = "resolved"
	ResultTimeout  = "timeout"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

// Layer labels for FramesDroppedTotal
const (
	LayerLink     = "link"
	LayerInternet = "internet"
	LayerARP      = "arp"
)
