// Package metrics exposes the server's Prometheus instrumentation. Counters
// register against the default registry; the monitor API serves them on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "patchwork"

var (
	// FramesDecoded counts inbound frames successfully decoded, by packet name.
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_decoded_total",
		Help:      "Inbound frames decoded, by packet type",
	}, []string{"packet"})

	// DecodeErrors counts frames that failed to decode.
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Frames that failed to decode",
	})

	// UnknownPackets counts frames whose (state, id) pair is not registered.
	UnknownPackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_packets_total",
		Help:      "Frames decoded to the Unknown packet",
	})

	// PacketsSent counts successful socket writes.
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Packets written to sockets",
	})

	// SendErrors counts failed socket writes.
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Socket writes that failed",
	})

	// Broadcasts counts broadcast operations processed by the messenger.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Broadcast operations processed",
	})

	// BorderCrossings counts completed re-anchors, by kind (local, remote).
	BorderCrossings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "border_crossings_total",
		Help:      "Players re-anchored to a different shard, by shard kind",
	}, []string{"kind"})

	// BorderCrossFailures counts crossings aborted by a peer dial failure.
	BorderCrossFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "border_cross_failures_total",
		Help:      "Border crossings aborted because the peer was unreachable",
	})

	// ActiveConnections tracks accepted player connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Currently open inbound connections",
	})
)
