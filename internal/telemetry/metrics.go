/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the player and its room session.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesPublished counts audio frames handed to the room track.
	FramesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_frames_published_total",
		Help: "Audio frames published into the media room",
	})

	// FramesDropped counts frames discarded while the room was unreachable.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_frames_dropped_total",
		Help: "Audio frames dropped while disconnected from the media room",
	})

	// DecoderRestarts counts transcoder process (re)starts by reason.
	DecoderRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_decoder_restarts_total",
		Help: "Transcoder subprocess starts, labelled by reason",
	}, []string{"reason"})

	// RoomConnectAttempts counts room connection attempts by outcome.
	RoomConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_room_connect_attempts_total",
		Help: "Media room connection attempts, labelled by outcome",
	}, []string{"outcome"})

	// RoomConnected reports whether the room session is currently up.
	RoomConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bragi_room_connected",
		Help: "1 while the media room session is established",
	})

	// MetadataPolls counts ICY metadata poll cycles by outcome.
	MetadataPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_metadata_polls_total",
		Help: "ICY metadata poll cycles, labelled by outcome",
	}, []string{"outcome"})

	// QueueLength reports the current request queue depth.
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bragi_queue_length",
		Help: "Entries currently in the request queue",
	})

	// APIRequestDuration tracks control API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bragi_api_request_duration_seconds",
		Help:    "Control API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight control API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bragi_api_active_connections",
		Help: "In-flight control API requests",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
