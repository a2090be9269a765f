package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "resolutions_total",
		Help:      "Resolution calls by path (register, identify) and terminal result",
	}, []string{"path", "result"})

	ResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "resolution_duration_seconds",
		Help:      "Duration of resolution calls including extraction",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"path"})

	GalleryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "gallery_cache_total",
		Help:      "Gallery cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "gallery_size",
		Help:      "Number of signatures in the last loaded gallery",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "queue_depth",
		Help:      "Messages waiting on the worker queue",
	})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "messages_consumed_total",
		Help:      "Broker messages by routing key and disposition (ack, nak, term)",
	}, []string{"routing_key", "outcome"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "events_published_total",
		Help:      "Outcome events published by routing key and status",
	}, []string{"routing_key", "status"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
