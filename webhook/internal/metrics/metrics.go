package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook request metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_events_total",
			Help: "Total number of webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_event_bytes_total",
			Help: "Total bytes of webhook payloads received",
		},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_rejections_total",
			Help: "Total number of rejected deliveries by error kind",
		},
		[]string{"kind"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haulwatch_webhook_pipeline_duration_seconds",
			Help:    "Duration of parse, normalize, enrich and persist for one delivery",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Normalization metrics
	RelaxedGeometry = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_relaxed_geometry_total",
			Help: "Events accepted without coordinates because their geometry was invalid",
		},
	)

	// Source-to-ingest lag; the gap between device time and process time.
	IngestLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haulwatch_webhook_ingest_lag_seconds",
			Help:    "Difference between process_timestamp and event createdAt",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900, 3600},
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "haulwatch_webhook_storage_duration_seconds",
			Help:    "Duration of sink append operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_storage_errors_total",
			Help: "Total number of sink errors",
		},
		[]string{"backend"},
	)

	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_duplicates_total",
			Help: "Deliveries whose identity was already stored",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_dispatch_total",
			Help: "Dispatch decisions by event type and result",
		},
		[]string{"event_type", "result"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haulwatch_webhook_dispatch_duration_seconds",
			Help:    "Duration of bus publish calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Dead letter queue metrics
	DLQWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_dlq_written_total",
			Help: "Failed dispatches written to the dead letter queue",
		},
	)

	DLQRedispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_dlq_redispatched_total",
			Help: "Dead letter entries replayed to the bus by result",
		},
		[]string{"result"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haulwatch_webhook_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
