// Package metrics exposes the pipeline's Prometheus instrumentation:
// per-stage counters, latency histograms, and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every counter/histogram/gauge the pipeline increments.
// A single instance is constructed at startup and threaded through the
// components that need it; there are no package-level singletons.
type Registry struct {
	reg *prometheus.Registry

	SSIMCalls      prometheus.Counter
	PHashRejected  prometheus.Counter
	EventsSent     *prometheus.CounterVec // labeled by priority
	EventsDropped  prometheus.Counter
	EventsGated    prometheus.Counter
	EventsFailed   prometheus.Counter
	OCRErrors      prometheus.Counter
	OCRCacheHits   prometheus.Counter
	OCRCacheMisses prometheus.Counter

	StageDuration *prometheus.HistogramVec // labeled by "stage": detect|ocr|send

	QueueDepth   prometheus.Gauge
	CacheSize    prometheus.Gauge
	StableCells  prometheus.Gauge
}

// New constructs a fresh prometheus.Registry and registers every metric
// against it, not the global DefaultRegisterer, so multiple Registry
// instances (one per test, or one per orchestrator instance) never
// collide on duplicate registration.
func New() *Registry {
	reg := prometheus.NewRegistry()
	return NewWithRegisterer(reg)
}

// Registerer returns the underlying collector, for wiring an HTTP
// /metrics handler (promhttp.HandlerFor(r.Registerer(), ...)).
func (r *Registry) Registerer() *prometheus.Registry { return r.reg }

// NewWithRegisterer builds a Registry against a caller-supplied registry.
func NewWithRegisterer(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		SSIMCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "ssim_calls_total",
			Help:      "Total number of SSIM comparisons computed by the change detector.",
		}),
		PHashRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "phash_rejected_total",
			Help:      "Total number of frames rejected by the perceptual-hash fast gate.",
		}),
		EventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "events_sent_total",
			Help:      "Total number of SenseEvents delivered by the sender, by priority.",
		}, []string{"priority"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to queue overflow or exhausted retries.",
		}),
		EventsGated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "events_gated_total",
			Help:      "Total number of candidates rejected by the decision gate (dedup/quality/cooldown).",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "events_failed_total",
			Help:      "Total number of send attempts that failed after exhausting retries.",
		}),
		OCRErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "ocr_errors_total",
			Help:      "Total number of OCR backend invocations that returned an error.",
		}),
		OCRCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "ocr_cache_hits_total",
			Help:      "Total number of OCR cache hits.",
		}),
		OCRCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensed",
			Name:      "ocr_cache_misses_total",
			Help:      "Total number of OCR cache misses.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sensed",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage pipeline latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"stage"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensed",
			Name:      "sender_queue_depth",
			Help:      "Current number of events staged in the sender's priority queue.",
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensed",
			Name:      "ocr_cache_size",
			Help:      "Current number of entries in the OCR result cache.",
		}),
		StableCells: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensed",
			Name:      "region_tracker_stable_cells",
			Help:      "Current number of grid cells RegionTracker considers stable.",
		}),
	}
}

// IncSSIMCalls satisfies changedetector.Metrics.
func (r *Registry) IncSSIMCalls() { r.SSIMCalls.Inc() }

// IncPHashRejected satisfies changedetector.Metrics.
func (r *Registry) IncPHashRejected() { r.PHashRejected.Inc() }

// ObserveStage records a stage-latency sample in seconds.
func (r *Registry) ObserveStage(stage string, seconds float64) {
	r.StageDuration.WithLabelValues(stage).Observe(seconds)
}
