package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the anamnesis service.
type Metrics struct {
	reg prometheus.Gatherer

	// Capture sessions
	ActiveSessions  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	FramesCaptured  prometheus.Counter
	RecordingBytes  prometheus.Histogram
	RecordingsSaved prometheus.Counter

	// Transcription
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// Summarization
	SummarizationRequests *prometheus.CounterVec
	CompletionDuration    *prometheus.HistogramVec

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all metrics on reg. A nil reg uses a fresh registry, which
// keeps tests from colliding on the global default.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "anamnesis_capture_sessions_active",
			Help: "Current number of open capture sessions",
		}),
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anamnesis_capture_sessions_total",
			Help: "Capture sessions by outcome",
		}, []string{"outcome"}),
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "anamnesis_frames_captured_total",
			Help: "Total number of audio frames accumulated by capture loops",
		}),
		RecordingBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "anamnesis_recording_size_bytes",
			Help:    "Size of assembled recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		RecordingsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "anamnesis_recordings_saved_total",
			Help: "Total number of recordings written to the store",
		}),

		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anamnesis_transcription_requests_total",
			Help: "Transcription requests by format and result",
		}, []string{"format", "result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "anamnesis_transcription_duration_seconds",
			Help:    "Time spent waiting on the speech recognizer",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),

		SummarizationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anamnesis_summarization_requests_total",
			Help: "Summarization requests by result",
		}, []string{"result"}),
		CompletionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anamnesis_completion_duration_seconds",
			Help:    "Language model completion latency per summarizer task",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"task"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anamnesis_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anamnesis_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Result labels a request outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
