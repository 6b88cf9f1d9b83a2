package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for the voicebot service. All methods are
// safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	Submissions           *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	CompletionDuration    prometheus.Histogram
	Resets                prometheus.Counter
	ActiveSessions        prometheus.Gauge
	JournalErrors         prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_submissions_total",
			Help: "Submissions by outcome code",
		}, []string{"outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_transcription_duration_seconds",
			Help:    "Time spent transcribing submitted audio",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		CompletionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_completion_duration_seconds",
			Help:    "Time spent waiting on the chat completion service",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_resets_total",
			Help: "Conversation resets triggered by users",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicebot_active_sessions",
			Help: "Sessions currently held in memory",
		}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_journal_errors_total",
			Help: "Failed writes to the turn journal",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTranscription(seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(seconds)
}

func (m *Metrics) ObserveCompletion(seconds float64) {
	if m == nil {
		return
	}
	m.CompletionDuration.Observe(seconds)
}

func (m *Metrics) RecordReset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) RecordJournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
