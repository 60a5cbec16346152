// Package metrics exposes Prometheus counters and gauges for the request
// surface and the backend pool, served over an HTTP handler mounted
// alongside the rest of internal/httpapi's routes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LabelModel     = "model"
	LabelEndpoint  = "endpoint"
	LabelStatus    = "status"
	LabelRecipe    = "recipe"
	LabelTokenKind = "kind"

	TokenKindPrompt     = "prompt"
	TokenKindCompletion = "completion"
)

// Metrics holds every collector this gateway reports. Each Metrics value
// owns a private registry so constructing more than one (as tests do)
// never triggers prometheus's duplicate-registration panic.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TokensTotal     *prometheus.CounterVec

	ModelsLoaded    prometheus.Gauge
	BackendStartup  *prometheus.HistogramVec
	DownloadsActive prometheus.Gauge
	DownloadBytes   *prometheus.CounterVec
}

// New constructs a Metrics instance registered to its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonade_gateway_requests_total",
			Help: "Total inference and admin requests handled, by model, endpoint and outcome.",
		}, []string{LabelModel, LabelEndpoint, LabelStatus}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lemonade_gateway_request_duration_seconds",
			Help:    "Request handling latency, by model and endpoint.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{LabelModel, LabelEndpoint}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonade_gateway_tokens_total",
			Help: "Prompt and completion tokens processed, by model.",
		}, []string{LabelModel, LabelTokenKind}),

		ModelsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "lemonade_gateway_models_loaded",
			Help: "Number of backend subprocesses currently loaded.",
		}),

		BackendStartup: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lemonade_gateway_backend_startup_duration_seconds",
			Help:    "Time from spawning a backend subprocess to its readiness probe succeeding, by recipe.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{LabelRecipe}),

		DownloadsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "lemonade_gateway_downloads_active",
			Help: "Number of model pulls currently in progress.",
		}),

		DownloadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonade_gateway_download_bytes_total",
			Help: "Bytes downloaded while pulling model checkpoints, by model.",
		}, []string{LabelModel}),
	}
}

// Handler returns the http.Handler that serves this instance's collectors
// in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed request's outcome and latency.
func (m *Metrics) RecordRequest(model, endpoint, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(model, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(model, endpoint).Observe(d.Seconds())
}

// RecordTokens records prompt/completion token counts for one request.
func (m *Metrics) RecordTokens(model string, promptTokens, completionTokens int64) {
	if promptTokens > 0 {
		m.TokensTotal.WithLabelValues(model, TokenKindPrompt).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.TokensTotal.WithLabelValues(model, TokenKindCompletion).Add(float64(completionTokens))
	}
}

// RecordBackendStartup records how long a backend took to become ready.
func (m *Metrics) RecordBackendStartup(recipe string, d time.Duration) {
	m.BackendStartup.WithLabelValues(recipe).Observe(d.Seconds())
}

// SetModelsLoaded reports the current loaded-model count.
func (m *Metrics) SetModelsLoaded(n int) {
	m.ModelsLoaded.Set(float64(n))
}

// DownloadStarted/DownloadFinished bracket one pull's lifetime.
func (m *Metrics) DownloadStarted()  { m.DownloadsActive.Inc() }
func (m *Metrics) DownloadFinished() { m.DownloadsActive.Dec() }

// RecordDownloadBytes accumulates bytes transferred for one model's pull.
func (m *Metrics) RecordDownloadBytes(model string, n int64) {
	if n > 0 {
		m.DownloadBytes.WithLabelValues(model).Add(float64(n))
	}
}
