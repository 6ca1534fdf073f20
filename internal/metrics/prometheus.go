package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	runDuration   *prom.HistogramVec
	stageDuration *prom.HistogramVec
	runResults    *prom.CounterVec
	notifications *prom.CounterVec
	sessions      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "siteforge",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of pipeline runs by category",
			Buckets:   prom.DefBuckets,
		}, []string{"category"}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "siteforge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual transform stages",
			Buckets:   prom.DefBuckets,
		}, []string{"category", "stage"}),
		runResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by category and outcome",
		}, []string{"category", "outcome"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "livereload_notifications_total",
			Help:      "Live reload broadcasts by message type",
		}, []string{"type"}),
		sessions: prom.NewGauge(prom.GaugeOpts{
			Namespace: "siteforge",
			Name:      "livereload_sessions",
			Help:      "Connected live reload sessions",
		}),
	}
	reg.MustRegister(pr.runDuration, pr.stageDuration, pr.runResults, pr.notifications, pr.sessions)
	return pr
}

func (p *PrometheusRecorder) ObserveRun(category string, d time.Duration, outcome Outcome) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(category).Observe(d.Seconds())
	p.runResults.WithLabelValues(category, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveStage(category, stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(category, stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncNotification(kind string) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetSessions(n int) {
	if p == nil {
		return
	}
	p.sessions.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves metrics for reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
