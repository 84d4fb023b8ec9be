package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	DeliberationsTotal *prometheus.CounterVec
	StageLatency       *prometheus.HistogramVec
	ProviderRequests   *prometheus.CounterVec
	WebhookDeliveries  *prometheus.CounterVec
	JobsActive         prometheus.Gauge
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		DeliberationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "councilhub_deliberations_total",
			Help: "Completed council deliberations by outcome",
		}, []string{"status", "final_only"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "councilhub_stage_latency_seconds",
			Help:    "Latency per deliberation stage",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"stage"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "councilhub_provider_requests_total",
			Help: "Provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "councilhub_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		}, []string{"outcome"}),
		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "councilhub_jobs_active",
			Help: "Jobs currently pending or running",
		}),
	}
	reg.MustRegister(m.DeliberationsTotal, m.StageLatency, m.ProviderRequests, m.WebhookDeliveries, m.JobsActive)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
