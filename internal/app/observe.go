package app

import (
	"strconv"

	"github.com/jordanhubbard/councilhub/internal/metrics"
)

// providerMetrics adapts the prometheus registry to router.MetricsRecorder.
type providerMetrics struct {
	m *metrics.Registry
}

func (p *providerMetrics) ProviderRequest(provider, outcome string) {
	p.m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// deliberationMetrics adapts the registry to council.StageObserver.
type deliberationMetrics struct {
	m *metrics.Registry
}

func (d *deliberationMetrics) ObserveStage(stage string, seconds float64) {
	d.m.StageLatency.WithLabelValues(stage).Observe(seconds)
}

func (d *deliberationMetrics) DeliberationDone(status string, finalOnly bool) {
	d.m.DeliberationsTotal.WithLabelValues(status, strconv.FormatBool(finalOnly)).Inc()
}

// webhookMetrics adapts the registry to webhook.DeliveryRecorder.
type webhookMetrics struct {
	m *metrics.Registry
}

func (w *webhookMetrics) WebhookDelivery(outcome string) {
	w.m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}
