package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound gateway notification outcomes.
type WebhookMetrics struct {
	processed  *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Gateway webhook events applied to internal state.",
	}, []string{"gateway", "callback_type"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Gateway webhook events skipped as already processed.",
	}, []string{"gateway"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Gateway webhook events that could not be applied.",
	}, []string{"gateway"})
	reg.MustRegister(processed, duplicates, failures)
	return &WebhookMetrics{
		processed:  processed,
		duplicates: duplicates,
		failures:   failures,
	}
}

// IncProcessed increments the processed counter for a gateway/callback pair.
func (w *WebhookMetrics) IncProcessed(gateway, callbackType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(gateway), normalizeLabel(callbackType)).Inc()
}

// IncDuplicate increments the duplicate counter for a gateway.
func (w *WebhookMetrics) IncDuplicate(gateway string) {
	if w == nil || w.duplicates == nil {
		return
	}
	w.duplicates.WithLabelValues(normalizeLabel(gateway)).Inc()
}

// IncFailed increments the failure counter for a gateway.
func (w *WebhookMetrics) IncFailed(gateway string) {
	if w == nil || w.failures == nil {
		return
	}
	w.failures.WithLabelValues(normalizeLabel(gateway)).Inc()
}
