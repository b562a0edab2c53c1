package metrics

import (
	"net/http"

	"marketplace-orders/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry       *prometheus.Registry
	checkouts      *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	outboxTasks    *prometheus.CounterVec
	refunds        *prometheus.CounterVec
	statusMismatch prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "payment_webhook_events_total",
			Help:      "Payment gateway webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		outboxTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "outbox_tasks_total",
			Help:      "Outbox task attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "refunds_total",
			Help:      "Gateway refund calls by outcome.",
		}, []string{"outcome"}),
		statusMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "status_mismatch_total",
			Help:      "Orders whose stored status disagreed with their items.",
		}),
	}
	c.registry.MustRegister(
		c.checkouts,
		c.webhookEvents,
		c.outboxTasks,
		c.refunds,
		c.statusMismatch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Checkout(outcome string) {
	c.checkouts.WithLabelValues(outcome).Inc()
}

func (c *Collector) WebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) TaskFinished(kind domain.TaskKind, outcome string) {
	c.outboxTasks.WithLabelValues(string(kind), outcome).Inc()
}

func (c *Collector) Refund(outcome string) {
	c.refunds.WithLabelValues(outcome).Inc()
}

func (c *Collector) StatusMismatch() {
	c.statusMismatch.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
