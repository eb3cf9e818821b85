// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the billing counters.
type Metrics struct {
	registry *prometheus.Registry

	PaymentsCreated      *prometheus.CounterVec
	WebhookDeliveries    *prometheus.CounterVec
	AccessDenials        *prometheus.CounterVec
	OrphanReviews        *prometheus.CounterVec
	ManualReviews        *prometheus.CounterVec
	Refunds              prometheus.Counter
	SubscriptionsExpired prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PaymentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payments_created_total",
				Help: "Payment creation attempts by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_deliveries_total",
				Help: "Gateway webhook deliveries by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		AccessDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_access_denials_total",
				Help: "Access guard denials by reason",
			},
			[]string{"reason"},
		),
		OrphanReviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_orphan_reviews_total",
				Help: "Orphan verification review decisions",
			},
			[]string{"decision"},
		),
		ManualReviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_manual_payment_reviews_total",
				Help: "Operator decisions on manual PKR transfers",
			},
			[]string{"decision"},
		),
		Refunds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_refunds_total",
				Help: "Admin refunds issued",
			},
		),
		SubscriptionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_subscriptions_expired_total",
				Help: "Paid subscriptions moved to expired by the scheduler",
			},
		),
	}

	registry.MustRegister(
		m.PaymentsCreated,
		m.WebhookDeliveries,
		m.AccessDenials,
		m.OrphanReviews,
		m.ManualReviews,
		m.Refunds,
		m.SubscriptionsExpired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below accept a nil receiver so services can run without metrics.

func (m *Metrics) PaymentCreated(gateway, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsCreated.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) WebhookDelivered(gateway, outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) AccessDenied(reason string) {
	if m == nil {
		return
	}
	m.AccessDenials.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrphanReviewed(decision string) {
	if m == nil {
		return
	}
	m.OrphanReviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) ManualReviewed(decision string) {
	if m == nil {
		return
	}
	m.ManualReviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) Refunded() {
	if m == nil {
		return
	}
	m.Refunds.Inc()
}

func (m *Metrics) Expired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SubscriptionsExpired.Add(float64(n))
}
