// Package metrics exposes the application-level Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated       prometheus.Counter
	CheckoutFailures    *prometheus.CounterVec
	SubOrderTransitions *prometheus.CounterVec
	InvoicesGenerated   prometheus.Counter
	PayoutsRecorded     prometheus.Counter
	InvoicesPaid        prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matbakh_orders_created_total",
			Help: "Orders successfully decomposed at checkout.",
		}),
		CheckoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matbakh_checkout_failures_total",
			Help: "Checkout attempts rejected, by reason.",
		}, []string{"reason"}),
		SubOrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matbakh_sub_order_transitions_total",
			Help: "Sub-order lifecycle transitions, by target status.",
		}, []string{"to"}),
		InvoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matbakh_invoices_generated_total",
			Help: "Monthly settlement invoices generated.",
		}),
		PayoutsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matbakh_payouts_recorded_total",
			Help: "Payout ledger entries recorded.",
		}),
		InvoicesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matbakh_invoices_paid_total",
			Help: "Invoices that reached the paid state.",
		}),
	}

	registry.MustRegister(
		m.OrdersCreated,
		m.CheckoutFailures,
		m.SubOrderTransitions,
		m.InvoicesGenerated,
		m.PayoutsRecorded,
		m.InvoicesPaid,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
