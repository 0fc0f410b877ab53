package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking lifecycle.
// All methods are safe on a nil receiver so wiring stays optional in tests.
type BookingMetrics struct {
	bookingsCreated      *prometheus.CounterVec
	bookingsConfirmed    prometheus.Counter
	bookingsCancelled    prometheus.Counter
	webhookEvents        *prometheus.CounterVec
	checkoutLatency      prometheus.Histogram
	compensationFailures prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healguid",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Total booking creation attempts by outcome",
		}, []string{"outcome"}),
		bookingsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healguid",
			Subsystem: "bookings",
			Name:      "confirmed_total",
			Help:      "Total bookings confirmed via payment events",
		}),
		bookingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healguid",
			Subsystem: "bookings",
			Name:      "cancelled_total",
			Help:      "Total bookings cancelled",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healguid",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Total payment webhook deliveries by type and outcome",
		}, []string{"event_type", "outcome"}),
		checkoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "healguid",
			Subsystem: "payments",
			Name:      "checkout_latency_seconds",
			Help:      "Latency of checkout session creation",
			Buckets:   prometheus.DefBuckets,
		}),
		compensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healguid",
			Subsystem: "bookings",
			Name:      "compensation_failures_total",
			Help:      "Bookings left inconsistent after a failed compensating update",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsCreated,
		m.bookingsConfirmed,
		m.bookingsCancelled,
		m.webhookEvents,
		m.checkoutLatency,
		m.compensationFailures,
	)
	return m
}

func (m *BookingMetrics) ObserveBookingCreated(outcome string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveBookingConfirmed() {
	if m == nil {
		return
	}
	m.bookingsConfirmed.Inc()
}

func (m *BookingMetrics) ObserveBookingCancelled() {
	if m == nil {
		return
	}
	m.bookingsCancelled.Inc()
}

func (m *BookingMetrics) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *BookingMetrics) ObserveCheckoutLatency(seconds float64) {
	if m == nil {
		return
	}
	m.checkoutLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveCompensationFailure() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}
