package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling core.
// All methods are nil-safe so wiring them is optional in tests and tools.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	bookingRetries   prometheus.Counter
	slotQueriesTotal *prometheus.CounterVec
	slotLatency      prometheus.Histogram
	voiceCallsTotal  *prometheus.CounterVec
	voiceLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
		bookingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Subsystem: "booking",
			Name:      "tx_retries_total",
			Help:      "Booking transactions retried after serialization or deadlock failures",
		}),
		slotQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Slot queries by empty-result reason (reason \"ok\" when slots were found)",
		}, []string{"reason"}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pawdesk",
			Subsystem: "slots",
			Name:      "query_latency_seconds",
			Help:      "Latency of slot derivation",
			Buckets:   prometheus.DefBuckets,
		}),
		voiceCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Subsystem: "voice",
			Name:      "function_calls_total",
			Help:      "Voice function invocations by function and status",
		}, []string{"function", "status"}),
		voiceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pawdesk",
			Subsystem: "voice",
			Name:      "function_latency_seconds",
			Help:      "Latency of voice function handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal, m.bookingRetries,
		m.slotQueriesTotal, m.slotLatency,
		m.voiceCallsTotal, m.voiceLatency,
	)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBookingRetry() {
	if m == nil {
		return
	}
	m.bookingRetries.Inc()
}

func (m *SchedulingMetrics) ObserveSlotQuery(reason string, seconds float64) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	m.slotQueriesTotal.WithLabelValues(reason).Inc()
	m.slotLatency.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveVoiceCall(function, status string, seconds float64) {
	if m == nil {
		return
	}
	m.voiceCallsTotal.WithLabelValues(function, status).Inc()
	m.voiceLatency.WithLabelValues(function).Observe(seconds)
}
