package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifierMetrics exposes counters/histograms for token refresh and lead delivery.
type NotifierMetrics struct {
	refreshTotal      *prometheus.CounterVec
	saveFailuresTotal prometheus.Counter
	deliveryTotal     *prometheus.CounterVec
	sendLatency       *prometheus.HistogramVec
	hookTotal         *prometheus.CounterVec
}

func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	m := &NotifierMetrics{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zalo_notifier",
			Subsystem: "token",
			Name:      "refresh_total",
			Help:      "Total Zalo OA access token refresh attempts",
		}, []string{"result"}),
		saveFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zalo_notifier",
			Subsystem: "token",
			Name:      "credential_save_failures_total",
			Help:      "Refreshed credentials that could not be persisted",
		}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zalo_notifier",
			Subsystem: "delivery",
			Name:      "outcomes_total",
			Help:      "Per-recipient lead notification outcomes",
		}, []string{"outcome"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zalo_notifier",
			Subsystem: "delivery",
			Name:      "send_latency_seconds",
			Help:      "Latency of Zalo OA message sends",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		hookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zalo_notifier",
			Subsystem: "hook",
			Name:      "events_total",
			Help:      "CRM after-save events received",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.refreshTotal, m.saveFailuresTotal, m.deliveryTotal, m.sendLatency, m.hookTotal)
	return m
}

func (m *NotifierMetrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *NotifierMetrics) ObserveCredentialSaveFailure() {
	if m == nil {
		return
	}
	m.saveFailuresTotal.Inc()
}

func (m *NotifierMetrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(outcome).Inc()
}

func (m *NotifierMetrics) ObserveSendLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.sendLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *NotifierMetrics) ObserveHook(status string) {
	if m == nil {
		return
	}
	m.hookTotal.WithLabelValues(status).Inc()
}
