// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the relay's Prometheus instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	sessions     prometheus.Gauge
	participants prometheus.Gauge
	transactions prometheus.Counter
	duplicates   prometheus.Counter
	rejected     *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	const namespace = "patchbay_relay"
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Number of live editing sessions.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_live",
			Help:      "Number of connections joined to a session.",
		}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions logged and fanned out.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_duplicate_total",
			Help:      "Transactions received that were already logged.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hellos_rejected_total",
			Help:      "Session joins refused, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Directory API requests, by operation and status code.",
		}, []string{"operation", "code"}),
	}
	registerer.MustRegister(m.sessions, m.participants, m.transactions, m.duplicates, m.rejected, m.requests)
	return m
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.participants.Inc()
	}
}

func (m *Metrics) left() {
	if m != nil {
		m.participants.Dec()
	}
}

func (m *Metrics) logged(duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.duplicates.Inc()
	} else {
		m.transactions.Inc()
	}
}

func (m *Metrics) rejectedHello(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) request(operation string, code int) {
	if m != nil {
		m.requests.WithLabelValues(operation, statusLabel(code)).Inc()
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
