package alteration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rowsAccepted *prometheus.CounterVec
	flushes      *prometheus.CounterVec
	flushedRows  prometheus.Counter
	pending      prometheus.Gauge
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rowsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgds",
			Subsystem: "alteration",
			Name:      "rows_accepted_total",
			Help:      "Alteration rows accepted by AddGeneticAlterations, by store mode.",
		}, []string{"mode"}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgds",
			Subsystem: "alteration",
			Name:      "flushes_total",
			Help:      "Bulk load flushes, by result.",
		}, []string{"result"}),
		flushedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cgds",
			Subsystem: "alteration",
			Name:      "flushed_rows_total",
			Help:      "Rows written by successful bulk load flushes.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cgds",
			Subsystem: "alteration",
			Name:      "pending_rows",
			Help:      "Rows buffered and not yet flushed.",
		}),
	}
}

func (m *Metrics) accepted(mode Mode) {
	if m == nil {
		return
	}
	m.rowsAccepted.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) flushed(rows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushes.WithLabelValues("error").Inc()
		return
	}
	m.flushes.WithLabelValues("ok").Inc()
	m.flushedRows.Add(float64(rows))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
