package metrics

import "github.com/prometheus/client_golang/prometheus"

// QualityMetrics exposes counters/histograms for the inspection pipeline.
// All observe methods are safe on a nil receiver.
type QualityMetrics struct {
	parseTotal       *prometheus.CounterVec
	inspectionTotal  *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	reviewTransition *prometheus.CounterVec
	pendingReviews   prometheus.Gauge
	exportTotal      *prometheus.CounterVec
}

func NewQualityMetrics(reg prometheus.Registerer) *QualityMetrics {
	m := &QualityMetrics{
		parseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qc",
			Subsystem: "parser",
			Name:      "conversations_total",
			Help:      "Parsed conversations by requested format and outcome",
		}, []string{"format", "status"}),
		inspectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qc",
			Subsystem: "inspector",
			Name:      "inspections_total",
			Help:      "Inspections by kind and outcome",
		}, []string{"kind", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qc",
			Subsystem: "inspector",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		reviewTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qc",
			Subsystem: "review",
			Name:      "transitions_total",
			Help:      "Review workflow transitions by target status and outcome",
		}, []string{"status", "result"}),
		pendingReviews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qc",
			Subsystem: "review",
			Name:      "pending",
			Help:      "Reviews currently waiting for a decision",
		}),
		exportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qc",
			Subsystem: "report",
			Name:      "exports_total",
			Help:      "Report exports by format and outcome",
		}, []string{"format", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.parseTotal, m.inspectionTotal, m.llmLatency, m.reviewTransition, m.pendingReviews, m.exportTotal)
	return m
}

func (m *QualityMetrics) ObserveParse(format string, ok bool) {
	if m == nil {
		return
	}
	m.parseTotal.WithLabelValues(format, outcome(ok)).Inc()
}

func (m *QualityMetrics) ObserveInspection(kind string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.inspectionTotal.WithLabelValues(kind, outcome(ok)).Inc()
	m.llmLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *QualityMetrics) ObserveTransition(status string, ok bool) {
	if m == nil {
		return
	}
	m.reviewTransition.WithLabelValues(status, outcome(ok)).Inc()
}

func (m *QualityMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingReviews.Set(float64(n))
}

func (m *QualityMetrics) ObserveExport(format string, ok bool) {
	if m == nil {
		return
	}
	m.exportTotal.WithLabelValues(format, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
