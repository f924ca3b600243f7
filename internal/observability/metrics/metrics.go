package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the risk pipeline.
type PipelineMetrics struct {
	signalsTotal       *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	escalationsTotal   *prometheus.CounterVec
	failuresTotal      *prometheus.CounterVec
	reportLatency      prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizcoco",
			Subsystem: "risk",
			Name:      "signals_total",
			Help:      "Total classified risk signals offered to the store",
		}, []string{"signal_type", "severity", "is_new"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizcoco",
			Subsystem: "risk",
			Name:      "notifications_total",
			Help:      "Total counselor notifications upserted",
		}, []string{"kind", "priority"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizcoco",
			Subsystem: "risk",
			Name:      "escalations_total",
			Help:      "Total session escalations",
		}, []string{"trigger", "assigned"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wizcoco",
			Subsystem: "risk",
			Name:      "pipeline_failures_total",
			Help:      "Failures inside the safety pipeline, by stage",
		}, []string{"stage"}),
		reportLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wizcoco",
			Subsystem: "reports",
			Name:      "generation_seconds",
			Help:      "Latency of integrated report generation",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.signalsTotal, m.notificationsTotal, m.escalationsTotal, m.failuresTotal, m.reportLatency)
	return m
}

func (m *PipelineMetrics) ObserveSignal(signalType, severity string, isNew bool) {
	if m == nil {
		return
	}
	label := "false"
	if isNew {
		label = "true"
	}
	m.signalsTotal.WithLabelValues(signalType, severity, label).Inc()
}

func (m *PipelineMetrics) ObserveNotification(kind, priority string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, priority).Inc()
}

func (m *PipelineMetrics) ObserveEscalation(trigger string, assigned bool) {
	if m == nil {
		return
	}
	label := "false"
	if assigned {
		label = "true"
	}
	m.escalationsTotal.WithLabelValues(trigger, label).Inc()
}

func (m *PipelineMetrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) ObserveReportLatency(seconds float64) {
	if m == nil {
		return
	}
	m.reportLatency.Observe(seconds)
}
