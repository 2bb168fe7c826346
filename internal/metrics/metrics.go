package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the attendance counters.
type Metrics struct {
	Registrations  *prometheus.CounterVec // by result: created | already-exists
	Scans          *prometheus.CounterVec // by outcome
	ChildCare      *prometheus.CounterVec // by transition: checked-in | checked-out | deleted
	CompletionLogs prometheus.Counter
}

// New creates the counters and registers them with reg. A nil registerer
// leaves them unregistered, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_registrations_total",
			Help: "Registration attempts by result",
		}, []string{"result"}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_scans_total",
			Help: "Processed scan and manual-entry submissions by outcome",
		}, []string{"outcome"}),
		ChildCare: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_childcare_transitions_total",
			Help: "Child-care entry transitions",
		}, []string{"transition"}),
		CompletionLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_completion_logs_total",
			Help: "Completion logs appended for finished subcategories",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Registrations, m.Scans, m.ChildCare, m.CompletionLogs)
	}
	return m
}

// Nop returns unregistered counters.
func Nop() *Metrics { return New(nil) }

func (m *Metrics) Registration(result string) {
	if m != nil {
		m.Registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Scan(outcome string) {
	if m != nil {
		m.Scans.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ChildCareTransition(t string) {
	if m != nil {
		m.ChildCare.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) CompletionLogAppended() {
	if m != nil {
		m.CompletionLogs.Inc()
	}
}
