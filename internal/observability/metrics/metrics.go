package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicops/scheduling-agent/internal/reminder"
	"github.com/clinicops/scheduling-agent/internal/schedule"
)

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	remindersTotal    *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "schedule",
			Name:      "reservations_total",
			Help:      "Total reservation attempts by outcome",
		}, []string{"outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "reminder",
			Name:      "deliveries_total",
			Help:      "Total reminder deliveries by kind and status",
		}, []string{"kind", "status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total conversation turns by stage and status",
		}, []string{"stage", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of conversation turn handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.remindersTotal, m.turnsTotal, m.turnLatency)
	return m
}

// RecordReservation satisfies schedule.OutcomeRecorder.
func (m *BookingMetrics) RecordReservation(outcome schedule.Outcome) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordReminder satisfies reminder.Recorder.
func (m *BookingMetrics) RecordReminder(kind reminder.Kind, status reminder.JobStatus) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(string(kind), string(status)).Inc()
}

// ObserveTurn counts one handled conversation turn.
func (m *BookingMetrics) ObserveTurn(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, status).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}
