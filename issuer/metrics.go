package issuer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink counts events and records operation durations.
type PrometheusSink struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusSink registers its collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer, namespace string) (*PrometheusSink, error) {
	if namespace == "" {
		namespace = "card_management"
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "events_total",
				Help:      "Instrumentation events by name, source and severity",
			},
			[]string{"event", "source", "severity", "legacy"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "duration_seconds",
				Help:      "Time from operation start to its terminal event",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"source", "severity"},
		),
	}
	for _, c := range []prometheus.Collector{s.events, s.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) Emit(_ context.Context, e Event) {
	legacy := "false"
	if v, _ := e.Properties["is_legacy_request"].(bool); v {
		legacy = "true"
	}
	s.events.WithLabelValues(e.Name, e.Source, string(e.Severity), legacy).Inc()
	s.duration.WithLabelValues(e.Source, string(e.Severity)).Observe(e.Duration.Seconds())
}
