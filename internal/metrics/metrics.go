package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiopcb/veritas/internal/models"
)

const (
	// OutcomePass labels validations whose rule check passed.
	OutcomePass = "pass"
	// OutcomeFail labels validations whose rule check failed.
	OutcomeFail = "fail"
	// OutcomeError labels validations whose rule check could not execute.
	OutcomeError = "error"
)

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "validations_total",
			Help:      "Total rule executions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	validationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "veritas",
			Name:      "validation_seconds",
			Help:      "Full validation-call latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "feedback_total",
			Help:      "User feedback votes, partitioned by sentiment.",
		},
		[]string{"sentiment"},
	)

	ruleValidations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "veritas",
			Name:      "rule_validations",
			Help:      "Per-rule validation counters as last reported by the tracker.",
		},
		[]string{"rule_id", "category", "result"},
	)
)

// Register attaches veritas collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		validationsTotal,
		validationDurationSeconds,
		feedbackTotal,
		ruleValidations,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveValidation records a full validation call's duration.
func ObserveValidation(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	validationDurationSeconds.Observe(duration.Seconds())
}

// CountRuleResult increments the per-outcome execution counter.
func CountRuleResult(outcome string) {
	switch outcome {
	case OutcomePass, OutcomeFail, OutcomeError:
	default:
		outcome = OutcomeError
	}
	validationsTotal.WithLabelValues(outcome).Inc()
}

// CountFeedback increments the feedback counter for a sentiment.
func CountFeedback(positive bool) {
	sentiment := "negative"
	if positive {
		sentiment = "positive"
	}
	feedbackTotal.WithLabelValues(sentiment).Inc()
}

// Sink publishes tracker snapshots to the per-rule Prometheus gauges. It is
// the engine's community-metrics sink.
type Sink struct{}

// NewSink returns a Prometheus-backed tracker sink.
func NewSink() *Sink {
	return &Sink{}
}

// Publish exposes the snapshot's counters as gauges. It never fails.
func (*Sink) Publish(_ context.Context, snapshot models.ValidationSnapshot) error {
	labels := []string{snapshot.RuleID, string(snapshot.Category)}
	ruleValidations.WithLabelValues(append(labels, "total")...).Set(float64(snapshot.TotalValidations))
	ruleValidations.WithLabelValues(append(labels, "passed")...).Set(float64(snapshot.PassedValidations))
	ruleValidations.WithLabelValues(append(labels, "failed")...).Set(float64(snapshot.FailedValidations))
	return nil
}
