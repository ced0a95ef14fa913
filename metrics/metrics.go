/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes the evaluation pipeline's Prometheus
// instrumentation on the default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for rule evaluations.
const (
	OutcomeScored   = "scored"
	OutcomeFiltered = "filtered"
	OutcomeSampled  = "sampled_out"
	OutcomeFailed   = "failed"
)

var (
	initOnce sync.Once

	entitiesConsumedCounter *prometheus.CounterVec
	decodeFailuresCounter   *prometheus.CounterVec
	ruleEvaluationsCounter  *prometheus.CounterVec
	scoresWrittenCounter    prometheus.Counter
	batchDurationMetric     prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		entitiesConsumedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onlineval_entities_consumed_total",
				Help: "Total number of stream entities decoded and handed to the engine, by stream.",
			},
			[]string{"stream"},
		)

		decodeFailuresCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onlineval_decode_failures_total",
				Help: "Total number of stream envelopes dropped as poison messages, by stream.",
			},
			[]string{"stream"},
		)

		ruleEvaluationsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onlineval_rule_evaluations_total",
				Help: "Total number of (entity, rule) evaluations by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		scoresWrittenCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "onlineval_feedback_scores_written_total",
				Help: "Total number of feedback scores submitted to the score sink.",
			},
		)

		batchDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "onlineval_batch_duration_seconds",
				Help:    "Duration of one engine evaluation batch in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			entitiesConsumedCounter,
			decodeFailuresCounter,
			ruleEvaluationsCounter,
			scoresWrittenCounter,
			batchDurationMetric,
		)
	})
}

func IncEntitiesConsumed(stream string, n int) {
	Init()
	entitiesConsumedCounter.WithLabelValues(stream).Add(float64(n))
}

func IncDecodeFailures(stream string) {
	Init()
	decodeFailuresCounter.WithLabelValues(stream).Inc()
}

func IncRuleEvaluation(kind, outcome string) {
	Init()
	ruleEvaluationsCounter.WithLabelValues(kind, outcome).Inc()
}

func AddScoresWritten(n int) {
	Init()
	scoresWrittenCounter.Add(float64(n))
}

func ObserveBatchDuration(d time.Duration) {
	Init()
	batchDurationMetric.Observe(d.Seconds())
}
