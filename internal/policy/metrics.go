// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for authorization decisions.
var (
	// decideDuration tracks the latency of Ability.Decide calls.
	decideDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authz_decide_duration_seconds",
		Help:    "Histogram of authorization decision latency in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-7, 10, 8),
	})

	// decisionsTotal counts decisions by effect.
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Total number of authorization decisions",
	}, []string{"effect"})

	// gatedDecisionsTotal counts decisions answered for gated principals,
	// a signal that malformed identity claims are reaching this service.
	gatedDecisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authz_gated_decisions_total",
		Help: "Total number of decisions answered for gated principals",
	})
)

// recordDecisionMetrics records metrics for one completed decision.
func recordDecisionMetrics(duration time.Duration, effect Effect, gated bool) {
	decideDuration.Observe(duration.Seconds())
	decisionsTotal.WithLabelValues(effect.String()).Inc()
	if gated {
		gatedDecisionsTotal.Inc()
	}
}
