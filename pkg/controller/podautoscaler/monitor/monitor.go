/*
Copyright 2025 The Fnscale Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package monitor exposes autoscaler and collector telemetry as Prometheus metrics.
package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a trigger did not contribute to a decision.
const (
	ReasonEvaluationError = "evaluation_error"
	ReasonNoData          = "no_data"
	ReasonInvalidValue    = "invalid_value"
)

// Monitor records telemetry. The zero value is ready to use.
type Monitor struct {
	disabled bool
}

// New creates a Monitor.
func New() *Monitor {
	return &Monitor{}
}

// NewNoop creates a Monitor that records nothing, for decisions that must not
// show up in the process metrics.
func NewNoop() *Monitor {
	return &Monitor{disabled: true}
}

func (m *Monitor) enabled() bool {
	return m != nil && !m.disabled
}

// RecordDecision records the final replica count of one decision.
func (m *Monitor) RecordDecision(target, direction string, desiredReplicas int) {
	if !m.enabled() {
		return
	}
	autoscalerDesiredReplicas.WithLabelValues(target).Set(float64(desiredReplicas))
	autoscalerDecisions.WithLabelValues(target, direction).Inc()
}

func (m *Monitor) RecordSkippedTrigger(target, reason string) {
	if !m.enabled() {
		return
	}
	autoscalerSkippedTriggers.WithLabelValues(target, reason).Inc()
}

func (m *Monitor) RecordPolicyCap(target, direction string) {
	if !m.enabled() {
		return
	}
	autoscalerPolicyCaps.WithLabelValues(target, direction).Inc()
}

func (m *Monitor) RecordStabilization(target, direction string) {
	if !m.enabled() {
		return
	}
	autoscalerStabilizations.WithLabelValues(target, direction).Inc()
}

// ObserveEvaluation records the duration of a trigger query evaluation.
func (m *Monitor) ObserveEvaluation(d time.Duration, err error) {
	if !m.enabled() {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	queryEvaluationDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordScrape counts one pod scrape.
func (m *Monitor) RecordScrape(err error) {
	if !m.enabled() {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	metricsScrapes.WithLabelValues(result).Inc()
}

// SetStoredPoints sets the number of points held by the metrics store.
func (m *Monitor) SetStoredPoints(points int) {
	if !m.enabled() {
		return
	}
	metricsStorePoints.Set(float64(points))
}

// Forget drops every series recorded for target.
func (m *Monitor) Forget(target string) {
	if !m.enabled() {
		return
	}
	labels := prometheus.Labels{"target": target}
	autoscalerDesiredReplicas.DeletePartialMatch(labels)
	autoscalerDecisions.DeletePartialMatch(labels)
	autoscalerSkippedTriggers.DeletePartialMatch(labels)
	autoscalerPolicyCaps.DeletePartialMatch(labels)
	autoscalerStabilizations.DeletePartialMatch(labels)
}
