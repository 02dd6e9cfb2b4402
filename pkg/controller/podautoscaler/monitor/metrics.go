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

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	autoscalerDesiredReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fnscale_autoscaler_desired_replicas",
			Help: "Final desired replica count computed for a deployment",
		},
		[]string{"target"},
	)

	autoscalerDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnscale_autoscaler_decisions_total",
			Help: "Number of scaling decisions by direction",
		},
		[]string{"target", "direction"},
	)

	autoscalerSkippedTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnscale_autoscaler_skipped_triggers_total",
			Help: "Number of trigger evaluations that did not contribute to a decision",
		},
		[]string{"target", "reason"},
	)

	autoscalerPolicyCaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnscale_autoscaler_policy_caps_total",
			Help: "Number of decisions limited by a scale policy",
		},
		[]string{"target", "direction"},
	)

	autoscalerStabilizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnscale_autoscaler_stabilizations_total",
			Help: "Number of decisions held back by a stabilization window",
		},
		[]string{"target", "direction"},
	)

	queryEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fnscale_promql_evaluation_duration_seconds",
			Help:    "Time spent evaluating trigger queries",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"result"},
	)

	metricsScrapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fnscale_metrics_scrapes_total",
			Help: "Number of pod metric scrapes by result",
		},
		[]string{"result"},
	)

	metricsStorePoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fnscale_metrics_store_points",
			Help: "Number of series points held by the metrics snapshot store",
		},
	)
)

func init() {
	// Register with controller-runtime metrics registry
	metrics.Registry.MustRegister(
		autoscalerDesiredReplicas,
		autoscalerDecisions,
		autoscalerSkippedTriggers,
		autoscalerPolicyCaps,
		autoscalerStabilizations,
		queryEvaluationDuration,
		metricsScrapes,
		metricsStorePoints,
	)
}
