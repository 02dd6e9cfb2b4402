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

package podautoscaler

import (
	"math"
	"time"

	"k8s.io/klog/v2"

	autoscalingv1alpha1 "github.com/fnscale/fnscale/api/autoscaling/v1alpha1"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/algorithm"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/monitor"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// QueryEvaluator evaluates a trigger query at a unix timestamp.
type QueryEvaluator interface {
	Evaluate(query string, now int64) (float64, error)
}

// TriggerResult describes how one trigger contributed to a decision.
type TriggerResult struct {
	Query           string   `json:"query"`
	Threshold       float64  `json:"threshold"`
	Value           *float64 `json:"value,omitempty"`
	DesiredReplicas *int     `json:"desiredReplicas,omitempty"`
	Skipped         string   `json:"skipped,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Decision is the outcome of one scaling computation with its intermediate steps.
type Decision struct {
	CurrentReplicas int                 `json:"currentReplicas"`
	RawDesired      int                 `json:"rawDesiredReplicas"`
	PolicyLimited   int                 `json:"policyLimitedReplicas"`
	Stabilized      int                 `json:"stabilizedReplicas"`
	DesiredReplicas int                 `json:"desiredReplicas"`
	Direction       algorithm.Direction `json:"direction"`
	Reason          string              `json:"reason"`
	Triggers        []TriggerResult     `json:"triggers,omitempty"`
}

// AutoScaler turns trigger metrics into a desired replica count. Past recommendations
// are kept in a history store to apply stabilization windows.
// It is safe for concurrent use across deployments.
type AutoScaler struct {
	evaluator QueryEvaluator
	store     history.Store
	monitor   *monitor.Monitor
}

// NewAutoScaler creates an autoscaler evaluating triggers with evaluator and
// recording recommendations in store.
func NewAutoScaler(evaluator QueryEvaluator, store history.Store) *AutoScaler {
	return &AutoScaler{
		evaluator: evaluator,
		store:     store,
		monitor:   monitor.New(),
	}
}

// WithMonitor replaces the telemetry sink of the autoscaler.
func (a *AutoScaler) WithMonitor(m *monitor.Monitor) *AutoScaler {
	a.monitor = m
	return a
}

// Compute computes the decision for a scale request.
func (a *AutoScaler) Compute(request types.ScaleRequest) Decision {
	return a.ComputeWithDetails(request.Target.String(), request.Config, request.CurrentReplicas,
		request.MinReplicas, request.MaxReplicas, request.Timestamp)
}

// ComputeDesiredReplicas returns the desired replica count of the deployment identified by key.
// It never fails: trigger errors are logged and the trigger is ignored.
func (a *AutoScaler) ComputeDesiredReplicas(key string, cfg *autoscalingv1alpha1.ScaleConfig, current, minReplicas int, maxReplicas *int, now int64) int {
	return a.ComputeWithDetails(key, cfg, current, minReplicas, maxReplicas, now).DesiredReplicas
}

// ComputeWithDetails is ComputeDesiredReplicas returning every intermediate step.
func (a *AutoScaler) ComputeWithDetails(key string, cfg *autoscalingv1alpha1.ScaleConfig, current, minReplicas int, maxReplicas *int, now int64) Decision {
	current = max(current, 0)
	minReplicas = max(minReplicas, 0)

	if cfg == nil || len(cfg.Triggers) == 0 {
		desired := algorithm.Clamp(current, minReplicas, maxReplicas)
		return a.finish(key, Decision{
			CurrentReplicas: current,
			RawDesired:      desired,
			PolicyLimited:   desired,
			Stabilized:      desired,
			DesiredReplicas: desired,
			Reason:          "no scale triggers, replica bounds applied",
		})
	}

	raw, results := a.desiredFromTriggers(key, cfg, current, minReplicas, maxReplicas, now)
	a.store.AddSample(key, now, raw)

	d := Decision{
		CurrentReplicas: current,
		RawDesired:      raw,
		PolicyLimited:   raw,
		Stabilized:      raw,
		Triggers:        results,
	}
	if raw == current {
		d.DesiredReplicas = current
		d.Reason = "metrics match current replicas"
		return a.finish(key, d)
	}

	direction := algorithm.DirectionOf(current, raw)
	var behavior *autoscalingv1alpha1.ScaleDirectionBehavior
	if direction == algorithm.DirectionUp {
		behavior = cfg.ScaleUpBehavior()
		d.PolicyLimited = algorithm.ApplyScaleUpPolicies(behavior.Policies, current, raw)
	} else {
		behavior = cfg.ScaleDownBehavior()
		d.PolicyLimited = algorithm.ApplyScaleDownPolicies(behavior.Policies, current, raw)
	}
	d.Reason = "scaled by metrics"
	if d.PolicyLimited != raw {
		klog.InfoS("Scale limited by policy", "target", key, "direction", direction,
			"current", current, "requested", raw, "allowed", d.PolicyLimited)
		a.monitor.RecordPolicyCap(key, string(direction))
		d.Reason = "scale limited by policy"
	}

	d.Stabilized = algorithm.Stabilize(a.store, key, behavior.StabilizationWindowSeconds, d.PolicyLimited, now)
	d.Stabilized = algorithm.CapStabilized(direction, behavior.Policies, current, d.Stabilized)
	if d.Stabilized != d.PolicyLimited {
		klog.V(4).InfoS("Scale held by stabilization window", "target", key, "direction", direction,
			"window", behavior.StabilizationWindowSeconds, "recommended", d.PolicyLimited, "stabilized", d.Stabilized)
		a.monitor.RecordStabilization(key, string(direction))
		d.Reason = "scale held by stabilization window"
	}

	desired := algorithm.Clamp(d.Stabilized, minReplicas, maxReplicas)
	if desired < 0 {
		desired = 0
	}
	d.DesiredReplicas = desired
	return a.finish(key, d)
}

func (a *AutoScaler) finish(key string, d Decision) Decision {
	d.Direction = algorithm.DirectionOf(d.CurrentReplicas, d.DesiredReplicas)
	a.monitor.RecordDecision(key, string(d.Direction), d.DesiredReplicas)
	if d.Direction != algorithm.DirectionNone {
		klog.InfoS("Computed new desired replicas", "target", key, "current", d.CurrentReplicas,
			"raw", d.RawDesired, "desired", d.DesiredReplicas, "reason", d.Reason)
	}
	return d
}

// desiredFromTriggers applies the HPA formula to every active trigger and returns the largest
// result, or the clamped current count when no trigger produced a usable value.
func (a *AutoScaler) desiredFromTriggers(key string, cfg *autoscalingv1alpha1.ScaleConfig, current, minReplicas int, maxReplicas *int, now int64) (int, []TriggerResult) {
	results := make([]TriggerResult, 0, len(cfg.Triggers))
	desired := -1
	for _, trigger := range cfg.ActiveTriggers() {
		result := TriggerResult{Query: trigger.Query, Threshold: trigger.Threshold}

		start := time.Now()
		value, err := a.evaluator.Evaluate(trigger.Query, now)
		a.monitor.ObserveEvaluation(time.Since(start), err)

		switch {
		case err != nil:
			klog.ErrorS(err, "Failed to evaluate trigger query, skipping trigger", "target", key, "query", trigger.Query)
			a.monitor.RecordSkippedTrigger(key, monitor.ReasonEvaluationError)
			result.Skipped = monitor.ReasonEvaluationError
			result.Error = err.Error()
		case math.IsNaN(value):
			klog.V(4).InfoS("No data for trigger query, skipping trigger", "target", key, "query", trigger.Query)
			a.monitor.RecordSkippedTrigger(key, monitor.ReasonNoData)
			result.Skipped = monitor.ReasonNoData
		case math.IsInf(value, 0) || value < 0:
			klog.InfoS("Invalid trigger value, skipping trigger", "target", key, "query", trigger.Query, "value", value)
			a.monitor.RecordSkippedTrigger(key, monitor.ReasonInvalidValue)
			result.Skipped = monitor.ReasonInvalidValue
		default:
			forTrigger := algorithm.DesiredReplicasForMetric(current, value, trigger.Threshold, minReplicas, maxReplicas)
			klog.V(4).InfoS("Trigger evaluated", "target", key, "query", trigger.Query,
				"value", value, "threshold", trigger.Threshold, "desired", forTrigger)
			result.Value = &value
			result.DesiredReplicas = &forTrigger
			desired = max(desired, forTrigger)
		}
		results = append(results, result)
	}

	if desired < 0 {
		return algorithm.Clamp(current, minReplicas, maxReplicas), results
	}
	return desired, results
}
