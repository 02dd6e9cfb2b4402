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

// Package v1alpha1 contains the scale configuration carried on function deployments.
package v1alpha1

import "strings"

// ScaleMetricType describes how a trigger's threshold relates to the evaluated metric.
type ScaleMetricType string

const (
	// AverageValue targets a per-replica value.
	AverageValue ScaleMetricType = "AverageValue"
	// Value targets a total value across all replicas.
	Value ScaleMetricType = "Value"
)

// ScalePolicyType selects how a policy bounds the replica change of one step.
type ScalePolicyType string

const (
	// PercentPolicy bounds the change to a percentage of the current replicas.
	PercentPolicy ScalePolicyType = "Percent"
	// PodsPolicy bounds the change to an absolute number of replicas.
	PodsPolicy ScalePolicyType = "Pods"
)

const (
	DefaultScaleUpStabilizationWindowSeconds   = 0
	DefaultScaleDownStabilizationWindowSeconds = 300
	DefaultPolicyPeriodSeconds                 = 15
)

// ScaleTrigger is one metric source for the scale formula.
type ScaleTrigger struct {
	// MetricType is informational; the formula is the same for both types.
	MetricType ScaleMetricType `json:"metricType,omitempty" validate:"omitempty,oneof=AverageValue Value"`

	MetricName string `json:"metricName,omitempty"`

	// Query is a PromQL expression evaluated against the metrics snapshot.
	Query string `json:"query,omitempty"`

	// Threshold is the target value of the query result.
	Threshold float64 `json:"threshold,omitempty"`
}

// Active reports whether the trigger takes part in scaling decisions.
// Triggers without a query or with a non-positive threshold are inert.
func (t ScaleTrigger) Active() bool {
	return strings.TrimSpace(t.Query) != "" && t.Threshold > 0
}

// ScalePolicy bounds how much the replica count may change in one step.
type ScalePolicy struct {
	Type          ScalePolicyType `json:"type" validate:"required,oneof=Percent Pods"`
	Value         int             `json:"value"`
	PeriodSeconds int             `json:"periodSeconds,omitempty" validate:"gte=0,lte=1800"`
}

// ScaleDirectionBehavior configures one scaling direction.
type ScaleDirectionBehavior struct {
	// StabilizationWindowSeconds is the lookback used for the rolling max of past recommendations.
	StabilizationWindowSeconds int `json:"stabilizationWindowSeconds,omitempty" validate:"gte=0,lte=3600"`

	// Policies limit the change per step. An empty list leaves the change unbounded.
	Policies []ScalePolicy `json:"policies,omitempty" validate:"dive"`
}

// ScaleBehavior holds the per direction behaviors.
type ScaleBehavior struct {
	ScaleUp   *ScaleDirectionBehavior `json:"scaleUp,omitempty"`
	ScaleDown *ScaleDirectionBehavior `json:"scaleDown,omitempty"`
}

// ScaleConfig is the autoscaling configuration of one function deployment.
type ScaleConfig struct {
	// ReplicaMax bounds the replica count from above. Nil means unbounded.
	ReplicaMax *int `json:"replicaMax,omitempty" validate:"omitempty,gte=0"`

	Triggers []ScaleTrigger `json:"triggers,omitempty" validate:"dive"`

	// Behavior falls back to DefaultScaleBehavior when nil.
	Behavior *ScaleBehavior `json:"behavior,omitempty"`
}

// DefaultScaleUpBehavior allows doubling or adding 4 replicas per step, whichever is larger.
func DefaultScaleUpBehavior() *ScaleDirectionBehavior {
	return &ScaleDirectionBehavior{
		StabilizationWindowSeconds: DefaultScaleUpStabilizationWindowSeconds,
		Policies: []ScalePolicy{
			{Type: PercentPolicy, Value: 100, PeriodSeconds: DefaultPolicyPeriodSeconds},
			{Type: PodsPolicy, Value: 4, PeriodSeconds: DefaultPolicyPeriodSeconds},
		},
	}
}

// DefaultScaleDownBehavior allows removing every replica per step after a 5 minute stabilization.
func DefaultScaleDownBehavior() *ScaleDirectionBehavior {
	return &ScaleDirectionBehavior{
		StabilizationWindowSeconds: DefaultScaleDownStabilizationWindowSeconds,
		Policies: []ScalePolicy{
			{Type: PercentPolicy, Value: 100, PeriodSeconds: DefaultPolicyPeriodSeconds},
		},
	}
}

// DefaultScaleBehavior returns both default direction behaviors.
func DefaultScaleBehavior() *ScaleBehavior {
	return &ScaleBehavior{
		ScaleUp:   DefaultScaleUpBehavior(),
		ScaleDown: DefaultScaleDownBehavior(),
	}
}

// Default fills nil behaviors with their defaults. Explicitly provided directions are kept as is.
func (c *ScaleConfig) Default() {
	if c.Behavior == nil {
		c.Behavior = DefaultScaleBehavior()
		return
	}
	if c.Behavior.ScaleUp == nil {
		c.Behavior.ScaleUp = DefaultScaleUpBehavior()
	}
	if c.Behavior.ScaleDown == nil {
		c.Behavior.ScaleDown = DefaultScaleDownBehavior()
	}
}

// ScaleUpBehavior returns the scale-up behavior, or the default one when unset.
func (c *ScaleConfig) ScaleUpBehavior() *ScaleDirectionBehavior {
	if c == nil || c.Behavior == nil || c.Behavior.ScaleUp == nil {
		return DefaultScaleUpBehavior()
	}
	return c.Behavior.ScaleUp
}

// ScaleDownBehavior returns the scale-down behavior, or the default one when unset.
func (c *ScaleConfig) ScaleDownBehavior() *ScaleDirectionBehavior {
	if c == nil || c.Behavior == nil || c.Behavior.ScaleDown == nil {
		return DefaultScaleDownBehavior()
	}
	return c.Behavior.ScaleDown
}

// ActiveTriggers returns the triggers that take part in scaling decisions.
func (c *ScaleConfig) ActiveTriggers() []ScaleTrigger {
	if c == nil {
		return nil
	}
	active := make([]ScaleTrigger, 0, len(c.Triggers))
	for _, t := range c.Triggers {
		if t.Active() {
			active = append(active, t)
		}
	}
	return active
}
