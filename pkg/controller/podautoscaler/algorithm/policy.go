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

package algorithm

import (
	autoscalingv1alpha1 "github.com/fnscale/fnscale/api/autoscaling/v1alpha1"
)

// ComputeDelta returns the replica change a single policy allows from current.
func ComputeDelta(policy autoscalingv1alpha1.ScalePolicy, current int) int {
	if policy.Value <= 0 {
		return 0
	}
	switch policy.Type {
	case autoscalingv1alpha1.PodsPolicy:
		return policy.Value
	case autoscalingv1alpha1.PercentPolicy:
		if current <= 0 {
			return 0
		}
		return current * policy.Value / 100
	}
	return 0
}

// ScaleUpLimit returns the largest increase allowed by any policy. bounded is false
// when there are no policies, in which case the increase is unlimited.
func ScaleUpLimit(policies []autoscalingv1alpha1.ScalePolicy, current int) (allowed int, bounded bool) {
	if len(policies) == 0 {
		return 0, false
	}
	for _, p := range policies {
		if d := ComputeDelta(p, current); d > allowed {
			allowed = d
		}
	}
	return allowed, true
}

// ScaleDownLimit returns the smallest positive decrease allowed by the policies,
// or 0 when none allows a decrease. bounded is false when there are no policies.
func ScaleDownLimit(policies []autoscalingv1alpha1.ScalePolicy, current int) (allowed int, bounded bool) {
	if len(policies) == 0 {
		return 0, false
	}
	for _, p := range policies {
		d := ComputeDelta(p, current)
		if d <= 0 {
			continue
		}
		if allowed == 0 || d < allowed {
			allowed = d
		}
	}
	return allowed, true
}

// ApplyScaleUpPolicies caps the move from current up to desired.
func ApplyScaleUpPolicies(policies []autoscalingv1alpha1.ScalePolicy, current, desired int) int {
	if desired <= current {
		return desired
	}
	allowed, bounded := ScaleUpLimit(policies, current)
	if !bounded {
		return desired
	}
	if allowed <= 0 {
		return current
	}
	return current + min(desired-current, allowed)
}

// ApplyScaleDownPolicies caps the move from current down to desired.
func ApplyScaleDownPolicies(policies []autoscalingv1alpha1.ScalePolicy, current, desired int) int {
	if desired >= current {
		return desired
	}
	allowed, bounded := ScaleDownLimit(policies, current)
	if !bounded {
		return desired
	}
	if allowed <= 0 {
		return current
	}
	return current - min(current-desired, allowed)
}
