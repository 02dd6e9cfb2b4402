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
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
)

// RollingMax returns the largest of desired and every recommendation in samples
// recorded strictly before the given timestamp.
func RollingMax(desired int, samples []history.Sample, before int64) int {
	for _, s := range samples {
		if s.Timestamp >= before {
			break
		}
		if s.DesiredReplicas > desired {
			desired = s.DesiredReplicas
		}
	}
	return desired
}

// Stabilize applies a stabilization window of windowSeconds ending at now.
// Samples recorded at now belong to the current pass and are not part of the window.
func Stabilize(store history.Store, key string, windowSeconds int, desired int, now int64) int {
	if windowSeconds <= 0 {
		return desired
	}
	return RollingMax(desired, store.GetSamples(key, now-int64(windowSeconds)), now)
}

// CapStabilized bounds a stabilized recommendation so that history never moves the
// deployment further than the current pass could. A held scale-down stays at or
// below current, and a held scale-up stays within the largest increase the
// scale-up policies allow from current.
func CapStabilized(direction Direction, policies []autoscalingv1alpha1.ScalePolicy, current, stabilized int) int {
	switch direction {
	case DirectionDown:
		return min(stabilized, current)
	case DirectionUp:
		allowed, bounded := ScaleUpLimit(policies, current)
		if !bounded {
			return stabilized
		}
		return min(stabilized, current+max(allowed, 0))
	}
	return stabilized
}
