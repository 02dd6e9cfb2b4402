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
	"math"
)

// DesiredReplicasForMetric applies desired = ceil(current * metric / threshold).
// A current count of 0 is treated as 1 so that a deployment scaled to zero can be
// activated again. The result is clamped to [minReplicas, maxReplicas].
// threshold must be positive.
func DesiredReplicasForMetric(current int, metric, threshold float64, minReplicas int, maxReplicas *int) int {
	effective := current
	if effective <= 0 {
		effective = 1
	}

	raw := math.Ceil(float64(effective) * metric / threshold)
	var desired int
	switch {
	case math.IsNaN(raw) || raw < 0:
		desired = 0
	case raw > math.MaxInt32:
		desired = math.MaxInt32
	default:
		desired = int(raw)
	}

	if maxReplicas != nil && desired > *maxReplicas {
		desired = *maxReplicas
	}
	if desired < minReplicas {
		desired = minReplicas
	}
	return desired
}
