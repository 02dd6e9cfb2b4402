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

package types

import (
	"fmt"

	autoscalingv1alpha1 "github.com/fnscale/fnscale/api/autoscaling/v1alpha1"
)

// ScaleTarget identifies the workload being scaled.
type ScaleTarget struct {
	Namespace string
	Name      string
}

// String returns the key used for the target's recommendation history.
func (t ScaleTarget) String() string {
	return fmt.Sprintf("%s/%s", t.Namespace, t.Name)
}

// ScaleRequest is the scaling context of one deployment for one reconciliation pass.
type ScaleRequest struct {
	Target          ScaleTarget
	Config          *autoscalingv1alpha1.ScaleConfig
	CurrentReplicas int
	MinReplicas     int
	MaxReplicas     *int // nil means unbounded
	Timestamp       int64
}
