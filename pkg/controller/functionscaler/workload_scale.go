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

package functionscaler

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// WorkloadScale provides the mechanism to get/set replica counts on function deployments,
// while AutoScaler provides the intelligence to compute desired replica counts.
type WorkloadScale interface {
	// GetCurrentReplicas returns spec.replicas, which defaults to 1 when unset.
	GetCurrentReplicas(deployment *appsv1.Deployment) int

	// SetDesiredReplicas updates spec.replicas, retrying on conflicts.
	SetDesiredReplicas(ctx context.Context, key client.ObjectKey, replicas int32) error
}

type workloadScale struct {
	client client.Client
}

func NewWorkloadScale(c client.Client) WorkloadScale {
	return &workloadScale{client: c}
}

func (s *workloadScale) GetCurrentReplicas(deployment *appsv1.Deployment) int {
	return int(ptr.Deref(deployment.Spec.Replicas, 1))
}

func (s *workloadScale) SetDesiredReplicas(ctx context.Context, key client.ObjectKey, replicas int32) error {
	if replicas < 0 {
		return fmt.Errorf("replicas cannot be negative: %d", replicas)
	}
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cur := &appsv1.Deployment{}
		if err := s.client.Get(ctx, key, cur); err != nil {
			return err
		}
		if ptr.Deref(cur.Spec.Replicas, 1) == replicas && cur.Spec.Replicas != nil {
			return nil
		}
		upd := cur.DeepCopy()
		upd.Spec.Replicas = ptr.To(replicas)
		if err := s.client.Patch(ctx, upd, client.MergeFromWithOptions(cur, client.MergeFromWithOptimisticLock{})); err != nil {
			return err
		}
		klog.V(4).InfoS("Patched deployment replicas", "deployment", key, "replicas", replicas)
		return nil
	})
}
