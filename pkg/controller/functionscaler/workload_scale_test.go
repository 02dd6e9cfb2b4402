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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

var _ = Describe("WorkloadScale", func() {
	ctx := context.Background()
	key := client.ObjectKey{Namespace: testNamespace, Name: "fn"}

	It("defaults missing replicas to one", func() {
		scale := NewWorkloadScale(nil)
		Expect(scale.GetCurrentReplicas(makeDeployment("fn", nil, nil))).To(Equal(1))
		Expect(scale.GetCurrentReplicas(makeDeployment("fn", ptr.To[int32](0), nil))).To(Equal(0))
	})

	It("patches spec.replicas", func() {
		c := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(makeDeployment("fn", ptr.To[int32](2), nil)).Build()
		Expect(NewWorkloadScale(c).SetDesiredReplicas(ctx, key, 5)).To(Succeed())

		var deployment appsv1.Deployment
		Expect(c.Get(ctx, key, &deployment)).To(Succeed())
		Expect(deployment.Spec.Replicas).To(Equal(ptr.To[int32](5)))
	})

	It("rejects negative replicas", func() {
		c := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(makeDeployment("fn", ptr.To[int32](2), nil)).Build()
		Expect(NewWorkloadScale(c).SetDesiredReplicas(ctx, key, -1)).NotTo(Succeed())
	})

	It("returns not found for missing deployments", func() {
		c := fake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
		err := NewWorkloadScale(c).SetDesiredReplicas(ctx, key, 1)
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})
})
