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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler"
	scaleconfig "github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/monitor"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
	scaletypes "github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
	"github.com/fnscale/fnscale/pkg/metrics"
)

const testNamespace = "functions"

func makeDeployment(name string, replicas *int32, annotations map[string]string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   testNamespace,
			Annotations: annotations,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "fn", Image: "fn:latest"}}},
			},
		},
	}
}

var _ = Describe("FunctionScaler reconciler", func() {
	var (
		ctx           context.Context
		registry      *metrics.RequestedMetricsRegistry
		store         *metrics.SnapshotStore
		historyDB     *history.InMemoryStore
		recorder      *record.FakeRecorder
		now           time.Time
		newReconciler func(objs ...client.Object) (*FunctionScalerReconciler, client.Client)
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = metrics.NewRequestedMetricsRegistry()
		store = metrics.NewSnapshotStore(registry, 0)
		historyDB = history.NewInMemoryStore(0)
		recorder = record.NewFakeRecorder(10)
		now = time.Unix(1_000, 0)

		newReconciler = func(objs ...client.Object) (*FunctionScalerReconciler, client.Client) {
			c := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(objs...).Build()
			return &FunctionScalerReconciler{
				Client:        c,
				Scheme:        scheme.Scheme,
				EventRecorder: recorder,
				AutoScaler:    podautoscaler.NewAutoScaler(promql.NewEvaluator(store.Snapshot), historyDB),
				History:       historyDB,
				Extractor:     scaleconfig.NewConfigExtractor(),
				Registry:      registry,
				Store:         store,
				Interval:      5 * time.Second,
				Now:           func() time.Time { return now },
				monitor:       monitor.New(),
			}, c
		}
	})

	reconcileDeployment := func(r *FunctionScalerReconciler, name string) ctrl.Result {
		result, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: types.NamespacedName{Namespace: testNamespace, Name: name}})
		Expect(err).NotTo(HaveOccurred())
		return result
	}

	replicasOf := func(c client.Client, name string) *int32 {
		var deployment appsv1.Deployment
		Expect(c.Get(ctx, types.NamespacedName{Namespace: testNamespace, Name: name}, &deployment)).To(Succeed())
		return deployment.Spec.Replicas
	}

	It("scales from trigger queries and respects the replica max", func() {
		registry.Register("queue_depth")
		key := scaletypes.ScaleTarget{Namespace: testNamespace, Name: "fn"}.String()
		store.Add(990, key, "10.0.0.1", map[string]float64{"queue_depth": 20})
		store.Add(990, key, "10.0.0.2", map[string]float64{"queue_depth": 20})

		r, c := newReconciler(makeDeployment("fn", ptr.To[int32](2), map[string]string{
			scaletypes.ScaleConfigAnnotation: `{"replicaMax": 10, "triggers": [{"query": "sum(queue_depth)", "threshold": 5}],
				"behavior": {"scaleUp": {}}}`,
		}))

		result := reconcileDeployment(r, "fn")
		Expect(result.RequeueAfter).To(Equal(5 * time.Second))
		Expect(replicasOf(c, "fn")).To(Equal(ptr.To[int32](10)))
		Expect(recorder.Events).To(Receive(ContainSubstring("SuccessfulRescale")))
		Expect(historyDB.GetSamples(key, 0)).To(HaveLen(1))
	})

	It("registers the metrics of trigger queries", func() {
		r, _ := newReconciler(makeDeployment("fn", ptr.To[int32](1), map[string]string{
			scaletypes.ScaleConfigAnnotation: `{"triggers": [{"query": "sum(rate(http_requests_total[1m]))", "threshold": 5}]}`,
		}))
		reconcileDeployment(r, "fn")
		Expect(registry.Names()).To(ConsistOf("http_requests_total"))
	})

	It("leaves the deployment alone when metrics match", func() {
		registry.Register("queue_depth")
		key := scaletypes.ScaleTarget{Namespace: testNamespace, Name: "fn"}.String()
		store.Add(990, key, "10.0.0.1", map[string]float64{"queue_depth": 15})

		r, c := newReconciler(makeDeployment("fn", ptr.To[int32](3), map[string]string{
			scaletypes.ScaleConfigAnnotation: `{"triggers": [{"query": "sum(queue_depth)", "threshold": 15}]}`,
		}))
		reconcileDeployment(r, "fn")
		Expect(replicasOf(c, "fn")).To(Equal(ptr.To[int32](3)))
		Expect(recorder.Events).NotTo(Receive())
	})

	It("applies replica bounds when the configuration is invalid", func() {
		r, c := newReconciler(makeDeployment("fn", ptr.To[int32](0), map[string]string{
			scaletypes.ScaleConfigAnnotation: `{"triggers": [`,
			scaletypes.ReplicasMinAnnotation: "2",
		}))
		reconcileDeployment(r, "fn")
		Expect(replicasOf(c, "fn")).To(Equal(ptr.To[int32](2)))
		Expect(recorder.Events).To(Receive(ContainSubstring("InvalidScaleConfig")))
	})

	It("treats missing replicas as one", func() {
		r, c := newReconciler(makeDeployment("fn", nil, map[string]string{
			scaletypes.ScaleConfigAnnotation: `{"replicaMax": 0}`,
			scaletypes.ReplicasMinAnnotation: "0",
		}))
		reconcileDeployment(r, "fn")
		Expect(replicasOf(c, "fn")).To(Equal(ptr.To[int32](0)))
	})

	It("ignores deployments without a scale configuration", func() {
		r, c := newReconciler(makeDeployment("plain", ptr.To[int32](0), nil))
		result := reconcileDeployment(r, "plain")
		Expect(result).To(Equal(ctrl.Result{}))
		Expect(replicasOf(c, "plain")).To(Equal(ptr.To[int32](0)))
	})

	It("drops the state of deleted deployments", func() {
		key := scaletypes.ScaleTarget{Namespace: testNamespace, Name: "gone"}.String()
		historyDB.AddSample(key, 900, 4)
		registry.Register("queue_depth")
		store.Add(990, key, "10.0.0.1", map[string]float64{"queue_depth": 1})

		r, _ := newReconciler()
		result := reconcileDeployment(r, "gone")
		Expect(result).To(Equal(ctrl.Result{}))
		Expect(historyDB.GetSamples(key, 0)).To(BeEmpty())
		Expect(store.Stats().TotalPoints).To(BeZero())
	})
})
