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
	"errors"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/fnscale/fnscale/pkg/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler"
	scaleconfig "github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/monitor"
	scaletypes "github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
	"github.com/fnscale/fnscale/pkg/metrics"
)

const (
	ControllerName = "function-scaler"

	DefaultReconcileInterval = 10 * time.Second
)

// Add creates a new FunctionScaler Controller and adds it to the Manager.
// The Manager will set fields on the Controller and Start it when the Manager is Started.
func Add(mgr manager.Manager, runtimeConfig config.RuntimeConfig) error {
	r := newReconciler(mgr, runtimeConfig)
	if err := add(mgr, r); err != nil {
		return err
	}
	if runtimeConfig.ScrapeInterval > 0 && runtimeConfig.Scraper != nil {
		return mgr.Add(NewCollector(mgr.GetClient(), runtimeConfig))
	}
	return nil
}

func newReconciler(mgr manager.Manager, runtimeConfig config.RuntimeConfig) *FunctionScalerReconciler {
	interval := runtimeConfig.ReconcileInterval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &FunctionScalerReconciler{
		Client:        mgr.GetClient(),
		Scheme:        mgr.GetScheme(),
		EventRecorder: mgr.GetEventRecorderFor(ControllerName),
		AutoScaler:    runtimeConfig.AutoScaler,
		History:       runtimeConfig.History,
		Extractor:     runtimeConfig.Extractor,
		Registry:      runtimeConfig.Registry,
		Store:         runtimeConfig.Store,
		Scale:         NewWorkloadScale(mgr.GetClient()),
		Interval:      interval,
		monitor:       monitor.New(),
	}
}

func add(mgr manager.Manager, r reconcile.Reconciler) error {
	err := ctrl.NewControllerManagedBy(mgr).
		Named(ControllerName).
		For(&appsv1.Deployment{}, builder.WithPredicates(predicate.NewPredicateFuncs(hasScaleConfig))).
		Complete(r)

	klog.V(4).InfoS("Added function-scaler controller successfully")
	return err
}

func hasScaleConfig(obj client.Object) bool {
	_, ok := obj.GetAnnotations()[scaletypes.ScaleConfigAnnotation]
	return ok
}

var _ reconcile.Reconciler = &FunctionScalerReconciler{}

// FunctionScalerReconciler scales annotated Deployments from their trigger queries.
type FunctionScalerReconciler struct {
	client.Client
	Scheme        *runtime.Scheme
	EventRecorder record.EventRecorder

	AutoScaler *podautoscaler.AutoScaler
	History    history.Store
	Extractor  *scaleconfig.ConfigExtractor
	Registry   *metrics.RequestedMetricsRegistry
	Store      *metrics.SnapshotStore
	Scale      WorkloadScale
	Interval   time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	monitor *monitor.Monitor
}

//+kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;patch
//+kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch
//+kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile computes the desired replicas of an annotated Deployment and patches spec.replicas
// when they differ. Deployments are re-evaluated every Interval.
func (r *FunctionScalerReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	target := scaletypes.ScaleTarget{Namespace: req.Namespace, Name: req.Name}
	key := target.String()
	klog.V(3).InfoS("Reconciling function deployment", "deployment", key)

	var deployment appsv1.Deployment
	if err := r.Get(ctx, req.NamespacedName, &deployment); err != nil {
		if apierrors.IsNotFound(err) {
			klog.InfoS("Deployment not found, dropping its scaling state", "deployment", key)
			r.forget(key)
			return ctrl.Result{}, nil
		}
		klog.ErrorS(err, "Failed to get Deployment", "deployment", key)
		return ctrl.Result{}, err
	}
	if deployment.DeletionTimestamp != nil {
		return ctrl.Result{}, nil
	}

	settings, err := r.Extractor.Extract(deployment.Annotations)
	if errors.Is(err, scaleconfig.ErrNoScaleConfig) {
		// the annotation was removed, stop tracking the deployment
		r.forget(key)
		return ctrl.Result{}, nil
	}
	if err != nil {
		klog.ErrorS(err, "Invalid scale configuration, only replica bounds are applied", "deployment", key)
		r.event(&deployment, corev1.EventTypeWarning, "InvalidScaleConfig", err.Error())
	}
	if settings.Config != nil && r.Registry != nil {
		for _, trigger := range settings.Config.ActiveTriggers() {
			if err := r.Registry.RegisterFromQuery(trigger.Query); err != nil {
				klog.ErrorS(err, "Failed to register trigger metrics", "deployment", key, "query", trigger.Query)
			}
		}
	}

	scale := r.Scale
	if scale == nil {
		scale = NewWorkloadScale(r.Client)
	}
	current := scale.GetCurrentReplicas(&deployment)
	decision := r.AutoScaler.Compute(scaletypes.ScaleRequest{
		Target:          target,
		Config:          settings.Config,
		CurrentReplicas: current,
		MinReplicas:     settings.MinReplicas,
		MaxReplicas:     settings.MaxReplicas,
		Timestamp:       r.now().Unix(),
	})

	if decision.DesiredReplicas != current {
		if err := scale.SetDesiredReplicas(ctx, req.NamespacedName, int32(decision.DesiredReplicas)); err != nil {
			klog.ErrorS(err, "Failed to scale Deployment", "deployment", key, "desired", decision.DesiredReplicas)
			r.event(&deployment, corev1.EventTypeWarning, "FailedRescale", err.Error())
			return ctrl.Result{}, err
		}
		klog.InfoS("Scaled Deployment", "deployment", key, "from", current, "to", decision.DesiredReplicas, "reason", decision.Reason)
		r.event(&deployment, corev1.EventTypeNormal, "SuccessfulRescale", decision.Reason)
	}

	return ctrl.Result{RequeueAfter: r.Interval}, nil
}

func (r *FunctionScalerReconciler) forget(key string) {
	if r.History != nil {
		r.History.Delete(key)
	}
	if r.Store != nil {
		r.Store.DeleteDeployment(key)
	}
	r.monitor.Forget(key)
}

func (r *FunctionScalerReconciler) event(obj runtime.Object, eventType, reason, message string) {
	if r.EventRecorder != nil {
		r.EventRecorder.Event(obj, eventType, reason, message)
	}
}

func (r *FunctionScalerReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
