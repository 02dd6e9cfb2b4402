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

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/fnscale/fnscale/pkg/config"
	scaleconfig "github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	scaletypes "github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
	"github.com/fnscale/fnscale/pkg/metrics"
)

// Collector periodically scrapes the pods of annotated Deployments into the snapshot store.
// Only the elected leader collects.
type Collector struct {
	reader    client.Reader
	scraper   *metrics.Scraper
	store     *metrics.SnapshotStore
	registry  *metrics.RequestedMetricsRegistry
	extractor *scaleconfig.ConfigExtractor
	interval  time.Duration

	now func() time.Time
}

var (
	_ manager.Runnable               = &Collector{}
	_ manager.LeaderElectionRunnable = &Collector{}
)

func NewCollector(reader client.Reader, runtimeConfig config.RuntimeConfig) *Collector {
	return &Collector{
		reader:    reader,
		scraper:   runtimeConfig.Scraper,
		store:     runtimeConfig.Store,
		registry:  runtimeConfig.Registry,
		extractor: runtimeConfig.Extractor,
		interval:  runtimeConfig.ScrapeInterval,
		now:       time.Now,
	}
}

func (c *Collector) Start(ctx context.Context) error {
	klog.InfoS("Starting metrics collector", "interval", c.interval)
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		c.CollectOnce(ctx)
	}, c.interval)
	klog.InfoS("Stopped metrics collector")
	return nil
}

func (c *Collector) NeedLeaderElection() bool {
	return true
}

// CollectOnce scrapes every target under a single timestamp and returns the number of successful scrapes.
func (c *Collector) CollectOnce(ctx context.Context) int {
	var deployments appsv1.DeploymentList
	if err := c.reader.List(ctx, &deployments); err != nil {
		klog.ErrorS(err, "Failed to list Deployments for metrics collection")
		return 0
	}

	var targets []metrics.ScrapeTarget
	for i := range deployments.Items {
		deployment := &deployments.Items[i]
		if !hasScaleConfig(deployment) {
			continue
		}
		c.registerTriggers(deployment)

		found, err := c.targetsFor(ctx, deployment)
		if err != nil {
			klog.ErrorS(err, "Failed to list pods", "deployment", client.ObjectKeyFromObject(deployment))
			continue
		}
		targets = append(targets, found...)
	}
	if len(targets) == 0 {
		return 0
	}

	succeeded := c.scraper.ScrapeAll(ctx, targets, c.now().Unix(), c.store)
	klog.V(4).InfoS("Collected pod metrics", "targets", len(targets), "succeeded", succeeded)
	return succeeded
}

func (c *Collector) targetsFor(ctx context.Context, deployment *appsv1.Deployment) ([]metrics.ScrapeTarget, error) {
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, err
	}
	var pods corev1.PodList
	if err := c.reader.List(ctx, &pods, client.InNamespace(deployment.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return nil, err
	}
	key := scaletypes.ScaleTarget{Namespace: deployment.Namespace, Name: deployment.Name}.String()
	return metrics.TargetsForPods(key, pods.Items), nil
}

// registerTriggers makes sure trigger metrics are kept even before the first reconcile.
func (c *Collector) registerTriggers(deployment *appsv1.Deployment) {
	if c.registry == nil || c.extractor == nil {
		return
	}
	settings, err := c.extractor.Extract(deployment.Annotations)
	if err != nil || settings.Config == nil {
		return
	}
	for _, trigger := range settings.Config.ActiveTriggers() {
		_ = c.registry.RegisterFromQuery(trigger.Query)
	}
}
