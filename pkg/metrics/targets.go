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

package metrics

import (
	"net"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// ScrapeTarget is one pod metrics endpoint.
type ScrapeTarget struct {
	Deployment string
	Pod        string
	URL        string
}

// TargetForPod returns the metrics endpoint of pod. Scraping requires both the scrape annotation
// set to true and an explicit port; pods without an IP or not running are skipped.
func TargetForPod(deployment string, pod *corev1.Pod) (ScrapeTarget, bool) {
	if pod == nil || pod.Status.PodIP == "" || pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
		return ScrapeTarget{}, false
	}
	ann := pod.Annotations
	if !scrapeEnabled(ann[types.PrometheusScrapeAnnotation]) {
		return ScrapeTarget{}, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(ann[types.PrometheusPortAnnotation]))
	if err != nil || port <= 0 || port > 65535 {
		return ScrapeTarget{}, false
	}

	scheme := strings.TrimSpace(ann[types.PrometheusSchemeAnnotation])
	if scheme == "" {
		scheme = "http"
	}
	path := strings.TrimSpace(ann[types.PrometheusPathAnnotation])
	if path == "" {
		path = "/metrics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return ScrapeTarget{
		Deployment: deployment,
		Pod:        pod.Status.PodIP,
		URL:        scheme + "://" + net.JoinHostPort(pod.Status.PodIP, strconv.Itoa(port)) + path,
	}, true
}

// TargetsForPods returns the distinct scrape targets of pods.
func TargetsForPods(deployment string, pods []corev1.Pod) []ScrapeTarget {
	seen := make(map[string]struct{}, len(pods))
	targets := make([]ScrapeTarget, 0, len(pods))
	for i := range pods {
		target, ok := TargetForPod(deployment, &pods[i])
		if !ok {
			continue
		}
		if _, dup := seen[target.URL]; dup {
			continue
		}
		seen[target.URL] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}

func scrapeEnabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
