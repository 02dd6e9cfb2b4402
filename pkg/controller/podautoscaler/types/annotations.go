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

// Annotation keys read from function Deployments.
const (
	// AnnotationPrefix is the prefix for all fnscale annotation keys
	AnnotationPrefix = "fnscale.io/"

	// ScaleConfigAnnotation carries the JSON encoded ScaleConfig.
	// Deployments without it are not managed by the autoscaler.
	ScaleConfigAnnotation = AnnotationPrefix + "scale"

	// ReplicasMinAnnotation sets the lower replica bound. Value: int, default 1.
	// "0" enables scale to zero.
	ReplicasMinAnnotation = AnnotationPrefix + "replicas-min"
)

// Pod annotations describing how to scrape a pod's metrics endpoint.
const (
	PrometheusScrapeAnnotation = "prometheus.io/scrape"
	PrometheusPortAnnotation   = "prometheus.io/port"
	PrometheusPathAnnotation   = "prometheus.io/path"
	PrometheusSchemeAnnotation = "prometheus.io/scheme"
)
