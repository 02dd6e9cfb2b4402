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

package config

import (
	"time"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/metrics"
)

// RuntimeConfig carries the shared components handed to every controller.
type RuntimeConfig struct {
	// ReconcileInterval is how often an annotated deployment is re-evaluated.
	ReconcileInterval time.Duration
	// ScrapeInterval is how often pod metrics are collected. Zero disables collection.
	ScrapeInterval time.Duration

	AutoScaler *podautoscaler.AutoScaler
	History    history.Store
	Extractor  *config.ConfigExtractor
	Registry   *metrics.RequestedMetricsRegistry
	Store      *metrics.SnapshotStore
	Scraper    *metrics.Scraper
}
