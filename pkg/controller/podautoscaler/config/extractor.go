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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"k8s.io/klog/v2"

	autoscalingv1alpha1 "github.com/fnscale/fnscale/api/autoscaling/v1alpha1"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// ErrNoScaleConfig is returned when the annotations carry no scale configuration.
var ErrNoScaleConfig = errors.New("no scale configuration annotation")

// ScaleSettings is the per deployment scaling input read from annotations.
type ScaleSettings struct {
	Config      *autoscalingv1alpha1.ScaleConfig
	MinReplicas int
	MaxReplicas *int
}

// ConfigExtractor handles extraction and validation of scale configurations from annotations
type ConfigExtractor struct {
	DefaultMinReplicas int

	validate *validator.Validate
}

// NewConfigExtractor creates a new configuration extractor with defaults
func NewConfigExtractor() *ConfigExtractor {
	return &ConfigExtractor{
		DefaultMinReplicas: 1,
		validate:           validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Extract reads the scale configuration and replica bounds from annotations.
//
// The min replicas are always resolved. When the configuration is malformed the returned settings
// carry a nil Config together with the error, so callers can still apply the replica bounds.
func (e *ConfigExtractor) Extract(annotations map[string]string) (ScaleSettings, error) {
	settings := ScaleSettings{MinReplicas: e.DefaultMinReplicas}

	if raw, ok := annotations[types.ReplicasMinAnnotation]; ok {
		minReplicas, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return settings, fmt.Errorf("invalid %s annotation %q: %w", types.ReplicasMinAnnotation, raw, err)
		}
		if minReplicas < 0 {
			return settings, fmt.Errorf("min replicas cannot be negative: %d", minReplicas)
		}
		settings.MinReplicas = minReplicas
	}

	raw, ok := annotations[types.ScaleConfigAnnotation]
	if !ok || strings.TrimSpace(raw) == "" {
		return settings, ErrNoScaleConfig
	}

	cfg, err := e.Parse(raw)
	if err != nil {
		return settings, err
	}
	if cfg.ReplicaMax != nil {
		if err := e.ValidateScalingConstraints(settings.MinReplicas, *cfg.ReplicaMax); err != nil {
			return settings, err
		}
	}

	settings.Config = cfg
	settings.MaxReplicas = cfg.ReplicaMax
	return settings, nil
}

// Parse decodes, validates and defaults a JSON encoded scale configuration.
func (e *ConfigExtractor) Parse(raw string) (*autoscalingv1alpha1.ScaleConfig, error) {
	cfg := &autoscalingv1alpha1.ScaleConfig{}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode scale config: %w", err)
	}
	if err := e.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid scale config: %w", err)
	}
	for i, trigger := range cfg.Triggers {
		if !trigger.Active() {
			klog.V(4).InfoS("Scale trigger is inert and will be ignored", "index", i, "query", trigger.Query, "threshold", trigger.Threshold)
		}
	}
	cfg.Default()
	return cfg, nil
}

// ValidateScalingConstraints validates min/max replica constraints
func (e *ConfigExtractor) ValidateScalingConstraints(minReplicas, maxReplicas int) error {
	if minReplicas < 0 {
		return fmt.Errorf("min replicas cannot be negative: %d", minReplicas)
	}
	if maxReplicas < 0 {
		return fmt.Errorf("max replicas cannot be negative: %d", maxReplicas)
	}
	if minReplicas > maxReplicas {
		return fmt.Errorf("min replicas (%d) cannot be greater than max replicas (%d)",
			minReplicas, maxReplicas)
	}
	return nil
}
