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

package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// LoadEnv returns the value of the environment variable or defaultValue when it is unset or empty.
func LoadEnv(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

func LoadEnvInt(key string, defaultValue int) int {
	value := LoadEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		klog.Warningf("invalid %s=%q, using default %d: %v", key, value, defaultValue, err)
		return defaultValue
	}
	return parsed
}

func LoadEnvBool(key string, defaultValue bool) bool {
	value := LoadEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		klog.Warningf("invalid %s=%q, using default %t: %v", key, value, defaultValue, err)
		return defaultValue
	}
	return parsed
}

// LoadEnvDuration accepts Go durations ("30s") as well as plain seconds ("30").
func LoadEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(LoadEnv(key, ""))
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		klog.Warningf("invalid %s=%q, using default %s: %v", key, value, defaultValue, err)
		return defaultValue
	}
	return parsed
}
