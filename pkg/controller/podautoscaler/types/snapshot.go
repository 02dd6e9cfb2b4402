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

import (
	"maps"
)

// Snapshot is a point-in-time view of the collected metrics:
// unix timestamp -> deployment -> pod -> series key -> value.
// Series keys look like `name{label="value",...}`. A Snapshot handed to the evaluator must not be mutated.
type Snapshot map[int64]map[string]map[string]map[string]float64

// Add records one sample, creating intermediate maps as needed.
func (s Snapshot) Add(ts int64, deployment, pod, key string, value float64) {
	deployments, ok := s[ts]
	if !ok {
		deployments = make(map[string]map[string]map[string]float64)
		s[ts] = deployments
	}
	pods, ok := deployments[deployment]
	if !ok {
		pods = make(map[string]map[string]float64)
		deployments[deployment] = pods
	}
	series, ok := pods[pod]
	if !ok {
		series = make(map[string]float64)
		pods[pod] = series
	}
	series[key] = value
}

// Latest returns the most recent timestamp in the snapshot.
func (s Snapshot) Latest() (int64, bool) {
	var latest int64
	found := false
	for ts := range s {
		if !found || ts > latest {
			latest = ts
			found = true
		}
	}
	return latest, found
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for ts, deployments := range s {
		d := make(map[string]map[string]map[string]float64, len(deployments))
		for name, pods := range deployments {
			p := make(map[string]map[string]float64, len(pods))
			for pod, series := range pods {
				p[pod] = maps.Clone(series)
			}
			d[name] = p
		}
		out[ts] = d
	}
	return out
}
