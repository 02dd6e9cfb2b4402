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
	"sync"
	"time"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// DefaultRetention is how long collected samples are kept.
const DefaultRetention = 30 * time.Minute

// StoreStats summarizes the content of a SnapshotStore.
type StoreStats struct {
	RequestedMetricNames []string `json:"requestedMetricNames"`
	TimestampBuckets     int      `json:"timestampBuckets"`
	SeriesCount          int      `json:"seriesCount"`
	TotalPoints          int      `json:"totalPoints"`
}

// SnapshotStore holds the collected samples of requested metrics for a bounded retention.
type SnapshotStore struct {
	mu        sync.RWMutex
	data      types.Snapshot
	retention int64
	registry  *RequestedMetricsRegistry
}

// NewSnapshotStore creates a store keeping only metrics requested in registry.
// A non-positive retention uses DefaultRetention.
func NewSnapshotStore(registry *RequestedMetricsRegistry, retention time.Duration) *SnapshotStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SnapshotStore{
		data:      make(types.Snapshot),
		retention: int64(retention / time.Second),
		registry:  registry,
	}
}

// Add records the series scraped from one pod at ts and returns how many were kept.
// Timestamps older than the retention relative to ts are dropped.
func (s *SnapshotStore) Add(ts int64, deployment, pod string, series map[string]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	minAllowed := ts - s.retention
	for t := range s.data {
		if t < minAllowed {
			delete(s.data, t)
		}
	}

	kept := 0
	for key, value := range series {
		if !s.registry.IsRequestedKey(key) {
			continue
		}
		s.data.Add(ts, deployment, pod, key, value)
		kept++
	}
	return kept
}

// Snapshot returns a deep copy of the stored samples.
func (s *SnapshotStore) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// DeleteDeployment drops every sample of deployment.
func (s *SnapshotStore) DeleteDeployment(deployment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ts, deployments := range s.data {
		delete(deployments, deployment)
		if len(deployments) == 0 {
			delete(s.data, ts)
		}
	}
}

func (s *SnapshotStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		RequestedMetricNames: s.registry.Names(),
		TimestampBuckets:     len(s.data),
	}
	series := make(map[string]struct{})
	for _, deployments := range s.data {
		for deployment, pods := range deployments {
			for pod, values := range pods {
				for key := range values {
					series[deployment+"|"+pod+"|"+key] = struct{}{}
					stats.TotalPoints++
				}
			}
		}
	}
	stats.SeriesCount = len(series)
	return stats
}
