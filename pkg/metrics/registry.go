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
	"sort"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
)

// RequestedMetricsRegistry tracks the metric names referenced by scale trigger queries.
// Only requested metrics are retained by the SnapshotStore.
type RequestedMetricsRegistry struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewRequestedMetricsRegistry() *RequestedMetricsRegistry {
	return &RequestedMetricsRegistry{names: make(map[string]struct{})}
}

// Register adds metric names to the registry.
func (r *RequestedMetricsRegistry) Register(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasPrefix(name, "__") {
			continue
		}
		if _, ok := r.names[name]; !ok {
			klog.V(4).InfoS("Registered requested metric", "metric", name)
			r.names[name] = struct{}{}
		}
	}
}

// RegisterFromQuery registers every metric name selected by query.
func (r *RequestedMetricsRegistry) RegisterFromQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	names, err := promql.MetricNames(query)
	if err != nil {
		return err
	}
	r.Register(names...)
	return nil
}

// IsRequested reports whether the metric name has been registered.
func (r *RequestedMetricsRegistry) IsRequested(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// IsRequestedKey reports whether the series key `name{labels}` belongs to a registered metric.
func (r *RequestedMetricsRegistry) IsRequestedKey(seriesKey string) bool {
	name := seriesKey
	if i := strings.IndexByte(seriesKey, '{'); i >= 0 {
		name = seriesKey[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	return r.IsRequested(name)
}

// Names returns the registered metric names in sorted order.
func (r *RequestedMetricsRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
