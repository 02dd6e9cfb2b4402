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

package promql

import (
	"math"
	"sort"

	"k8s.io/klog/v2"
	"k8s.io/utils/lru"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// DefaultParseCacheSize is the number of parsed queries kept by an Evaluator.
const DefaultParseCacheSize = 256

// SnapshotProvider returns the metrics to evaluate against. It must not block and
// returns an empty snapshot when no metrics are available.
type SnapshotProvider func() types.Snapshot

// Evaluate parses query and evaluates it against snapshot at now.
//
// A malformed query returns a *ParseError. An empty snapshot yields NaN, which callers
// must treat as "no data". Otherwise NaN and infinite results are reported as 0.
func Evaluate(query string, snapshot types.Snapshot, now int64) (float64, error) {
	n, err := Parse(query)
	if err != nil {
		return math.NaN(), err
	}
	return EvaluateNode(n, snapshot, now), nil
}

// EvaluateNode evaluates an already parsed query. See Evaluate.
func EvaluateNode(n Node, snapshot types.Snapshot, now int64) float64 {
	if len(snapshot) == 0 {
		return math.NaN()
	}
	result := newEvalContext(snapshot, now).eval(n).asScalar()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0
	}
	return result
}

// Evaluator evaluates queries against the snapshot returned by its provider,
// caching parsed queries. It is safe for concurrent use.
type Evaluator struct {
	snapshots SnapshotProvider
	parsed    *lru.Cache
}

// NewEvaluator creates an evaluator reading metrics from provider.
func NewEvaluator(provider SnapshotProvider) *Evaluator {
	return &Evaluator{
		snapshots: provider,
		parsed:    lru.New(DefaultParseCacheSize),
	}
}

// Parse returns the cached tree for query, parsing it on first use.
func (e *Evaluator) Parse(query string) (Node, error) {
	if n, ok := e.parsed.Get(query); ok {
		return n.(Node), nil
	}
	n, err := Parse(query)
	if err != nil {
		return nil, err
	}
	e.parsed.Add(query, n)
	return n, nil
}

// Evaluate evaluates query at now against a fresh snapshot.
func (e *Evaluator) Evaluate(query string, now int64) (float64, error) {
	n, err := e.Parse(query)
	if err != nil {
		return math.NaN(), err
	}
	snapshot := e.snapshots()
	if len(snapshot) == 0 {
		klog.V(4).InfoS("No metrics available for query", "query", query)
	}
	return EvaluateNode(n, snapshot, now), nil
}

// EvaluateLatest evaluates query at the most recent timestamp of the snapshot and
// returns that timestamp. The timestamp is 0 when the snapshot is empty.
func (e *Evaluator) EvaluateLatest(query string) (float64, int64, error) {
	n, err := e.Parse(query)
	if err != nil {
		return math.NaN(), 0, err
	}
	snapshot := e.snapshots()
	now, _ := snapshot.Latest()
	return EvaluateNode(n, snapshot, now), now, nil
}

// MetricNames returns the sorted, de-duplicated metric names referenced by query.
func MetricNames(query string) ([]string, error) {
	n, err := Parse(query)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, sel := range Selectors(n) {
		seen[sel.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
