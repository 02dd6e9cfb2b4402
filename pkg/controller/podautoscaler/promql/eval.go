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
	"maps"
	"math"
	"sort"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

// value is either a scalar or a set of values keyed by a label value (usually le).
type value struct {
	scalar  float64
	buckets map[string]float64
}

func scalarValue(v float64) value {
	return value{scalar: v}
}

func bucketValue(b map[string]float64) value {
	if b == nil {
		b = map[string]float64{}
	}
	return value{scalar: math.NaN(), buckets: b}
}

func (v value) isScalar() bool {
	return v.buckets == nil
}

// asScalar collapses bucketed values by summing them.
func (v value) asScalar() float64 {
	if v.isScalar() {
		return v.scalar
	}
	total := 0.0
	for _, b := range v.buckets {
		total += b
	}
	return total
}

type point struct {
	ts int64
	v  float64
}

type series struct {
	labels map[string]string
	points []point
}

type parsedKey struct {
	name   string
	labels map[string]string
	ok     bool
}

// evalContext carries the inputs of one evaluation. It is not shared between calls.
type evalContext struct {
	snapshot types.Snapshot
	now      int64
	keys     map[string]parsedKey
}

func newEvalContext(snapshot types.Snapshot, now int64) *evalContext {
	return &evalContext{snapshot: snapshot, now: now, keys: make(map[string]parsedKey)}
}

func (c *evalContext) eval(n Node) value {
	switch n := n.(type) {
	case *NumberNode:
		return scalarValue(n.Value)
	case *BinaryNode:
		return scalarValue(binary(n.Op, c.eval(n.Left).asScalar(), c.eval(n.Right).asScalar()))
	case *SelectorNode:
		return scalarValue(c.instantSum(n.Selector))
	case *RateNode:
		return scalarValue(c.rateSum(n.Selector))
	case *BucketRateNode:
		return bucketValue(c.bucketRate(n.Selector, n.Label))
	case *AvgRateNode:
		return scalarValue(c.rateAvg(n.Selector))
	case *MaxOverTimeNode:
		return scalarValue(c.maxOverTime(n.Selector))
	case *AggregateNode:
		return aggregate(n.Op, n.By, c.eval(n.Inner))
	case *VariadicNode:
		return scalarValue(c.variadic(n))
	case *HistogramQuantileNode:
		v := c.eval(n.Inner)
		if v.isScalar() {
			return scalarValue(math.NaN())
		}
		return scalarValue(bucketQuantile(n.Phi, v.buckets))
	}
	return scalarValue(math.NaN())
}

func binary(op BinaryOp, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return safeDiv(a, b)
	}
	return math.NaN()
}

// safeDiv propagates NaN, maps 0/0 to 0 and x/0 to +Inf.
func safeDiv(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if b == 0 {
		if a == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return a / b
}

func (c *evalContext) parseKey(key string) parsedKey {
	if pk, ok := c.keys[key]; ok {
		return pk
	}
	name, labels, ok := ParseSeriesKey(key)
	pk := parsedKey{name: name, labels: labels, ok: ok}
	c.keys[key] = pk
	return pk
}

// selectSeries collects the samples of every matching series with a timestamp in [from, now].
// Series are told apart by name, labels and pod, so counters of different pods never mix.
func (c *evalContext) selectSeries(sel *Selector, from int64) []*series {
	byID := make(map[string]*series)
	values := make(map[string]map[int64]float64)
	for ts, deployments := range c.snapshot {
		if ts < from || ts > c.now {
			continue
		}
		for _, pods := range deployments {
			for pod, samples := range pods {
				for key, v := range samples {
					pk := c.parseKey(key)
					if !pk.ok || !sel.Matches(pk.name, pk.labels) {
						continue
					}
					id := FormatSeriesKey(pk.name, pk.labels) + "|pod=" + pod
					if _, ok := byID[id]; !ok {
						byID[id] = &series{labels: pk.labels}
						values[id] = make(map[int64]float64)
					}
					values[id][ts] = v
				}
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*series, 0, len(ids))
	for _, id := range ids {
		s := byID[id]
		for ts, v := range values[id] {
			s.points = append(s.points, point{ts: ts, v: v})
		}
		sort.Slice(s.points, func(i, j int) bool { return s.points[i].ts < s.points[j].ts })
		out = append(out, s)
	}
	return out
}

// counterRate is the per second increase between the first and last point.
// It is not defined for fewer than two points, an empty time span or a counter reset.
func counterRate(points []point) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	first, last := points[0], points[len(points)-1]
	dt := float64(last.ts - first.ts)
	if dt <= 0 {
		return 0, false
	}
	diff := last.v - first.v
	if diff < 0 {
		return 0, false
	}
	return diff / dt, true
}

func (c *evalContext) instantSum(sel *Selector) float64 {
	total := 0.0
	for _, s := range c.selectSeries(sel, math.MinInt64) {
		if len(s.points) > 0 {
			total += s.points[len(s.points)-1].v
		}
	}
	return total
}

func (c *evalContext) rateSum(sel *Selector) float64 {
	total := 0.0
	for _, s := range c.selectSeries(sel, c.now-sel.Range) {
		if r, ok := counterRate(s.points); ok {
			total += r
		}
	}
	return total
}

func (c *evalContext) rateAvg(sel *Selector) float64 {
	total, n := 0.0, 0
	for _, s := range c.selectSeries(sel, c.now-sel.Range) {
		if r, ok := counterRate(s.points); ok {
			total += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (c *evalContext) bucketRate(sel *Selector, label string) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range c.selectSeries(sel, c.now-sel.Range) {
		group, ok := s.labels[label]
		if !ok {
			continue
		}
		if r, ok := counterRate(s.points); ok {
			out[group] += r
		}
	}
	return out
}

func (c *evalContext) maxOverTime(sel *Selector) float64 {
	result := math.NaN()
	for _, s := range c.selectSeries(sel, c.now-sel.Range) {
		for _, p := range s.points {
			if math.IsNaN(p.v) {
				continue
			}
			if math.IsNaN(result) || p.v > result {
				result = p.v
			}
		}
	}
	return result
}

// aggregate passes scalars through, keeps grouped values when a by label is set
// and otherwise collapses the buckets with op.
func aggregate(op AggregateOp, by string, v value) value {
	if v.isScalar() {
		return v
	}
	if by != "" {
		return bucketValue(maps.Clone(v.buckets))
	}
	if op == AggSum {
		return scalarValue(v.asScalar())
	}
	if len(v.buckets) == 0 {
		return scalarValue(math.NaN())
	}

	var result float64
	first := true
	for _, b := range v.buckets {
		switch {
		case first:
			result = b
			first = false
		case op == AggMin:
			result = math.Min(result, b)
		case op == AggMax:
			result = math.Max(result, b)
		default:
			result += b
		}
	}
	if op == AggAvg {
		result /= float64(len(v.buckets))
	}
	return scalarValue(result)
}

// variadic returns the min or max of the scalar arguments, ignoring NaN.
func (c *evalContext) variadic(n *VariadicNode) float64 {
	result := math.NaN()
	for _, arg := range n.Args {
		v := c.eval(arg).asScalar()
		if math.IsNaN(v) {
			continue
		}
		switch {
		case math.IsNaN(result):
			result = v
		case n.Op == AggMin:
			result = math.Min(result, v)
		default:
			result = math.Max(result, v)
		}
	}
	return result
}
