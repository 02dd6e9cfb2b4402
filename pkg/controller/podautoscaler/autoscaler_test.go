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

package podautoscaler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	autoscalingv1alpha1 "github.com/fnscale/fnscale/api/autoscaling/v1alpha1"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/algorithm"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
)

type fakeEvaluator struct {
	mu     sync.Mutex
	values map[string]float64
	errs   map[string]error
	calls  []string
}

func (f *fakeEvaluator) Evaluate(query string, _ int64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	if err, ok := f.errs[query]; ok {
		return math.NaN(), err
	}
	if v, ok := f.values[query]; ok {
		return v, nil
	}
	return math.NaN(), nil
}

func metric(v float64) *fakeEvaluator {
	return &fakeEvaluator{values: map[string]float64{"m": v}}
}

// countingStore records how often stabilization history is read.
type countingStore struct {
	*history.InMemoryStore
	reads int
}

func (s *countingStore) GetSamples(key string, fromTs int64) []history.Sample {
	s.reads++
	return s.InMemoryStore.GetSamples(key, fromTs)
}

func trigger(threshold float64) []autoscalingv1alpha1.ScaleTrigger {
	return []autoscalingv1alpha1.ScaleTrigger{{MetricType: autoscalingv1alpha1.AverageValue, Query: "m", Threshold: threshold}}
}

func unbounded() *autoscalingv1alpha1.ScaleBehavior {
	return &autoscalingv1alpha1.ScaleBehavior{
		ScaleUp:   &autoscalingv1alpha1.ScaleDirectionBehavior{},
		ScaleDown: &autoscalingv1alpha1.ScaleDirectionBehavior{},
	}
}

func policies(ps ...autoscalingv1alpha1.ScalePolicy) *autoscalingv1alpha1.ScaleDirectionBehavior {
	return &autoscalingv1alpha1.ScaleDirectionBehavior{Policies: ps}
}

var (
	percent50 = autoscalingv1alpha1.ScalePolicy{Type: autoscalingv1alpha1.PercentPolicy, Value: 50, PeriodSeconds: 15}
	pods3     = autoscalingv1alpha1.ScalePolicy{Type: autoscalingv1alpha1.PodsPolicy, Value: 3, PeriodSeconds: 15}
)

func TestComputeDesiredReplicas_NoConfigClamps(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *autoscalingv1alpha1.ScaleConfig
		current int
		min     int
		max     *int
		want    int
	}{
		{"within bounds", nil, 3, 1, ptr.To(5), 3},
		{"below min", nil, 0, 2, nil, 2},
		{"above max", nil, 9, 1, ptr.To(5), 5},
		{"negative inputs", nil, -3, -1, nil, 0},
		{"no triggers", &autoscalingv1alpha1.ScaleConfig{ReplicaMax: ptr.To(4)}, 9, 1, ptr.To(4), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := history.NewInMemoryStore(0)
			a := NewAutoScaler(metric(100), store)
			assert.Equal(t, tt.want, a.ComputeDesiredReplicas("ns/fn", tt.cfg, tt.current, tt.min, tt.max, 100))
			assert.Empty(t, store.Keys())
		})
	}
}

func TestComputeDesiredReplicas_Formula(t *testing.T) {
	tests := []struct {
		name      string
		metric    float64
		threshold float64
		current   int
		min       int
		want      int
	}{
		{"scale up", 20, 10, 3, 0, 6},
		{"scale down", 5, 10, 10, 0, 5},
		{"activation from zero", 10, 5, 0, 0, 2},
		{"zero metric scales to zero", 0, 10, 4, 0, 0},
		{"zero metric respects min", 0, 10, 4, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutoScaler(metric(tt.metric), history.NewInMemoryStore(0))
			cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(tt.threshold), Behavior: unbounded()}
			assert.Equal(t, tt.want, a.ComputeDesiredReplicas("ns/fn", cfg, tt.current, tt.min, nil, 100))
		})
	}
}

func TestComputeDesiredReplicas_DefaultBehaviorActivation(t *testing.T) {
	a := NewAutoScaler(metric(10), history.NewInMemoryStore(0))
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(5)}
	assert.Equal(t, 2, a.ComputeDesiredReplicas("ns/fn", cfg, 0, 0, nil, 100))
}

func TestComputeDesiredReplicas_PolicyCaps(t *testing.T) {
	t.Run("scale up takes the largest allowed change", func(t *testing.T) {
		a := NewAutoScaler(metric(30), history.NewInMemoryStore(0))
		cfg := &autoscalingv1alpha1.ScaleConfig{
			Triggers: trigger(10),
			Behavior: &autoscalingv1alpha1.ScaleBehavior{ScaleUp: policies(percent50, pods3)},
		}
		d := a.ComputeWithDetails("ns/fn", cfg, 10, 1, nil, 100)
		assert.Equal(t, 30, d.RawDesired)
		assert.Equal(t, 15, d.PolicyLimited)
		assert.Equal(t, 15, d.DesiredReplicas)
		assert.Equal(t, algorithm.DirectionUp, d.Direction)
		assert.Equal(t, "scale limited by policy", d.Reason)
	})

	t.Run("scale down takes the smallest allowed change", func(t *testing.T) {
		a := NewAutoScaler(metric(5), history.NewInMemoryStore(0))
		cfg := &autoscalingv1alpha1.ScaleConfig{
			Triggers: trigger(10),
			Behavior: &autoscalingv1alpha1.ScaleBehavior{ScaleDown: policies(percent50, pods3)},
		}
		d := a.ComputeWithDetails("ns/fn", cfg, 10, 1, nil, 100)
		assert.Equal(t, 5, d.RawDesired)
		assert.Equal(t, 7, d.DesiredReplicas)
		assert.Equal(t, algorithm.DirectionDown, d.Direction)
	})

	t.Run("max replicas bounds the result", func(t *testing.T) {
		a := NewAutoScaler(metric(100), history.NewInMemoryStore(0))
		cfg := &autoscalingv1alpha1.ScaleConfig{ReplicaMax: ptr.To(8), Triggers: trigger(1), Behavior: unbounded()}
		assert.Equal(t, 8, a.ComputeDesiredReplicas("ns/fn", cfg, 2, 1, cfg.ReplicaMax, 100))
	})
}

func TestComputeDesiredReplicas_ScaleDownStabilization(t *testing.T) {
	store := history.NewInMemoryStore(0)
	a := NewAutoScaler(metric(2), store)
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(10)}

	t0 := int64(1_700_000_000)
	store.AddSample("ns/fn", t0, 10)

	// raw desired is ceil(10 * 2 / 10) = 2 but the window still holds 10
	assert.Equal(t, 10, a.ComputeDesiredReplicas("ns/fn", cfg, 10, 1, nil, t0+10))

	// the window of 300s no longer covers t0
	assert.Equal(t, 2, a.ComputeDesiredReplicas("ns/fn", cfg, 10, 1, nil, t0+400))
}

func TestComputeDesiredReplicas_ScaleUpStabilization(t *testing.T) {
	store := history.NewInMemoryStore(0)
	a := NewAutoScaler(metric(8), store)
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: trigger(5),
		Behavior: &autoscalingv1alpha1.ScaleBehavior{
			ScaleUp: &autoscalingv1alpha1.ScaleDirectionBehavior{StabilizationWindowSeconds: 60},
		},
	}
	store.AddSample("ns/fn", 970, 20)

	// raw desired is ceil(5 * 8 / 5) = 8, the rolling max keeps the recent 20
	d := a.ComputeWithDetails("ns/fn", cfg, 5, 1, nil, 1000)
	assert.Equal(t, 8, d.PolicyLimited)
	assert.Equal(t, 20, d.DesiredReplicas)
	assert.Equal(t, "scale held by stabilization window", d.Reason)

	assert.Equal(t, 8, a.ComputeDesiredReplicas("ns/fn", cfg, 5, 1, nil, 1100))
}

func TestComputeDesiredReplicas_StabilizationAfterBurst(t *testing.T) {
	store := history.NewInMemoryStore(0)
	eval := metric(500)
	a := NewAutoScaler(eval, store)
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(10)}
	t0 := int64(1_700_000_000)

	// raw desired is 100, the default scale-up policies allow max(+2, +4)
	d := a.ComputeWithDetails("ns/fn", cfg, 2, 1, nil, t0)
	assert.Equal(t, 100, d.RawDesired)
	assert.Equal(t, 6, d.DesiredReplicas)

	// a dip on the next tick is held at current instead of jumping to the old raw value
	eval.values["m"] = 5
	d = a.ComputeWithDetails("ns/fn", cfg, 6, 1, nil, t0+15)
	assert.Equal(t, 3, d.RawDesired)
	assert.Equal(t, 3, d.PolicyLimited)
	assert.Equal(t, 6, d.Stabilized)
	assert.Equal(t, 6, d.DesiredReplicas)
	assert.Equal(t, algorithm.DirectionNone, d.Direction)
	assert.Equal(t, "scale held by stabilization window", d.Reason)
}

func TestComputeDesiredReplicas_ScaleUpStabilizationRespectsPolicy(t *testing.T) {
	store := history.NewInMemoryStore(0)
	a := NewAutoScaler(metric(8), store)
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: trigger(5),
		Behavior: &autoscalingv1alpha1.ScaleBehavior{
			ScaleUp: &autoscalingv1alpha1.ScaleDirectionBehavior{StabilizationWindowSeconds: 60, Policies: []autoscalingv1alpha1.ScalePolicy{pods3}},
		},
	}
	store.AddSample("ns/fn", 970, 20)

	// raw desired is 8 which the policy allows, the window would hold 20
	d := a.ComputeWithDetails("ns/fn", cfg, 5, 1, nil, 1000)
	assert.Equal(t, 8, d.PolicyLimited)
	assert.Equal(t, 8, d.Stabilized)
	assert.Equal(t, 8, d.DesiredReplicas)
}

func TestComputeDesiredReplicas_NoChangeSkipsPolicies(t *testing.T) {
	store := &countingStore{InMemoryStore: history.NewInMemoryStore(0)}
	a := NewAutoScaler(metric(10), store)
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(10)}

	d := a.ComputeWithDetails("ns/fn", cfg, 4, 1, nil, 100)
	assert.Equal(t, 4, d.DesiredReplicas)
	assert.Equal(t, algorithm.DirectionNone, d.Direction)
	assert.Equal(t, 0, store.reads)
	assert.Equal(t, []history.Sample{{Timestamp: 100, DesiredReplicas: 4}}, store.InMemoryStore.GetSamples("ns/fn", 0))
}

func TestComputeDesiredReplicas_RecordsRawDesired(t *testing.T) {
	store := history.NewInMemoryStore(0)
	a := NewAutoScaler(metric(30), store)
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: trigger(10),
		Behavior: &autoscalingv1alpha1.ScaleBehavior{ScaleUp: policies(percent50)},
	}
	assert.Equal(t, 15, a.ComputeDesiredReplicas("ns/fn", cfg, 10, 1, nil, 100))
	assert.Equal(t, []history.Sample{{Timestamp: 100, DesiredReplicas: 30}}, store.GetSamples("ns/fn", 0))
}

func TestComputeDesiredReplicas_TriggerFailures(t *testing.T) {
	eval := &fakeEvaluator{
		values: map[string]float64{"ok": 30, "nan": math.NaN(), "inf": math.Inf(1), "neg": -1},
		errs:   map[string]error{"broken": errors.New("parse error")},
	}
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: []autoscalingv1alpha1.ScaleTrigger{
			{Query: "broken", Threshold: 1},
			{Query: "nan", Threshold: 1},
			{Query: "inf", Threshold: 1},
			{Query: "neg", Threshold: 1},
			{Query: "ok", Threshold: 10},
			{Query: "", Threshold: 10},
			{Query: "inert", Threshold: 0},
		},
		Behavior: unbounded(),
	}
	a := NewAutoScaler(eval, history.NewInMemoryStore(0))
	d := a.ComputeWithDetails("ns/fn", cfg, 2, 1, nil, 100)

	assert.Equal(t, 6, d.DesiredReplicas)
	assert.Equal(t, []string{"broken", "nan", "inf", "neg", "ok"}, eval.calls)
	require.Len(t, d.Triggers, 5)
	assert.Equal(t, "evaluation_error", d.Triggers[0].Skipped)
	assert.Equal(t, "parse error", d.Triggers[0].Error)
	assert.Equal(t, "no_data", d.Triggers[1].Skipped)
	assert.Equal(t, "invalid_value", d.Triggers[2].Skipped)
	assert.Equal(t, "invalid_value", d.Triggers[3].Skipped)
	assert.Equal(t, ptr.To(6), d.Triggers[4].DesiredReplicas)
}

func TestComputeDesiredReplicas_NoUsableTrigger(t *testing.T) {
	eval := &fakeEvaluator{errs: map[string]error{"m": errors.New("boom")}}
	a := NewAutoScaler(eval, history.NewInMemoryStore(0))
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(1)}
	assert.Equal(t, 3, a.ComputeDesiredReplicas("ns/fn", cfg, 3, 1, nil, 100))
	assert.Equal(t, 5, a.ComputeDesiredReplicas("ns/fn", cfg, 9, 1, ptr.To(5), 100))
}

func TestComputeDesiredReplicas_HighestTriggerWins(t *testing.T) {
	eval := &fakeEvaluator{values: map[string]float64{"cpu": 5, "rps": 40}}
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: []autoscalingv1alpha1.ScaleTrigger{
			{Query: "cpu", Threshold: 10},
			{Query: "rps", Threshold: 10},
		},
		Behavior: unbounded(),
	}
	a := NewAutoScaler(eval, history.NewInMemoryStore(0))
	assert.Equal(t, 8, a.ComputeDesiredReplicas("ns/fn", cfg, 2, 1, nil, 100))
}

func TestAutoScaler_WithQueryEvaluator(t *testing.T) {
	snapshot := types.Snapshot{}
	for _, pod := range []string{"10.0.0.1", "10.0.0.2"} {
		snapshot.Add(1000, "fn", pod, `http_requests_total{function="fn"}`, 0)
		snapshot.Add(1060, "fn", pod, `http_requests_total{function="fn"}`, 600)
	}
	evaluator := promql.NewEvaluator(func() types.Snapshot { return snapshot })
	a := NewAutoScaler(evaluator, history.NewInMemoryStore(0))

	// 20 requests per second over 2 replicas against a target of 5 per replica
	cfg := &autoscalingv1alpha1.ScaleConfig{
		Triggers: []autoscalingv1alpha1.ScaleTrigger{{
			MetricType: autoscalingv1alpha1.AverageValue,
			Query:      `sum(rate(http_requests_total{function="fn"}[1m])) / 2`,
			Threshold:  5,
		}},
	}
	d := a.Compute(types.ScaleRequest{
		Target:          types.ScaleTarget{Namespace: "default", Name: "fn"},
		Config:          cfg,
		CurrentReplicas: 2,
		MinReplicas:     1,
		Timestamp:       1060,
	})
	assert.Equal(t, 4, d.DesiredReplicas)

	// a malformed query is skipped, the empty history keeps the current count
	cfg.Triggers[0].Query = "sum(rate(http_requests_total[1d]))"
	assert.Equal(t, 2, a.ComputeDesiredReplicas("default/other", cfg, 2, 1, nil, 1060))
}

func TestAutoScaler_ConcurrentDeployments(t *testing.T) {
	a := NewAutoScaler(metric(20), history.NewInMemoryStore(0))
	cfg := &autoscalingv1alpha1.ScaleConfig{Triggers: trigger(10), Behavior: unbounded()}

	var wg sync.WaitGroup
	results := make([]int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.ComputeDesiredReplicas(fmt.Sprintf("ns/fn-%d", i), cfg, 3, 1, nil, 100)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, 6, r)
	}
}
