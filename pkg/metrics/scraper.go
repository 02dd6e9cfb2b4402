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
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/monitor"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
)

// ScraperConfig holds configuration for pod metrics scraping
type ScraperConfig struct {
	Timeout     time.Duration
	Concurrency int
	InsecureTLS bool
}

// DefaultScraperConfig returns the defaults used by the collector.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		Timeout:     3 * time.Second,
		Concurrency: 16,
		InsecureTLS: true,
	}
}

// Scraper fetches Prometheus text metrics from pods and flattens them into series keys.
type Scraper struct {
	client  *http.Client
	config  ScraperConfig
	monitor *monitor.Monitor
}

func NewScraper(config ScraperConfig) *Scraper {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	transport := &http.Transport{}
	if config.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Scraper{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config:  config,
		monitor: monitor.New(),
	}
}

// Scrape fetches url and returns its samples keyed by series key.
func (s *Scraper) Scrape(ctx context.Context, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics from %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			klog.ErrorS(err, "failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code while fetching metrics from %s: %d", url, resp.StatusCode)
	}

	families, err := ParseMetricsFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics from %s: %w", url, err)
	}
	return FlattenFamilies(families), nil
}

// ScrapeAll scrapes every target and appends the results to store under ts.
// Failing targets are logged and skipped. It returns the number of successful scrapes.
func (s *Scraper) ScrapeAll(ctx context.Context, targets []ScrapeTarget, ts int64, store *SnapshotStore) int {
	results := make([]map[string]float64, len(targets))

	g := errgroup.Group{}
	g.SetLimit(s.config.Concurrency)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			series, err := s.Scrape(ctx, target.URL)
			s.monitor.RecordScrape(err)
			if err != nil {
				klog.V(3).InfoS("Metrics scrape failed", "deployment", target.Deployment, "url", target.URL, "error", err)
				return nil
			}
			results[i] = series
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for i, series := range results {
		if series == nil {
			continue
		}
		succeeded++
		store.Add(ts, targets[i].Deployment, targets[i].Pod, series)
	}
	s.monitor.SetStoredPoints(store.Stats().TotalPoints)
	return succeeded
}

// ParseMetricsFromReader parses the Prometheus text exposition format.
func ParseMetricsFromReader(reader io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(reader)
	if err != nil {
		return nil, fmt.Errorf("error parsing metric families: %w", err)
	}
	return families, nil
}

// FlattenFamilies turns metric families into series keys `name{label="value"}`.
// Histograms expand into _bucket, _sum and _count series and summaries into quantile, _sum and
// _count series. NaN and infinite samples are dropped.
func FlattenFamilies(families map[string]*dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	put := func(name string, labels map[string]string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		out[promql.FormatSeriesKey(name, labels)] = v
	}

	for name, family := range families {
		for _, m := range family.GetMetric() {
			labels := labelMap(m.GetLabel())
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				put(name, labels, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				put(name, labels, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				put(name, labels, m.GetUntyped().GetValue())
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				h := m.GetHistogram()
				hasInf := false
				for _, b := range h.GetBucket() {
					if math.IsInf(b.GetUpperBound(), 1) {
						hasInf = true
					}
					put(name+"_bucket", withLabel(labels, "le", formatBound(b.GetUpperBound())), float64(b.GetCumulativeCount()))
				}
				if !hasInf {
					put(name+"_bucket", withLabel(labels, "le", "+Inf"), float64(h.GetSampleCount()))
				}
				put(name+"_sum", labels, h.GetSampleSum())
				put(name+"_count", labels, float64(h.GetSampleCount()))
			case dto.MetricType_SUMMARY:
				sm := m.GetSummary()
				for _, q := range sm.GetQuantile() {
					put(name, withLabel(labels, "quantile", formatBound(q.GetQuantile())), q.GetValue())
				}
				put(name+"_sum", labels, sm.GetSampleSum())
				put(name+"_count", labels, float64(sm.GetSampleCount()))
			}
		}
	}
	return out
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

func withLabel(labels map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[name] = value
	return out
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
