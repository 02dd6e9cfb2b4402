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

package functionscaler

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/fnscale/fnscale/pkg/config"
	scaleconfig "github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	scaletypes "github.com/fnscale/fnscale/pkg/controller/podautoscaler/types"
	"github.com/fnscale/fnscale/pkg/metrics"
)

var _ = Describe("Metrics collector", func() {
	var server *httptest.Server

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# TYPE queue_depth gauge\nqueue_depth 7\n# TYPE go_goroutines gauge\ngo_goroutines 12\n"))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	pod := func(name, app, host, port string, phase corev1.PodPhase) *corev1.Pod {
		return &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: testNamespace,
				Labels:    map[string]string{"app": app},
				Annotations: map[string]string{
					scaletypes.PrometheusScrapeAnnotation: "true",
					scaletypes.PrometheusPortAnnotation:   port,
				},
			},
			Status: corev1.PodStatus{Phase: phase, PodIP: host},
		}
	}

	It("scrapes the pods of annotated deployments", func() {
		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())
		host, port, err := net.SplitHostPort(u.Host)
		Expect(err).NotTo(HaveOccurred())

		c := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(
			makeDeployment("fn", ptr.To[int32](1), map[string]string{
				scaletypes.ScaleConfigAnnotation: `{"triggers": [{"query": "max(queue_depth)", "threshold": 5}]}`,
			}),
			makeDeployment("plain", ptr.To[int32](1), nil),
			pod("fn-1", "fn", host, port, corev1.PodRunning),
			pod("fn-2", "fn", "10.0.0.9", port, corev1.PodPending),
			pod("plain-1", "plain", host, port, corev1.PodRunning),
		).Build()

		registry := metrics.NewRequestedMetricsRegistry()
		store := metrics.NewSnapshotStore(registry, 0)
		collector := NewCollector(c, config.RuntimeConfig{
			ScrapeInterval: time.Second,
			Scraper:        metrics.NewScraper(metrics.DefaultScraperConfig()),
			Store:          store,
			Registry:       registry,
			Extractor:      scaleconfig.NewConfigExtractor(),
		})
		collector.now = func() time.Time { return time.Unix(2_000, 0) }

		Expect(collector.CollectOnce(context.Background())).To(Equal(1))
		Expect(collector.NeedLeaderElection()).To(BeTrue())

		snapshot := store.Snapshot()
		Expect(snapshot).To(HaveKey(int64(2_000)))
		Expect(snapshot[2_000]).To(HaveLen(1))
		Expect(snapshot[2_000]["functions/fn"][host]).To(Equal(map[string]float64{"queue_depth": 7}))
	})

	It("does nothing without annotated deployments", func() {
		c := fake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
		registry := metrics.NewRequestedMetricsRegistry()
		collector := NewCollector(c, config.RuntimeConfig{
			Scraper:  metrics.NewScraper(metrics.DefaultScraperConfig()),
			Store:    metrics.NewSnapshotStore(registry, 0),
			Registry: registry,
		})
		Expect(collector.CollectOnce(context.Background())).To(BeZero())
	})
})
