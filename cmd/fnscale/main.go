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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/fnscale/fnscale/pkg/config"
	"github.com/fnscale/fnscale/pkg/controller"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler"
	scaleconfig "github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
	"github.com/fnscale/fnscale/pkg/debugapi"
	"github.com/fnscale/fnscale/pkg/metrics"
	"github.com/fnscale/fnscale/pkg/utils"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

type options struct {
	metricsAddr          string
	probeAddr            string
	debugAddr            string
	redisAddr            string
	enableLeaderElection bool
	reconcileInterval    time.Duration
	scrapeInterval       time.Duration
	metricsRetention     time.Duration
	historyCapacity      int
	historyTTL           time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&o.probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&o.debugAddr, "debug-bind-address", utils.LoadEnv("FNSCALE_DEBUG_ADDR", ":8082"),
		"The address the debug API binds to. Empty disables it.")
	flag.StringVar(&o.redisAddr, "redis-addr", "",
		"Redis address for the shared scaling history. Defaults to $"+utils.EnvRedisAddr+"; in memory when unset.")
	flag.BoolVar(&o.enableLeaderElection, "leader-elect", utils.LoadEnvBool("FNSCALE_LEADER_ELECT", false),
		"Enable leader election. Only the leader scrapes metrics and scales deployments.")
	flag.DurationVar(&o.reconcileInterval, "reconcile-interval", utils.LoadEnvDuration("FNSCALE_RECONCILE_INTERVAL", 10*time.Second),
		"How often each function deployment is re-evaluated.")
	flag.DurationVar(&o.scrapeInterval, "scrape-interval", utils.LoadEnvDuration("FNSCALE_SCRAPE_INTERVAL", 5*time.Second),
		"How often pod metrics are scraped. Zero disables scraping.")
	flag.DurationVar(&o.metricsRetention, "metrics-retention", utils.LoadEnvDuration("FNSCALE_METRICS_RETENTION", metrics.DefaultRetention),
		"How long scraped samples are kept.")
	flag.IntVar(&o.historyCapacity, "history-capacity", utils.LoadEnvInt("FNSCALE_HISTORY_CAPACITY", history.DefaultCapacity),
		"Maximum number of scaling recommendations kept per deployment.")
	flag.DurationVar(&o.historyTTL, "history-ttl", utils.LoadEnvDuration("FNSCALE_HISTORY_TTL", time.Hour),
		"Expiry of idle redis history keys.")
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(klog.NewKlogr())

	err := run(ctrl.SetupSignalHandler(), o)
	if err != nil {
		klog.ErrorS(err, "Exiting")
	}
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// run wires the manager and blocks until ctx is done. Every resource it opens is
// released before it returns.
func run(ctx context.Context, o options) error {
	registry := metrics.NewRequestedMetricsRegistry()
	store := metrics.NewSnapshotStore(registry, o.metricsRetention)
	evaluator := promql.NewEvaluator(store.Snapshot)
	extractor := scaleconfig.NewConfigExtractor()

	var historyStore history.Store = history.NewInMemoryStore(o.historyCapacity)
	if redisClient := utils.GetRedisClient(o.redisAddr); redisClient != nil {
		historyStore = history.NewRedisStore(redisClient, o.historyCapacity, o.historyTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				klog.Warningf("Error closing Redis client: %v", err)
			}
		}()
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("unable to load kubeconfig: %w", err)
	}
	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: o.metricsAddr},
		HealthProbeBindAddress: o.probeAddr,
		LeaderElection:         o.enableLeaderElection,
		LeaderElectionID:       "fnscale-leader.fnscale.io",
	})
	if err != nil {
		return fmt.Errorf("unable to create manager: %w", err)
	}

	runtimeConfig := config.RuntimeConfig{
		ReconcileInterval: o.reconcileInterval,
		ScrapeInterval:    o.scrapeInterval,
		AutoScaler:        podautoscaler.NewAutoScaler(evaluator, historyStore),
		History:           historyStore,
		Extractor:         extractor,
		Registry:          registry,
		Store:             store,
		Scraper:           metrics.NewScraper(metrics.DefaultScraperConfig()),
	}
	if err := controller.SetupWithManager(mgr, runtimeConfig); err != nil {
		return fmt.Errorf("unable to set up controllers: %w", err)
	}

	if o.debugAddr != "" {
		if err := mgr.Add(debugapi.NewServer(o.debugAddr, debugapi.NewRouter(store, evaluator, extractor))); err != nil {
			return fmt.Errorf("unable to add debug server: %w", err)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	klog.InfoS("Starting manager")
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}
