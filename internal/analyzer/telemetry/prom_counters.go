// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes Prometheus metrics for the correlogram service:
// computation throughput and latency, strategy fallbacks, and persistence
// batch activity. All metrics are global with bounded label cardinality.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ccg/internal/analyzer/core"
)

// Config controls the behavior of the telemetry module.
//
// MetricsAddr, when non-empty, starts a dedicated HTTP server that serves
// /metrics. If you already expose Prometheus elsewhere, leave it empty and
// register promhttp yourself.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g., ":9090". Empty to disable standalone metrics endpoint
}

var (
	modEnabled atomic.Bool

	computationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ccg_computations_total",
		Help: "Total correlogram computations, by counting strategy actually used",
	}, []string{"strategy"})
	fallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccg_strategy_fallbacks_total",
		Help: "Total computations where the requested strategy was substituted",
	})
	computeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ccg_compute_duration_seconds",
		Help:    "Distribution of wall-clock time per correlogram computation",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
	})
	pairsCountedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccg_pairs_counted_total",
		Help: "Total spike pairs binned across all computations",
	})
	resultsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ccg_results_tracked",
		Help: "Number of named results currently held in memory",
	})
	persistBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccg_persist_batches_total",
		Help: "Total successfully persisted result batches",
	})
	persistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccg_persist_errors_total",
		Help: "Total failed persistence attempts",
	})
	resultsPerBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ccg_results_per_batch",
		Help:    "Distribution of results per persisted batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})
)

func init() {
	// Register metrics eagerly. If no Prometheus endpoint is exposed, the registration is harmless.
	prometheus.MustRegister(computationsTotal, fallbacksTotal, computeDuration,
		pairsCountedTotal, resultsTracked, persistBatchesTotal, persistErrorsTotal, resultsPerBatch)
}

// Enable configures the module. Safe to call multiple times; subsequent calls replace config.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether the telemetry module is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveComputation records one completed computation.
// pairs is the total count written into the result tensor.
func ObserveComputation(strategy string, fellBack bool, elapsed time.Duration, pairs int64) {
	if !modEnabled.Load() {
		return
	}
	computationsTotal.WithLabelValues(strategy).Inc()
	if fellBack {
		fallbacksTotal.Inc()
	}
	computeDuration.Observe(elapsed.Seconds())
	if pairs > 0 {
		pairsCountedTotal.Add(float64(pairs))
	}
}

// SetResultsTracked updates the in-memory results gauge.
func SetResultsTracked(n int) {
	if !modEnabled.Load() {
		return
	}
	resultsTracked.Set(float64(n))
}

// InstrumentPersister wraps a persister so batch successes and failures feed
// the persistence metrics. The wrapped persister is returned unchanged when
// telemetry is disabled at wrap time.
func InstrumentPersister(p core.Persister) core.Persister {
	if !modEnabled.Load() {
		return p
	}
	return instrumentedPersister{inner: p}
}

type instrumentedPersister struct {
	inner core.Persister
}

func (ip instrumentedPersister) PersistBatch(results []*core.Result) error {
	err := ip.inner.PersistBatch(results)
	if !modEnabled.Load() || len(results) == 0 {
		return err
	}
	if err != nil {
		persistErrorsTotal.Inc()
		return err
	}
	persistBatchesTotal.Inc()
	resultsPerBatch.Observe(float64(len(results)))
	return nil
}

func (ip instrumentedPersister) FinalReport() { ip.inner.FinalReport() }

// startMetricsEndpoint exposes /metrics on the given addr in a background goroutine.
// Safe to call multiple times; only one server per unique addr will be started (best-effort).
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
