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

// Package main provides the entry point for the correlogram service.
//
// The service computes auto- and cross-correlograms from spike trains posted
// over HTTP, keeps the results versioned in memory, and persists them in the
// background to a configurable sink (Redis, Kafka, Elasticsearch, or a
// logging mock). This file orchestrates the whole thing:
//  1. Initializing the core components (Store, Worker, Persister).
//  2. Starting the background worker for persistence and memory management.
//  3. Starting the API server to handle live traffic.
//  4. Managing graceful shutdown so no computed result is lost.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ccg"
	"ccg/internal/analyzer/api"
	"ccg/internal/analyzer/core"
	"ccg/internal/analyzer/persistence"
	"ccg/internal/analyzer/telemetry"
)

func main() {
	// Configuration flags.
	// - flush_interval: how often dirty results are scanned and persisted
	// - eviction_age: how long a result can sit idle before being dropped from memory
	// - eviction_interval: how often the eviction scan runs
	// - subset_cache_mb: memory bound for memoized unit-subset views
	// - workers: goroutines per pairwise computation (0 = GOMAXPROCS)
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address (e.g., :8080)")
	flushInterval := flag.Duration("flush_interval", 5*time.Second, "How often the background worker persists changed results")
	evictionAge := flag.Duration("eviction_age", time.Hour, "Evict results that haven't been touched for this long")
	evictionInterval := flag.Duration("eviction_interval", 10*time.Minute, "How often to scan for idle results to evict")
	subsetCacheMB := flag.Int64("subset_cache_mb", 64, "Memory bound (MiB) for cached unit-subset views")
	workers := flag.Int("workers", 0, "Worker goroutines per pairwise computation (0 = GOMAXPROCS)")
	adapter := flag.String("persistence", "mock", "Persistence adapter: mock | redis | kafka | elastic | file")
	filePath := flag.String("file_path", "results.jsonl", "Result log path for the file adapter")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis adapter (empty = logging client)")
	redisTTL := flag.Duration("redis_ttl", 0, "TTL for stored results in Redis (0 = keep forever)")
	kafkaTopic := flag.String("kafka_topic", "ccg-results", "Topic for the kafka adapter")
	elasticAddrs := flag.String("elastic_addrs", "", "Comma-separated Elasticsearch addresses (empty = logging client)")
	elasticIndex := flag.String("elastic_index", "correlograms", "Index for the elastic adapter")
	metricsEnabled := flag.Bool("metrics", false, "Enable Prometheus telemetry (opt-in)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	devLogging := flag.Bool("dev_logging", false, "Use human-friendly development logging")
	flag.Parse()

	logger := newLogger(*devLogging)
	defer func() { _ = logger.Sync() }()

	telemetry.Enable(telemetry.Config{Enabled: *metricsEnabled, MetricsAddr: *metricsAddr})

	// Core components.
	var addrs []string
	if *elasticAddrs != "" {
		addrs = strings.Split(*elasticAddrs, ",")
	}
	persister, err := persistence.BuildPersister(*adapter, persistence.Options{
		RedisAddr:    *redisAddr,
		RedisTTL:     *redisTTL,
		KafkaTopic:   *kafkaTopic,
		ElasticAddrs: addrs,
		ElasticIndex: *elasticIndex,
		FilePath:     *filePath,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("build persister", zap.Error(err))
	}
	persister = telemetry.InstrumentPersister(persister)

	store, err := core.NewStoreWithConfig(logger, core.StoreConfig{
		SubsetCacheBytes: *subsetCacheMB << 20,
		Compute:          ccg.Options{Workers: *workers},
	})
	if err != nil {
		logger.Fatal("build store", zap.Error(err))
	}

	// The worker persists changed results and evicts idle ones.
	worker := core.NewWorker(store, persister, *flushInterval, *evictionAge, *evictionInterval, logger)
	worker.Start()

	// HTTP server. We build the http.Server here in main so shutdown is graceful.
	apiServer := api.NewServer(store, logger)
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("correlogram API server listening", zap.String("addr", *httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.String("addr", *httpAddr), zap.Error(err))
		}
	}()

	// Block until a signal arrives, then shut down in dependency order:
	// worker first (final flush), then the HTTP server.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	worker.Stop()
	persister.FinalReport()
	store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
