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

// Package core provides the core business logic for the correlogram service.
// This file implements the background worker responsible for result
// persistence and memory management (eviction).
package core

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Worker manages the background tasks for the result store: flushing dirty
// results to the persister and evicting idle ones from memory.
type Worker struct {
	store            *Store
	persister        Persister
	flushInterval    time.Duration
	evictionAge      time.Duration
	evictionInterval time.Duration
	logger           *zap.Logger
	stopChan         chan struct{}
	wg               sync.WaitGroup
	stopped          uint32
}

// NewWorker creates and configures a new background worker.
//
// flushInterval: how often we scan for dirty results to persist.
// evictionAge: results untouched for this long are dropped from memory.
// evictionInterval: how often the eviction scan runs.
func NewWorker(store *Store, persister Persister, flushInterval, evictionAge, evictionInterval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:            store,
		persister:        persister,
		flushInterval:    flushInterval,
		evictionAge:      evictionAge,
		evictionInterval: evictionInterval,
		logger:           logger,
		stopChan:         make(chan struct{}),
	}
}

// Start launches the background goroutines for the worker.
func (w *Worker) Start() {
	w.logger.Info("starting background worker",
		zap.Duration("flush_interval", w.flushInterval),
		zap.Duration("eviction_age", w.evictionAge),
	)
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.flushLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.evictionLoop()
	}()
}

// Stop gracefully stops the background worker. A final flush persists every
// dirty result before returning.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	w.logger.Info("stopping background worker")
	close(w.stopChan)
	w.wg.Wait()
}

// flushLoop periodically persists results whose snapshot changed since the
// last successful flush.
func (w *Worker) flushLoop() {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runFlushCycle()
		case <-w.stopChan:
			// On stop, flush whatever is still dirty so no computation is lost.
			w.runFlushCycle()
			return
		}
	}
}

// runFlushCycle collects every dirty result and persists them as one batch.
func (w *Worker) runFlushCycle() {
	var batch []*Result
	var flushed []*managedResult

	w.store.ForEach(func(name string, m *managedResult) {
		// Claim the dirty flag before reading the snapshot: a recompute that
		// lands after the claim re-marks the slot and is picked up next cycle.
		if !m.dirty.CompareAndSwap(true, false) {
			return
		}
		snap := m.load()
		if snap == nil {
			return
		}
		batch = append(batch, snap)
		flushed = append(flushed, m)
	})

	if len(batch) == 0 {
		return
	}

	if err := w.persister.PersistBatch(batch); err != nil {
		w.logger.Error("failed to persist batch", zap.Int("results", len(batch)), zap.Error(err))
		// Re-mark so the next cycle retries.
		for _, m := range flushed {
			m.dirty.Store(true)
		}
	}
}

// evictionLoop periodically removes idle results from memory.
func (w *Worker) evictionLoop() {
	ticker := time.NewTicker(w.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runEvictionCycle()
		case <-w.stopChan:
			return
		}
	}
}

// runEvictionCycle finds and removes stale results.
func (w *Worker) runEvictionCycle() {
	var stale []string
	now := time.Now()

	w.store.ForEach(func(name string, m *managedResult) {
		last := atomic.LoadInt64(&m.lastAccessed)
		if now.Sub(time.Unix(0, last)) > w.evictionAge {
			stale = append(stale, name)
		}
	})

	if len(stale) == 0 {
		return
	}

	w.logger.Info("evicting idle results", zap.Int("count", len(stale)))
	for _, name := range stale {
		actual, ok := w.store.results.Load(name)
		if !ok {
			continue
		}
		m := actual.(*managedResult)
		// Re-check staleness: a reader may have touched the slot since the scan.
		last := atomic.LoadInt64(&m.lastAccessed)
		if time.Since(time.Unix(0, last)) <= w.evictionAge {
			continue
		}
		// Persist before dropping so nothing computed is lost.
		if m.dirty.CompareAndSwap(true, false) {
			if snap := m.load(); snap != nil {
				if err := w.persister.PersistBatch([]*Result{snap}); err != nil {
					w.logger.Error("failed to persist before eviction", zap.String("name", name), zap.Error(err))
					m.dirty.Store(true)
					continue
				}
			}
		}
		w.store.Delete(name)
	}
}
