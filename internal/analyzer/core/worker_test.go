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

// Package core contains focused unit tests for Worker flush and eviction internals.
package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// errPersister records batches and can be toggled to fail, to test retry paths.
type errPersister struct {
	returnErr atomic.Bool
	mu        sync.Mutex
	batches   [][]*Result
}

func (p *errPersister) PersistBatch(results []*Result) error {
	if p.returnErr.Load() {
		return errors.New("forced persister error")
	}
	batch := make([]*Result, len(results))
	copy(batch, results)
	p.mu.Lock()
	p.batches = append(p.batches, batch)
	p.mu.Unlock()
	return nil
}

func (p *errPersister) FinalReport() {}

func (p *errPersister) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func (p *errPersister) lastBatch() []*Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.batches) == 0 {
		return nil
	}
	return p.batches[len(p.batches)-1]
}

func TestWorker_FlushCycle_PersistsDirtyOnce(t *testing.T) {
	store := newTestStore(t)
	p := &errPersister{}
	w := NewWorker(store, p, time.Hour, time.Hour, time.Hour, nil)

	if _, err := store.Compute(testRequest("a")); err != nil {
		t.Fatalf("Compute a: %v", err)
	}
	if _, err := store.Compute(testRequest("b")); err != nil {
		t.Fatalf("Compute b: %v", err)
	}

	w.runFlushCycle()
	if p.batchCount() != 1 || len(p.lastBatch()) != 2 {
		t.Fatalf("expected one batch of 2 results, got %d batches", p.batchCount())
	}

	// Nothing changed: the next cycle persists nothing.
	w.runFlushCycle()
	if p.batchCount() != 1 {
		t.Fatalf("clean results must not be re-persisted")
	}

	// A recompute with changed data marks the slot dirty again.
	changed := testRequest("a")
	changed.Segments[0][4].Sample = 25
	if _, err := store.Compute(changed); err != nil {
		t.Fatalf("recompute a: %v", err)
	}
	w.runFlushCycle()
	last := p.lastBatch()
	if p.batchCount() != 2 || len(last) != 1 {
		t.Fatalf("expected a single-result batch after recompute")
	}
	if last[0].Name != "a" || last[0].Version != 2 {
		t.Fatalf("expected a@v2 in batch, got %s@v%d", last[0].Name, last[0].Version)
	}
}

func TestWorker_FlushCycle_RetriesOnError(t *testing.T) {
	store := newTestStore(t)
	p := &errPersister{}
	w := NewWorker(store, p, time.Hour, time.Hour, time.Hour, nil)

	if _, err := store.Compute(testRequest("k")); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	p.returnErr.Store(true)
	w.runFlushCycle()
	if p.batchCount() != 0 {
		t.Fatalf("failed persist must not record a batch")
	}

	// The slot stays dirty, so the next cycle retries.
	p.returnErr.Store(false)
	w.runFlushCycle()
	if p.batchCount() != 1 || len(p.lastBatch()) != 1 {
		t.Fatalf("expected retry to persist the result")
	}
}

func TestWorker_EvictionCycle_PersistsBeforeDrop(t *testing.T) {
	store := newTestStore(t)
	p := &errPersister{}
	w := NewWorker(store, p, time.Hour, 10*time.Millisecond, time.Hour, nil)

	if _, err := store.Compute(testRequest("idle")); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	w.runEvictionCycle()
	if store.Len() != 0 {
		t.Fatalf("idle result should be evicted")
	}
	if p.batchCount() != 1 || p.lastBatch()[0].Name != "idle" {
		t.Fatalf("dirty result must be persisted before eviction")
	}
}

func TestWorker_EvictionCycle_SkipsRecentlyTouched(t *testing.T) {
	store := newTestStore(t)
	p := &errPersister{}
	w := NewWorker(store, p, time.Hour, time.Hour, time.Hour, nil)

	if _, err := store.Compute(testRequest("hot")); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	w.runEvictionCycle()
	if store.Len() != 1 {
		t.Fatalf("recently touched result must survive eviction")
	}
}

func TestWorker_StopFlushesRemainder(t *testing.T) {
	store := newTestStore(t)
	p := &errPersister{}
	w := NewWorker(store, p, time.Hour, time.Hour, time.Hour, nil)
	w.Start()

	if _, err := store.Compute(testRequest("pending")); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	w.Stop()
	w.Stop() // idempotent

	if p.batchCount() != 1 || p.lastBatch()[0].Name != "pending" {
		t.Fatalf("Stop must flush dirty results")
	}
}
