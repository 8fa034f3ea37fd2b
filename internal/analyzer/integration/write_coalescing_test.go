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

// Package integration contains integration tests spanning multiple core components.
package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ccg"
	"ccg/internal/analyzer/core"
)

// countingPersister tracks persisted rows and the latest version seen per name.
type countingPersister struct {
	mu            sync.Mutex
	rows          int
	batches       int
	latestVersion map[string]int64
}

func (p *countingPersister) PersistBatch(results []*core.Result) error {
	if len(results) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latestVersion == nil {
		p.latestVersion = make(map[string]int64)
	}
	p.batches++
	p.rows += len(results)
	for _, r := range results {
		if r.Version > p.latestVersion[r.Name] {
			p.latestVersion[r.Name] = r.Version
		}
	}
	return nil
}
func (p *countingPersister) FinalReport() {}

func (p *countingPersister) snapshot() (rows int, latest map[string]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	latest = make(map[string]int64, len(p.latestVersion))
	for k, v := range p.latestVersion {
		latest[k] = v
	}
	return p.rows, latest
}

func request(name string, seed int) core.ComputeRequest {
	spikes := make([]ccg.Spike, 40)
	for i := range spikes {
		spikes[i] = ccg.Spike{Sample: int64(i*17 + seed%13), Unit: int32(i % 3)}
	}
	return core.ComputeRequest{
		Name:              name,
		SamplingFrequency: 1000,
		NumUnits:          3,
		Segments:          [][]ccg.Spike{spikes},
		WindowMS:          50,
		BinMS:             5,
		Method:            "auto",
	}
}

// driveHotSessionWorkload recomputes one hot session most of the time and a
// pool of cold sessions for the remainder.
func driveHotSessionWorkload(t *testing.T, store *core.Store, total int, hotShare float64, hotName string, coldNames []string) {
	t.Helper()
	hot := int(float64(total) * hotShare)
	for i := 0; i < hot; i++ {
		if _, err := store.Compute(request(hotName, i)); err != nil {
			t.Fatalf("hot compute %d: %v", i, err)
		}
	}
	cold := total - hot
	for i := 0; i < cold; i++ {
		name := coldNames[i%len(coldNames)]
		if _, err := store.Compute(request(name, i)); err != nil {
			t.Fatalf("cold compute %d: %v", i, err)
		}
	}
}

// Test_WriteCoalescing_HotSession verifies that many recomputes of the same
// session between flush cycles persist only the latest snapshot, not one row
// per recompute. The dirty flag coalesces intermediate versions.
func Test_WriteCoalescing_HotSession(t *testing.T) {
	store, err := core.NewStore(zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	pers := &countingPersister{}
	worker := core.NewWorker(store, pers, 10*time.Millisecond, time.Hour, time.Hour, zap.NewNop())
	worker.Start()

	// Workload: 800 computes, 80% on one hot session across 16 cold sessions.
	total := 800
	hotName := "hot"
	coldNames := make([]string, 16)
	for i := range coldNames {
		coldNames[i] = fmt.Sprintf("c:%d", i)
	}
	driveHotSessionWorkload(t, store, total, 0.80, hotName, coldNames)

	// Allow a few flush ticks, then stop for the final flush.
	time.Sleep(50 * time.Millisecond)
	worker.Stop()

	rows, latest := pers.snapshot()

	// Every persisted row is one snapshot, so a naive strategy writes one row
	// per compute. Coalescing should cut the hot session's writes drastically.
	reduction := 1.0 - float64(rows)/float64(total)
	if reduction < 0.50 {
		t.Fatalf("write coalescing too low: got %.1f%% (rows=%d computes=%d)", reduction*100, rows, total)
	}

	// The final flush must have persisted the true latest version per session.
	hotRes, ok := store.Get(hotName)
	if !ok {
		t.Fatalf("hot session missing from store")
	}
	if latest[hotName] != hotRes.Version {
		t.Fatalf("latest persisted hot version = %d, store has %d", latest[hotName], hotRes.Version)
	}
	for _, name := range coldNames {
		res, ok := store.Get(name)
		if !ok {
			t.Fatalf("cold session %s missing from store", name)
		}
		if latest[name] != res.Version {
			t.Fatalf("latest persisted version for %s = %d, store has %d", name, latest[name], res.Version)
		}
	}
}

// Test_WriteCoalescing_FinalFlushOnly disables the ticker-driven flush and
// checks that Stop alone persists exactly one row per dirty session.
func Test_WriteCoalescing_FinalFlushOnly(t *testing.T) {
	store, err := core.NewStore(zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	pers := &countingPersister{}
	worker := core.NewWorker(store, pers, time.Hour, time.Hour, time.Hour, zap.NewNop())
	worker.Start()

	sessions := 8
	recomputes := 5
	for s := 0; s < sessions; s++ {
		name := fmt.Sprintf("s:%d", s)
		for v := 0; v < recomputes; v++ {
			if _, err := store.Compute(request(name, v)); err != nil {
				t.Fatalf("compute %s v%d: %v", name, v, err)
			}
		}
	}

	worker.Stop()

	rows, latest := pers.snapshot()
	if rows != sessions {
		t.Fatalf("final flush rows = %d, want one per session (%d)", rows, sessions)
	}
	for s := 0; s < sessions; s++ {
		name := fmt.Sprintf("s:%d", s)
		if latest[name] != int64(recomputes) {
			t.Fatalf("latest persisted version for %s = %d, want %d", name, latest[name], recomputes)
		}
	}
}
