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

package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ccg/internal/analyzer/core"
)

type countingPersister struct {
	calls     int
	returnErr error
}

func (p *countingPersister) PersistBatch(results []*core.Result) error {
	p.calls++
	return p.returnErr
}

func (p *countingPersister) FinalReport() {}

func TestEnableToggle(t *testing.T) {
	Enable(Config{Enabled: true})
	if !Enabled() {
		t.Fatalf("expected enabled")
	}
	Enable(Config{Enabled: false})
	if Enabled() {
		t.Fatalf("expected disabled")
	}
}

func TestObserveComputation_CountsByStrategy(t *testing.T) {
	Enable(Config{Enabled: true})
	defer Enable(Config{Enabled: false})

	before := testutil.ToFloat64(computationsTotal.WithLabelValues("pairwise"))
	fallbacksBefore := testutil.ToFloat64(fallbacksTotal)

	ObserveComputation("pairwise", true, 2*time.Millisecond, 10)

	if got := testutil.ToFloat64(computationsTotal.WithLabelValues("pairwise")); got != before+1 {
		t.Fatalf("computations counter: want %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(fallbacksTotal); got != fallbacksBefore+1 {
		t.Fatalf("fallbacks counter: want %v, got %v", fallbacksBefore+1, got)
	}
}

func TestObserveComputation_NoopWhenDisabled(t *testing.T) {
	Enable(Config{Enabled: false})
	before := testutil.ToFloat64(pairsCountedTotal)
	ObserveComputation("vectorized", false, time.Millisecond, 100)
	if got := testutil.ToFloat64(pairsCountedTotal); got != before {
		t.Fatalf("disabled module must not record, got delta %v", got-before)
	}
}

func TestInstrumentPersister(t *testing.T) {
	Enable(Config{Enabled: true})
	defer Enable(Config{Enabled: false})

	inner := &countingPersister{}
	wrapped := InstrumentPersister(inner)

	batchesBefore := testutil.ToFloat64(persistBatchesTotal)
	if err := wrapped.PersistBatch([]*core.Result{{Name: "x"}}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner persister not invoked")
	}
	if got := testutil.ToFloat64(persistBatchesTotal); got != batchesBefore+1 {
		t.Fatalf("batch counter not incremented")
	}

	errorsBefore := testutil.ToFloat64(persistErrorsTotal)
	inner.returnErr = errors.New("down")
	if err := wrapped.PersistBatch([]*core.Result{{Name: "x"}}); err == nil {
		t.Fatalf("expected error passthrough")
	}
	if got := testutil.ToFloat64(persistErrorsTotal); got != errorsBefore+1 {
		t.Fatalf("error counter not incremented")
	}
}

func TestInstrumentPersister_PassthroughWhenDisabled(t *testing.T) {
	Enable(Config{Enabled: false})
	inner := &countingPersister{}
	if wrapped := InstrumentPersister(inner); wrapped != core.Persister(inner) {
		t.Fatalf("disabled telemetry must return the persister unchanged")
	}
}

func TestMetricsEndpointStarts(t *testing.T) {
	// Smoke test: must not panic or block.
	startMetricsEndpoint("127.0.0.1:0")
}
