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

package core

import (
	"sync"

	"go.uber.org/zap"
)

// Persister is the interface for any persistent storage implementation.
// This allows us to easily swap out the backend (e.g., for a real database).
type Persister interface {
	PersistBatch(results []*Result) error
	// FinalReport emits a single, end-of-process summary of persistence
	// activity. Implementations must make it safe to call after the last batch.
	FinalReport()
}

// NewMockPersister creates a persister that only logs batches. It is used in
// simulations and as the default backend when no sink is configured.
func NewMockPersister(logger *zap.Logger) Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mockPersister{logger: logger}
}

type mockPersister struct {
	logger       *zap.Logger
	mu           sync.Mutex
	totalResults int64
	totalBatches int64
	totalPairs   int64
}

func (p *mockPersister) PersistBatch(results []*Result) error {
	if len(results) == 0 {
		return nil
	}
	var pairs int64
	for _, r := range results {
		pairs += r.Tensor.Total()
	}
	p.logger.Info("persisting batch",
		zap.Int("results", len(results)),
		zap.Int64("pairs", pairs),
	)
	for _, r := range results {
		p.logger.Debug("persist",
			zap.String("name", r.Name),
			zap.Int64("version", r.Version),
			zap.Int("num_units", len(r.UnitIDs)),
		)
	}
	p.mu.Lock()
	p.totalResults += int64(len(results))
	p.totalBatches++
	p.totalPairs += pairs
	p.mu.Unlock()
	return nil
}

func (p *mockPersister) FinalReport() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("persistence summary",
		zap.Int64("batches", p.totalBatches),
		zap.Int64("results", p.totalResults),
		zap.Int64("pairs", p.totalPairs),
	)
}
