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

package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ccg/internal/analyzer/core"
)

// SinkShim adapts a Sink to the core.Persister interface used by the worker.
// It flattens core results into ResultRecords and bounds each write with a
// timeout. Because records carry their (name, version) identity, a retried
// batch stays idempotent end to end.
type SinkShim struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger

	mu           sync.Mutex
	totalBatches int64
	totalRecords int64
}

// NewSinkShim wraps a sink. A zero timeout defaults to 10s per batch.
func NewSinkShim(sink Sink, timeout time.Duration, logger *zap.Logger) *SinkShim {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SinkShim{sink: sink, timeout: timeout, logger: logger}
}

// PersistBatch maps core results to records and forwards to the sink.
func (s *SinkShim) PersistBatch(results []*core.Result) error {
	if len(results) == 0 {
		return nil
	}
	records := make([]ResultRecord, len(results))
	for i, r := range results {
		records[i] = RecordFromResult(r)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.sink.WriteBatch(ctx, records); err != nil {
		return err
	}
	s.mu.Lock()
	s.totalBatches++
	s.totalRecords += int64(len(records))
	s.mu.Unlock()
	return nil
}

// FinalReport closes buffering sinks and emits a one-shot summary of
// everything written. The worker's final flush hands records to the sink;
// this releases any sink-side buffer so they reach durable storage before
// the process exits.
func (s *SinkShim) FinalReport() {
	if c, ok := s.sink.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.logger.Error("sink close failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("sink summary",
		zap.Int64("batches", s.totalBatches),
		zap.Int64("records", s.totalRecords),
	)
}
