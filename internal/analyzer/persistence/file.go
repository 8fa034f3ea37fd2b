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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// FileSink is a buffered JSONL sink for result records. It is safe for
// concurrent use and optimized for append-only workloads. The log is
// idempotent under replay: every line carries its (name, version) identity,
// so readers keep the highest version per name and drop duplicates.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewFileSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close() when done.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &FileSink{f: f, w: bufio.NewWriterSize(f, 1<<20 /*1MiB*/), path: path, lastFlush: time.Now()}
	return s, nil
}

// WriteBatch appends the records as JSON lines.
func (s *FileSink) WriteBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	for _, rec := range records {
		if err := enc.Encode(&rec); err != nil {
			// best effort: on error, try to flush and retry once
			_ = s.w.Flush()
			if err := enc.Encode(&rec); err != nil {
				return err
			}
		}
	}
	// Flush periodically to bound data loss on crash.
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		if err := s.w.Flush(); err != nil {
			return err
		}
		s.lastFlush = time.Now()
	}
	return nil
}

// Flush forces buffered data to be written to disk.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllRecords reads an entire result log, deduplicated to the highest
// version per name. Intended for replay and tests.
func ReadAllRecords(path string) (map[string]ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	latest := make(map[string]ResultRecord)
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var rec ResultRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if prev, ok := latest[rec.Name]; !ok || rec.Version > prev.Version {
			latest[rec.Name] = rec
		}
	}
	return latest, scanner.Err()
}
