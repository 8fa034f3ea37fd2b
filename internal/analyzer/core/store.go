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
// This file specifically handles the in-memory management of named results.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"ccg"
)

// ErrNotFound is returned when a named result does not exist in the store.
var ErrNotFound = errors.New("core: result not found")

// managedResult wraps one named result slot with the metadata the background
// worker needs: last access time (eviction) and a dirty flag (persistence).
//
// The snapshot pointer is replaced wholesale on every recompute; readers that
// already hold a *Result keep a consistent view without further locking.
//
// lastAccessed is updated on every hot-path access and is used for eviction
// and the worker's freshness checks.
type managedResult struct {
	mu       sync.RWMutex
	snapshot *Result
	// fingerprint hashes the request (params + spike data) the snapshot was
	// computed from; an identical resubmission is served from the snapshot.
	fingerprint uint64
	// lastAccessed stores the last access time in UnixNano to allow atomic access across goroutines.
	lastAccessed int64
	dirty        atomic.Bool
}

func (m *managedResult) load() *Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Store manages a collection of named correlogram results in memory.
// It is thread-safe and designed for concurrent compute and read access.
// Unit-subset views are memoized in a cost-bounded ristretto cache keyed by
// (name, version, indices), so recomputes never serve stale subsets.
type Store struct {
	results sync.Map
	subsets *ristretto.Cache
	opts    ccg.Options
	logger  *zap.Logger
}

// StoreConfig tunes the store's subset cache and compute options.
type StoreConfig struct {
	// SubsetCacheBytes bounds the total cost of memoized subset views.
	// Zero uses a default of 64 MiB.
	SubsetCacheBytes int64
	// Compute is forwarded to every correlogram computation.
	Compute ccg.Options
}

// NewStore creates and initializes a new result store.
func NewStore(logger *zap.Logger) (*Store, error) {
	return NewStoreWithConfig(logger, StoreConfig{})
}

// NewStoreWithConfig creates a store with explicit cache and compute settings.
func NewStoreWithConfig(logger *zap.Logger, cfg StoreConfig) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxCost := cfg.SubsetCacheBytes
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("core: subset cache: %w", err)
	}
	return &Store{subsets: cache, opts: cfg.Compute, logger: logger}, nil
}

// Compute runs a full correlogram computation and publishes it under
// req.Name, bumping the version if the name already exists. Resubmitting an
// identical request is a cache hit and returns the stored snapshot unchanged
// unless req.Force is set. The returned snapshot is immutable.
func (s *Store) Compute(req ComputeRequest) (*Result, error) {
	res, err := ccg.Resolve(req.Method)
	if err != nil {
		return nil, err
	}
	edges, windowSize, binSize, err := ccg.PlanBins(req.SamplingFrequency, req.WindowMS, req.BinMS)
	if err != nil {
		return nil, err
	}
	unitIDs := req.UnitIDs
	if unitIDs == nil {
		unitIDs = make([]string, req.NumUnits)
		for i := range unitIDs {
			unitIDs[i] = strconv.Itoa(i)
		}
	} else if len(unitIDs) != req.NumUnits {
		return nil, fmt.Errorf("core: %d unit ids for %d units", len(unitIDs), req.NumUnits)
	}

	fp := fingerprintRequest(req, unitIDs)
	managedSlot := s.getOrCreate(req.Name)
	if !req.Force {
		managedSlot.mu.RLock()
		hit := managedSlot.snapshot != nil && managedSlot.fingerprint == fp
		snap := managedSlot.snapshot
		managedSlot.mu.RUnlock()
		if hit {
			atomic.StoreInt64(&managedSlot.lastAccessed, time.Now().UnixNano())
			s.logger.Debug("compute cache hit",
				zap.String("name", req.Name),
				zap.Int64("version", snap.Version),
			)
			return snap, nil
		}
	}

	start := time.Now()
	tensor, err := ccg.ComputeCorrelogramsWithOptions(req.Segments, req.NumUnits, windowSize, binSize, res.Strategy, s.opts)
	if err != nil {
		return nil, err
	}

	managed := managedSlot
	managed.mu.Lock()
	version := int64(1)
	if managed.snapshot != nil {
		version = managed.snapshot.Version + 1
	}
	snapshot := &Result{
		Name:              req.Name,
		Version:           version,
		Params:            Params{WindowMS: req.WindowMS, BinMS: req.BinMS, Method: req.Method},
		SamplingFrequency: req.SamplingFrequency,
		Strategy:          res.Strategy.String(),
		FellBack:          res.FellBack,
		UnitIDs:           unitIDs,
		BinsMS:            edges,
		Tensor:            tensor,
		ComputedAt:        time.Now().UTC(),
	}
	managed.snapshot = snapshot
	managed.fingerprint = fp
	managed.mu.Unlock()
	managed.dirty.Store(true)
	atomic.StoreInt64(&managed.lastAccessed, time.Now().UnixNano())

	s.logger.Info("computed correlograms",
		zap.String("name", req.Name),
		zap.Int64("version", version),
		zap.String("strategy", snapshot.Strategy),
		zap.Bool("fell_back", snapshot.FellBack),
		zap.Int("num_units", req.NumUnits),
		zap.Int("num_bins", tensor.NumBins()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return snapshot, nil
}

// Get returns the current snapshot for a name, if present.
func (s *Store) Get(name string) (*Result, bool) {
	actual, ok := s.results.Load(name)
	if !ok {
		return nil, false
	}
	managed := actual.(*managedResult)
	atomic.StoreInt64(&managed.lastAccessed, time.Now().UnixNano())
	snap := managed.load()
	if snap == nil {
		return nil, false
	}
	return snap, true
}

// Select returns a view of the named result restricted to the given unit
// indices, in the given order. Views are cached per (name, version, indices).
func (s *Store) Select(name string, indices []int) (*Result, error) {
	snap, ok := s.Get(name)
	if !ok {
		return nil, ErrNotFound
	}

	key := subsetKey(name, snap.Version, indices)
	if cached, hit := s.subsets.Get(key); hit {
		return cached.(*Result), nil
	}

	sub, err := snap.Tensor.Select(indices)
	if err != nil {
		return nil, err
	}
	unitIDs := make([]string, len(indices))
	for i, idx := range indices {
		unitIDs[i] = snap.UnitIDs[idx]
	}
	view := &Result{
		Name:              snap.Name,
		Version:           snap.Version,
		Params:            snap.Params,
		SamplingFrequency: snap.SamplingFrequency,
		Strategy:          snap.Strategy,
		FellBack:          snap.FellBack,
		UnitIDs:           unitIDs,
		BinsMS:            snap.BinsMS,
		Tensor:            sub,
		ComputedAt:        snap.ComputedAt,
	}
	cost := int64(len(sub.Counts()) * 8)
	s.subsets.Set(key, view, cost)
	return view, nil
}

func subsetKey(name string, version int64, indices []int) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(version, 10))
	for _, idx := range indices {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}

// fingerprintRequest hashes everything that determines a computation's
// output: parameters, unit labels, and the full spike data. Two requests
// with equal fingerprints produce identical tensors.
func fingerprintRequest(req ComputeRequest, unitIDs []string) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeU64(math.Float64bits(req.SamplingFrequency))
	writeU64(math.Float64bits(req.WindowMS))
	writeU64(math.Float64bits(req.BinMS))
	h.Write([]byte(req.Method))
	writeU64(uint64(req.NumUnits))
	for _, id := range unitIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	writeU64(uint64(len(req.Segments)))
	for _, seg := range req.Segments {
		writeU64(uint64(len(seg)))
		for _, sp := range seg {
			writeU64(uint64(sp.Sample))
			writeU64(uint64(uint32(sp.Unit)))
		}
	}
	return h.Sum64()
}

// getOrCreate returns the managed slot for a name.
//
// Optimization: avoid allocating on the common case where the name already
// exists. We first try a plain Load (no allocation); only on a miss do we
// allocate and attempt a LoadOrStore. In a race where another goroutine
// creates the slot first, the extra allocation is rare and immediately discarded.
func (s *Store) getOrCreate(name string) *managedResult {
	if actual, ok := s.results.Load(name); ok {
		return actual.(*managedResult)
	}
	fresh := &managedResult{lastAccessed: time.Now().UnixNano()}
	if actual, loaded := s.results.LoadOrStore(name, fresh); loaded {
		return actual.(*managedResult)
	}
	return fresh
}

// ForEach allows iterating over all managed result slots in the store.
func (s *Store) ForEach(f func(name string, m *managedResult)) {
	s.results.Range(func(key, value interface{}) bool {
		f(key.(string), value.(*managedResult))
		return true // continue iterating
	})
}

// Delete removes a name from the store. This is used by the eviction worker.
func (s *Store) Delete(name string) {
	s.results.Delete(name)
}

// Len reports the number of managed results.
func (s *Store) Len() int {
	n := 0
	s.results.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Close releases the subset cache. Call at shutdown.
func (s *Store) Close() {
	s.subsets.Close()
}
