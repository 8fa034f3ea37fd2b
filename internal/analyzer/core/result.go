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
// This file defines the named result records managed by the in-memory store.
package core

import (
	"time"

	"ccg"
)

// Params records the binning and strategy parameters a result was computed with.
type Params struct {
	WindowMS float64 `json:"window_ms"`
	BinMS    float64 `json:"bin_ms"`
	Method   string  `json:"method"`
}

// Result is an immutable snapshot of one completed correlogram computation.
// Recomputing under the same name produces a new Result with a higher Version;
// existing snapshots handed out to callers are never mutated.
type Result struct {
	Name              string            `json:"name"`
	Version           int64             `json:"version"`
	Params            Params            `json:"params"`
	SamplingFrequency float64           `json:"sampling_frequency"`
	Strategy          string            `json:"strategy"`
	FellBack          bool              `json:"fell_back"`
	UnitIDs           []string          `json:"unit_ids"`
	BinsMS            []float64         `json:"bins_ms"`
	Tensor            *ccg.Correlograms `json:"-"`
	ComputedAt        time.Time         `json:"computed_at"`
}

// ComputeRequest carries everything needed to compute and store one result.
type ComputeRequest struct {
	Name              string
	SamplingFrequency float64
	NumUnits          int
	UnitIDs           []string // optional labels; defaults to "0".."N-1"
	Segments          [][]ccg.Spike
	WindowMS          float64
	BinMS             float64
	Method            string
	// Force recomputes even when the request fingerprint matches the stored
	// snapshot. Without it, an identical resubmission is a cache hit.
	Force bool
}
