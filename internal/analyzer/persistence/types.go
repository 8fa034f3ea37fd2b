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

// Package persistence provides idempotent persistence adapters for Postgres,
// Redis, Elasticsearch, and Kafka.
//
// Every adapter writes the same ResultRecord shape. The (Name, Version) pair
// is the idempotency key: a recompute under the same name always carries a
// higher version, so retrying a write (crash, timeout, duplicate delivery)
// for an already-stored version is a no-op.
package persistence

import (
	"context"
	"fmt"
	"time"

	"ccg/internal/analyzer/core"
)

// ResultRecord is the adapter-facing, fully self-describing shape of one
// computed correlogram result. Counts is the flattened dense tensor in
// unit-major order with the bin axis innermost.
type ResultRecord struct {
	Name              string    `json:"name"`
	Version           int64     `json:"version"`
	WindowMS          float64   `json:"window_ms"`
	BinMS             float64   `json:"bin_ms"`
	Method            string    `json:"method"`
	Strategy          string    `json:"strategy"`
	SamplingFrequency float64   `json:"sampling_frequency"`
	NumUnits          int       `json:"num_units"`
	NumBins           int       `json:"num_bins"`
	UnitIDs           []string  `json:"unit_ids"`
	BinsMS            []float64 `json:"bins_ms"`
	Counts            []int64   `json:"counts"`
	ComputedAt        time.Time `json:"computed_at"`
}

// RecordID returns the globally unique idempotency key for a record.
func (r ResultRecord) RecordID() string {
	return fmt.Sprintf("%s:%d", r.Name, r.Version)
}

// RecordFromResult flattens a core result into its durable shape.
func RecordFromResult(res *core.Result) ResultRecord {
	return ResultRecord{
		Name:              res.Name,
		Version:           res.Version,
		WindowMS:          res.Params.WindowMS,
		BinMS:             res.Params.BinMS,
		Method:            res.Params.Method,
		Strategy:          res.Strategy,
		SamplingFrequency: res.SamplingFrequency,
		NumUnits:          res.Tensor.NumUnits(),
		NumBins:           res.Tensor.NumBins(),
		UnitIDs:           res.UnitIDs,
		BinsMS:            res.BinsMS,
		Counts:            res.Tensor.Counts(),
		ComputedAt:        res.ComputedAt,
	}
}

// Sink is the minimal API supported by all adapters.
// Implementations must apply each record atomically with respect to its
// (Name, Version) idempotency key; writing an already-stored version must be
// a no-op, so the operation is safe to retry.
//
// The method accepts a context to allow timeouts and cancellation.
// Implementations should batch efficiently where backends support it.
type Sink interface {
	WriteBatch(ctx context.Context, records []ResultRecord) error
}
