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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS correlograms (
//   name TEXT NOT NULL,
//   version BIGINT NOT NULL,
//   params JSONB NOT NULL,
//   counts JSONB NOT NULL,
//   computed_at TIMESTAMPTZ NOT NULL,
//   PRIMARY KEY (name, version)
// );
//
// CREATE TABLE IF NOT EXISTS correlogram_latest (
//   name TEXT PRIMARY KEY,
//   version BIGINT NOT NULL
// );
//
// Idempotent write per record:
//   INSERT INTO correlograms(name, version, params, counts, computed_at)
//     VALUES ($1,$2,$3,$4,$5) ON CONFLICT (name, version) DO NOTHING;
//   INSERT INTO correlogram_latest(name, version) VALUES ($1,$2)
//     ON CONFLICT (name) DO UPDATE SET version = GREATEST(correlogram_latest.version, EXCLUDED.version);
//
// The primary key makes duplicate versions a no-op; the GREATEST guard keeps
// the latest pointer monotonic when retries arrive out of order.

// pgParams is the JSONB params column payload.
type pgParams struct {
	WindowMS          float64   `json:"window_ms"`
	BinMS             float64   `json:"bin_ms"`
	Method            string    `json:"method"`
	Strategy          string    `json:"strategy"`
	SamplingFrequency float64   `json:"sampling_frequency"`
	NumUnits          int       `json:"num_units"`
	NumBins           int       `json:"num_bins"`
	UnitIDs           []string  `json:"unit_ids"`
	BinsMS            []float64 `json:"bins_ms"`
}

// PostgresSink writes results idempotently using the pattern above.
type PostgresSink struct {
	db *sql.DB
	// Optional: per-call timeout fallback if ctx has no deadline
	defaultTimeout time.Duration
}

// NewPostgresSink creates a sink. The caller owns schema creation.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db, defaultTimeout: 10 * time.Second}
}

// WriteBatch stores the provided records within a single transaction.
// Each record remains idempotent: an already-stored (name, version) is skipped.
func (p *PostgresSink) WriteBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Provide a default timeout if caller didn't bound it.
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	// Ensure rollback on any failure.
	defer func() {
		_ = tx.Rollback()
	}()

	for _, rec := range records {
		params, err := json.Marshal(pgParams{
			WindowMS:          rec.WindowMS,
			BinMS:             rec.BinMS,
			Method:            rec.Method,
			Strategy:          rec.Strategy,
			SamplingFrequency: rec.SamplingFrequency,
			NumUnits:          rec.NumUnits,
			NumBins:           rec.NumBins,
			UnitIDs:           rec.UnitIDs,
			BinsMS:            rec.BinsMS,
		})
		if err != nil {
			return fmt.Errorf("marshal params %s: %w", rec.RecordID(), err)
		}
		counts, err := json.Marshal(rec.Counts)
		if err != nil {
			return fmt.Errorf("marshal counts %s: %w", rec.RecordID(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correlograms(name, version, params, counts, computed_at)
			   VALUES ($1,$2,$3,$4,$5) ON CONFLICT (name, version) DO NOTHING`,
			rec.Name, rec.Version, params, counts, rec.ComputedAt); err != nil {
			return fmt.Errorf("insert correlograms(%s): %w", rec.RecordID(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correlogram_latest(name, version) VALUES ($1,$2)
			   ON CONFLICT (name) DO UPDATE SET version = GREATEST(correlogram_latest.version, EXCLUDED.version)`,
			rec.Name, rec.Version); err != nil {
			return fmt.Errorf("update correlogram_latest(%s): %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
