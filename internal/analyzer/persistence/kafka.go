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
	"encoding/json"
	"fmt"
	"time"
)

// KafkaProducer is a minimal abstraction over a Kafka client.
// Implementations should enable idempotent production.
//
// Requirements:
//   - Idempotent producer ON (enable.idempotence=true)
//   - Use the record id (name:version) as the Kafka message key so broker
//     dedup and per-result ordering are preserved
//   - Acks=all is recommended
//
// Note: We intentionally avoid importing a specific Kafka library.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaSink publishes results as Kafka messages (WAL or fan-out to downstream
// analysis pipelines). Idempotency comes from:
//   - Producer retries are deduplicated by the broker when idempotence is enabled
//   - Consumers must track the highest applied version per name and ignore
//     duplicates or lower versions.
//
// This sink does not store state locally; it delegates materialization to consumers.
type KafkaSink struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

func NewKafkaSink(p KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

func (k *KafkaSink) WriteBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal kafka message %s: %w", rec.RecordID(), err)
		}
		headers := map[string]string{"content-type": "application/json"}
		if err := k.producer.Produce(ctx, k.topic, []byte(rec.RecordID()), b, headers); err != nil {
			return fmt.Errorf("kafka produce record=%s: %w", rec.RecordID(), err)
		}
	}
	return nil
}
