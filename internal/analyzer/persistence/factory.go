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
	"errors"
	"fmt"

	"ccg/internal/analyzer/core"
)

// BuildPersister constructs a core.Persister based on a string selector.
// Supported adapters:
//   - "mock": in-process logger (default)
//   - "redis": idempotent Redis sink; uses a logging client unless RedisAddr is set
//   - "kafka": idempotent Kafka sink using a logging producer (no broker)
//   - "elastic": bulk Elasticsearch sink; uses a logging client unless ElasticAddrs is set
//   - "file": append-only JSONL result log at FilePath
//   - "postgres": not buildable here (returns error to avoid hidden nil DB usage);
//     wire NewPostgresSink with a real *sql.DB instead
//
// The logging clients let users exercise every adapter without infrastructure.
// For production, supply real addresses and wire them directly.
func BuildPersister(adapter string, opts Options) (core.Persister, error) {
	switch adapter {
	case "", "mock":
		return core.NewMockPersister(opts.Logger), nil
	case "redis":
		ttl := opts.RedisTTL
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			// Use a real Redis client when an address is provided.
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			// Fallback to logging client for dependency-free runs.
			evaler = LoggingRedisEvaler{Logger: opts.Logger}
		}
		return NewSinkShim(NewRedisSink(evaler, ttl), opts.WriteTimeout, opts.Logger), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "ccg-results"
		}
		k := NewKafkaSink(LoggingKafkaProducer{Logger: opts.Logger}, topic)
		return NewSinkShim(k, opts.WriteTimeout, opts.Logger), nil
	case "elastic":
		index := opts.ElasticIndex
		if index == "" {
			index = "correlograms"
		}
		var bulker ElasticBulker
		if len(opts.ElasticAddrs) > 0 {
			real, err := NewGoElasticBulker(opts.ElasticAddrs)
			if err != nil {
				return nil, err
			}
			bulker = real
		} else {
			bulker = LoggingElasticBulker{Logger: opts.Logger}
		}
		return NewSinkShim(NewElasticSink(bulker, index), opts.WriteTimeout, opts.Logger), nil
	case "file":
		if opts.FilePath == "" {
			return nil, errors.New("file adapter requires a path")
		}
		fs, err := NewFileSink(opts.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open result log: %w", err)
		}
		return NewSinkShim(fs, opts.WriteTimeout, opts.Logger), nil
	case "postgres":
		return nil, errors.New("postgres adapter needs a real *sql.DB; wire NewPostgresSink directly and create the tables first")
	default:
		return nil, fmt.Errorf("unknown persistence adapter: %s", adapter)
	}
}
