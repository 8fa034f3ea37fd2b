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
	"io"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoggingRedisEvaler is a tiny demo client that just logs the Lua evaluation.
// It lets the simulator select the Redis adapter without needing a real Redis.
// Not for production use.

type LoggingRedisEvaler struct{ Logger *zap.Logger }

func (l LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.Logger != nil {
		l.Logger.Info("redis-demo eval",
			zap.Int("script_len", len(script)),
			zap.Strings("keys", keys),
			zap.Int("args", len(args)),
		)
	}
	return int64(1), nil // pretend we applied it
}

// GoRedisEvaler is a production-ready Redis client wrapper implementing RedisEvaler.
// It uses github.com/redis/go-redis/v9 under the hood.
// Use NewGoRedisEvaler to construct it with an address like "127.0.0.1:6379".

type GoRedisEvaler struct{ c *redis.Client }

func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	opt := &redis.Options{Addr: addr}
	return &GoRedisEvaler{c: redis.NewClient(opt)}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// LoggingKafkaProducer is a tiny demo producer that logs the produced message.
// It enables selecting the Kafka adapter without a real broker.
// Not for production use.

type LoggingKafkaProducer struct{ Logger *zap.Logger }

func (l LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if l.Logger != nil {
		l.Logger.Info("kafka-demo produce",
			zap.String("topic", topic),
			zap.ByteString("key", key),
			zap.Int("value_len", len(value)),
			zap.Any("headers", headers),
		)
	}
	return nil
}

// LoggingElasticBulker is a tiny demo bulker that logs the bulk body size.
// Not for production use.

type LoggingElasticBulker struct{ Logger *zap.Logger }

func (l LoggingElasticBulker) Bulk(ctx context.Context, index string, body io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return err
	}
	if l.Logger != nil {
		l.Logger.Info("elastic-demo bulk", zap.String("index", index), zap.Int64("body_bytes", n))
	}
	return nil
}

// Options holds the knobs for building sinks from configuration.
type Options struct {
	RedisAddr    string
	RedisTTL     time.Duration
	KafkaTopic   string
	ElasticAddrs []string
	ElasticIndex string
	FilePath     string
	WriteTimeout time.Duration
	Logger       *zap.Logger
}
