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

// RedisEvaler abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or any equivalent.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisSink stores results idempotently using a Lua script:
//  1. SETNX ccg:result:<name>:<version> payload
//  2. If set -> advance ccg:latest:<name> to version (monotonic)
//  3. Optionally EXPIRE the result (TTL) for storage hygiene
//
// If SETNX fails (version already stored), returns OK and makes no changes.
type RedisSink struct {
	client    RedisEvaler
	resultTTL time.Duration
}

// NewRedisSink returns a sink with the given client and result TTL.
// A zero or negative TTL keeps results forever.
func NewRedisSink(client RedisEvaler, resultTTL time.Duration) *RedisSink {
	return &RedisSink{client: client, resultTTL: resultTTL}
}

// redisLuaScript performs the idempotent write. It returns 1 if stored, 0 if
// the version already existed. The latest pointer only moves forward so a
// late retry of an old version never rewinds it.
const redisLuaScript = `
local resultKey = KEYS[1]
local latestKey = KEYS[2]
local payload = ARGV[1]
local version = tonumber(ARGV[2])
local ttlSeconds = tonumber(ARGV[3])
local set = redis.call('SETNX', resultKey, payload)
if set == 1 then
  local latest = tonumber(redis.call('GET', latestKey))
  if latest == nil or version > latest then
    redis.call('SET', latestKey, version)
  end
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', resultKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// Keys layout helpers (public for interoperability with other components)
func RedisResultKey(name string, version int64) string {
	return fmt.Sprintf("ccg:result:%s:%d", name, version)
}
func RedisLatestKey(name string) string { return fmt.Sprintf("ccg:latest:%s", name) }

// WriteBatch applies records using one EVAL per record.
// Some clients support pipelining; callers can wrap batching externally if needed.
func (r *RedisSink) WriteBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.RecordID(), err)
		}
		keys := []string{RedisResultKey(rec.Name, rec.Version), RedisLatestKey(rec.Name)}
		args := []interface{}{string(payload), rec.Version, int(r.resultTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
			return fmt.Errorf("redis eval record=%s: %w", rec.RecordID(), err)
		}
	}
	return nil
}
