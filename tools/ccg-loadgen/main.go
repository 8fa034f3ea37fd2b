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

// ccg-loadgen drives a running correlogram server with a mixed workload:
// compute posts against a rotating set of session names, interleaved with
// result fetches and subset selects. It reports throughput at the end.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type spike struct {
	Sample int64 `json:"sample"`
	Unit   int32 `json:"unit"`
}

func main() {
	var (
		base     = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		sessions = flag.Int("sessions", 20, "Number of distinct session names to rotate through")
		units    = flag.Int("units", 8, "Units per synthetic sorting")
		spikes   = flag.Int("spikes", 2000, "Spikes per posted segment")
		readFrac = flag.Int("read_every", 4, "Issue one GET per this many computes (minimum 2)")
		N        = flag.Int("n", 500, "Total requests to send")
		conc     = flag.Int("c", 4, "Number of concurrent workers")
		seed     = flag.Int64("seed", 1, "RNG seed for spike trains")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 60*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	if *N <= 0 || *conc <= 0 || *sessions <= 0 {
		fmt.Fprintln(os.Stderr, "-n, -c and -sessions must be > 0")
		os.Exit(2)
	}
	if *readFrac < 2 {
		*readFrac = 2
	}

	baseURL := strings.TrimRight(*base, "/")

	// Pre-render one compute body per session so the hot loop only does I/O.
	bodies := make([][]byte, *sessions)
	rng := rand.New(rand.NewSource(*seed))
	for i := range bodies {
		bodies[i] = computeBody(rng, fmt.Sprintf("load-%d", i), *units, *spikes)
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var failures int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			session := (i + id) % *sessions
			var req *http.Request
			if (i+id)%*readFrac == 0 {
				u := fmt.Sprintf("%s/correlograms?name=load-%d", baseURL, session)
				req, _ = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			} else {
				u := baseURL + "/compute"
				req, _ = http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodies[session]))
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := client.Do(req)
			if err == nil {
				if resp.StatusCode >= 500 {
					atomic.AddInt64(&failures, 1)
				}
				// Drain and close body to enable connection reuse
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			} else {
				atomic.AddInt64(&failures, 1)
				// Brief backoff on errors to avoid hot spinning
				time.Sleep(200 * time.Microsecond)
			}
		}
	}

	// Split N across conc workers
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: N=%d c=%d go=%d failures=%d Duration=%s Throughput=%.0f req/s\n",
		*N, *conc, runtime.GOMAXPROCS(0), atomic.LoadInt64(&failures), elapsed.Truncate(time.Millisecond), ops)
}

// computeBody renders a /compute request with one sorted synthetic segment.
func computeBody(rng *rand.Rand, name string, units, n int) []byte {
	seg := make([]spike, n)
	for i := range seg {
		seg[i] = spike{Sample: rng.Int63n(30000 * 60), Unit: int32(rng.Intn(units))}
	}
	sort.Slice(seg, func(i, j int) bool { return seg[i].Sample < seg[j].Sample })
	body := map[string]interface{}{
		"name":               name,
		"sampling_frequency": 30000.0,
		"num_units":          units,
		"segments":           []interface{}{seg},
		"window_ms":          50.0,
		"bin_ms":             1.0,
		"method":             "auto",
	}
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return b
}
