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

package ccg

import "sync"

// countPairwise accumulates one segment into out by direct pair enumeration
// per unit pair, pruned by a forward pointer that exploits time-sortedness.
//
// The outer unit index i is the sole parallel axis: task i exclusively owns
// the tensor rows (i, j) and (j, i) for all j >= i, so the worker pool writes
// disjoint memory and needs no locks or atomics.
//
// The counting rule is identical to countShift: lags with |d| >= windowSize
// are excluded, everything else buckets by floor division.
func countPairwise(seg []Spike, out *Correlograms, windowSize, binSize int64, workers int) {
	numUnits := out.NumUnits()
	if numUnits == 0 || len(seg) == 0 {
		return
	}
	numHalf := out.NumBins() / 2

	// Extract each unit's sub-stream of spike times; sortedness of the
	// segment carries over to every sub-stream.
	sizes := make([]int, numUnits)
	for _, sp := range seg {
		sizes[sp.Unit]++
	}
	trains := make([][]int64, numUnits)
	for u := range trains {
		trains[u] = make([]int64, 0, sizes[u])
	}
	for _, sp := range seg {
		trains[sp.Unit] = append(trains[sp.Unit], sp.Sample)
	}

	countRow := func(i int) {
		for j := i; j < numUnits; j++ {
			if i == j {
				countAuto(trains[i], out.Slice(i, i), windowSize, binSize, numHalf)
			} else {
				countCross(trains[i], trains[j], out.Slice(i, j), out.Slice(j, i), windowSize, binSize, numHalf)
			}
		}
	}

	if workers > numUnits {
		workers = numUnits
	}
	if workers <= 1 {
		for i := 0; i < numUnits; i++ {
			countRow(i)
		}
		return
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				countRow(i)
			}
		}()
	}
	for i := 0; i < numUnits; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
}

// countCross scans every spike pair of two distinct units. For spike a of s1
// and spike b of s2, d = s1[a] - s2[b]:
//
//   - d >= windowSize: b lies too far in the past for this and every later a
//     (d only grows as a advances), so the forward pointer skips it for good.
//   - d <= -windowSize: later b only push d more negative; stop this a.
//   - otherwise count into fw (the (i,j) row) and the mirror cell in rv
//     (the (j,i) row). Each cross pair is enumerated exactly once.
func countCross(s1, s2 []int64, fw, rv []int64, windowSize, binSize int64, numHalf int) {
	startJ := 0
	for a := 0; a < len(s1); a++ {
		for b := startJ; b < len(s2); b++ {
			d := s1[a] - s2[b]
			if d >= windowSize {
				startJ = b + 1
				continue
			}
			if d <= -windowSize {
				break
			}
			fw[numHalf+int(floorDiv(d, binSize))]++
			rv[numHalf+int(floorDiv(-d, binSize))]++
		}
	}
}

// countAuto scans a single unit's train against itself, skipping the self
// pair a == b. Both orders of every spike pair are enumerated, which yields
// the two signed lags of the autocorrelogram without an explicit mirror.
func countAuto(s []int64, row []int64, windowSize, binSize int64, numHalf int) {
	startJ := 0
	for a := 0; a < len(s); a++ {
		for b := startJ; b < len(s); b++ {
			if a == b {
				continue
			}
			d := s[a] - s[b]
			if d >= windowSize {
				startJ = b + 1
				continue
			}
			if d <= -windowSize {
				break
			}
			row[numHalf+int(floorDiv(d, binSize))]++
		}
	}
}
