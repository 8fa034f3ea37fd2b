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

// countShift accumulates one segment into out using the vectorized
// shift-based scan: instead of enumerating all O(N^2) spike pairs, it walks
// fixed offsets s = 1, 2, ... over the time-sorted merged stream and looks at
// the differences t[i+s] - t[i].
//
// An active mask tracks which starting indices can still produce in-window
// pairs. Because the stream is sorted, t[i+s] - t[i] is non-decreasing in s
// for fixed i, so once index i leaves the window it never re-enters and is
// deactivated. The loop ends when a full pass over the valid range finds no
// active index.
//
// Each unordered pair (i, i+s) with lag d = t[i+s] - t[i] in [0, windowSize)
// counts exactly once into both ordered cells:
//
//	out[unit[i],   unit[i+s], numHalf + floorDiv(-d, binSize)]
//	out[unit[i+s], unit[i],   numHalf + floorDiv(+d, binSize)]
//
// Lags at or beyond windowSize are excluded entirely. Floor division (not
// truncation) buckets negative lags toward negative bins.
func countShift(seg []Spike, out *Correlograms, windowSize, binSize int64) {
	n := len(seg)
	if n < 2 {
		return
	}
	numHalf := out.NumBins() / 2

	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	for shift := 1; shift < n; shift++ {
		anyActive := false
		for i := 0; i < n-shift; i++ {
			if !mask[i] {
				continue
			}
			anyActive = true
			d := seg[i+shift].Sample - seg[i].Sample
			posOff := d / binSize // d >= 0 in a sorted stream
			if posOff >= int64(numHalf) {
				mask[i] = false
				continue
			}
			negOff := floorDiv(-d, binSize)
			a, b := int(seg[i].Unit), int(seg[i+shift].Unit)
			out.Slice(a, b)[numHalf+int(negOff)]++
			out.Slice(b, a)[numHalf+int(posOff)]++
		}
		if !anyActive {
			break
		}
	}
}
