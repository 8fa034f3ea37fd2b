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

import (
	"fmt"
	"math"
)

// PlanBins converts millisecond-domain correlogram parameters into the
// sample-domain geometry both counting strategies operate on.
//
// The window covers lags in (-windowSize, +windowSize) samples around zero,
// with windowSize = round(fs * windowMS / 2 / 1000). The window is truncated
// down to an exact multiple of binSize so the bin grid is centered on zero
// with an even number of bins: half looking backward, half forward. The
// returned edges are the numBins+1 bin boundaries converted back to
// milliseconds.
//
// Same inputs always yield identical geometry; there is no hidden state.
func PlanBins(samplingRate, windowMS, binMS float64) (edgesMS []float64, windowSize, binSize int64, err error) {
	if samplingRate <= 0 || windowMS <= 0 || binMS <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: sampling_rate=%g window_ms=%g bin_ms=%g",
			ErrInvalidGeometry, samplingRate, windowMS, binMS)
	}

	windowSize = int64(math.Round(samplingRate * windowMS / 2 / 1000))
	binSize = int64(math.Round(samplingRate * binMS / 1000))
	if binSize < 1 {
		return nil, 0, 0, fmt.Errorf("%w: bin_ms=%g rounds to zero samples at %g Hz",
			ErrInvalidGeometry, binMS, samplingRate)
	}

	// Clip the window so it is an exact multiple of the bin size.
	windowSize -= windowSize % binSize
	numBins, _ := binCounts(windowSize, binSize)
	if numBins < 2 {
		return nil, 0, 0, fmt.Errorf("%w: window_ms=%g too small relative to bin_ms=%g at %g Hz",
			ErrInvalidGeometry, windowMS, binMS, samplingRate)
	}

	scale := 1000 / samplingRate
	edgesMS = make([]float64, 0, numBins+1)
	for t := -windowSize; t <= windowSize; t += binSize {
		edgesMS = append(edgesMS, float64(t)*scale)
	}
	return edgesMS, windowSize, binSize, nil
}

// binCounts derives the bin counts from an already-validated geometry.
// windowSize must be a positive exact multiple of binSize.
func binCounts(windowSize, binSize int64) (numBins, numHalfBins int) {
	numHalfBins = int(windowSize / binSize)
	return 2 * numHalfBins, numHalfBins
}

// floorDiv is integer division rounding toward negative infinity. Negative
// lags must bucket toward negative bins, which truncating division gets wrong.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
