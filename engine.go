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

// Package ccg computes pairwise temporal correlation histograms
// (correlograms) between spike trains recorded from multiple units across
// one or more independently time-ordered segments.
//
// The package provides two counting strategies that produce bit-identical
// (numUnits, numUnits, numBins) count tensors: a vectorized shift-based scan
// over the merged spike stream, and a brute-force per-unit-pair scan with
// sliding-window pruning that parallelizes across the outer unit index.
// Counts are raw integers; no normalization or statistics are applied.
package ccg

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrInvalidGeometry reports a degenerate bin/window combination.
	ErrInvalidGeometry = errors.New("ccg: invalid bin/window geometry")

	// ErrUnsortedSegment reports a segment whose spike times are not
	// ascending. The engine fails explicitly rather than sorting
	// defensively: the input contract is sortedness, and silently
	// reordering borrowed buffers would hide collaborator bugs.
	ErrUnsortedSegment = errors.New("ccg: segment spike times are not ascending")

	// ErrUnitRange reports a spike whose unit index is outside the
	// declared unit set.
	ErrUnitRange = errors.New("ccg: spike unit index out of range")

	// ErrStrategyUnavailable reports an unrecognized or unsupported
	// counting strategy name.
	ErrStrategyUnavailable = errors.New("ccg: requested counting strategy is not available")
)

// Strategy selects the counting algorithm.
type Strategy int

const (
	// StrategyAuto resolves to StrategyPairwise when the parallel backend
	// is usable, else StrategyVectorized.
	StrategyAuto Strategy = iota
	// StrategyVectorized is the shift-based scan over the merged stream.
	StrategyVectorized
	// StrategyPairwise is the per-unit-pair sliding-window scan.
	StrategyPairwise
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyVectorized:
		return "vectorized"
	case StrategyPairwise:
		return "pairwise"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// parallelBackend is the capability switch for the pairwise strategy's
// parallel execution, resolved once at startup rather than per call site.
var parallelBackend = runtime.GOMAXPROCS(0) > 1

// Resolution is the outcome of strategy selection. FellBack is the non-fatal
// signal that auto mode wanted the parallel pairwise path but the backend is
// not usable, so the vectorized strategy runs instead.
type Resolution struct {
	Strategy Strategy
	FellBack bool
}

// Resolve maps a method name ("auto", "vectorized", "pairwise") to a concrete
// strategy. Explicitly requested strategies are always honored: the pairwise
// counter degrades to a serial scan on a single-CPU runtime and stays
// correct. Unknown names return ErrStrategyUnavailable.
func Resolve(method string) (Resolution, error) {
	switch method {
	case "", "auto":
		if parallelBackend {
			return Resolution{Strategy: StrategyPairwise}, nil
		}
		return Resolution{Strategy: StrategyVectorized, FellBack: true}, nil
	case "vectorized":
		return Resolution{Strategy: StrategyVectorized}, nil
	case "pairwise":
		return Resolution{Strategy: StrategyPairwise}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrStrategyUnavailable, method)
	}
}

// Options configures a computation.
type Options struct {
	// Workers bounds the pairwise counter's worker pool. 0 uses
	// GOMAXPROCS; 1 forces a serial scan.
	Workers int
}

// ComputeCorrelograms computes the full correlogram tensor for the given
// per-segment spike vectors with default options. See
// ComputeCorrelogramsWithOptions.
func ComputeCorrelograms(segments [][]Spike, numUnits int, windowSize, binSize int64, strategy Strategy) (*Correlograms, error) {
	return ComputeCorrelogramsWithOptions(segments, numUnits, windowSize, binSize, strategy, Options{})
}

// ComputeCorrelogramsWithOptions validates the inputs, dispatches the chosen
// counting strategy per segment, and sums the per-segment tensors. Segments
// never share adjacency: no spike pair spanning a segment boundary is
// counted. Zero spikes yield an all-zero tensor of the correct shape.
//
// windowSize must be a positive exact multiple of binSize (the shape
// PlanBins produces). Each segment must be time-ordered ascending; ties are
// allowed. The input slices are only read, never mutated.
func ComputeCorrelogramsWithOptions(segments [][]Spike, numUnits int, windowSize, binSize int64, strategy Strategy, opts Options) (*Correlograms, error) {
	if binSize < 1 || windowSize < binSize || windowSize%binSize != 0 {
		return nil, fmt.Errorf("%w: window_size=%d bin_size=%d", ErrInvalidGeometry, windowSize, binSize)
	}
	if numUnits < 0 {
		return nil, fmt.Errorf("%w: num_units=%d", ErrUnitRange, numUnits)
	}
	for si, seg := range segments {
		if !segmentOrdered(seg) {
			return nil, fmt.Errorf("%w: segment %d", ErrUnsortedSegment, si)
		}
		for _, sp := range seg {
			if int(sp.Unit) < 0 || int(sp.Unit) >= numUnits {
				return nil, fmt.Errorf("%w: segment %d has unit %d, num_units %d", ErrUnitRange, si, sp.Unit, numUnits)
			}
		}
	}

	if strategy == StrategyAuto {
		res, _ := Resolve("auto")
		strategy = res.Strategy
	}

	numBins, _ := binCounts(windowSize, binSize)
	out := NewCorrelograms(numUnits, numBins)

	switch strategy {
	case StrategyVectorized:
		// Per-segment tensors are independent; computing them
		// concurrently and summing is a pure reduction.
		if len(segments) > 1 {
			partials := make([]*Correlograms, len(segments))
			var wg sync.WaitGroup
			for k, seg := range segments {
				wg.Add(1)
				go func(k int, seg []Spike) {
					defer wg.Done()
					t := NewCorrelograms(numUnits, numBins)
					countShift(seg, t, windowSize, binSize)
					partials[k] = t
				}(k, seg)
			}
			wg.Wait()
			for _, p := range partials {
				out.merge(p)
			}
		} else {
			for _, seg := range segments {
				countShift(seg, out, windowSize, binSize)
			}
		}
	case StrategyPairwise:
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		for _, seg := range segments {
			countPairwise(seg, out, windowSize, binSize, workers)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrStrategyUnavailable, strategy)
	}
	return out, nil
}

// ComputeOnSorting is the top-level convenience: plan the bin geometry from
// the sorting's sampling rate, resolve the method name, compute, and return
// the tensor alongside the millisecond bin edges.
func ComputeOnSorting(s Sorting, windowMS, binMS float64, method string) (*Correlograms, []float64, error) {
	edgesMS, windowSize, binSize, err := PlanBins(s.SamplingFrequency(), windowMS, binMS)
	if err != nil {
		return nil, nil, err
	}
	res, err := Resolve(method)
	if err != nil {
		return nil, nil, err
	}
	segments := make([][]Spike, s.NumSegments())
	for i := range segments {
		segments[i] = s.Segment(i)
	}
	tensor, err := ComputeCorrelograms(segments, len(s.UnitIDs()), windowSize, binSize, res.Strategy)
	if err != nil {
		return nil, nil, err
	}
	return tensor, edgesMS, nil
}
