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

import "fmt"

// Spike is a single event: a sample index and the dense unit index it is
// attributed to. Within a segment spikes are ordered by Sample; equal
// samples are permitted and handled positionally.
type Spike struct {
	Sample int64 `json:"sample"`
	Unit   int32 `json:"unit"`
}

// Sorting is the surface the engine needs from the event-stream collaborator:
// the sampling rate, the fixed ordered unit set, and an ordered-by-time spike
// vector per segment. Storage-level organization stays behind this interface.
type Sorting interface {
	SamplingFrequency() float64
	UnitIDs() []string
	NumSegments() int
	Segment(i int) []Spike
}

// MemorySorting is an in-memory Sorting backed by per-segment spike slices.
type MemorySorting struct {
	fs       float64
	unitIDs  []string
	segments [][]Spike
}

// NewMemorySorting validates unit indices against the unit set and wraps the
// given segments. The segments are borrowed, not copied; callers must not
// mutate them while a computation runs.
func NewMemorySorting(samplingRate float64, unitIDs []string, segments [][]Spike) (*MemorySorting, error) {
	if samplingRate <= 0 {
		return nil, fmt.Errorf("ccg: sampling rate must be positive, got %g", samplingRate)
	}
	for si, seg := range segments {
		for _, sp := range seg {
			if int(sp.Unit) < 0 || int(sp.Unit) >= len(unitIDs) {
				return nil, fmt.Errorf("%w: segment %d has unit %d, unit set size %d",
					ErrUnitRange, si, sp.Unit, len(unitIDs))
			}
		}
	}
	return &MemorySorting{fs: samplingRate, unitIDs: unitIDs, segments: segments}, nil
}

// SamplingFrequency returns the sampling rate in Hz.
func (m *MemorySorting) SamplingFrequency() float64 { return m.fs }

// UnitIDs returns the fixed ordered unit identifiers; position is the dense
// unit index used on the tensor axes.
func (m *MemorySorting) UnitIDs() []string { return m.unitIDs }

// NumSegments returns the segment count.
func (m *MemorySorting) NumSegments() int { return len(m.segments) }

// Segment returns the spike vector of segment i.
func (m *MemorySorting) Segment(i int) []Spike { return m.segments[i] }

// SplitSegments partitions a concatenated spike stream into per-segment
// sub-streams using a boundary table of start offsets. bounds[0] must be 0
// and offsets must be ascending; segment i is flat[bounds[i]:bounds[i+1]]
// (the last segment runs to the end). The returned slices alias flat.
func SplitSegments(flat []Spike, bounds []int) ([][]Spike, error) {
	if len(bounds) == 0 || bounds[0] != 0 {
		return nil, fmt.Errorf("ccg: segment bounds must start at 0, got %v", bounds)
	}
	segments := make([][]Spike, len(bounds))
	for i, start := range bounds {
		end := len(flat)
		if i+1 < len(bounds) {
			end = bounds[i+1]
		}
		if start > end || end > len(flat) {
			return nil, fmt.Errorf("ccg: segment bound %d:%d out of range for stream of %d spikes", start, end, len(flat))
		}
		segments[i] = flat[start:end]
	}
	return segments, nil
}

// segmentOrdered reports whether spike samples are non-decreasing.
func segmentOrdered(seg []Spike) bool {
	for i := 1; i < len(seg); i++ {
		if seg[i].Sample < seg[i-1].Sample {
			return false
		}
	}
	return true
}
