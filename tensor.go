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

// Correlograms is a dense (numUnits, numUnits, numBins) tensor of int64
// counts backed by a single flat slice, unit-index-major with the bin axis
// innermost. Entry (a, b, k) is the number of spike pairs whose signed lag
// from a spike of unit a to a spike of unit b falls in bin k.
//
// The layout is exposed through Counts so outer layers (persistence, the
// unit-subset selection of the result store) can reindex or serialize it
// without knowing anything else about the core.
type Correlograms struct {
	units int
	bins  int
	data  []int64
}

// NewCorrelograms allocates an all-zero tensor of the given shape.
func NewCorrelograms(numUnits, numBins int) *Correlograms {
	return &Correlograms{
		units: numUnits,
		bins:  numBins,
		data:  make([]int64, numUnits*numUnits*numBins),
	}
}

// NumUnits returns the extent of the two unit axes.
func (c *Correlograms) NumUnits() int { return c.units }

// NumBins returns the extent of the bin axis.
func (c *Correlograms) NumBins() int { return c.bins }

func (c *Correlograms) row(a, b int) int { return (a*c.units + b) * c.bins }

// At returns the count at (a, b, bin).
func (c *Correlograms) At(a, b, bin int) int64 {
	return c.data[c.row(a, b)+bin]
}

// Slice returns the mutable bin row for the ordered unit pair (a, b).
// Rows are disjoint per (a, b), which is what lets the pairwise counter
// parallelize without locks.
func (c *Correlograms) Slice(a, b int) []int64 {
	off := c.row(a, b)
	return c.data[off : off+c.bins : off+c.bins]
}

// Total returns the sum of all counts.
func (c *Correlograms) Total() int64 {
	var sum int64
	for _, v := range c.data {
		sum += v
	}
	return sum
}

// Counts returns the flat backing slice (unit-index-major, bin innermost).
// Callers must not mutate it.
func (c *Correlograms) Counts() []int64 { return c.data }

// Clone returns a deep copy.
func (c *Correlograms) Clone() *Correlograms {
	out := NewCorrelograms(c.units, c.bins)
	copy(out.data, c.data)
	return out
}

// Select reindexes the two unit axes by the given unit-index mapping and
// returns a new (len(indices), len(indices), numBins) tensor. Indices may
// reorder and repeat; each must be within [0, NumUnits).
func (c *Correlograms) Select(indices []int) (*Correlograms, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= c.units {
			return nil, fmt.Errorf("ccg: select index %d out of range [0, %d)", idx, c.units)
		}
	}
	out := NewCorrelograms(len(indices), c.bins)
	for a, oa := range indices {
		for b, ob := range indices {
			copy(out.Slice(a, b), c.Slice(oa, ob))
		}
	}
	return out, nil
}

// merge accumulates another tensor of identical shape into this one.
// Segments never share adjacency, so summing per-segment tensors is the
// whole aggregation step.
func (c *Correlograms) merge(other *Correlograms) {
	for i, v := range other.data {
		c.data[i] += v
	}
}
