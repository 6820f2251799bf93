// Copyright 2023 Parsort, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package perm represents sort output as a permutation of the input:
// instead of materializing the sorted strings, every rank records
// where the strings of its slice of the output originally lived.
//
// A permutation is built from one or more pieces, one per sort
// round. The global output order is piece-major: piece q of every
// rank in rank order, then piece q+1. A single-piece permutation is
// therefore ordered by rank alone.
package perm

import (
	"fmt"
	"io"
	"strings"

	"github.com/parsort/parsort/sstr"
)

// Permutation is one rank's slice of the output, as parallel origin
// vectors plus the piece boundaries.
type Permutation struct {
	PEs     []uint32
	Indices []uint64
	// starts[i] is the offset of piece i; len(starts) is the piece
	// count and starts[len] == Len() is implied.
	starts []int
}

// FromContainer builds a single-piece permutation from the origin
// attributes of an indexed container.
func FromContainer(c *sstr.Container) (*Permutation, error) {
	if !c.Indexed() {
		return nil, fmt.Errorf("%w: permutation from an unindexed container", sstr.ErrMalformed)
	}
	p := &Permutation{
		PEs:     make([]uint32, c.Len()),
		Indices: make([]uint64, c.Len()),
		starts:  []int{0},
	}
	for i := 0; i < c.Len(); i++ {
		s := c.String(i)
		p.PEs[i] = s.PE
		p.Indices[i] = s.Index
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Permutation) Len() int { return len(p.PEs) }

// Empty reports whether the permutation has no entries.
func (p *Permutation) Empty() bool { return len(p.PEs) == 0 }

// Pieces returns the number of appended pieces.
func (p *Permutation) Pieces() int { return len(p.starts) }

// Piece returns the half-open entry range of piece i.
func (p *Permutation) Piece(i int) (lo, hi int) {
	lo = p.starts[i]
	hi = p.Len()
	if i+1 < len(p.starts) {
		hi = p.starts[i+1]
	}
	return lo, hi
}

// Append adds other's entries as new pieces of p.
func (p *Permutation) Append(other *Permutation) {
	base := p.Len()
	for _, s := range other.starts {
		p.starts = append(p.starts, base+s)
	}
	p.PEs = append(p.PEs, other.PEs...)
	p.Indices = append(p.Indices, other.Indices...)
}

// String renders the entries as {rank, index} pairs.
func (p *Permutation) String() string {
	var b strings.Builder
	for i := range p.PEs {
		fmt.Fprintf(&b, "{%d, %d}, ", p.PEs[i], p.Indices[i])
	}
	return b.String()
}

// WriteTo writes one {rank, index} pair per line.
func (p *Permutation) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := range p.PEs {
		n, err := fmt.Fprintf(w, "{%d, %d}\n", p.PEs[i], p.Indices[i])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
