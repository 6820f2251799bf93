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

// Package grid derives the per-level communicators a multi-level
// sort runs on. The world is recursively split into contiguous
// groups of strictly decreasing sizes; level 0 is the world and the
// last level is the innermost group.
package grid

import (
	"errors"
	"fmt"

	"github.com/parsort/parsort/comm"
)

// ErrGroupSizes is returned when the requested group sizes are not
// strictly decreasing or not positive.
var ErrGroupSizes = errors.New("grid: bad group sizes")

// Grid is the ordered set of communicators of one multi-level run.
// Comms[0] is the world; every later entry splits the previous one
// into contiguous groups, so Comms[i+1] connects a subset of the
// ranks of Comms[i].
type Grid struct {
	Comms []comm.Comm
}

// New splits world according to groupSizes. Sizes that do not fit
// below the world size are dropped from the front, matching runs
// that reuse one size list across different world sizes. The
// remaining sizes must be positive and strictly decreasing.
func New(world comm.Comm, groupSizes []int) (*Grid, error) {
	sizes := groupSizes
	for len(sizes) > 0 && sizes[0] >= world.Size() {
		sizes = sizes[1:]
	}
	for i, s := range sizes {
		if s < 1 {
			return nil, fmt.Errorf("%w: group size %d", ErrGroupSizes, s)
		}
		if i > 0 && s >= sizes[i-1] {
			return nil, fmt.Errorf("%w: %d after %d", ErrGroupSizes, s, sizes[i-1])
		}
	}
	g := &Grid{Comms: make([]comm.Comm, 0, len(sizes)+1)}
	g.Comms = append(g.Comms, world)
	cur := world
	for _, s := range sizes {
		if cur.Size()%s != 0 {
			return nil, fmt.Errorf("%w: %d does not divide group of %d", ErrGroupSizes, s, cur.Size())
		}
		sub, err := cur.Split(cur.Rank()/s, cur.Rank())
		if err != nil {
			return nil, err
		}
		g.Comms = append(g.Comms, sub)
		cur = sub
	}
	return g, nil
}

// Levels returns the number of communicators in the grid.
func (g *Grid) Levels() int { return len(g.Comms) }

// Innermost returns the smallest communicator. For a single-level
// grid this is the world itself.
func (g *Grid) Innermost() comm.Comm { return g.Comms[len(g.Comms)-1] }

// GroupCount returns how many groups of the next level one rank's
// communicator at the given level contains. The innermost level
// counts its individual ranks as groups.
func (g *Grid) GroupCount(level int) int {
	if level == len(g.Comms)-1 {
		return g.Comms[level].Size()
	}
	return g.Comms[level].Size() / g.Comms[level+1].Size()
}

// Shift returns rank shifted cyclically by delta within a group of
// the given size.
func Shift(rank, delta, size int) int {
	r := (rank + delta) % size
	if r < 0 {
		r += size
	}
	return r
}
