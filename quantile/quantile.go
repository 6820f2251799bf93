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

// Package quantile drives the space-efficient sort. The sorted space
// is cut into quantiles of roughly bounded character volume; each
// quantile is a contiguous range of the final order, small enough to
// run the distributed merge sort on with bounded peak memory. The
// per-quantile outputs are recorded as permutation pieces instead of
// materialized strings.
package quantile

import (
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/msort"
	"github.com/parsort/parsort/perm"
	"github.com/parsort/parsort/sample"
	"github.com/parsort/parsort/sstr"
)

// Config carries the knobs of one space-efficient run. Every rank
// must use the same configuration.
type Config struct {
	// Size is the per-rank character budget of one quantile. Zero
	// sorts everything in a single quantile.
	Size uint64
	// Sampling picks the quantile boundaries; a character-based
	// policy keeps the quantile volumes near the budget.
	Sampling sample.Config
	// Sort configures the per-quantile distributed merge sort.
	Sort msort.Config
	// Doubling replaces each string with its distinguishing prefix
	// before the exchange rounds of every quantile.
	Doubling bool
	Prefix   msort.PrefixConfig
}

// Result is one rank's view of the output.
type Result struct {
	// Perm holds this rank's slices of the output, one piece per
	// quantile.
	Perm *perm.Permutation
	// Ranks maps every local input slot to its global output
	// position.
	Ranks []uint64
}

// Sort sorts the container's strings across the grid without ever
// concentrating more than roughly Size characters per rank in one
// round. The container is consumed: it is made indexed, reordered,
// and its strings are referenced by the returned permutation.
func Sort(g *grid.Grid, strs *sstr.Container, cfg Config) (*Result, error) {
	world := g.Comms[0]
	inputLen := strs.Len()

	// stamp every string with its input slot before any reordering
	recs := strs.Strings()
	for i := range recs {
		recs[i].PE = uint32(world.Rank())
		recs[i].Index = uint64(i)
	}
	strs.SetIndexed(true)

	msort.LocalSort(strs)

	numQ, err := quantileCount(world, strs, cfg.Size)
	if err != nil {
		return nil, err
	}
	lcpAvg, err := sample.LcpAverage(world, strs.LCPs())
	if err != nil {
		return nil, err
	}
	ivs, err := sample.Partition(world, strs, lcpAvg, numQ, cfg.Sampling)
	if err != nil {
		return nil, err
	}

	out := &Result{Perm: &perm.Permutation{}, Ranks: make([]uint64, inputLen)}
	routed := make([][]uint64, world.Size())
	var qBase uint64
	lo := 0
	for q := 0; q < numQ; q++ {
		hi := lo + int(ivs[q])
		part, err := sstr.NewFromParts(strs.RawBytes(), strs.Strings()[lo:hi], nil)
		if err != nil {
			return nil, err
		}
		part.SetIndexed(true)
		lo = hi

		var sorted *sstr.Container
		if cfg.Doubling {
			sorted, err = msort.SortWithPrefixes(g, part, cfg.Sort, cfg.Prefix)
		} else {
			sorted, err = msort.Sort(g, part, cfg.Sort)
		}
		if err != nil {
			return nil, err
		}

		piece, err := perm.FromContainer(sorted)
		if err != nil {
			return nil, err
		}
		out.Perm.Append(piece)

		qBase, err = stampRanks(world, sorted, qBase, routed)
		if err != nil {
			return nil, err
		}
	}

	back, err := comm.AlltoallU64(world, routed)
	if err != nil {
		return nil, err
	}
	for _, pairs := range back {
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("%w: odd rank routing payload", comm.ErrTransport)
		}
		for i := 0; i < len(pairs); i += 2 {
			slot, rank := pairs[i], pairs[i+1]
			if slot >= uint64(inputLen) {
				return nil, fmt.Errorf("%w: routed slot %d of %d", comm.ErrTransport, slot, inputLen)
			}
			out.Ranks[slot] = rank
		}
	}
	return out, nil
}

// quantileCount returns the globally agreed quantile count for the
// given per-rank character budget.
func quantileCount(c comm.Comm, strs *sstr.Container, size uint64) (int, error) {
	local := uint64(1)
	if size > 0 {
		chars := uint64(strs.SumLengths())
		local = (chars + size - 1) / size
		if local == 0 {
			local = 1
		}
	}
	global, err := comm.AllreduceMax(c, local)
	if err != nil {
		return 0, err
	}
	return int(global), nil
}

// stampRanks appends (input slot, global position) pairs for this
// quantile's sorted slice to the per-origin routing buckets and
// returns the base position of the next quantile.
func stampRanks(c comm.Comm, sorted *sstr.Container, qBase uint64, routed [][]uint64) (uint64, error) {
	sizes, err := comm.AllgatherU64(c, []uint64{uint64(sorted.Len())})
	if err != nil {
		return 0, err
	}
	var before, total uint64
	for r, sz := range sizes {
		if r < c.Rank() {
			before += sz[0]
		}
		total += sz[0]
	}
	for i := 0; i < sorted.Len(); i++ {
		s := sorted.String(i)
		routed[s.PE] = append(routed[s.PE], s.Index, qBase+before+uint64(i))
	}
	return qBase + total, nil
}
