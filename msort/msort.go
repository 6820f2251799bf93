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

// Package msort drives the distributed merge sort: every rank sorts
// its local strings, then one partition/exchange/merge round runs
// per grid level, from the world communicator down to the innermost
// group. After the final round the concatenation of the local sets
// in rank order is globally sorted.
package msort

import (
	"bytes"
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/exchange"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/heap"
	"github.com/parsort/parsort/sample"
	"github.com/parsort/parsort/sstr"
)

// Config carries the knobs of one sort run. Every rank must use the
// same configuration.
type Config struct {
	Sampling sample.Config
	Exchange exchange.Config
}

// Sort sorts the container's strings across all ranks of the grid.
// On return every rank holds a sorted local set and the sets are
// globally ordered by rank of the world communicator. The container
// is consumed; the result carries neighbor LCPs.
func Sort(g *grid.Grid, strs *sstr.Container, cfg Config) (*sstr.Container, error) {
	if cfg.Sampling.Policy.Indexed() && !strs.Indexed() {
		return nil, fmt.Errorf("%w: %s sampling on an unindexed container",
			sstr.ErrMalformed, cfg.Sampling.Policy)
	}
	LocalSort(strs)
	cur := strs
	for lvl := 0; lvl < g.Levels(); lvl++ {
		L := g.Comms[lvl]
		if L.Size() == 1 {
			continue
		}
		lcpAvg, err := sample.LcpAverage(L, cur.LCPs())
		if err != nil {
			return nil, err
		}
		ivs, err := sample.Partition(L, cur, lcpAvg, g.GroupCount(lvl), cfg.Sampling)
		if err != nil {
			return nil, err
		}
		res, err := exchange.Strings(L, cur, routeCounts(g, lvl, ivs), cfg.Exchange)
		if err != nil {
			return nil, err
		}
		cur, err = mergeRuns(res)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// routeCounts spreads the per-group interval sizes over the ranks
// of the level communicator. At the innermost level every group is
// a single rank and the intervals are the counts. At an outer level
// interval j goes entirely to the rank of group j whose position
// within its next-level group matches ours, so the strings a rank
// receives all belong to its own group on the next level.
func routeCounts(g *grid.Grid, lvl int, ivs []uint64) []uint64 {
	L := g.Comms[lvl]
	if lvl == g.Levels()-1 {
		return ivs
	}
	sub := g.Comms[lvl+1].Size()
	counts := make([]uint64, L.Size())
	for j, n := range ivs {
		counts[j*sub+L.Rank()%sub] = n
	}
	return counts
}

// mergeRuns multiway-merges the received sorted runs into one
// sorted container sharing the receive arena, and recomputes the
// neighbor LCPs.
func mergeRuns(res *exchange.Result) (*sstr.Container, error) {
	src := res.Strings
	all := src.Strings()
	runs := make([][]sstr.String, len(res.RunSizes))
	off := 0
	for i, n := range res.RunSizes {
		runs[i] = all[off : off+int(n)]
		off += int(n)
	}
	raw := src.RawBytes()
	indexed := src.Indexed()
	less := func(a, b sstr.String) bool {
		c := bytes.Compare(raw[a.Off:a.Off+a.Len], raw[b.Off:b.Off+b.Len])
		if c != 0 {
			return c < 0
		}
		if !indexed {
			return false
		}
		if a.PE != b.PE {
			return a.PE < b.PE
		}
		return a.Index < b.Index
	}
	merged := make([]sstr.String, 0, len(all))
	heap.VisitMerge(runs, less, func(run, pos int) {
		merged = append(merged, runs[run][pos])
	})
	out, err := sstr.NewFromParts(raw, merged, nil)
	if err != nil {
		return nil, err
	}
	out.SetIndexed(indexed)
	out.ComputeLCPs()
	return out, nil
}

// Imbalance reports max/avg of the local string counts across the
// communicator, a quick health figure for the partitioning.
func Imbalance(c comm.Comm, local int) (float64, error) {
	max, err := comm.AllreduceMax(c, uint64(local))
	if err != nil {
		return 0, err
	}
	sum, err := comm.AllreduceSum(c, uint64(local))
	if err != nil {
		return 0, err
	}
	if sum == 0 {
		return 0, nil
	}
	avg := float64(sum) / float64(c.Size())
	return float64(max) / avg, nil
}
