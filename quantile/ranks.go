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

package quantile

import (
	"golang.org/x/exp/slices"

	"github.com/parsort/parsort/comm"
)

// RankStats summarizes a rank redistribution: how many output
// positions this rank inspected, how many were distinct, how many
// runs of repeats it saw, and the resulting duplicate total.
type RankStats struct {
	Total    uint64
	Distinct uint64
	// Duplicate counts runs of a repeated value, one per run.
	Duplicate uint64
	// NonUnique is the repeated occurrences plus one per run.
	NonUnique uint64
}

// CountDuplicateRanks redistributes the output positions by value
// interval and scans each interval for repeats. On unique output the
// positions cover their interval without gaps, so a non-unique
// ranking shows up as zero differences between sorted neighbors.
func CountDuplicateRanks(c comm.Comm, ranks []uint64) (RankStats, error) {
	dist, err := distributeRanks(c, ranks)
	if err != nil {
		return RankStats{}, err
	}
	var st RankStats
	st.Total = uint64(len(dist))
	if len(dist) == 0 {
		return st, nil
	}
	slices.Sort(dist)

	diffs := make([]uint64, len(dist))
	diffs[0] = 1
	for i := 1; i < len(dist); i++ {
		diffs[i] = dist[i] - dist[i-1]
	}
	for _, d := range diffs {
		if d != 0 {
			st.Distinct++
		}
	}
	for i := 1; i < len(diffs); i++ {
		if diffs[i] != 0 && diffs[i-1] == 0 {
			st.Duplicate++
		}
	}
	if diffs[len(diffs)-1] == 0 {
		// a run that ends the interval has no fresh value after it
		st.Duplicate++
	}
	st.NonUnique = st.Total - st.Distinct + st.Duplicate
	return st, nil
}

// distributeRanks routes every position to the rank owning its value
// interval, so repeats of one value always meet on the same rank.
func distributeRanks(c comm.Comm, ranks []uint64) ([]uint64, error) {
	var localMax uint64
	for _, r := range ranks {
		if r+1 > localMax {
			localMax = r + 1
		}
	}
	upper, err := comm.AllreduceMax(c, localMax)
	if err != nil {
		return nil, err
	}
	interval := (upper + uint64(c.Size()) - 1) / uint64(c.Size())
	if interval == 0 {
		interval = 1
	}
	send := make([][]uint64, c.Size())
	for _, r := range ranks {
		dst := int(r / interval)
		send[dst] = append(send[dst], r)
	}
	recv, err := comm.AlltoallU64(c, send)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, part := range recv {
		out = append(out, part...)
	}
	return out, nil
}
