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

// Package bloom implements the distributed duplicate filter behind
// prefix doubling: instead of exchanging strings, ranks exchange
// 64-bit hashes of growing prefixes and learn which of their
// strings still collide with a string elsewhere. Strings whose
// prefix hash is globally unique leave the candidate set, recording
// the current depth as their distinguishing prefix length.
//
// Hashes are partitioned over the ranks of a communicator by hash
// range; with a multi-level grid, each level narrows the range to
// its own bucket and only the innermost level detects duplicates,
// routing the positions back out level by level.
package bloom

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/heap"
	"github.com/parsort/parsort/shash"
	"github.com/parsort/parsort/sstr"
)

// hashStringIndex is the sender-side record of one hashed
// candidate.
type hashStringIndex struct {
	hash        uint64
	stringIndex int
	isLocalDup  bool
	sendAnyway  bool
	isLcpRoot   bool
}

// hashPEIndex is the receiver-side record: a hash annotated with
// the rank it came from.
type hashPEIndex struct {
	hash uint64
	pe   int
}

// Filter holds the per-string state of one prefix-doubling run.
type Filter struct {
	hasher shash.Hasher
	depth  uint64 // depth of the last completed round
	// Golomb selects the hash exchange compression.
	Golomb Golomb
	// Hashes keeps, for every candidate, the hash of its prefix at
	// the last completed depth. When the depth doubles the hash is
	// rolled forward from here instead of rehashing the full prefix.
	Hashes []uint64
}

// NewFilter creates a filter for size strings.
func NewFilter(h shash.Hasher, size int) *Filter {
	return &Filter{hasher: h, Hashes: make([]uint64, size)}
}

// Filter runs one round at the given depth. candidates lists the
// string indices still in play, in ascending order; nil means every
// string. results[i] is set to depth for surviving candidates and
// to the string length for strings shorter than depth. The
// container must be sorted with LCPs present. The returned slice is
// the ascending candidate set for depth 2d.
func (f *Filter) Filter(g *grid.Grid, strs *sstr.Container, depth uint64, candidates []int, results []uint64) ([]int, error) {
	if !strs.HasLCPs() {
		return nil, fmt.Errorf("%w: filter needs lcps", sstr.ErrMalformed)
	}
	pairs, lcpDups, eos := f.generateHashPairs(strs, depth, candidates)

	slices.SortFunc(pairs, func(a, b hashStringIndex) bool {
		if a.hash != b.hash {
			return a.hash < b.hash
		}
		return a.stringIndex < b.stringIndex
	})
	localDups := markLocalDuplicates(pairs)

	// drop local duplicates from the send set, keeping run roots
	send := pairs[:0]
	for _, p := range pairs {
		if !p.isLocalDup || p.sendAnyway {
			send = append(send, p)
		}
	}
	pairs = send

	remote, err := findRemoteDuplicates(g.Comms, hashesOf(pairs), HashRange{0, FilterSize}, f.Golomb)
	if err != nil {
		return nil, err
	}

	next := mergeDuplicateIndices(localDups, lcpDups, remote, pairs)
	setDepth(strs, depth, candidates, eos, results)
	f.depth = depth
	return next, nil
}

// generateHashPairs classifies every candidate: too short for the
// depth (eos), equal to its predecessor up to the depth (lcp-local
// duplicate), or hashed. On a doubling round the hash is rolled
// forward from the previous depth, so only the extension characters
// are fed to the hasher; lcp-local duplicates inherit their
// predecessor's hash to keep it current for the next roll.
func (f *Filter) generateHashPairs(strs *sstr.Container, depth uint64, candidates []int) (pairs []hashStringIndex, lcpDups, eos []int) {
	lcps := strs.LCPs()
	rolling := f.depth > 0 && depth == 2*f.depth
	visit := func(curr, prev int) {
		if depth > strs.Length(curr) {
			eos = append(eos, curr)
		} else if prev+1 == curr && lcps[curr] >= depth {
			lcpDups = append(lcpDups, curr)
			f.Hashes[curr] = f.Hashes[prev]
			if n := len(pairs); n > 0 && pairs[n-1].stringIndex+1 == curr {
				pairs[n-1].isLcpRoot = true
			}
		} else {
			pre := strs.Prefix(curr, depth)
			var h uint64
			if rolling {
				h = f.hasher.Roll(f.Hashes[curr], pre[f.depth:])
			} else {
				h = f.hasher.Sum64(pre)
			}
			pairs = append(pairs, hashStringIndex{hash: h, stringIndex: curr})
			f.Hashes[curr] = h
		}
	}
	if candidates == nil {
		for i := 0; i < strs.Len(); i++ {
			visit(i, i-1)
		}
	} else if len(candidates) > 0 {
		prev := candidates[0]
		for _, curr := range candidates {
			visit(curr, prev)
			prev = curr
		}
	}
	return pairs, lcpDups, eos
}

// markLocalDuplicates scans the hash-sorted pairs for runs of equal
// hashes. All members of a run are local duplicates; the first one
// is still sent so remote collisions with the run are discovered.
// Roots of lcp-equal runs are duplicates by construction but are
// sent for the same reason.
func markLocalDuplicates(pairs []hashStringIndex) []int {
	var dups []int
	if len(pairs) == 0 {
		return dups
	}
	for i := 0; i < len(pairs)-1; {
		pivot := &pairs[i]
		i++
		if pairs[i].hash == pivot.hash {
			pivot.isLocalDup = true
			pivot.sendAnyway = true
			pairs[i].isLocalDup = true
			dups = append(dups, pivot.stringIndex, pairs[i].stringIndex)
			for i++; i < len(pairs) && pairs[i].hash == pivot.hash; i++ {
				pairs[i].isLocalDup = true
				dups = append(dups, pairs[i].stringIndex)
			}
		} else if pivot.isLcpRoot {
			pivot.isLocalDup = true
			pivot.sendAnyway = true
			dups = append(dups, pivot.stringIndex)
		}
	}
	if last := &pairs[len(pairs)-1]; last.isLcpRoot && !last.isLocalDup {
		last.isLocalDup = true
		last.sendAnyway = true
		dups = append(dups, last.stringIndex)
	}
	return dups
}

func hashesOf(pairs []hashStringIndex) []uint64 {
	out := make([]uint64, len(pairs))
	for i := range pairs {
		out[i] = pairs[i].hash
	}
	return out
}

// recvData is the receiver side of one hash exchange.
type recvData struct {
	merged  []hashPEIndex // multiway-merged, annotated with origin
	offsets []uint64      // per origin: global position of our bucket in its send sequence
}

// sendToFilter buckets the sorted hashes over the ranks of c and
// exchanges them. Each destination learns, per source, where its
// bucket starts in the source's send sequence, so duplicate
// positions can be translated back later.
func sendToFilter(c comm.Comm, hashes []uint64, hr HashRange, gol Golomb) (*recvData, error) {
	sizes := hr.intervalSizes(hashes, c.Size())
	offsets := comm.ExclusiveScan(sizes)

	var runs [][]uint64
	rd := &recvData{offsets: make([]uint64, c.Size())}
	if gol == GolombOff {
		send := make([][]uint64, c.Size())
		pos := uint64(0)
		for dst := range send {
			msg := make([]uint64, 0, 2+sizes[dst])
			msg = append(msg, offsets[dst], sizes[dst])
			msg = append(msg, hashes[pos:pos+sizes[dst]]...)
			send[dst] = msg
			pos += sizes[dst]
		}
		recv, err := comm.AlltoallU64(c, send)
		if err != nil {
			return nil, err
		}
		runs = make([][]uint64, len(recv))
		for src, msg := range recv {
			if len(msg) < 2 || uint64(len(msg)-2) != msg[1] {
				return nil, fmt.Errorf("%w: bad hash bucket from rank %d", comm.ErrTransport, src)
			}
			rd.offsets[src] = msg[0]
			runs[src] = msg[2:]
		}
	} else {
		send := make([][]byte, c.Size())
		pos := uint64(0)
		for dst := range send {
			send[dst] = encodeHashBucket(hashes[pos:pos+sizes[dst]], hr.Bucket(dst, c.Size()), offsets[dst])
			pos += sizes[dst]
		}
		recv, err := c.Alltoall(send)
		if err != nil {
			return nil, err
		}
		runs = make([][]uint64, len(recv))
		for src, buf := range recv {
			off, vals, err := decodeHashBucket(buf)
			if err != nil {
				return nil, fmt.Errorf("rank %d: %w", src, err)
			}
			rd.offsets[src] = off
			runs[src] = vals
		}
	}
	total := 0
	for _, run := range runs {
		total += len(run)
	}
	rd.merged = make([]hashPEIndex, 0, total)
	heap.VisitMerge(runs, func(a, b uint64) bool { return a < b }, func(run, pos int) {
		rd.merged = append(rd.merged, hashPEIndex{hash: runs[run][pos], pe: run})
	})
	return rd, nil
}

// findRemoteDuplicates resolves which of the sorted hashes collide
// with a hash on another rank, returning their ascending positions
// in the sent sequence. With several grid levels the hashes are
// re-partitioned into narrower buckets level by level; only the
// innermost level scans for duplicates.
func findRemoteDuplicates(comms []comm.Comm, hashes []uint64, hr HashRange, gol Golomb) ([]uint64, error) {
	c := comms[0]
	rd, err := sendToFilter(c, hashes, hr, gol)
	if err != nil {
		return nil, err
	}
	if len(comms) == 1 {
		return scanDuplicates(c, rd, gol)
	}
	sub := hr.Bucket(c.Rank(), c.Size())
	merged := make([]uint64, len(rd.merged))
	for i := range rd.merged {
		merged[i] = rd.merged[i].hash
	}
	dups, err := findRemoteDuplicates(comms[1:], merged, sub, gol)
	if err != nil {
		return nil, err
	}
	return routeBack(c, rd, dups, gol)
}

// scanDuplicates walks the merged sequence: an element is a remote
// duplicate iff it equals a neighbor. Positions are translated into
// each origin's own send sequence and returned there. A global OR
// short-circuits the answer when no rank saw any duplicate.
func scanDuplicates(c comm.Comm, rd *recvData, gol Golomb) ([]uint64, error) {
	sets := make([][]uint64, c.Size())
	counters := rd.offsets
	if n := len(rd.merged); n > 0 {
		dup := false
		for i := 0; i+1 < n; i++ {
			prev, curr := rd.merged[i], rd.merged[i+1]
			idx := counters[prev.pe]
			counters[prev.pe]++
			if prev.hash == curr.hash {
				sets[prev.pe] = append(sets[prev.pe], idx)
				dup = true
			} else if dup {
				sets[prev.pe] = append(sets[prev.pe], idx)
				dup = false
			}
		}
		if dup {
			last := rd.merged[n-1]
			sets[last.pe] = append(sets[last.pe], counters[last.pe])
			counters[last.pe]++
		}
	}
	any := false
	for pe := range sets {
		any = any || len(sets[pe]) > 0
	}
	anyGlobal, err := comm.AllreduceOr(c, any)
	if err != nil {
		return nil, err
	}
	if !anyGlobal {
		return nil, nil
	}
	return exchangeSets(c, sets, gol)
}

// routeBack translates duplicate positions in this level's merged
// sequence into positions in each origin's send sequence and
// returns them to the origins.
func routeBack(c comm.Comm, rd *recvData, dups []uint64, gol Golomb) ([]uint64, error) {
	sets := make([][]uint64, c.Size())
	counters := rd.offsets
	i := uint64(0)
	for _, d := range dups {
		for ; i < d; i++ {
			counters[rd.merged[i].pe]++
		}
		pe := rd.merged[d].pe
		sets[pe] = append(sets[pe], counters[pe])
		counters[pe]++
		i = d + 1
	}
	return exchangeSets(c, sets, gol)
}

// mergeDuplicateIndices combines the three duplicate sources into
// the ascending candidate set of the next depth. Remote positions
// index the post-filter send set; entries that were only sent as
// run representatives are already covered by the local set.
func mergeDuplicateIndices(localHashDups, lcpDups []int, remote []uint64, sent []hashStringIndex) []int {
	remoteDups := make([]int, 0, len(remote))
	for _, idx := range remote {
		orig := sent[idx]
		if !orig.sendAnyway {
			remoteDups = append(remoteDups, orig.stringIndex)
		}
	}
	slices.Sort(remoteDups)
	slices.Sort(localHashDups)
	less := func(a, b int) bool { return a < b }
	return heap.MergeSlices([][]int{localHashDups, lcpDups, remoteDups}, less)
}

// setDepth records the outcome of the round: every candidate gets
// the current depth, strings shorter than the depth their own
// length. Duplicates are overwritten again next round.
func setDepth(strs *sstr.Container, depth uint64, candidates, eos []int, results []uint64) {
	if candidates == nil {
		for i := range results {
			results[i] = depth
		}
	} else {
		for _, c := range candidates {
			results[c] = depth
		}
	}
	for _, c := range eos {
		results[c] = strs.Length(c)
	}
}
