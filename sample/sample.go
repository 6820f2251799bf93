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

// Package sample picks the splitters that partition a sorted local
// string set across the ranks of a communicator.
//
// Every rank draws an oversampled set of local splitter candidates,
// the candidates are sorted globally so each rank holds the same
// sequence, and the entries at the p-quantile positions become the
// splitters. Binary searching the splitters in the local set yields
// the per-destination interval sizes consumed by the exchange.
package sample

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/sstr"
)

// Policy selects how local splitter candidates are drawn.
type Policy int

const (
	// Strings samples uniformly over the local strings.
	Strings Policy = iota
	// Chars samples proportionally to character mass, so long
	// strings are more likely to contribute a candidate.
	Chars
	// IndexedStrings is Strings with (rank, slot) origins attached
	// for exact tie-breaking between equal strings.
	IndexedStrings
	// IndexedChars is Chars with origins attached.
	IndexedChars
)

func (p Policy) Indexed() bool {
	return p == IndexedStrings || p == IndexedChars
}

func (p Policy) String() string {
	switch p {
	case Strings:
		return "strings"
	case Chars:
		return "chars"
	case IndexedStrings:
		return "indexed-strings"
	case IndexedChars:
		return "indexed-chars"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Config carries the sampling knobs of one partition step.
type Config struct {
	Policy Policy
	// Factor is the oversampling factor; every rank draws up to
	// Factor*parts candidates. Values below 1 are treated as 2.
	Factor int
}

func (c Config) factor() int {
	if c.Factor < 1 {
		return 2
	}
	return c.Factor
}

// splitter is one candidate: a key prefix plus its origin when the
// policy is indexed.
type splitter struct {
	key   []byte
	pe    uint32
	index uint64
}

func splitterLess(a, b splitter, indexed bool) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	if !indexed {
		return false
	}
	if a.pe != b.pe {
		return a.pe < b.pe
	}
	return a.index < b.index
}

// Partition returns the sizes of the parts intervals of the sorted
// local container, one per destination. The sizes sum to the local
// string count; every rank computes its intervals against identical
// splitters. lcpAvg bounds candidate keys to 2*lcpAvg bytes when it
// is non-zero.
func Partition(c comm.Comm, strs *sstr.Container, lcpAvg uint64, parts int, cfg Config) ([]uint64, error) {
	if parts < 1 {
		return nil, fmt.Errorf("sample: partition into %d parts", parts)
	}
	if parts == 1 {
		return []uint64{uint64(strs.Len())}, nil
	}
	maxLen := 2 * lcpAvg
	local := draw(c.Rank(), strs, maxLen, parts, cfg)
	global, err := sortGlobal(c, local, cfg.Policy.Indexed())
	if err != nil {
		return nil, err
	}
	chosen := choose(global, parts)
	if len(chosen) == 0 {
		// no rank drew a candidate: everything stays in the first interval
		sizes := make([]uint64, parts)
		sizes[0] = uint64(strs.Len())
		return sizes, nil
	}
	return intervals(c.Rank(), strs, chosen, cfg.Policy.Indexed()), nil
}

// draw picks the local candidates according to the policy. The
// container is assumed sorted, so candidates come out sorted too.
func draw(rank int, strs *sstr.Container, maxLen uint64, parts int, cfg Config) []splitter {
	n := strs.Len()
	if n == 0 {
		return nil
	}
	want := cfg.factor() * parts
	if want > n {
		want = n
	}
	indexed := cfg.Policy.Indexed()
	out := make([]splitter, 0, want)
	add := func(i int) {
		key := strs.Bytes(i)
		if maxLen > 0 && uint64(len(key)) > maxLen {
			key = key[:maxLen]
		}
		s := splitter{key: append([]byte(nil), key...)}
		if indexed {
			s.pe = uint32(rank)
			s.index = uint64(i)
		}
		out = append(out, s)
	}
	switch cfg.Policy {
	case Chars, IndexedChars:
		total := uint64(strs.SumLengths())
		dist := total / uint64(want+1)
		if dist == 0 {
			dist = 1
		}
		var acc, next uint64
		next = dist
		for i := 0; i < n && len(out) < want; i++ {
			acc += uint64(strs.Length(i))
			for acc >= next && len(out) < want {
				add(i)
				next += dist
			}
		}
	default:
		dist := n / (want + 1)
		if dist == 0 {
			dist = 1
		}
		for i := dist; i < n && len(out) < want; i += dist {
			add(i)
		}
	}
	return out
}

// sortGlobal produces the same sorted candidate sequence on every
// rank: the local candidates are serialized, allgathered, and
// merged under the shared comparator.
func sortGlobal(c comm.Comm, local []splitter, indexed bool) ([]splitter, error) {
	slices.SortFunc(local, func(a, b splitter) bool {
		return splitterLess(a, b, indexed)
	})
	recv, err := c.Allgather(encodeSplitters(local, indexed))
	if err != nil {
		return nil, err
	}
	var all []splitter
	for src, buf := range recv {
		part, err := decodeSplitters(buf, uint32(src), indexed)
		if err != nil {
			return nil, err
		}
		all = append(all, part...)
	}
	slices.SortFunc(all, func(a, b splitter) bool {
		return splitterLess(a, b, indexed)
	})
	return all, nil
}

// encodeSplitters flattens candidates into terminator-separated
// bytes, followed by the slot vector for indexed policies. The
// origin rank is implied by the allgather source.
func encodeSplitters(sp []splitter, indexed bool) []byte {
	var buf []byte
	for i := range sp {
		buf = append(buf, sp[i].key...)
		buf = append(buf, 0)
	}
	if indexed {
		// slot vector plus its count; the count sits last so the
		// decoder can find the trailer from the end of the payload
		idx := make([]uint64, len(sp)+1)
		for i := range sp {
			idx[i] = sp[i].index
		}
		idx[len(sp)] = uint64(len(sp))
		buf = comm.PutU64s(buf, idx)
	}
	return buf
}

func decodeSplitters(buf []byte, pe uint32, indexed bool) ([]splitter, error) {
	var idx []uint64
	if indexed {
		if len(buf) < 8 {
			return nil, fmt.Errorf("%w: short splitter payload", comm.ErrTransport)
		}
		// the trailer is length-prefixed from the end
		n, err := comm.U64s(buf[len(buf)-8:])
		if err != nil {
			return nil, err
		}
		cnt := int(n[0])
		tail := (cnt + 1) * 8
		if tail > len(buf) {
			return nil, fmt.Errorf("%w: splitter payload truncated", comm.ErrTransport)
		}
		vals, err := comm.U64s(buf[len(buf)-tail:])
		if err != nil {
			return nil, err
		}
		idx = vals[:cnt]
		buf = buf[:len(buf)-tail]
	}
	var out []splitter
	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] == 0 {
			out = append(out, splitter{key: append([]byte(nil), buf[start:i]...)})
			start = i + 1
		}
	}
	if start != len(buf) {
		return nil, fmt.Errorf("%w: splitter payload not terminated", comm.ErrTransport)
	}
	if indexed {
		if len(idx) != len(out) {
			return nil, fmt.Errorf("%w: %d splitters with %d slots", comm.ErrTransport, len(out), len(idx))
		}
		for i := range out {
			out[i].pe = pe
			out[i].index = idx[i]
		}
	}
	return out, nil
}

// choose picks the parts-1 splitters at the quantile positions of
// the sorted candidate sequence.
func choose(sorted []splitter, parts int) []splitter {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]splitter, 0, parts-1)
	for i := 1; i < parts; i++ {
		out = append(out, sorted[(i*len(sorted))/parts])
	}
	return out
}

// intervals binary-searches each splitter in the sorted local set
// and returns parts contiguous interval sizes.
func intervals(rank int, strs *sstr.Container, chosen []splitter, indexed bool) []uint64 {
	n := strs.Len()
	parts := len(chosen) + 1
	out := make([]uint64, parts)
	if len(chosen) == 0 {
		out[0] = uint64(n)
		return out
	}
	prev := 0
	for j, sp := range chosen {
		// first local string that sorts at or after the splitter
		at := sort.Search(n, func(i int) bool {
			c := bytes.Compare(strs.Bytes(i), sp.key)
			if c != 0 {
				return c >= 0
			}
			if !indexed {
				return true
			}
			s := strs.String(i)
			if s.PE != sp.pe {
				return s.PE >= sp.pe
			}
			return s.Index >= sp.index
		})
		out[j] = uint64(at - prev)
		prev = at
	}
	out[parts-1] = uint64(n - prev)
	return out
}

// LcpAverage returns the global average LCP of the sorted local
// sets: the sum of all LCP values divided by the global string
// count. Zero when the world is empty.
func LcpAverage(c comm.Comm, lcps []uint64) (uint64, error) {
	var sum uint64
	for _, l := range lcps {
		sum += l
	}
	gsum, err := comm.AllreduceSum(c, sum)
	if err != nil {
		return 0, err
	}
	gcnt, err := comm.AllreduceSum(c, uint64(len(lcps)))
	if err != nil {
		return 0, err
	}
	if gcnt == 0 {
		return 0, nil
	}
	return gsum / gcnt, nil
}
