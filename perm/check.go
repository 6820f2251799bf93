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

package perm

import (
	"bytes"
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/ints"
	"github.com/parsort/parsort/sstr"
)

// CheckError reports a failed permutation check. Every rank of the
// communicator returns the same verdict; ranks that did not observe
// the violation themselves carry a generic reason.
type CheckError struct {
	Reason string
}

func (e *CheckError) Error() string { return "perm: check failed: " + e.Reason }

// Apply materializes the permutation: every entry's string is
// fetched from its origin rank and the results are returned in
// entry order. input must be the container the permutation was
// produced from, in its original input order.
func Apply(c comm.Comm, p *Permutation, input *sstr.Container) (*sstr.Container, error) {
	// request the slots, grouped by origin
	reqs := make([][]uint64, c.Size())
	for i := range p.PEs {
		pe := int(p.PEs[i])
		if pe >= c.Size() {
			return nil, &CheckError{Reason: fmt.Sprintf("origin rank %d out of range", pe)}
		}
		reqs[pe] = append(reqs[pe], p.Indices[i])
	}
	recv, err := comm.AlltoallU64(c, reqs)
	if err != nil {
		return nil, err
	}

	// answer with the requested strings, packed in request order
	resp := make([][]byte, c.Size())
	for src, idxs := range recv {
		var buf []byte
		for _, idx := range idxs {
			if idx >= uint64(input.Len()) {
				return nil, &CheckError{Reason: fmt.Sprintf("slot %d out of range", idx)}
			}
			buf = append(buf, input.Bytes(int(idx))...)
			buf = append(buf, 0)
		}
		resp[src] = buf
	}
	answers, err := c.Alltoall(resp)
	if err != nil {
		return nil, err
	}

	// reassemble in permutation order
	conts := make([]*sstr.Container, c.Size())
	next := make([]int, c.Size())
	for pe, buf := range answers {
		conts[pe] = sstr.NewFromBytes(buf)
	}
	var out []byte
	for i := range p.PEs {
		pe := int(p.PEs[i])
		out = append(out, conts[pe].Bytes(next[pe])...)
		out = append(out, 0)
		next[pe]++
	}
	return sstr.NewFromBytes(out), nil
}

// tag marks an optional boundary payload: absent values travel as a
// single zero byte.
func tag(s []byte, ok bool) []byte {
	if !ok {
		return []byte{0}
	}
	return append([]byte{1}, s...)
}

func untag(buf []byte) ([]byte, bool) {
	if len(buf) == 0 || buf[0] == 0 {
		return nil, false
	}
	return buf[1:], true
}

// verdict turns per-rank failures into one collective answer so every
// rank returns the same error.
func verdict(c comm.Comm, reason string) error {
	failed, err := comm.AllreduceOr(c, reason != "")
	if err != nil {
		return err
	}
	if !failed {
		return nil
	}
	if reason == "" {
		reason = "violation on another rank"
	}
	return &CheckError{Reason: reason}
}

// IsSorted verifies that applying the permutation to the input
// yields a globally sorted sequence: each piece must be locally
// ordered, and across ranks and pieces the last string of one slice
// must not exceed the first of the next. Ties are permitted. Every
// rank must call with the same piece count.
func IsSorted(c comm.Comm, p *Permutation, input *sstr.Container) error {
	pieces := uint64(p.Pieces())
	maxPieces, err := comm.AllreduceMax(c, pieces)
	if err != nil {
		return err
	}
	if pieces != maxPieces {
		return &CheckError{Reason: fmt.Sprintf("%d pieces where others have %d", pieces, maxPieces)}
	}
	out, err := Apply(c, p, input)
	if err != nil {
		return err
	}

	var reason string
	var carry []byte // rank 0: last string of the previous piece ring
	carryOK := false
	for q := 0; q < int(pieces); q++ {
		lo, hi := p.Piece(q)
		for i := lo + 1; i < hi && reason == ""; i++ {
			if bytes.Compare(out.Bytes(i-1), out.Bytes(i)) > 0 {
				reason = fmt.Sprintf("piece %d unordered at %d", q, i)
			}
		}
		empty := lo == hi
		var payload []byte
		skip := false
		switch {
		case !empty:
			payload = tag(out.Bytes(hi-1), true)
		case c.Rank() == 0:
			// keep the ring alive by forwarding the running boundary
			payload = tag(carry, carryOK)
		default:
			skip = true
		}
		recv, err := grid.RotateRight(c, payload, skip)
		if err != nil {
			return err
		}
		prev, prevOK := untag(recv)
		if c.Rank() == 0 {
			prev, prevOK = carry, carryOK
			carry, carryOK = untag(recv)
		}
		if !empty && prevOK && reason == "" {
			if bytes.Compare(prev, out.Bytes(lo)) > 0 {
				reason = fmt.Sprintf("piece %d starts below its predecessor", q)
			}
		}
	}
	return verdict(c, reason)
}

// IsComplete verifies that the permutation's entries, across all
// ranks, reference every input slot of every rank exactly once.
// localSize is the rank's input string count.
func IsComplete(c comm.Comm, p *Permutation, localSize int) error {
	reqs := make([][]uint64, c.Size())
	var reason string
	for i := range p.PEs {
		pe := int(p.PEs[i])
		if pe >= c.Size() {
			reason = fmt.Sprintf("origin rank %d out of range", pe)
			break
		}
		reqs[pe] = append(reqs[pe], p.Indices[i])
	}
	recv, err := comm.AlltoallU64(c, reqs)
	if err != nil {
		return err
	}
	if reason == "" {
		seen := ints.Bitset(localSize)
		total := 0
		for _, idxs := range recv {
			total += len(idxs)
			for _, idx := range idxs {
				if idx >= uint64(localSize) {
					reason = fmt.Sprintf("slot %d out of range", idx)
				} else if ints.TestBit(seen, idx) {
					reason = fmt.Sprintf("slot %d referenced twice", idx)
				} else {
					ints.SetBit(seen, idx)
				}
			}
		}
		if reason == "" && total != localSize {
			reason = fmt.Sprintf("%d references for %d slots", total, localSize)
		}
	}
	return verdict(c, reason)
}
