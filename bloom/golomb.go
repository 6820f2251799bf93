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

package bloom

import (
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/exchange"
)

// Golomb selects how hash exchanges are compressed.
type Golomb int

const (
	// GolombOff sends raw 64-bit hash values.
	GolombOff Golomb = iota
	// GolombHashes Golomb-codes the sorted hash buckets as gaps.
	GolombHashes
	// GolombFull additionally codes the duplicate position sets
	// routed back to the senders.
	GolombFull
)

func (g Golomb) String() string {
	switch g {
	case GolombOff:
		return "off"
	case GolombHashes:
		return "hashes"
	case GolombFull:
		return "full"
	}
	return fmt.Sprintf("Golomb(%d)", int(g))
}

// encodeHashBucket codes the ascending hashes of one bucket as
// Golomb gaps. The header carries the send-sequence offset, the
// count, the divisor and the anchor the gaps start from; the anchor
// travels with the message because sender and receiver buckets need
// not agree across grid levels.
func encodeHashBucket(vals []uint64, bucket HashRange, offset uint64) []byte {
	b := exchange.GolombParam(bucket.Upper-bucket.Lower, uint64(len(vals)))
	anchor := bucket.Lower
	if len(vals) > 0 {
		anchor = vals[0]
	}
	gaps := make([]uint64, len(vals))
	prev := anchor
	for i, v := range vals {
		gaps[i] = v - prev
		prev = v
	}
	buf := comm.PutU64s(nil, []uint64{offset, uint64(len(vals)), b, anchor})
	return append(buf, exchange.EncodeGolomb(gaps, b)...)
}

func decodeHashBucket(buf []byte) (offset uint64, vals []uint64, err error) {
	if len(buf) < 32 {
		return 0, nil, fmt.Errorf("%w: short hash bucket", comm.ErrTransport)
	}
	hdr, err := comm.U64s(buf[:32])
	if err != nil {
		return 0, nil, err
	}
	gaps, err := exchange.DecodeGolomb(buf[32:], int(hdr[1]), hdr[2])
	if err != nil {
		return 0, nil, err
	}
	prev := hdr[3]
	for i, g := range gaps {
		prev += g
		gaps[i] = prev
	}
	return hdr[0], gaps, nil
}

// encodePositions codes an ascending position set as Golomb gaps
// from zero.
func encodePositions(vals []uint64) []byte {
	var upper uint64
	if n := len(vals); n > 0 {
		upper = vals[n-1] + 1
	}
	b := exchange.GolombParam(upper, uint64(len(vals)))
	gaps := make([]uint64, len(vals))
	prev := uint64(0)
	for i, v := range vals {
		gaps[i] = v - prev
		prev = v
	}
	buf := comm.PutU64s(nil, []uint64{uint64(len(vals)), b})
	return append(buf, exchange.EncodeGolomb(gaps, b)...)
}

func decodePositions(buf []byte) ([]uint64, error) {
	if len(buf) < 16 {
		return nil, fmt.Errorf("%w: short position set", comm.ErrTransport)
	}
	hdr, err := comm.U64s(buf[:16])
	if err != nil {
		return nil, err
	}
	gaps, err := exchange.DecodeGolomb(buf[16:], int(hdr[0]), hdr[1])
	if err != nil {
		return nil, err
	}
	prev := uint64(0)
	for i, g := range gaps {
		prev += g
		gaps[i] = prev
	}
	return gaps, nil
}

// exchangeSets sends one ascending position set to every rank and
// returns the received sets flattened in source order.
func exchangeSets(c comm.Comm, sets [][]uint64, gol Golomb) ([]uint64, error) {
	if gol != GolombFull {
		recv, err := comm.AlltoallU64(c, sets)
		if err != nil {
			return nil, err
		}
		var out []uint64
		for _, part := range recv {
			out = append(out, part...)
		}
		return out, nil
	}
	send := make([][]byte, len(sets))
	for dst, s := range sets {
		send[dst] = encodePositions(s)
	}
	recv, err := c.Alltoall(send)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, buf := range recv {
		part, err := decodePositions(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}
