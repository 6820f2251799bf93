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

package comm

import (
	"encoding/binary"
	"fmt"
)

// PutU64s appends vals to dst in little-endian order.
func PutU64s(dst []byte, vals []uint64) []byte {
	for _, v := range vals {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		dst = append(dst, tmp[:]...)
	}
	return dst
}

// U64s decodes a little-endian uint64 vector.
func U64s(buf []byte) ([]uint64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: uint64 payload has %d bytes", ErrTransport, len(buf))
	}
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	return out, nil
}

// PutU32s appends vals to dst in little-endian order.
func PutU32s(dst []byte, vals []uint32) []byte {
	for _, v := range vals {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		dst = append(dst, tmp[:]...)
	}
	return dst
}

// U32s decodes a little-endian uint32 vector.
func U32s(buf []byte) ([]uint32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: uint32 payload has %d bytes", ErrTransport, len(buf))
	}
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return out, nil
}

// AlltoallU64 exchanges one uint64 vector per destination rank.
func AlltoallU64(c Comm, send [][]uint64) ([][]uint64, error) {
	bufs := make([][]byte, len(send))
	for i, vals := range send {
		bufs[i] = PutU64s(nil, vals)
	}
	recv, err := c.Alltoall(bufs)
	if err != nil {
		return nil, err
	}
	out := make([][]uint64, len(recv))
	for i, buf := range recv {
		if out[i], err = U64s(buf); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AllgatherU64 gathers one uint64 vector from every rank.
func AllgatherU64(c Comm, vals []uint64) ([][]uint64, error) {
	recv, err := c.Allgather(PutU64s(nil, vals))
	if err != nil {
		return nil, err
	}
	out := make([][]uint64, len(recv))
	for i, buf := range recv {
		if out[i], err = U64s(buf); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AllreduceU64 reduces one value per rank with op and returns the
// result on every rank.
func AllreduceU64(c Comm, val uint64, op func(a, b uint64) uint64) (uint64, error) {
	all, err := AllgatherU64(c, []uint64{val})
	if err != nil {
		return 0, err
	}
	acc := all[0][0]
	for _, contrib := range all[1:] {
		acc = op(acc, contrib[0])
	}
	return acc, nil
}

// AllreduceMax returns the global maximum of val.
func AllreduceMax(c Comm, val uint64) (uint64, error) {
	return AllreduceU64(c, val, func(a, b uint64) uint64 {
		if a > b {
			return a
		}
		return b
	})
}

// AllreduceSum returns the global sum of val.
func AllreduceSum(c Comm, val uint64) (uint64, error) {
	return AllreduceU64(c, val, func(a, b uint64) uint64 { return a + b })
}

// AllreduceOr returns the logical OR of val across all ranks.
func AllreduceOr(c Comm, val bool) (bool, error) {
	v := uint64(0)
	if val {
		v = 1
	}
	out, err := AllreduceU64(c, v, func(a, b uint64) uint64 { return a | b })
	return out != 0, err
}

// BroadcastU64 distributes root's value to every rank.
func BroadcastU64(c Comm, root int, val uint64) (uint64, error) {
	buf, err := c.Broadcast(root, PutU64s(nil, []uint64{val}))
	if err != nil {
		return 0, err
	}
	vals, err := U64s(buf)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("%w: broadcast payload has %d values", ErrTransport, len(vals))
	}
	return vals[0], nil
}

// ExclusiveScan returns the running prefix sums of counts, with
// out[0] == 0. (Local helper; no communication.)
func ExclusiveScan(counts []uint64) []uint64 {
	out := make([]uint64, len(counts))
	var acc uint64
	for i, n := range counts {
		out[i] = acc
		acc += n
	}
	return out
}
