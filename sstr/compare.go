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

package sstr

import "bytes"

// Compare orders two strings byte-lexicographically.
func Compare(a, b []byte) int { return bytes.Compare(a, b) }

// CompareIndexed orders byte-lexicographically and breaks ties
// by (PE, Index), the same total order the indexed sampling
// policies use so that every rank derives the same order.
func CompareIndexed(a []byte, ape uint32, aidx uint64, b []byte, bpe uint32, bidx uint64) int {
	if c := bytes.Compare(a, b); c != 0 {
		return c
	}
	if ape != bpe {
		if ape < bpe {
			return -1
		}
		return 1
	}
	if aidx != bidx {
		if aidx < bidx {
			return -1
		}
		return 1
	}
	return 0
}

// LCP returns the length of the longest common prefix of a and b.
func LCP(a, b []byte) uint64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return uint64(i)
}

// ComputeLCPs fills the container's LCP array by scanning
// adjacent strings. The container must already be sorted.
func (c *Container) ComputeLCPs() {
	lcps := make([]uint64, len(c.strs))
	for i := 1; i < len(c.strs); i++ {
		lcps[i] = LCP(c.Bytes(i-1), c.Bytes(i))
	}
	c.lcps = lcps
}

// IsSorted reports whether the strings appear in non-decreasing
// byte-lexicographic order.
func (c *Container) IsSorted() bool {
	for i := 1; i < len(c.strs); i++ {
		if bytes.Compare(c.Bytes(i-1), c.Bytes(i)) > 0 {
			return false
		}
	}
	return true
}
