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

import "sort"

// FilterSize is the inclusive upper bound of the hash space the
// filter partitions.
const FilterSize = ^uint64(0)

// HashRange is an inclusive interval of the hash space. Buckets
// split a range into near-equal parts; the last bucket absorbs the
// division remainder.
type HashRange struct {
	Lower, Upper uint64
}

// BucketSize returns the width of one of n buckets.
func (r HashRange) BucketSize(n int) uint64 {
	return (r.Upper - r.Lower) / uint64(n)
}

// Bucket returns the idx-th of n sub-ranges.
func (r HashRange) Bucket(idx, n int) HashRange {
	size := r.BucketSize(n)
	lower := r.Lower + uint64(idx)*size
	if idx+1 == n {
		return HashRange{Lower: lower, Upper: r.Upper}
	}
	return HashRange{Lower: lower, Upper: lower + size - 1}
}

// intervalSizes splits the sorted hashes into n per-bucket counts.
func (r HashRange) intervalSizes(hashes []uint64, n int) []uint64 {
	out := make([]uint64, n)
	size := r.BucketSize(n)
	pos := 0
	for i := 0; i+1 < n; i++ {
		limit := r.Lower + uint64(i+1)*size - 1
		next := pos + sort.Search(len(hashes)-pos, func(j int) bool {
			return hashes[pos+j] > limit
		})
		out[i] = uint64(next - pos)
		pos = next
	}
	out[n-1] = uint64(len(hashes) - pos)
	return out
}
