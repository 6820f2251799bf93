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

package ints

// Interval is a half-open interval [start, end)
// (start is always less than or equal to end)
type Interval struct {
	Start, End int
}

// Empty returns whether [in] is an empty
// interval.
func (in Interval) Empty() bool {
	return in.Start >= in.End
}

// Len returns the length of the interval.
func (in Interval) Len() int {
	if in.End <= in.Start {
		return 0
	}
	return in.End - in.Start
}

// Contains returns whether x lies in [in].
func (in Interval) Contains(x int) bool {
	return x >= in.Start && x < in.End
}

// Each calls [fn] for each value in the
// interval.
func (in Interval) Each(fn func(int)) {
	for i := in.Start; i < in.End; i++ {
		fn(i)
	}
}

// Chunk returns the i-th of parts near-equal chunks of [0, n).
// The first n%parts chunks are one element longer, so the chunk
// lengths differ by at most one and cover [0, n) exactly.
func Chunk(n, parts, i int) Interval {
	lo := n / parts
	rem := n % parts
	start := i*lo + Min(i, rem)
	end := start + lo
	if i < rem {
		end++
	}
	return Interval{Start: start, End: end}
}

// Chunks splits [0, n) into parts near-equal intervals.
func Chunks(n, parts int) []Interval {
	out := make([]Interval, parts)
	for i := range out {
		out[i] = Chunk(n, parts, i)
	}
	return out
}
