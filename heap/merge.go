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

package heap

// cursor points at the next unconsumed element of one run.
type cursor struct {
	run, pos int
}

// VisitMerge walks the union of the sorted runs in ascending order,
// calling fn(run, pos) for every element. Ties are broken by run
// index, so elements that compare equal are visited in run order.
// The runs must each be sorted according to less.
func VisitMerge[T any](runs [][]T, less func(x, y T) bool, fn func(run, pos int)) {
	cursorLess := func(a, b cursor) bool {
		x, y := runs[a.run][a.pos], runs[b.run][b.pos]
		if less(x, y) {
			return true
		}
		if less(y, x) {
			return false
		}
		return a.run < b.run
	}
	h := make([]cursor, 0, len(runs))
	for r := range runs {
		if len(runs[r]) > 0 {
			h = append(h, cursor{run: r})
		}
	}
	OrderSlice(h, cursorLess)
	for len(h) > 0 {
		c := h[0]
		fn(c.run, c.pos)
		if c.pos+1 < len(runs[c.run]) {
			h[0].pos++
			FixSlice(h, 0, cursorLess)
		} else {
			PopSlice(&h, cursorLess)
		}
	}
}

// MergeSlices merges the sorted runs into a single sorted slice.
func MergeSlices[T any](runs [][]T, less func(x, y T) bool) []T {
	n := 0
	for r := range runs {
		n += len(runs[r])
	}
	out := make([]T, 0, n)
	VisitMerge(runs, less, func(run, pos int) {
		out = append(out, runs[run][pos])
	})
	return out
}
