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

package msort

import (
	"github.com/parsort/parsort/sstr"
)

// insertionCutoff is the subproblem size below which multikey
// quicksort falls back to insertion sort.
const insertionCutoff = 16

// LocalSort sorts the container's string records in byte-
// lexicographic order (ties broken by origin on indexed
// containers) and installs the neighbor LCP array.
func LocalSort(c *sstr.Container) {
	mkqs(c, c.Strings(), 0)
	c.ComputeLCPs()
}

// byteAt returns the d-th character of s, or 0 past its end, so
// shorter strings order before their extensions.
func byteAt(c *sstr.Container, s sstr.String, d int) byte {
	if d < s.Len {
		return c.RawBytes()[s.Off+d]
	}
	return 0
}

func recordLess(c *sstr.Container, a, b sstr.String, depth int) bool {
	ab := c.RawBytes()[a.Off : a.Off+a.Len]
	bb := c.RawBytes()[b.Off : b.Off+b.Len]
	if depth < len(ab) {
		ab = ab[depth:]
	} else {
		ab = nil
	}
	if depth < len(bb) {
		bb = bb[depth:]
	} else {
		bb = nil
	}
	for i := 0; i < len(ab) && i < len(bb); i++ {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	if len(ab) != len(bb) {
		return len(ab) < len(bb)
	}
	if !c.Indexed() {
		return false
	}
	if a.PE != b.PE {
		return a.PE < b.PE
	}
	return a.Index < b.Index
}

func insertion(c *sstr.Container, s []sstr.String, depth int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && recordLess(c, s[j], s[j-1], depth); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// mkqs is ternary-partitioning multikey quicksort over the string
// records, character by character.
func mkqs(c *sstr.Container, s []sstr.String, depth int) {
	for len(s) > insertionCutoff {
		pivot := medianByte(c, s, depth)
		lt, gt := 0, len(s)
		i := 0
		for i < gt {
			ch := byteAt(c, s[i], depth)
			switch {
			case ch < pivot:
				s[lt], s[i] = s[i], s[lt]
				lt++
				i++
			case ch > pivot:
				gt--
				s[gt], s[i] = s[i], s[gt]
			default:
				i++
			}
		}
		mkqs(c, s[:lt], depth)
		mkqs(c, s[gt:], depth)
		if pivot == 0 {
			// exhausted strings are equal; order them by origin
			if c.Indexed() {
				insertionByOrigin(c, s[lt:gt])
			}
			return
		}
		s = s[lt:gt]
		depth++
	}
	insertion(c, s, depth)
}

func insertionByOrigin(c *sstr.Container, s []sstr.String) {
	less := func(a, b sstr.String) bool {
		if a.PE != b.PE {
			return a.PE < b.PE
		}
		return a.Index < b.Index
	}
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func medianByte(c *sstr.Container, s []sstr.String, depth int) byte {
	a := byteAt(c, s[0], depth)
	b := byteAt(c, s[len(s)/2], depth)
	d := byteAt(c, s[len(s)-1], depth)
	if a > b {
		a, b = b, a
	}
	if b > d {
		b = d
		if a > b {
			b = a
		}
	}
	return b
}
