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

package gen

import (
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/ints"
	"github.com/parsort/parsort/sstr"
)

// Suffix generates the suffixes of text, split in contiguous chunks
// of starting positions over the ranks. Sorting the result yields
// the suffix array of text.
func Suffix(c comm.Comm, text []byte) *sstr.Container {
	iv := ints.Chunk(len(text), c.Size(), c.Rank())
	var buf []byte
	for pos := iv.Start; pos < iv.End; pos++ {
		buf = append(buf, text[pos:]...)
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf)
}

// Window generates the fixed-length substrings starting at every
// position of text, chunked over the ranks. Windows reaching past
// the end are clipped.
func Window(c comm.Comm, text []byte, length int) *sstr.Container {
	iv := ints.Chunk(len(text), c.Size(), c.Rank())
	var buf []byte
	for pos := iv.Start; pos < iv.End; pos++ {
		end := pos + length
		if end > len(text) {
			end = len(text)
		}
		buf = append(buf, text[pos:end]...)
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf)
}

// differenceCovers maps a period to a difference cover modulo that
// period.
var differenceCovers = map[int][]int{
	3:  {0, 1},
	7:  {0, 1, 3},
	13: {0, 1, 3, 9},
	21: {0, 1, 6, 8, 18},
	31: {0, 1, 3, 8, 12, 18},
}

// DifferenceCover generates the suffixes of text whose starting
// position lies in a difference cover modulo period, chunked over
// the ranks. Supported periods are 3, 7, 13, 21 and 31.
func DifferenceCover(c comm.Comm, text []byte, period int) (*sstr.Container, error) {
	cover, ok := differenceCovers[period]
	if !ok {
		return nil, fmt.Errorf("gen: no difference cover modulo %d", period)
	}
	inCover := make([]bool, period)
	for _, d := range cover {
		inCover[d] = true
	}
	var positions []int
	for pos := range text {
		if inCover[pos%period] {
			positions = append(positions, pos)
		}
	}
	iv := ints.Chunk(len(positions), c.Size(), c.Rank())
	var buf []byte
	for i := iv.Start; i < iv.End; i++ {
		buf = append(buf, text[positions[i]:]...)
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf), nil
}
