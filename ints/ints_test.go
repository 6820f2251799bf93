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

import "testing"

func TestClampers(t *testing.T) {
	if Min(3, 5) != 3 || Min(5, 3) != 3 {
		t.Error("Min")
	}
	if Max(3, 5) != 5 || Max(5, 3) != 5 {
		t.Error("Max")
	}
	if Clamp(7, 1, 5) != 5 || Clamp(-1, 1, 5) != 1 || Clamp(3, 1, 5) != 3 {
		t.Error("Clamp")
	}
}

func TestInterval(t *testing.T) {
	in := Interval{Start: 2, End: 5}
	if in.Empty() || in.Len() != 3 {
		t.Errorf("len %d", in.Len())
	}
	if !in.Contains(2) || in.Contains(5) {
		t.Error("Contains bounds")
	}
	if (Interval{Start: 3, End: 3}).Len() != 0 {
		t.Error("empty interval length")
	}
	var got []int
	in.Each(func(i int) { got = append(got, i) })
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Errorf("Each %v", got)
	}
}

func TestChunks(t *testing.T) {
	// 10 over 3 parts: 4, 3, 3.
	chunks := Chunks(10, 3)
	wantLens := []int{4, 3, 3}
	next := 0
	for i, ch := range chunks {
		if ch.Len() != wantLens[i] {
			t.Errorf("chunk %d len %d, want %d", i, ch.Len(), wantLens[i])
		}
		if ch.Start != next {
			t.Errorf("chunk %d start %d, want %d", i, ch.Start, next)
		}
		next = ch.End
	}
	if next != 10 {
		t.Errorf("chunks end at %d", next)
	}
	if Chunk(4, 8, 7).Len() != 0 {
		t.Error("surplus chunk not empty")
	}
}

func TestBitset(t *testing.T) {
	bs := Bitset(130)
	if len(bs) != 3 {
		t.Fatalf("bitset words %d", len(bs))
	}
	for _, k := range []int{0, 63, 64, 129} {
		if TestBit(bs, k) {
			t.Errorf("bit %d set in fresh bitset", k)
		}
		SetBit(bs, k)
		if !TestBit(bs, k) {
			t.Errorf("bit %d not set", k)
		}
		ClearBit(bs, k)
		if TestBit(bs, k) {
			t.Errorf("bit %d not cleared", k)
		}
	}
	if ChunkCount(uint64(0), 64) != 0 || ChunkCount(uint64(1), 64) != 1 || ChunkCount(uint64(65), 64) != 2 {
		t.Error("ChunkCount")
	}
}

func TestRandomFillSlice(t *testing.T) {
	buf := make([]uint64, 64)
	if err := RandomFillSlice(buf); err != nil {
		t.Fatal(err)
	}
	zero := 0
	for _, v := range buf {
		if v == 0 {
			zero++
		}
	}
	if zero == len(buf) {
		t.Error("slice left zeroed")
	}
	if err := RandomFillSlice([]uint32(nil)); err != nil {
		t.Fatal(err)
	}
}
