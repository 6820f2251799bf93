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

import (
	"reflect"
	"testing"
)

func TestCompareIndexed(t *testing.T) {
	cases := []struct {
		a, b       string
		ape, bpe   uint32
		aidx, bidx uint64
		want       int
	}{
		{"a", "b", 0, 0, 0, 0, -1},
		{"b", "a", 0, 0, 0, 0, 1},
		{"a", "a", 1, 2, 0, 0, -1},
		{"a", "a", 2, 1, 0, 0, 1},
		{"a", "a", 1, 1, 3, 4, -1},
		{"a", "a", 1, 1, 4, 4, 0},
	}
	for _, tc := range cases {
		got := CompareIndexed([]byte(tc.a), tc.ape, tc.aidx, []byte(tc.b), tc.bpe, tc.bidx)
		if got != tc.want {
			t.Errorf("CompareIndexed(%q/%d/%d, %q/%d/%d) = %d, want %d",
				tc.a, tc.ape, tc.aidx, tc.b, tc.bpe, tc.bidx, got, tc.want)
		}
	}
}

func TestLCP(t *testing.T) {
	cases := []struct {
		a, b string
		want uint64
	}{
		{"", "", 0},
		{"abc", "", 0},
		{"abc", "abd", 2},
		{"abc", "abc", 3},
		{"abc", "abcdef", 3},
	}
	for _, tc := range cases {
		if got := LCP([]byte(tc.a), []byte(tc.b)); got != tc.want {
			t.Errorf("LCP(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestComputeLCPs(t *testing.T) {
	c := NewFromBytes([]byte("app\x00apple\x00apricot\x00banana\x00"))
	c.ComputeLCPs()
	want := []uint64{0, 3, 2, 0}
	if !reflect.DeepEqual(c.LCPs(), want) {
		t.Errorf("lcps %v, want %v", c.LCPs(), want)
	}
}

func TestIsSorted(t *testing.T) {
	if !NewFromBytes([]byte("a\x00a\x00b\x00")).IsSorted() {
		t.Error("sorted container rejected")
	}
	if NewFromBytes([]byte("b\x00a\x00")).IsSorted() {
		t.Error("unsorted container accepted")
	}
}
