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

package quantile

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/exchange"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/msort"
	"github.com/parsort/parsort/perm"
	"github.com/parsort/parsort/sample"
	"github.com/parsort/parsort/sstr"
)

func pack(words []string) []byte {
	var buf []byte
	for _, w := range words {
		buf = append(buf, w...)
		buf = append(buf, 0)
	}
	return buf
}

func randomInputs(p, n int, seed int64) [][]string {
	rng := rand.New(rand.NewSource(seed))
	inputs := make([][]string, p)
	for r := range inputs {
		words := make([]string, n)
		for i := range words {
			b := make([]byte, 1+rng.Intn(10))
			for j := range b {
				b[j] = byte('a' + rng.Intn(5))
			}
			words[i] = string(b)
		}
		inputs[r] = words
	}
	return inputs
}

// runSort executes one space-efficient sort over the inputs and
// returns each rank's Ranks vector.
func runSort(t *testing.T, inputs [][]string, cfg Config) [][]uint64 {
	t.Helper()
	ranks := make([][]uint64, len(inputs))
	err := comm.Run(len(inputs), func(c comm.Comm) error {
		g, err := grid.New(c, nil)
		if err != nil {
			return err
		}
		strs := sstr.NewFromBytes(pack(inputs[c.Rank()]))
		res, err := Sort(g, strs, cfg)
		if err != nil {
			return err
		}
		input := sstr.NewFromBytes(pack(inputs[c.Rank()]))
		if err := perm.IsSorted(c, res.Perm, input); err != nil {
			return err
		}
		if err := perm.IsComplete(c, res.Perm, input.Len()); err != nil {
			return err
		}
		ranks[c.Rank()] = res.Ranks
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return ranks
}

func TestSortSingleQuantile(t *testing.T) {
	inputs := [][]string{{"banana", "apple"}, {"cherry", "apricot"}}
	cfg := Config{
		Sampling: sample.Config{Policy: sample.IndexedChars},
		Sort:     msort.Config{Exchange: exchange.Config{Mode: exchange.LCP}},
	}
	ranks := runSort(t, inputs, cfg)
	// sorted: apple apricot banana cherry
	if want := [][]uint64{{2, 0}, {3, 1}}; !reflect.DeepEqual(ranks, want) {
		t.Fatalf("got %v, want %v", ranks, want)
	}
}

func TestSortBoundedQuantiles(t *testing.T) {
	inputs := randomInputs(2, 48, 3)
	base := Config{
		Sampling: sample.Config{Policy: sample.IndexedChars, Factor: 4},
		Sort:     msort.Config{Exchange: exchange.Config{Mode: exchange.LCP}},
	}
	whole := runSort(t, inputs, base)

	bounded := base
	bounded.Size = 64
	got := runSort(t, inputs, bounded)
	if !reflect.DeepEqual(got, whole) {
		t.Fatalf("bounded run diverged:\n got %v\nwant %v", got, whole)
	}
}

func TestSortDoubling(t *testing.T) {
	inputs := randomInputs(2, 32, 11)
	base := Config{
		Sampling: sample.Config{Policy: sample.IndexedChars, Factor: 4},
		Sort:     msort.Config{Exchange: exchange.Config{Mode: exchange.LCP}},
	}
	whole := runSort(t, inputs, base)

	doubled := base
	doubled.Size = 96
	doubled.Doubling = true
	got := runSort(t, inputs, doubled)
	if !reflect.DeepEqual(got, whole) {
		t.Fatalf("doubling run diverged:\n got %v\nwant %v", got, whole)
	}
}

func TestCountDuplicateRanks(t *testing.T) {
	cases := []struct {
		name  string
		ranks []uint64
		want  RankStats
	}{
		{"unique", []uint64{3, 0, 2, 1}, RankStats{Total: 4, Distinct: 4}},
		{"repeat", []uint64{0, 1, 1, 2}, RankStats{Total: 4, Distinct: 3, Duplicate: 1, NonUnique: 2}},
		{"empty", nil, RankStats{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := comm.Run(1, func(c comm.Comm) error {
				st, err := CountDuplicateRanks(c, tc.ranks)
				if err != nil {
					return err
				}
				if st != tc.want {
					t.Errorf("got %+v, want %+v", st, tc.want)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestCountDuplicateRanksDistributed(t *testing.T) {
	// both ranks see the duplicate pair 5 meet on one rank
	local := [][]uint64{{0, 5}, {5, 9}}
	stats := make([]RankStats, 2)
	err := comm.Run(2, func(c comm.Comm) error {
		st, err := CountDuplicateRanks(c, local[c.Rank()])
		if err != nil {
			return err
		}
		stats[c.Rank()] = st
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var total, distinct uint64
	for _, st := range stats {
		total += st.Total
		distinct += st.Distinct
	}
	if total != 4 {
		t.Errorf("total = %d", total)
	}
	if distinct >= total {
		t.Errorf("duplicate pair not detected: distinct = %d of %d", distinct, total)
	}
}
