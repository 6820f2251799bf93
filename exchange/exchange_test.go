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

package exchange

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/sstr"
)

// sendAllToZero ships both ranks' strings to rank 0 and verifies
// the rebuilt container under the given configuration.
func sendAllToZero(cfg Config) error {
	return comm.Run(2, func(c comm.Comm) error {
		var strs *sstr.Container
		if c.Rank() == 0 {
			strs = sstr.NewFromBytes([]byte("aaaaab\x00aaaaac\x00"))
		} else {
			strs = sstr.NewFromBytes([]byte("aaaaad\x00aaaaae\x00"))
		}
		if cfg.Mode != Plain {
			strs.ComputeLCPs()
		}
		res, err := Strings(c, strs, []uint64{2, 0}, cfg)
		if err != nil {
			return err
		}
		if c.Rank() != 0 {
			if res.Strings.Len() != 0 {
				return fmt.Errorf("rank 1 received %d strings", res.Strings.Len())
			}
			if !reflect.DeepEqual(res.RunSizes, []uint64{0, 0}) {
				return fmt.Errorf("rank 1 runs %v", res.RunSizes)
			}
			return nil
		}
		want := []string{"aaaaab", "aaaaac", "aaaaad", "aaaaae"}
		if res.Strings.Len() != len(want) {
			return fmt.Errorf("received %d strings", res.Strings.Len())
		}
		for i, w := range want {
			if got := string(res.Strings.Bytes(i)); got != w {
				return fmt.Errorf("string %d = %q, want %q", i, got, w)
			}
		}
		if !reflect.DeepEqual(res.RunSizes, []uint64{2, 2}) {
			return fmt.Errorf("runs %v", res.RunSizes)
		}
		if cfg.Mode != Plain {
			// run boundaries reset the carried prefix
			if !reflect.DeepEqual(res.Strings.LCPs(), []uint64{0, 5, 0, 5}) {
				return fmt.Errorf("lcps %v", res.Strings.LCPs())
			}
		}
		return nil
	})
}

func TestStrings(t *testing.T) {
	cases := []Config{
		{Mode: Plain},
		{Mode: LCP},
		{Mode: LCPGolomb},
		{Mode: LCP, Compression: "zstd"},
		{Mode: LCPGolomb, Compression: "zstd-better"},
		{Mode: Plain, Compression: "s2"},
	}
	for _, cfg := range cases {
		t.Run(fmt.Sprintf("%s/%s", cfg.Mode, cfg.Compression), func(t *testing.T) {
			if err := sendAllToZero(cfg); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestStringsIndexed(t *testing.T) {
	err := comm.Run(2, func(c comm.Comm) error {
		rank := uint32(c.Rank())
		strs, err := sstr.NewIndexed(
			[]byte("aa\x00ab\x00"),
			[]uint32{rank, rank},
			[]uint64{uint64(c.Rank()) * 10, uint64(c.Rank())*10 + 1},
		)
		if err != nil {
			return err
		}
		strs.ComputeLCPs()
		// every rank sends its first string to rank 0, its second to rank 1
		res, err := Strings(c, strs, []uint64{1, 1}, Config{Mode: LCP})
		if err != nil {
			return err
		}
		if res.Strings.Len() != 2 || !res.Strings.Indexed() {
			return fmt.Errorf("rank %d received %d strings", c.Rank(), res.Strings.Len())
		}
		for i := 0; i < 2; i++ {
			s := res.Strings.String(i)
			if s.PE != uint32(i) {
				return fmt.Errorf("string %d origin %d", i, s.PE)
			}
			want := uint64(i) * 10
			if c.Rank() == 1 {
				want++
			}
			if s.Index != want {
				return fmt.Errorf("string %d slot %d, want %d", i, s.Index, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStringsRejects(t *testing.T) {
	err := comm.Run(2, func(c comm.Comm) error {
		strs := sstr.NewFromBytes([]byte("a\x00b\x00"))
		if _, err := Strings(c, strs, []uint64{2}, Config{}); err == nil {
			return fmt.Errorf("short counts accepted")
		}
		if _, err := Strings(c, strs, []uint64{2, 1}, Config{}); err == nil {
			return fmt.Errorf("bad counts sum accepted")
		}
		if _, err := Strings(c, strs, []uint64{1, 1}, Config{Mode: LCP}); err == nil {
			return fmt.Errorf("lcp exchange without lcps accepted")
		}
		if _, err := Strings(c, strs, []uint64{1, 1}, Config{Compression: "lzma"}); err == nil {
			return fmt.Errorf("unknown compression accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGolombRoundTrip(t *testing.T) {
	cases := [][]uint64{
		{},
		{0},
		{0, 1, 2, 3},
		{7, 7, 7, 7, 7},
		{0, 100, 3, 99999, 1 << 33, 12},
	}
	for _, vals := range cases {
		for _, b := range []uint64{8, 10, 64, 1 << 20} {
			got, err := DecodeGolomb(EncodeGolomb(vals, b), len(vals), b)
			if err != nil {
				t.Fatalf("vals %v b %d: %v", vals, b, err)
			}
			want := vals
			if len(want) == 0 {
				want = []uint64{}
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("vals %v b %d: got %v", vals, b, got)
			}
		}
	}
}

func TestGolombTruncated(t *testing.T) {
	enc := EncodeGolomb([]uint64{1 << 20}, 8)
	if _, err := DecodeGolomb(enc[:len(enc)/2], 1, 8); err == nil {
		t.Error("truncated stream decoded")
	}
}

func TestGolombParam(t *testing.T) {
	if GolombParam(0, 10) != 8 {
		t.Error("lower clamp")
	}
	if GolombParam(^uint64(0), 0) != 1<<40 {
		t.Error("upper clamp")
	}
	if GolombParam(1000, 9) != 100 {
		t.Error("midrange param")
	}
}
