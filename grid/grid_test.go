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

package grid

import (
	"errors"
	"fmt"
	"testing"

	"github.com/parsort/parsort/comm"
)

func TestNew(t *testing.T) {
	err := comm.Run(4, func(c comm.Comm) error {
		g, err := New(c, []int{2})
		if err != nil {
			return err
		}
		if g.Levels() != 2 {
			return fmt.Errorf("levels %d", g.Levels())
		}
		if g.GroupCount(0) != 2 || g.GroupCount(1) != 2 {
			return fmt.Errorf("group counts %d/%d", g.GroupCount(0), g.GroupCount(1))
		}
		inner := g.Innermost()
		if inner.Size() != 2 {
			return fmt.Errorf("innermost size %d", inner.Size())
		}
		if want := c.Rank() % 2; inner.Rank() != want {
			return fmt.Errorf("rank %d inner rank %d, want %d", c.Rank(), inner.Rank(), want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNewDropsOversized(t *testing.T) {
	err := comm.Run(4, func(c comm.Comm) error {
		g, err := New(c, []int{8, 4, 2})
		if err != nil {
			return err
		}
		if g.Levels() != 2 || g.Innermost().Size() != 2 {
			return fmt.Errorf("levels %d innermost %d", g.Levels(), g.Innermost().Size())
		}
		g, err = New(c, []int{4})
		if err != nil {
			return err
		}
		if g.Levels() != 1 || g.Innermost() != c {
			return fmt.Errorf("all-dropped grid not the world")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNewRejects(t *testing.T) {
	cases := [][]int{
		{3},    // does not divide 4
		{3, 3}, // not strictly decreasing
		{0},
		{-1},
	}
	for _, sizes := range cases {
		sizes := sizes
		err := comm.Run(4, func(c comm.Comm) error {
			if _, err := New(c, sizes); !errors.Is(err, ErrGroupSizes) {
				return fmt.Errorf("sizes %v: err %v", sizes, err)
			}
			return nil
		})
		if err != nil {
			t.Error(err)
		}
	}
}

func TestShift(t *testing.T) {
	if Shift(0, 1, 4) != 1 || Shift(3, 1, 4) != 0 {
		t.Error("forward shift")
	}
	if Shift(0, -1, 4) != 3 || Shift(2, -5, 4) != 1 {
		t.Error("backward shift")
	}
}

func TestRotateRight(t *testing.T) {
	err := comm.Run(3, func(c comm.Comm) error {
		buf := []byte{byte(c.Rank())}
		got, err := RotateRight(c, buf, false)
		if err != nil {
			return err
		}
		pred := byte(Shift(c.Rank(), -1, c.Size()))
		if len(got) != 1 || got[0] != pred {
			return fmt.Errorf("rank %d got %v, want [%d]", c.Rank(), got, pred)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRotateRightSkip(t *testing.T) {
	err := comm.Run(3, func(c comm.Comm) error {
		// rank 1 drops out of the ring, so rank 2 receives
		// rank 0's payload and rank 0 receives rank 2's
		buf := []byte{byte(10 + c.Rank())}
		got, err := RotateRight(c, buf, c.Rank() == 1)
		if err != nil {
			return err
		}
		want := byte(10)
		if c.Rank() == 0 {
			want = 12
		}
		if len(got) != 1 || got[0] != want {
			return fmt.Errorf("rank %d got %v, want [%d]", c.Rank(), got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRotateRightRankZeroCannotSkip(t *testing.T) {
	err := comm.Run(2, func(c comm.Comm) error {
		// the error is raised before any message moves, so the
		// other rank stays silent
		if c.Rank() != 0 {
			return nil
		}
		if _, err := RotateRight(c, nil, true); err == nil {
			return fmt.Errorf("rank 0 skip accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRotateRightSingle(t *testing.T) {
	err := comm.Run(1, func(c comm.Comm) error {
		got, err := RotateRight(c, []byte("solo"), false)
		if err != nil {
			return err
		}
		if string(got) != "solo" {
			return fmt.Errorf("got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
