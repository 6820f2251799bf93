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

package comm

import (
	"bytes"
	"fmt"
	"net"
	"reflect"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestSendRecv(t *testing.T) {
	err := Run(2, func(c Comm) error {
		if c.Rank() == 0 {
			if err := c.Send(1, []byte("ping")); err != nil {
				return err
			}
			buf, err := c.Recv(1)
			if err != nil {
				return err
			}
			if string(buf) != "pong" {
				return fmt.Errorf("got %q", buf)
			}
			return nil
		}
		buf, err := c.Recv(0)
		if err != nil {
			return err
		}
		if string(buf) != "ping" {
			return fmt.Errorf("got %q", buf)
		}
		return c.Send(0, []byte("pong"))
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAlltoall(t *testing.T) {
	err := Run(3, func(c Comm) error {
		send := make([][]byte, c.Size())
		for dst := range send {
			send[dst] = []byte(fmt.Sprintf("%d->%d", c.Rank(), dst))
		}
		recv, err := c.Alltoall(send)
		if err != nil {
			return err
		}
		for src, buf := range recv {
			want := fmt.Sprintf("%d->%d", src, c.Rank())
			if string(buf) != want {
				return fmt.Errorf("rank %d from %d: got %q, want %q", c.Rank(), src, buf, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllgatherBroadcast(t *testing.T) {
	err := Run(4, func(c Comm) error {
		all, err := c.Allgather([]byte{byte(c.Rank())})
		if err != nil {
			return err
		}
		for src, buf := range all {
			if len(buf) != 1 || buf[0] != byte(src) {
				return fmt.Errorf("allgather from %d: %v", src, buf)
			}
		}
		var mine []byte
		if c.Rank() == 2 {
			mine = []byte("root says hi")
		}
		buf, err := c.Broadcast(2, mine)
		if err != nil {
			return err
		}
		if string(buf) != "root says hi" {
			return fmt.Errorf("broadcast: %q", buf)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSplit(t *testing.T) {
	err := Run(4, func(c Comm) error {
		sub, err := c.Split(c.Rank()%2, c.Rank())
		if err != nil {
			return err
		}
		if sub.Size() != 2 {
			return fmt.Errorf("subgroup size %d", sub.Size())
		}
		if want := c.Rank() / 2; sub.Rank() != want {
			return fmt.Errorf("rank %d got subrank %d, want %d", c.Rank(), sub.Rank(), want)
		}
		// the two subgroups must be independent
		sum, err := AllreduceSum(sub, uint64(c.Rank()))
		if err != nil {
			return err
		}
		want := uint64(2) // 0+2
		if c.Rank()%2 == 1 {
			want = 4 // 1+3
		}
		if sum != want {
			return fmt.Errorf("subgroup sum %d, want %d", sum, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWireHelpers(t *testing.T) {
	vals := []uint64{0, 1, ^uint64(0), 1 << 40}
	got, err := U64s(PutU64s(nil, vals))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Errorf("u64 round trip %v", got)
	}
	if _, err := U64s(make([]byte, 7)); err == nil {
		t.Error("misaligned u64 buffer accepted")
	}
	vals32 := []uint32{3, ^uint32(0)}
	got32, err := U32s(PutU32s(nil, vals32))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got32, vals32) {
		t.Errorf("u32 round trip %v", got32)
	}
	if _, err := U32s(make([]byte, 6)); err == nil {
		t.Error("misaligned u32 buffer accepted")
	}
	if got := ExclusiveScan([]uint64{3, 1, 4}); !reflect.DeepEqual(got, []uint64{0, 3, 4}) {
		t.Errorf("scan %v", got)
	}
}

func TestTypedCollectives(t *testing.T) {
	err := Run(3, func(c Comm) error {
		send := make([][]uint64, c.Size())
		for dst := range send {
			send[dst] = []uint64{uint64(c.Rank()*10 + dst)}
		}
		recv, err := AlltoallU64(c, send)
		if err != nil {
			return err
		}
		for src, vals := range recv {
			if len(vals) != 1 || vals[0] != uint64(src*10+c.Rank()) {
				return fmt.Errorf("alltoall from %d: %v", src, vals)
			}
		}
		all, err := AllgatherU64(c, []uint64{uint64(c.Rank())})
		if err != nil {
			return err
		}
		if len(all) != 3 || all[2][0] != 2 {
			return fmt.Errorf("allgather %v", all)
		}
		if max, err := AllreduceMax(c, uint64(c.Rank())); err != nil || max != 2 {
			return fmt.Errorf("max %d, %v", max, err)
		}
		if sum, err := AllreduceSum(c, 1); err != nil || sum != 3 {
			return fmt.Errorf("sum %d, %v", sum, err)
		}
		if or, err := AllreduceOr(c, c.Rank() == 1); err != nil || !or {
			return fmt.Errorf("or %v, %v", or, err)
		}
		if or, err := AllreduceOr(c, false); err != nil || or {
			return fmt.Errorf("all-false or %v, %v", or, err)
		}
		if v, err := BroadcastU64(c, 1, uint64(100+c.Rank())); err != nil || v != 101 {
			return fmt.Errorf("broadcast %d, %v", v, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBadArguments(t *testing.T) {
	err := Run(2, func(c Comm) error {
		if err := c.Send(5, nil); err == nil {
			return fmt.Errorf("out-of-range send accepted")
		}
		if _, err := c.Alltoall(make([][]byte, 1)); err == nil {
			return fmt.Errorf("short alltoall accepted")
		}
		if _, err := c.Broadcast(9, nil); err == nil {
			return fmt.Errorf("bad broadcast root accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// freeAddrs reserves n loopback addresses by listening and closing.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

func TestMeshLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("opens loopback sockets")
	}
	addrs := freeAddrs(t, 3)
	var eg errgroup.Group
	for rank := 0; rank < 3; rank++ {
		rank := rank
		eg.Go(func() error {
			m, err := DialMesh(rank, addrs)
			if err != nil {
				return err
			}
			defer m.Close()
			if m.Rank() != rank || m.Size() != 3 {
				return fmt.Errorf("identity %d/%d", m.Rank(), m.Size())
			}
			all, err := m.Allgather([]byte{byte(rank)})
			if err != nil {
				return err
			}
			for src, buf := range all {
				if !bytes.Equal(buf, []byte{byte(src)}) {
					return fmt.Errorf("rank %d allgather from %d: %v", rank, src, buf)
				}
			}
			sub, err := m.Split(rank%2, rank)
			if err != nil {
				return err
			}
			sum, err := AllreduceSum(sub, uint64(rank))
			if err != nil {
				return err
			}
			want := uint64(2) // 0+2
			if rank == 1 {
				want = 1
			}
			if sum != want {
				return fmt.Errorf("rank %d subgroup sum %d, want %d", rank, sum, want)
			}
			return m.Barrier()
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}
