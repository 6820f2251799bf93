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
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"sort"
	"sync"
	"time"
)

// inboxCap bounds buffered frames per (comm, src) pair.
const inboxCap = 1024

// dialTimeout is how long DialMesh keeps retrying a peer that has
// not started listening yet.
const dialTimeout = 30 * time.Second

type inboxKey struct {
	comm uint64
	src  int // world rank
}

// meshNet is the per-process side of a TCP mesh: one connection
// per peer plus a frame demultiplexer. Frames carry the id of the
// communicator they belong to, so subcommunicators share the
// underlying connections.
type meshNet struct {
	rank  int
	size  int
	conns []*meshConn // indexed by world rank; nil for self

	mu      sync.Mutex
	inboxes map[inboxKey]chan []byte
	readErr error
}

type meshConn struct {
	c  net.Conn
	wr sync.Mutex
}

func (n *meshNet) inbox(comm uint64, src int) chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := inboxKey{comm, src}
	q := n.inboxes[key]
	if q == nil {
		q = make(chan []byte, inboxCap)
		n.inboxes[key] = q
	}
	return q
}

// frame layout: comm id (u64), source world rank (u32),
// payload length (u32), payload bytes.
func (n *meshNet) writeFrame(dst int, comm uint64, payload []byte) error {
	if dst == n.rank {
		select {
		case n.inbox(comm, n.rank) <- append([]byte(nil), payload...):
			return nil
		default:
			return fmt.Errorf("%w: self inbox full", ErrTransport)
		}
	}
	conn := n.conns[dst]
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:], comm)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(n.rank))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(payload)))
	conn.wr.Lock()
	defer conn.wr.Unlock()
	if _, err := conn.c.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := conn.c.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (n *meshNet) readLoop(c net.Conn) {
	for {
		var hdr [16]byte
		if _, err := io.ReadFull(c, hdr[:]); err != nil {
			n.mu.Lock()
			if n.readErr == nil && err != io.EOF {
				n.readErr = err
			}
			n.mu.Unlock()
			return
		}
		comm := binary.LittleEndian.Uint64(hdr[0:])
		src := int(binary.LittleEndian.Uint32(hdr[8:]))
		size := binary.LittleEndian.Uint32(hdr[12:])
		payload := make([]byte, size)
		if _, err := io.ReadFull(c, payload); err != nil {
			n.mu.Lock()
			if n.readErr == nil {
				n.readErr = err
			}
			n.mu.Unlock()
			return
		}
		n.inbox(comm, src) <- payload
	}
}

// Mesh is one communicator over a TCP mesh. The world returned by
// DialMesh has id 0; Split derives children that reuse the same
// connections.
type Mesh struct {
	net      *meshNet
	id       uint64
	ranks    []int // world rank per comm rank
	rank     int
	splitSeq uint64
}

// DialMesh connects rank to all peers and returns the world
// communicator. addrs holds one listen address per rank; every
// process must pass the same slice.
func DialMesh(rank int, addrs []string) (*Mesh, error) {
	size := len(addrs)
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d with %d addresses", ErrTransport, rank, size)
	}
	n := &meshNet{
		rank:    rank,
		size:    size,
		conns:   make([]*meshConn, size),
		inboxes: make(map[inboxKey]chan []byte),
	}
	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrTransport, addrs[rank], err)
	}
	defer ln.Close()

	// dial lower ranks, accept higher ones; the dialer announces
	// its world rank in a one-shot handshake frame
	errc := make(chan error, 2)
	go func() {
		for i := rank + 1; i < size; i++ {
			c, err := ln.Accept()
			if err != nil {
				errc <- err
				return
			}
			var hello [4]byte
			if _, err := io.ReadFull(c, hello[:]); err != nil {
				errc <- err
				return
			}
			peer := int(binary.LittleEndian.Uint32(hello[:]))
			if peer <= rank || peer >= size || n.conns[peer] != nil {
				errc <- fmt.Errorf("unexpected handshake from rank %d", peer)
				return
			}
			n.conns[peer] = &meshConn{c: c}
		}
		errc <- nil
	}()
	go func() {
		for i := 0; i < rank; i++ {
			c, err := dialRetry(addrs[i])
			if err != nil {
				errc <- err
				return
			}
			var hello [4]byte
			binary.LittleEndian.PutUint32(hello[:], uint32(rank))
			if _, err := c.Write(hello[:]); err != nil {
				errc <- err
				return
			}
			n.conns[i] = &meshConn{c: c}
		}
		errc <- nil
	}()
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	for i, c := range n.conns {
		if i != rank {
			go n.readLoop(c.c)
		}
	}
	ranks := make([]int, size)
	for i := range ranks {
		ranks[i] = i
	}
	return &Mesh{net: n, id: 0, ranks: ranks, rank: rank}, nil
}

func dialRetry(addr string) (net.Conn, error) {
	deadline := time.Now().Add(dialTimeout)
	for {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return c, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Close shuts down the underlying connections. Only meaningful on
// the world communicator.
func (m *Mesh) Close() error {
	for _, c := range m.net.conns {
		if c != nil {
			c.c.Close()
		}
	}
	return nil
}

func (m *Mesh) Rank() int { return m.rank }
func (m *Mesh) Size() int { return len(m.ranks) }

func (m *Mesh) Send(dst int, buf []byte) error {
	if dst < 0 || dst >= len(m.ranks) {
		return fmt.Errorf("%w: send to rank %d of %d", ErrTransport, dst, len(m.ranks))
	}
	return m.net.writeFrame(m.ranks[dst], m.id, buf)
}

func (m *Mesh) Recv(src int) ([]byte, error) {
	if src < 0 || src >= len(m.ranks) {
		return nil, fmt.Errorf("%w: recv from rank %d of %d", ErrTransport, src, len(m.ranks))
	}
	return <-m.net.inbox(m.id, m.ranks[src]), nil
}

func (m *Mesh) Barrier() error {
	// gather a token at comm rank 0, then release everyone
	if m.rank == 0 {
		for src := 1; src < len(m.ranks); src++ {
			if _, err := m.Recv(src); err != nil {
				return err
			}
		}
		for dst := 1; dst < len(m.ranks); dst++ {
			if err := m.Send(dst, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if err := m.Send(0, nil); err != nil {
		return err
	}
	_, err := m.Recv(0)
	return err
}

func (m *Mesh) Alltoall(send [][]byte) ([][]byte, error) {
	if len(send) != len(m.ranks) {
		return nil, fmt.Errorf("%w: alltoall with %d buffers on %d ranks", ErrTransport, len(send), len(m.ranks))
	}
	for dst, buf := range send {
		if err := m.Send(dst, buf); err != nil {
			return nil, err
		}
	}
	out := make([][]byte, len(m.ranks))
	for src := range m.ranks {
		buf, err := m.Recv(src)
		if err != nil {
			return nil, err
		}
		out[src] = buf
	}
	return out, nil
}

func (m *Mesh) Allgather(buf []byte) ([][]byte, error) {
	send := make([][]byte, len(m.ranks))
	for i := range send {
		send[i] = buf
	}
	return m.Alltoall(send)
}

func (m *Mesh) Broadcast(root int, buf []byte) ([]byte, error) {
	if root < 0 || root >= len(m.ranks) {
		return nil, fmt.Errorf("%w: broadcast root %d of %d", ErrTransport, root, len(m.ranks))
	}
	if m.rank == root {
		for dst := range m.ranks {
			if dst == root {
				continue
			}
			if err := m.Send(dst, buf); err != nil {
				return nil, err
			}
		}
		return append([]byte(nil), buf...), nil
	}
	return m.Recv(root)
}

func (m *Mesh) Split(color, key int) (Comm, error) {
	// agree on every member's (color, key) pair
	var pair [8]byte
	binary.LittleEndian.PutUint32(pair[0:], uint32(color))
	binary.LittleEndian.PutUint32(pair[4:], uint32(key))
	all, err := m.Allgather(pair[:])
	if err != nil {
		return nil, err
	}
	type member struct{ rank, key int }
	var members []member
	for r, buf := range all {
		if len(buf) != 8 {
			return nil, fmt.Errorf("%w: bad split payload", ErrTransport)
		}
		if int(int32(binary.LittleEndian.Uint32(buf[0:]))) == color {
			members = append(members, member{rank: r, key: int(int32(binary.LittleEndian.Uint32(buf[4:])))})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].key != members[j].key {
			return members[i].key < members[j].key
		}
		return members[i].rank < members[j].rank
	})
	m.splitSeq++
	ranks := make([]int, len(members))
	myRank := -1
	for i, mem := range members {
		ranks[i] = m.ranks[mem.rank]
		if mem.rank == m.rank {
			myRank = i
		}
	}
	h := fnv.New64a()
	var tmp [20]byte
	binary.LittleEndian.PutUint64(tmp[0:], m.id)
	binary.LittleEndian.PutUint64(tmp[8:], m.splitSeq)
	binary.LittleEndian.PutUint32(tmp[16:], uint32(color))
	h.Write(tmp[:])
	id := h.Sum64()
	if id == 0 {
		id = 1
	}
	return &Mesh{net: m.net, id: id, ranks: ranks, rank: myRank}, nil
}
