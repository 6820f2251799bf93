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

// Package sstr implements the string container that every stage of the
// distributed sorter operates on: a single packed byte arena holding
// terminator-separated strings, a slice of (offset, length) records into
// that arena, and an optional parallel LCP array.
//
// Strings never own their characters; they are only valid as long as the
// owning Container is alive and its arena has not been replaced.
package sstr

import (
	"errors"
	"fmt"
)

// ErrMalformed indicates that a construction's initializer
// vectors disagree with the contents of the byte arena.
var ErrMalformed = errors.New("sstr: malformed container")

// String references one entry of a Container's byte arena.
// Off and Len never include the zero terminator.
//
// PE and Index identify the originating rank and the local slot
// on that rank; they are only meaningful on indexed containers.
type String struct {
	Off int
	Len int

	PE    uint32
	Index uint64
}

// Container owns a packed byte arena plus the String records
// pointing into it. The optional LCP array always has the same
// length as the string slice and lcps[0] == 0.
type Container struct {
	buf     []byte
	strs    []String
	lcps    []uint64
	indexed bool
}

// scan walks buf and emits a String record for every
// zero-terminated entry.
func scan(buf []byte) []String {
	const lengthGuess = 256
	strs := make([]String, 0, len(buf)/lengthGuess)
	start := 0
	for i, b := range buf {
		if b == 0 {
			strs = append(strs, String{Off: start, Len: i - start})
			start = i + 1
		}
	}
	return strs
}

// NewFromBytes builds a container from a terminator-separated
// byte buffer. The container takes ownership of raw.
func NewFromBytes(raw []byte) *Container {
	return &Container{buf: raw, strs: scan(raw)}
}

// NewFromParts builds a container from an arena and pre-built
// string records. The records are trusted to point into buf.
func NewFromParts(buf []byte, strs []String, lcps []uint64) (*Container, error) {
	if lcps != nil && len(lcps) != len(strs) {
		return nil, fmt.Errorf("%w: %d strings but %d lcps", ErrMalformed, len(strs), len(lcps))
	}
	return &Container{buf: buf, strs: strs, lcps: lcps}, nil
}

// NewIndexed builds a container from raw bytes plus parallel
// origin attributes. The attribute slices must agree in length
// with the number of strings discovered in raw.
func NewIndexed(raw []byte, pes []uint32, idxs []uint64) (*Container, error) {
	c := NewFromBytes(raw)
	if len(pes) != len(c.strs) || len(idxs) != len(c.strs) {
		return nil, fmt.Errorf("%w: %d strings, %d pe entries, %d index entries",
			ErrMalformed, len(c.strs), len(pes), len(idxs))
	}
	for i := range c.strs {
		c.strs[i].PE = pes[i]
		c.strs[i].Index = idxs[i]
	}
	c.indexed = true
	return c, nil
}

// NewWithLCPs builds a container from raw bytes and a parallel
// LCP array.
func NewWithLCPs(raw []byte, lcps []uint64) (*Container, error) {
	c := NewFromBytes(raw)
	if err := c.SetLCPs(lcps); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of strings.
func (c *Container) Len() int { return len(c.strs) }

// Empty reports whether the container holds no strings.
func (c *Container) Empty() bool { return len(c.strs) == 0 }

// CharSize returns the size of the byte arena.
func (c *Container) CharSize() int { return len(c.buf) }

// SumLengths returns the total string length, excluding terminators.
func (c *Container) SumLengths() int {
	n := 0
	for i := range c.strs {
		n += c.strs[i].Len
	}
	return n
}

// Bytes returns the characters of the i-th string
// (terminator excluded). The slice aliases the arena.
func (c *Container) Bytes(i int) []byte {
	s := &c.strs[i]
	return c.buf[s.Off : s.Off+s.Len]
}

// Prefix returns at most n leading characters of the i-th string.
func (c *Container) Prefix(i int, n uint64) []byte {
	b := c.Bytes(i)
	if uint64(len(b)) > n {
		return b[:n]
	}
	return b
}

// Length returns the length of the i-th string.
func (c *Container) Length(i int) uint64 { return uint64(c.strs[i].Len) }

// String returns the i-th string record.
func (c *Container) String(i int) String { return c.strs[i] }

// Strings returns the string records. Callers may reorder them
// (sorting does), but must not change offsets or lengths.
func (c *Container) Strings() []String { return c.strs }

// RawBytes returns the byte arena.
func (c *Container) RawBytes() []byte { return c.buf }

// Indexed reports whether the strings carry origin attributes.
func (c *Container) Indexed() bool { return c.indexed }

// SetIndexed marks the container as carrying origin attributes.
func (c *Container) SetIndexed(v bool) { c.indexed = v }

// HasLCPs reports whether a parallel LCP array is present.
func (c *Container) HasLCPs() bool { return c.lcps != nil }

// LCPs returns the parallel LCP array, or nil.
func (c *Container) LCPs() []uint64 { return c.lcps }

// SetLCPs installs a parallel LCP array.
func (c *Container) SetLCPs(lcps []uint64) error {
	if len(lcps) != len(c.strs) {
		return fmt.Errorf("%w: %d strings but %d lcps", ErrMalformed, len(c.strs), len(lcps))
	}
	if len(lcps) > 0 && lcps[0] != 0 {
		return fmt.Errorf("%w: lcps[0] = %d, want 0", ErrMalformed, lcps[0])
	}
	c.lcps = lcps
	return nil
}

// Update replaces the byte arena and re-indexes the container.
// Existing LCPs are discarded.
func (c *Container) Update(raw []byte) {
	c.buf = raw
	c.strs = scan(raw)
	c.lcps = nil
	c.indexed = false
}

// Release hands out the arena, string records and LCP array and
// leaves the container empty.
func (c *Container) Release() (buf []byte, strs []String, lcps []uint64) {
	buf, strs, lcps = c.buf, c.strs, c.lcps
	c.buf, c.strs, c.lcps = nil, nil, nil
	return buf, strs, lcps
}

// MakeContiguous compacts the arena so that the strings appear
// in record order, each followed by a terminator, with no slack
// in between. LCPs and origin attributes are preserved.
func (c *Container) MakeContiguous() {
	buf := make([]byte, c.SumLengths()+len(c.strs))
	pos := 0
	for i := range c.strs {
		s := &c.strs[i]
		n := copy(buf[pos:], c.buf[s.Off:s.Off+s.Len])
		s.Off = pos
		pos += n
		buf[pos] = 0
		pos++
	}
	c.buf = buf
}

// ExtendPrefix reconstructs the original strings after prefix
// compression: the i-th string is extended by prepending lcps[i]
// characters taken from the *previous* output string. lcps[0]
// must be zero.
func (c *Container) ExtendPrefix(lcps []uint64) error {
	if len(lcps) != len(c.strs) {
		return fmt.Errorf("%w: %d strings but %d lcps", ErrMalformed, len(c.strs), len(lcps))
	}
	if len(lcps) > 0 && lcps[0] != 0 {
		return fmt.Errorf("%w: lcps[0] = %d, want 0", ErrMalformed, lcps[0])
	}
	var total uint64
	for _, l := range lcps {
		total += l
	}
	// the capacity must cover the whole result up front: the loop
	// below copies prefixes out of buf while appending to it
	buf := make([]byte, 0, uint64(c.SumLengths()+len(c.strs))+total)
	prev := 0
	for i := range c.strs {
		s := &c.strs[i]
		start := len(buf)
		buf = append(buf, buf[prev:prev+int(lcps[i])]...)
		buf = append(buf, c.buf[s.Off:s.Off+s.Len]...)
		buf = append(buf, 0)
		s.Off = start
		s.Len += int(lcps[i])
		prev = start
	}
	c.buf = buf
	return nil
}

// IsConsistent reports whether every string record points into
// the arena.
func (c *Container) IsConsistent() bool {
	for i := range c.strs {
		s := &c.strs[i]
		if s.Off < 0 || s.Len < 0 || s.Off+s.Len > len(c.buf) {
			return false
		}
	}
	return true
}
