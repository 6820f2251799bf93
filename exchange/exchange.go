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

// Package exchange redistributes the strings of a sorted container
// between the ranks of a communicator according to per-destination
// counts.
//
// The byte payload can be sent plain, prefix-compressed against the
// previous string (the receiver reconstructs via the container's
// prefix extension), or prefix-compressed with the LCP values
// additionally Golomb-coded. Independently, the character sections
// can be run through a block compressor.
package exchange

import (
	"fmt"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/compr"
	"github.com/parsort/parsort/sstr"
)

// Mode selects the string serialization.
type Mode int

const (
	// Plain sends every string in full.
	Plain Mode = iota
	// LCP drops the prefix shared with the previous string of the
	// same message and sends the LCP value instead.
	LCP
	// LCPGolomb is LCP with the LCP values Golomb-coded.
	LCPGolomb
)

func (m Mode) String() string {
	switch m {
	case Plain:
		return "plain"
	case LCP:
		return "lcp"
	case LCPGolomb:
		return "lcp-golomb"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Config carries the exchange knobs. Every rank of a communicator
// must use the same configuration.
type Config struct {
	Mode Mode
	// Compression optionally names a block compressor ("zstd",
	// "zstd-better" or "s2") applied to the character sections.
	Compression string
}

// Result is the receiver's view of one exchange: the rebuilt
// container plus the sizes of the p incoming sorted runs, indexed
// by source rank. When the mode is not Plain the container carries
// the received LCP values (zero at every run boundary), which a
// multiway merge can reuse.
type Result struct {
	Strings  *sstr.Container
	RunSizes []uint64
}

// Strings sends counts[dst] consecutive strings of the sorted
// container strs to every destination rank and rebuilds the
// received strings. counts must have one entry per rank of c and
// sum to strs.Len(); prefix modes require strs to carry LCPs.
func Strings(c comm.Comm, strs *sstr.Container, counts []uint64, cfg Config) (*Result, error) {
	if len(counts) != c.Size() {
		return nil, fmt.Errorf("%w: %d counts on %d ranks", comm.ErrTransport, len(counts), c.Size())
	}
	var total uint64
	for _, n := range counts {
		total += n
	}
	if total != uint64(strs.Len()) {
		return nil, fmt.Errorf("%w: counts sum to %d, container has %d", comm.ErrTransport, total, strs.Len())
	}
	if cfg.Mode != Plain && !strs.HasLCPs() {
		return nil, fmt.Errorf("%w: %s exchange without lcps", comm.ErrTransport, cfg.Mode)
	}
	var cmp compr.Compressor
	if cfg.Compression != "" {
		cmp = compr.Compression(cfg.Compression)
		if cmp == nil {
			return nil, fmt.Errorf("%w: unknown compression %q", comm.ErrTransport, cfg.Compression)
		}
	}

	send := make([][]byte, c.Size())
	start := uint64(0)
	for dst := range send {
		send[dst] = encodeInterval(strs, int(start), int(start+counts[dst]), cfg, cmp)
		start += counts[dst]
	}
	recv, err := c.Alltoall(send)
	if err != nil {
		return nil, err
	}
	return decodeAll(recv, strs.Indexed(), cfg)
}

// encodeInterval serializes strs[lo:hi) for one destination.
//
// layout: u64 count, u64 byteLen, lcp section (mode dependent),
// index section (u64 slots then u32 origin ranks, indexed
// containers only), then the character section, each string
// terminated; the character section is block-compressed when a
// compressor is configured.
func encodeInterval(strs *sstr.Container, lo, hi int, cfg Config, cmp compr.Compressor) []byte {
	n := hi - lo
	lcps := make([]uint64, 0, n)
	if cfg.Mode != Plain {
		src := strs.LCPs()
		for i := lo; i < hi; i++ {
			if i == lo {
				lcps = append(lcps, 0)
			} else {
				lcps = append(lcps, src[i])
			}
		}
	}
	var byteLen uint64
	for i := lo; i < hi; i++ {
		byteLen += strs.Length(i) + 1
		if cfg.Mode != Plain {
			byteLen -= lcps[i-lo]
		}
	}

	buf := comm.PutU64s(nil, []uint64{uint64(n), byteLen})
	switch cfg.Mode {
	case LCP:
		buf = comm.PutU64s(buf, lcps)
	case LCPGolomb:
		var sum uint64
		for _, l := range lcps {
			sum += l
		}
		b := GolombParam(sum+1, uint64(n))
		enc := EncodeGolomb(lcps, b)
		buf = comm.PutU64s(buf, []uint64{uint64(len(enc)), b})
		buf = append(buf, enc...)
	}
	if strs.Indexed() {
		idx := make([]uint64, n)
		pes := make([]uint32, n)
		for i := lo; i < hi; i++ {
			s := strs.String(i)
			idx[i-lo] = s.Index
			pes[i-lo] = s.PE
		}
		buf = comm.PutU64s(buf, idx)
		buf = comm.PutU32s(buf, pes)
	}

	chars := make([]byte, 0, byteLen)
	for i := lo; i < hi; i++ {
		b := strs.Bytes(i)
		if cfg.Mode != Plain {
			b = b[lcps[i-lo]:]
		}
		chars = append(chars, b...)
		chars = append(chars, 0)
	}
	if cmp != nil {
		return cmp.Compress(chars, buf)
	}
	return append(buf, chars...)
}

type interval struct {
	count   int
	lcps    []uint64
	idx     []uint64
	pes     []uint32
	chars   []byte
	byteLen uint64
}

func decodeInterval(buf []byte, indexed bool, cfg Config, dec compr.Decompressor) (*interval, error) {
	hdr, rest, err := takeU64s(buf, 2)
	if err != nil {
		return nil, err
	}
	iv := &interval{count: int(hdr[0]), byteLen: hdr[1]}
	switch cfg.Mode {
	case LCP:
		iv.lcps, rest, err = takeU64s(rest, iv.count)
		if err != nil {
			return nil, err
		}
	case LCPGolomb:
		var gh []uint64
		gh, rest, err = takeU64s(rest, 2)
		if err != nil {
			return nil, err
		}
		encLen, b := int(gh[0]), gh[1]
		if encLen > len(rest) {
			return nil, fmt.Errorf("%w: golomb section truncated", comm.ErrTransport)
		}
		iv.lcps, err = DecodeGolomb(rest[:encLen], iv.count, b)
		if err != nil {
			return nil, err
		}
		rest = rest[encLen:]
	}
	if indexed {
		iv.idx, rest, err = takeU64s(rest, iv.count)
		if err != nil {
			return nil, err
		}
		if len(rest) < 4*iv.count {
			return nil, fmt.Errorf("%w: origin section truncated", comm.ErrTransport)
		}
		pes, err := comm.U32s(rest[:4*iv.count])
		if err != nil {
			return nil, err
		}
		iv.pes = pes
		rest = rest[4*iv.count:]
	}
	if dec != nil {
		chars := make([]byte, iv.byteLen)
		if iv.byteLen > 0 {
			if err := dec.Decompress(rest, chars); err != nil {
				return nil, fmt.Errorf("%w: %v", comm.ErrTransport, err)
			}
		}
		iv.chars = chars
	} else {
		if uint64(len(rest)) != iv.byteLen {
			return nil, fmt.Errorf("%w: %d payload bytes, header says %d", comm.ErrTransport, len(rest), iv.byteLen)
		}
		iv.chars = rest
	}
	return iv, nil
}

func takeU64s(buf []byte, n int) ([]uint64, []byte, error) {
	if len(buf) < 8*n {
		return nil, nil, fmt.Errorf("%w: short exchange payload", comm.ErrTransport)
	}
	vals, err := comm.U64s(buf[:8*n])
	if err != nil {
		return nil, nil, err
	}
	return vals, buf[8*n:], nil
}

func decodeAll(recv [][]byte, indexed bool, cfg Config) (*Result, error) {
	var dec compr.Decompressor
	if cfg.Compression != "" {
		dec = compr.Decompression(cfg.Compression)
		if dec == nil {
			return nil, fmt.Errorf("%w: unknown compression %q", comm.ErrTransport, cfg.Compression)
		}
	}
	ivs := make([]*interval, len(recv))
	totalChars, totalStrs := 0, 0
	for src, buf := range recv {
		iv, err := decodeInterval(buf, indexed, cfg, dec)
		if err != nil {
			return nil, err
		}
		ivs[src] = iv
		totalChars += len(iv.chars)
		totalStrs += iv.count
	}

	raw := make([]byte, 0, totalChars)
	var lcps []uint64
	var idx []uint64
	var pes []uint32
	runs := make([]uint64, len(ivs))
	for src, iv := range ivs {
		raw = append(raw, iv.chars...)
		runs[src] = uint64(iv.count)
		if cfg.Mode != Plain {
			lcps = append(lcps, iv.lcps...)
		}
		if indexed {
			idx = append(idx, iv.idx...)
			pes = append(pes, iv.pes...)
		}
	}

	var cont *sstr.Container
	var err error
	if indexed {
		cont, err = sstr.NewIndexed(raw, pes, idx)
	} else {
		cont = sstr.NewFromBytes(raw)
		if cont.Len() != totalStrs {
			err = fmt.Errorf("%w: rebuilt %d strings, expected %d", sstr.ErrMalformed, cont.Len(), totalStrs)
		}
	}
	if err != nil {
		return nil, err
	}
	if cfg.Mode != Plain {
		if err := cont.ExtendPrefix(lcps); err != nil {
			return nil, err
		}
		if err := cont.SetLCPs(lcps); err != nil {
			return nil, err
		}
	}
	return &Result{Strings: cont, RunSizes: runs}, nil
}
