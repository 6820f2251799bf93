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

package msort

import (
	"fmt"

	"github.com/parsort/parsort/bloom"
	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/shash"
	"github.com/parsort/parsort/sstr"
)

// PrefixConfig carries the prefix-doubling knobs.
type PrefixConfig struct {
	Hash shash.Kind
	Seed uint64
	// Golomb selects the hash exchange compression.
	Golomb bloom.Golomb
}

// DistinguishingPrefixes runs prefix doubling over the sorted local
// container and returns, per string, the first doubling depth
// (1, 2, 4, ...) at which its prefix is found globally unique; this
// can exceed the length of its shortest unique prefix. Strings that
// equal another string entirely get their full length. The container must be sorted with
// LCPs present.
func DistinguishingPrefixes(g *grid.Grid, strs *sstr.Container, cfg PrefixConfig) ([]uint64, error) {
	h, err := shash.New(cfg.Hash, cfg.Seed)
	if err != nil {
		return nil, err
	}
	f := bloom.NewFilter(h, strs.Len())
	f.Golomb = cfg.Golomb
	results := make([]uint64, strs.Len())
	var candidates []int
	depth := uint64(1)
	for {
		next, err := f.Filter(g, strs, depth, candidates, results)
		if err != nil {
			return nil, err
		}
		more, err := comm.AllreduceOr(g.Comms[0], len(next) > 0)
		if err != nil {
			return nil, err
		}
		if !more {
			return results, nil
		}
		if next == nil {
			// an empty round must not look like the initial full set
			next = []int{}
		}
		candidates = next
		depth *= 2
	}
}

// TruncatePrefixes builds a new container holding each string cut
// to lengths[i] characters (its own length if shorter), preserving
// origin attributes.
func TruncatePrefixes(c *sstr.Container, lengths []uint64) (*sstr.Container, error) {
	if len(lengths) != c.Len() {
		return nil, fmt.Errorf("%w: %d strings but %d prefix lengths",
			sstr.ErrMalformed, c.Len(), len(lengths))
	}
	total := 0
	for i := range lengths {
		l := lengths[i]
		if l > c.Length(i) {
			l = c.Length(i)
		}
		total += int(l) + 1
	}
	buf := make([]byte, 0, total)
	out := make([]sstr.String, c.Len())
	for i := 0; i < c.Len(); i++ {
		l := lengths[i]
		if l > c.Length(i) {
			l = c.Length(i)
		}
		s := c.String(i)
		s.Off = len(buf)
		s.Len = int(l)
		buf = append(buf, c.Prefix(i, l)...)
		buf = append(buf, 0)
		out[i] = s
	}
	cont, err := sstr.NewFromParts(buf, out, nil)
	if err != nil {
		return nil, err
	}
	cont.SetIndexed(c.Indexed())
	return cont, nil
}

// SortWithPrefixes sorts the indexed container by replacing every
// string with its distinguishing prefix before the exchange rounds,
// trading hash rounds for character volume. The returned container
// holds the sorted prefixes with their origin attributes, which is
// all a rank permutation needs.
func SortWithPrefixes(g *grid.Grid, strs *sstr.Container, cfg Config, pcfg PrefixConfig) (*sstr.Container, error) {
	if !strs.Indexed() {
		return nil, fmt.Errorf("%w: prefix sort needs an indexed container", sstr.ErrMalformed)
	}
	LocalSort(strs)
	lengths, err := DistinguishingPrefixes(g, strs, pcfg)
	if err != nil {
		return nil, err
	}
	trunc, err := TruncatePrefixes(strs, lengths)
	if err != nil {
		return nil, err
	}
	return Sort(g, trunc, cfg)
}
