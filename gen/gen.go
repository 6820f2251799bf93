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

// Package gen produces benchmark inputs. All generators are
// deterministic in (seed, rank count): running twice with the same
// seed and rank count yields the same global input. DNRatio and the
// text and file generators yield the same global input for any rank
// count; RandomChars seeds every rank separately, so its global input
// changes with the rank count.
package gen

import (
	"encoding/binary"
	"math"
	"math/rand"

	"golang.org/x/crypto/blake2b"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/ints"
	"github.com/parsort/parsort/sstr"
)

// rankSeed derives an independent per-rank stream from the shared
// seed.
func rankSeed(seed uint64, rank int) int64 {
	var msg [16]byte
	binary.LittleEndian.PutUint64(msg[:8], seed)
	binary.LittleEndian.PutUint64(msg[8:], uint64(rank))
	sum := blake2b.Sum256(msg[:])
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

// RandomChars generates count local strings of lengths in
// [minLen, maxLen] over the lowercase alphabet.
func RandomChars(c comm.Comm, count, minLen, maxLen int, seed uint64) *sstr.Container {
	rng := rand.New(rand.NewSource(rankSeed(seed, c.Rank())))
	if maxLen < minLen {
		maxLen = minLen
	}
	var buf []byte
	for i := 0; i < count; i++ {
		n := minLen
		if maxLen > minLen {
			n += rng.Intn(maxLen - minLen + 1)
		}
		for j := 0; j < n; j++ {
			buf = append(buf, byte('a'+rng.Intn(26)))
		}
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf)
}

// DNRatio generates total strings of the given length across all
// ranks. The first k characters encode a random number below total
// in base 26, where k = max(length*dn, log26(total)); the remainder
// is constant filler, so dn steers the ratio of the distinguishing
// prefix to the string length. Every rank consumes the same shared
// random stream and keeps its contiguous chunk.
func DNRatio(c comm.Comm, total, length int, dn float64, seed uint64) *sstr.Container {
	k := int(float64(length) * dn)
	if total > 1 {
		if m := int(math.Ceil(math.Log(float64(total)) / math.Log(26))); m > k {
			k = m
		}
	}
	if k < 1 {
		k = 1
	}
	if k > length {
		k = length
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	iv := ints.Chunk(total, c.Size(), c.Rank())
	var buf []byte
	for i := 0; i < total; i++ {
		v := rng.Int63n(int64(total))
		if !iv.Contains(i) {
			continue
		}
		s := make([]byte, length)
		for j := range s {
			s[j] = 'A'
		}
		for j := k - 1; j >= 0 && v > 0; j-- {
			s[j] = byte('A' + v%26)
			v /= 26
		}
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf)
}
