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

// Package shash provides the stable 64-bit string hashes used by the
// duplicate filter. All hashers map a byte prefix into [0, 2^64) and
// support an incremental form that combines a previous hash with the
// hash of an extension, so prefix hashes can be rolled forward when
// the doubling depth grows.
package shash

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Hasher is a stable 64-bit string hash.
type Hasher interface {
	// Name identifies the hash function.
	Name() string
	// Sum64 hashes b into [0, 2^64).
	Sum64(b []byte) uint64
	// Roll combines a prior hash with the hash of the extension
	// bytes. Roll(Sum64(a), b) is stable for fixed a and b, but
	// is not required to equal Sum64(a||b).
	Roll(prior uint64, ext []byte) uint64
}

// Kind selects a hash function at configuration time.
type Kind int

const (
	SipHash Kind = iota
	XXHash
	XXH3
	Murmur
)

func (k Kind) String() string {
	switch k {
	case SipHash:
		return "siphash"
	case XXHash:
		return "xxhash"
	case XXH3:
		return "xxh3"
	case Murmur:
		return "murmur3"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// New returns the hasher for k, keyed/seeded with seed; the
// XXHash hasher is unseeded and ignores seed.
// Every rank must use the same kind and seed.
func New(k Kind, seed uint64) (Hasher, error) {
	switch k {
	case SipHash:
		return sipHasher{k0: seed, k1: seed ^ 0x736f6d6570736575}, nil
	case XXHash:
		return xxHasher{}, nil
	case XXH3:
		return xxh3Hasher{seed: seed}, nil
	case Murmur:
		return murmurHasher{seed: uint32(seed)}, nil
	}
	return nil, fmt.Errorf("shash: unknown hash kind %d", int(k))
}

type sipHasher struct {
	k0, k1 uint64
}

func (s sipHasher) Name() string        { return "siphash" }
func (s sipHasher) Sum64(b []byte) uint64 { return siphash.Hash(s.k0, s.k1, b) }
func (s sipHasher) Roll(prior uint64, ext []byte) uint64 {
	return prior ^ siphash.Hash(s.k0, s.k1, ext)
}

type xxHasher struct{}

func (xxHasher) Name() string          { return "xxhash" }
func (xxHasher) Sum64(b []byte) uint64 { return xxhash.Sum64(b) }
func (xxHasher) Roll(prior uint64, ext []byte) uint64 {
	return prior ^ xxhash.Sum64(ext)
}

type xxh3Hasher struct {
	seed uint64
}

func (xxh3Hasher) Name() string { return "xxh3" }
func (h xxh3Hasher) Sum64(b []byte) uint64 {
	return xxh3.HashSeed(b, h.seed)
}
func (h xxh3Hasher) Roll(prior uint64, ext []byte) uint64 {
	return prior ^ xxh3.HashSeed(ext, h.seed)
}

type murmurHasher struct {
	seed uint32
}

func (murmurHasher) Name() string { return "murmur3" }
func (h murmurHasher) Sum64(b []byte) uint64 {
	return murmur3.Sum64WithSeed(b, h.seed)
}
func (h murmurHasher) Roll(prior uint64, ext []byte) uint64 {
	return prior ^ murmur3.Sum64WithSeed(ext, h.seed)
}
