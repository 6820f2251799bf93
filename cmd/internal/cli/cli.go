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

// Package cli carries the option handling shared by the sorter
// executables: flag parsing with an optional YAML config file,
// communicator bootstrap and input generation.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/parsort/parsort/bloom"
	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/exchange"
	"github.com/parsort/parsort/gen"
	"github.com/parsort/parsort/ints"
	"github.com/parsort/parsort/msort"
	"github.com/parsort/parsort/quantile"
	"github.com/parsort/parsort/sample"
	"github.com/parsort/parsort/shash"
	"github.com/parsort/parsort/sstr"
)

// Options is one run's configuration. Every field can come from the
// YAML config file named by -f; command line flags override it.
type Options struct {
	NumStrings   int     `json:"numStrings"`
	LenStrings   int     `json:"lenStrings"`
	NumChars     int     `json:"numChars"`
	DNRatio      float64 `json:"dnRatio"`
	Iterations   int     `json:"iterations"`
	SamplePolicy int     `json:"samplePolicy"`
	Alltoall     int     `json:"alltoall"`
	LCP          bool    `json:"lcp"`
	Prefix       bool    `json:"prefix"`
	Doubling     bool    `json:"doubling"`
	Golomb       int     `json:"golomb"`
	Permutation  int     `json:"permutation"`
	QuantileSize uint64  `json:"quantileSize"`
	CheckSorted  bool    `json:"checkSorted"`
	CheckFull    bool    `json:"checkFull"`
	Verbose      bool    `json:"verbose"`

	Generator string `json:"generator"`
	Path      string `json:"path"`
	Period    int    `json:"period"`
	Seed      uint64 `json:"seed"`
	Hash      int    `json:"hash"`

	Procs int    `json:"procs"`
	Rank  int    `json:"rank"`
	Hosts string `json:"hosts"`

	GroupSizes []int  `json:"groupSizes"`
	ConfigFile string `json:"-"`
}

func defaults() *Options {
	return &Options{
		NumStrings:   100000,
		LenStrings:   32,
		DNRatio:      0.5,
		Iterations:   1,
		QuantileSize: 100 << 20,
		Generator:    "dn",
		Period:       3,
		Seed:         1,
		Procs:        1,
	}
}

// configFile pre-scans the arguments for -f/--config so the file
// can seed the flag defaults before parsing.
func configFile(args []string) string {
	for i, a := range args {
		switch {
		case a == "-f" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-f="):
			return a[len("-f="):]
		case strings.HasPrefix(a, "--config="):
			return a[len("--config="):]
		}
	}
	return ""
}

// Parse builds the options from an optional config file and the
// command line. Positional arguments are the decreasing group sizes
// of the communicator grid. spaceEfficient additionally registers
// the quantile and permutation flags.
func Parse(name string, args []string, spaceEfficient bool) (*Options, error) {
	o := defaults()
	if path := configFile(args); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(buf, o); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	intBoth := func(p *int, short, long, usage string) {
		fs.IntVar(p, short, *p, usage)
		fs.IntVar(p, long, *p, usage)
	}
	intBoth(&o.NumStrings, "n", "num-strings", "total number of generated strings")
	intBoth(&o.LenStrings, "m", "len-strings", "length of generated strings")
	intBoth(&o.NumChars, "N", "num-chars", "total character volume; overrides -n when set")
	fs.Float64Var(&o.DNRatio, "r", o.DNRatio, "distinguishing prefix to length ratio")
	fs.Float64Var(&o.DNRatio, "dn-ratio", o.DNRatio, "distinguishing prefix to length ratio")
	intBoth(&o.Iterations, "i", "num-iterations", "number of sort runs")
	intBoth(&o.SamplePolicy, "s", "sample-policy", "splitter sampling policy (0..3)")
	intBoth(&o.Alltoall, "a", "alltoall-routine", "exchange routine: 0 plain, 1 zstd, 2 s2")
	fs.BoolVar(&o.LCP, "l", o.LCP, "enable LCP compression of exchanged strings")
	fs.BoolVar(&o.Prefix, "p", o.Prefix, "Golomb-code the exchanged LCP values; implies -l")
	fs.BoolVar(&o.Doubling, "d", o.Doubling, "sort distinguishing prefixes via doubling")
	intBoth(&o.Golomb, "g", "golomb", "hash value compression: 0 off, 1 hashes, 2 full")
	if spaceEfficient {
		intBoth(&o.Permutation, "o", "permutation", "permutation flavor: 0 simple, 1 multi-level, 2 non-unique")
		fs.Uint64Var(&o.QuantileSize, "q", o.QuantileSize, "per-rank character budget of one quantile")
		fs.Uint64Var(&o.QuantileSize, "quantile-size", o.QuantileSize, "per-rank character budget of one quantile")
	}
	fs.BoolVar(&o.CheckSorted, "c", o.CheckSorted, "verify the output order")
	fs.BoolVar(&o.CheckFull, "C", o.CheckFull, "verify order and completeness")
	fs.BoolVar(&o.Verbose, "v", o.Verbose, "verbose progress on the root rank")

	fs.StringVar(&o.Generator, "generator", o.Generator, "input source: dn, random, file, suffix, window, dc")
	fs.StringVar(&o.Path, "path", o.Path, "input file for file-backed generators")
	fs.IntVar(&o.Period, "period", o.Period, "difference cover period for the dc generator")
	fs.Uint64Var(&o.Seed, "seed", o.Seed, "random seed")
	fs.IntVar(&o.Hash, "hash", o.Hash, "doubling hash: 0 siphash, 1 xxhash, 2 xxh3, 3 murmur")

	fs.IntVar(&o.Procs, "procs", o.Procs, "in-process world size")
	fs.IntVar(&o.Rank, "rank", o.Rank, "world rank of this process in a TCP mesh")
	fs.StringVar(&o.Hosts, "hosts", o.Hosts, "comma-separated listen addresses, one per rank")
	fs.StringVar(&o.ConfigFile, "f", o.ConfigFile, "YAML config file")
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "YAML config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		o.GroupSizes = o.GroupSizes[:0]
		for _, a := range rest {
			s, err := strconv.Atoi(a)
			if err != nil {
				return nil, fmt.Errorf("group size %q: %w", a, err)
			}
			o.GroupSizes = append(o.GroupSizes, s)
		}
	}
	if o.Prefix {
		o.LCP = true
	}
	return o, o.validate(spaceEfficient)
}

func (o *Options) validate(spaceEfficient bool) error {
	if o.SamplePolicy < 0 || o.SamplePolicy > 3 {
		return fmt.Errorf("sample policy %d out of range", o.SamplePolicy)
	}
	if o.Alltoall < 0 || o.Alltoall > 2 {
		return fmt.Errorf("alltoall routine %d out of range", o.Alltoall)
	}
	if o.Golomb < 0 || o.Golomb > 2 {
		return fmt.Errorf("golomb option %d out of range", o.Golomb)
	}
	if spaceEfficient && (o.Permutation < 0 || o.Permutation > 2) {
		return fmt.Errorf("permutation flavor %d out of range", o.Permutation)
	}
	if o.Iterations < 1 {
		return fmt.Errorf("%d iterations", o.Iterations)
	}
	if o.Hash < 0 || o.Hash > 3 {
		return fmt.Errorf("hash kind %d out of range", o.Hash)
	}
	if o.Hosts == "" && o.Procs < 1 {
		return fmt.Errorf("world size %d", o.Procs)
	}
	return nil
}

// Bootstrap runs fn on every rank of the configured world: once in
// this process when a TCP mesh is configured, or on procs
// goroutines of an in-process world otherwise.
func Bootstrap(o *Options, fn func(c comm.Comm) error) error {
	if o.Hosts != "" {
		addrs := strings.Split(o.Hosts, ",")
		m, err := comm.DialMesh(o.Rank, addrs)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m)
	}
	return comm.Run(o.Procs, fn)
}

// numStrings resolves -n against -N: a character volume divides
// into strings of the configured length plus terminator.
func (o *Options) numStrings() int {
	if o.NumChars > 0 {
		n := o.NumChars / (o.LenStrings + 1)
		if n < 1 {
			n = 1
		}
		return n
	}
	return o.NumStrings
}

// Generate produces this rank's share of the input.
func (o *Options) Generate(c comm.Comm) (*sstr.Container, error) {
	switch o.Generator {
	case "", "dn":
		return gen.DNRatio(c, o.numStrings(), o.LenStrings, o.DNRatio, o.Seed), nil
	case "random":
		iv := ints.Chunk(o.numStrings(), c.Size(), c.Rank())
		return gen.RandomChars(c, iv.End-iv.Start, 1, o.LenStrings, o.Seed), nil
	case "file":
		return gen.FromFile(c, o.Path)
	case "suffix":
		text, err := gen.ReadText(o.Path)
		if err != nil {
			return nil, err
		}
		return gen.Suffix(c, text), nil
	case "window":
		text, err := gen.ReadText(o.Path)
		if err != nil {
			return nil, err
		}
		return gen.Window(c, text, o.LenStrings), nil
	case "dc":
		text, err := gen.ReadText(o.Path)
		if err != nil {
			return nil, err
		}
		return gen.DifferenceCover(c, text, o.Period)
	}
	return nil, fmt.Errorf("unknown generator %q", o.Generator)
}

// Stamp attaches (rank, slot) origins so the output order can be
// expressed as a permutation of the input.
func Stamp(c comm.Comm, strs *sstr.Container) {
	recs := strs.Strings()
	for i := range recs {
		recs[i].PE = uint32(c.Rank())
		recs[i].Index = uint64(i)
	}
	strs.SetIndexed(true)
}

// SampleConfig maps the policy number to the sampling knobs.
func (o *Options) SampleConfig() sample.Config {
	return sample.Config{Policy: sample.Policy(o.SamplePolicy)}
}

// ExchangeConfig maps -l, -p and -a to the exchange knobs.
func (o *Options) ExchangeConfig() exchange.Config {
	cfg := exchange.Config{}
	if o.LCP {
		cfg.Mode = exchange.LCP
	}
	if o.Prefix {
		cfg.Mode = exchange.LCPGolomb
	}
	switch o.Alltoall {
	case 1:
		cfg.Compression = "zstd"
	case 2:
		cfg.Compression = "s2"
	}
	return cfg
}

// SortConfig bundles the merge sort knobs.
func (o *Options) SortConfig() msort.Config {
	return msort.Config{Sampling: o.SampleConfig(), Exchange: o.ExchangeConfig()}
}

// PrefixConfig bundles the doubling knobs.
func (o *Options) PrefixConfig() msort.PrefixConfig {
	return msort.PrefixConfig{
		Hash:   shash.Kind(o.Hash),
		Seed:   o.Seed,
		Golomb: bloom.Golomb(o.Golomb),
	}
}

// QuantileConfig bundles the space-efficient knobs.
func (o *Options) QuantileConfig() quantile.Config {
	return quantile.Config{
		Size:     o.QuantileSize,
		Sampling: o.SampleConfig(),
		Sort:     o.SortConfig(),
		Doubling: o.Doubling,
		Prefix:   o.PrefixConfig(),
	}
}

// Description is the constant part of the RESULT line prefix.
func (o *Options) Description(worldSize int) string {
	return fmt.Sprintf("num_procs=%d num_strings=%d len_strings=%d generator=%s sample_policy=%s exchange=%s",
		worldSize, o.numStrings(), o.LenStrings, o.generatorName(),
		sample.Policy(o.SamplePolicy), o.ExchangeConfig().Mode)
}

func (o *Options) generatorName() string {
	if o.Generator == "" {
		return "dn"
	}
	return o.Generator
}
