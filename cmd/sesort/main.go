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

// sesort runs the space-efficient sorter: the input is cut into
// quantiles that are sorted one after another, so no rank ever
// holds more than roughly the quantile budget of characters. The
// output is a permutation plus global ranks rather than reordered
// strings.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/parsort/parsort/cmd/internal/cli"
	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/grid"
	"github.com/parsort/parsort/measure"
	"github.com/parsort/parsort/perm"
	"github.com/parsort/parsort/quantile"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("sesort: ")
	opts, err := cli.Parse("sesort", os.Args[1:], true)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Println(err)
		os.Exit(2)
	}
	if err := cli.Bootstrap(opts, func(c comm.Comm) error {
		return run(c, opts)
	}); err != nil {
		log.Fatal(err)
	}
}

func run(c comm.Comm, opts *cli.Options) error {
	g, err := grid.New(c, opts.GroupSizes)
	if err != nil {
		return err
	}
	rec := measure.New()
	for it := 0; it < opts.Iterations; it++ {
		rec.SetPrefix(fmt.Sprintf("%s quantile_size=%d iteration=%d",
			opts.Description(c.Size()), opts.QuantileSize, it))

		rec.Start("generation")
		strs, err := opts.Generate(c)
		if err != nil {
			return err
		}
		rec.Stop("generation")
		localSize := strs.Len()
		rec.Add("input_strings", uint64(localSize))
		rec.Add("input_chars", uint64(strs.SumLengths()))

		rec.Start("sorting")
		res, err := quantile.Sort(g, strs, opts.QuantileConfig())
		if err != nil {
			return err
		}
		rec.Stop("sorting")
		rec.Add("output_pieces", uint64(res.Perm.Pieces()))
		rec.Add("output_strings", uint64(res.Perm.Len()))

		if opts.Permutation == 2 {
			stats, err := quantile.CountDuplicateRanks(c, res.Ranks)
			if err != nil {
				return err
			}
			rec.Add("rank_total", stats.Total)
			rec.Add("rank_distinct", stats.Distinct)
			rec.Add("rank_duplicate", stats.Duplicate)
			rec.Add("rank_non_unique", stats.NonUnique)
		}

		if opts.CheckSorted || opts.CheckFull {
			rec.Start("checking")
			if err := check(c, opts, res, localSize); err != nil {
				return err
			}
			rec.Stop("checking")
			if opts.Verbose && c.Rank() == 0 {
				log.Printf("iteration %d verified", it)
			}
		}
		if err := rec.WriteOnRoot(os.Stdout, c); err != nil {
			return err
		}
		rec.Reset()
	}
	return nil
}

// check re-generates the input and verifies the permutation
// against it.
func check(c comm.Comm, opts *cli.Options, res *quantile.Result, localSize int) error {
	input, err := opts.Generate(c)
	if err != nil {
		return err
	}
	if err := perm.IsSorted(c, res.Perm, input); err != nil {
		return err
	}
	if opts.CheckFull {
		return perm.IsComplete(c, res.Perm, localSize)
	}
	return nil
}
