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

// dmsort runs the distributed merge sort over generated or
// file-backed strings and reports RESULT measurement lines on the
// root rank.
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
	"github.com/parsort/parsort/msort"
	"github.com/parsort/parsort/perm"
	"github.com/parsort/parsort/sstr"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("dmsort: ")
	opts, err := cli.Parse("dmsort", os.Args[1:], false)
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
	needIdx := opts.CheckSorted || opts.CheckFull ||
		opts.SampleConfig().Policy.Indexed() || opts.Doubling
	for it := 0; it < opts.Iterations; it++ {
		rec.SetPrefix(fmt.Sprintf("%s iteration=%d", opts.Description(c.Size()), it))

		rec.Start("generation")
		strs, err := opts.Generate(c)
		if err != nil {
			return err
		}
		rec.Stop("generation")
		if needIdx {
			cli.Stamp(c, strs)
		}
		rec.Add("input_strings", uint64(strs.Len()))
		rec.Add("input_chars", uint64(strs.SumLengths()))

		rec.Start("sorting")
		var out *sstr.Container
		if opts.Doubling {
			out, err = msort.SortWithPrefixes(g, strs, opts.SortConfig(), opts.PrefixConfig())
		} else {
			out, err = msort.Sort(g, strs, opts.SortConfig())
		}
		if err != nil {
			return err
		}
		rec.Stop("sorting")
		rec.Add("output_strings", uint64(out.Len()))
		rec.Add("output_chars", uint64(out.SumLengths()))
		imb, err := msort.Imbalance(c, out.Len())
		if err != nil {
			return err
		}
		rec.Add("imbalance_pct", uint64(imb * 100))

		if opts.CheckSorted || opts.CheckFull {
			rec.Start("checking")
			if err := check(c, opts, out); err != nil {
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

// check re-generates the input and verifies the output as a
// permutation of it.
func check(c comm.Comm, opts *cli.Options, out *sstr.Container) error {
	p, err := perm.FromContainer(out)
	if err != nil {
		return err
	}
	input, err := opts.Generate(c)
	if err != nil {
		return err
	}
	if err := perm.IsSorted(c, p, input); err != nil {
		return err
	}
	if opts.CheckFull {
		return perm.IsComplete(c, p, input.Len())
	}
	return nil
}
