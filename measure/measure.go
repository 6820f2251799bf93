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

// Package measure records per-rank timings and counters of a sort
// run and emits them on the root rank as RESULT key=value lines, one
// record per line, ready for ingestion by plotting scripts.
package measure

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parsort/parsort/comm"
)

// Recorder collects one rank's measurements. A recorder is owned by
// its rank and is not safe for concurrent use.
type Recorder struct {
	runID    string
	prefix   string
	disabled bool
	open     map[string]time.Time
	records  []record
}

type record struct {
	phase string
	key   string
	value uint64
}

// New creates a recorder with a fresh run id shared by all records.
func New() *Recorder {
	return &Recorder{runID: uuid.NewString(), open: make(map[string]time.Time)}
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string { return r.runID }

// SetPrefix sets the free-form description prepended to every
// emitted line, typically the configuration under test.
func (r *Recorder) SetPrefix(p string) {
	if p != "" && !strings.HasSuffix(p, " ") {
		p += " "
	}
	r.prefix = p
}

// Disable drops all subsequent records until Enable.
func (r *Recorder) Disable() { r.disabled = true }

// Enable resumes recording.
func (r *Recorder) Enable() { r.disabled = false }

// Start opens the named phase.
func (r *Recorder) Start(phase string) {
	if r.disabled {
		return
	}
	r.open[phase] = time.Now()
}

// Stop closes the named phase and records its duration in
// microseconds. Stopping a phase that was never started records
// nothing.
func (r *Recorder) Stop(phase string) {
	if r.disabled {
		return
	}
	begin, ok := r.open[phase]
	if !ok {
		return
	}
	delete(r.open, phase)
	r.records = append(r.records, record{
		phase: phase,
		key:   "time",
		value: uint64(time.Since(begin).Microseconds()),
	})
}

// Add records a counter outside any phase.
func (r *Recorder) Add(key string, value uint64) {
	r.AddPhase("none", key, value)
}

// AddPhase records a counter attributed to a phase.
func (r *Recorder) AddPhase(phase, key string, value uint64) {
	if r.disabled {
		return
	}
	r.records = append(r.records, record{phase: phase, key: key, value: value})
}

// Reset drops all records and open phases; the run id and prefix
// are kept.
func (r *Recorder) Reset() {
	r.records = nil
	r.open = make(map[string]time.Time)
}

func (r *Recorder) render(rank int) string {
	var b strings.Builder
	for _, rec := range r.records {
		fmt.Fprintf(&b, "RESULT %srun=%s rank=%d phase=%s key=%s value=%d\n",
			r.prefix, r.runID, rank, rec.phase, rec.key, rec.value)
	}
	return b.String()
}

// WriteOnRoot gathers every rank's records and writes them on rank
// 0. All ranks of the communicator must call it.
func (r *Recorder) WriteOnRoot(w io.Writer, c comm.Comm) error {
	all, err := c.Allgather([]byte(r.render(c.Rank())))
	if err != nil {
		return err
	}
	if c.Rank() != 0 {
		return nil
	}
	for _, lines := range all {
		if _, err := w.Write(lines); err != nil {
			return err
		}
	}
	return nil
}
