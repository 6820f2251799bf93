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

package measure

import (
	"strings"
	"testing"

	"github.com/parsort/parsort/comm"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.SetPrefix("mode=test")
	r.Start("sorting")
	r.Stop("sorting")
	r.Add("input_strings", 42)
	r.AddPhase("exchange", "sent_bytes", 1024)
	r.Stop("never-started")

	out := r.render(3)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("%d lines: %q", len(lines), out)
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "RESULT mode=test run="+r.RunID()+" rank=3 ") {
			t.Errorf("bad line %q", l)
		}
	}
	if !strings.Contains(lines[1], "phase=none key=input_strings value=42") {
		t.Errorf("counter line %q", lines[1])
	}
	if !strings.Contains(lines[2], "phase=exchange key=sent_bytes value=1024") {
		t.Errorf("phase counter line %q", lines[2])
	}
}

func TestRecorderDisable(t *testing.T) {
	r := New()
	r.Disable()
	r.Add("dropped", 1)
	r.Enable()
	r.Add("kept", 2)
	out := r.render(0)
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("disable not honored: %q", out)
	}
	r.Reset()
	if r.render(0) != "" {
		t.Fatal("reset kept records")
	}
}

func TestWriteOnRoot(t *testing.T) {
	outputs := make([]strings.Builder, 2)
	err := comm.Run(2, func(c comm.Comm) error {
		r := New()
		r.Add("local_strings", uint64(10+c.Rank()))
		return r.WriteOnRoot(&outputs[c.Rank()], c)
	})
	if err != nil {
		t.Fatal(err)
	}
	root := outputs[0].String()
	if !strings.Contains(root, "rank=0 phase=none key=local_strings value=10") ||
		!strings.Contains(root, "rank=1 phase=none key=local_strings value=11") {
		t.Fatalf("root output %q", root)
	}
	if outputs[1].Len() != 0 {
		t.Fatal("non-root rank wrote output")
	}
}
