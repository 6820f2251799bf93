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

package gen

import (
	"bytes"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/parsort/parsort/comm"
	"github.com/parsort/parsort/ints"
	"github.com/parsort/parsort/sstr"
)

// FromFile maps the newline-separated file at path and returns this
// rank's share of its lines. The file is cut into near-equal byte
// chunks; a line belongs to the rank whose chunk contains its first
// byte.
func FromFile(c comm.Comm, path string) (*sstr.Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("gen: mapping %s: %w", path, err)
	}
	defer m.Unmap()
	return fromLines([]byte(m), c.Rank(), c.Size()), nil
}

// ReadText maps the file at path and returns a copy of its raw
// bytes, for generators that consume whole texts.
func ReadText(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("gen: mapping %s: %w", path, err)
	}
	defer m.Unmap()
	return append([]byte(nil), m...), nil
}

func fromLines(data []byte, rank, size int) *sstr.Container {
	iv := ints.Chunk(len(data), size, rank)
	start, end := iv.Start, iv.End
	// snap both edges forward to line starts
	if start > 0 {
		off := bytes.IndexByte(data[start-1:], '\n')
		if off < 0 {
			return sstr.NewFromBytes(nil)
		}
		start += off
	}
	if end < len(data) {
		off := bytes.IndexByte(data[end-1:], '\n')
		if off < 0 {
			end = len(data)
		} else {
			end += off
		}
	}
	var buf []byte
	for _, line := range bytes.Split(data[start:end], []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, 0)
	}
	return sstr.NewFromBytes(buf)
}
