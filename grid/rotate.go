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

package grid

import (
	"fmt"

	"github.com/parsort/parsort/comm"
)

// RotateRight sends buf to the cyclic successor and returns the
// bytes received from the predecessor. A rank with skip set does not
// contribute its own payload; it relays the predecessor's payload to
// the successor unchanged, so empty ranks drop out of the ring
// without shifting everyone else. Rank 0 must not skip.
func RotateRight(c comm.Comm, buf []byte, skip bool) ([]byte, error) {
	if c.Size() == 1 {
		return append([]byte(nil), buf...), nil
	}
	if skip && c.Rank() == 0 {
		return nil, fmt.Errorf("%w: rank 0 cannot relay", comm.ErrTransport)
	}
	succ := Shift(c.Rank(), 1, c.Size())
	pred := Shift(c.Rank(), -1, c.Size())
	if skip {
		in, err := c.Recv(pred)
		if err != nil {
			return nil, err
		}
		if err := c.Send(succ, in); err != nil {
			return nil, err
		}
		return in, nil
	}
	if err := c.Send(succ, buf); err != nil {
		return nil, err
	}
	return c.Recv(pred)
}
