// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elide

import (
	"fmt"

	"github.com/lockelide/elide/pkg/htm"
)

// MinUserCode is the smallest valid user abort code. Smaller codes are
// reserved for the elision protocol.
//
// A constant can be checked at compile time:
//
//	const myCode = 0x20
//	const _ = uint8(myCode - elide.MinUserCode) // does not compile if myCode < MinUserCode
const MinUserCode = htm.ReservedMax + 1

// Code is a user abort code. Valid codes can only be made by MustCode, so a
// Code held by a program is always outside the reserved range. The zero
// Code means "no abort".
type Code struct {
	v uint8
}

// MustCode returns the Code for v. It panics if v is reserved.
//
// Codes are meant to be defined once, as package-level variables:
//
//	var errStale = elide.MustCode(0x21)
//
// so that an invalid code stops the program during initialization, before
// any guard runs.
func MustCode(v uint8) Code {
	if v < MinUserCode {
		panic(fmt.Sprintf("elide: abort code %#x is reserved (codes below %#x are internal)", v, MinUserCode))
	}
	return Code{v: v}
}

// Value returns the raw code.
func (c Code) Value() uint8 {
	return c.v
}

// IsZero returns true for the zero Code.
func (c Code) IsZero() bool {
	return c.v == 0
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if c.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%#x", c.v)
}
