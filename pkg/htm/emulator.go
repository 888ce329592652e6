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

package htm

import (
	"github.com/lockelide/elide/pkg/atomicbitops"
)

// Emulator is a software Capability that replays a script of Begin results.
// The script is cycled when exhausted.
//
// An Emulator gives no isolation: a Begin that reports BeginStarted merely
// lets the caller run its critical section unprotected. Scripts that contain
// BeginStarted must therefore only be used from a single goroutine. Scripts
// made of aborts only are safe to share, since every guard then ends up on
// the fallback lock.
type Emulator struct {
	next    atomicbitops.Uint64
	begins  atomicbitops.Uint64
	aborts  atomicbitops.Uint64
	commits atomicbitops.Uint64

	script []Status
}

// NewEmulator returns an Emulator replaying script. It panics if script is
// empty.
func NewEmulator(script ...Status) *Emulator {
	if len(script) == 0 {
		panic("htm.NewEmulator: empty script")
	}
	return &Emulator{script: append([]Status(nil), script...)}
}

// Supported implements Capability.Supported.
func (e *Emulator) Supported() bool { return true }

// Begin implements Capability.Begin.
func (e *Emulator) Begin() Status {
	e.begins.Add(1)
	i := e.next.Add(1) - 1
	return e.script[i%uint64(len(e.script))]
}

// Abort implements Capability.Abort. It returns the status XBEGIN would
// report after the abort.
func (e *Emulator) Abort(code uint8) Status {
	e.aborts.Add(1)
	return ExplicitAbort(code, 0)
}

// End implements Capability.End.
func (e *Emulator) End() {
	e.commits.Add(1)
}

// Begins returns the number of Begin calls.
func (e *Emulator) Begins() uint64 { return e.begins.Load() }

// Aborts returns the number of Abort calls.
func (e *Emulator) Aborts() uint64 { return e.aborts.Load() }

// Commits returns the number of End calls.
func (e *Emulator) Commits() uint64 { return e.commits.Load() }
