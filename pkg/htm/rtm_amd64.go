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

//go:build amd64 && !race
// +build amd64,!race

package htm

const rtmCompiled = true

// xbegin executes XBEGIN. It returns BeginStarted inside the transaction and
// the abort status after an abort, when execution resumes inside xbegin.
func xbegin() uint32

// xabort executes XABORT with the given code. Outside a transaction it is a
// no-op and returns.
func xabort(code uint8)

// xend executes XEND.
func xend()

// xtest executes XTEST.
func xtest() bool

// rtm is the Intel RTM Capability.
type rtm struct{}

var hostRTM = func() Capability {
	if HostFeatures().Usable() {
		return rtm{}
	}
	return nil
}()

// RTM returns the hardware Capability, or nil if the host cannot run RTM
// transactions.
func RTM() Capability {
	return hostRTM
}

// Supported implements Capability.Supported.
func (rtm) Supported() bool { return true }

// Begin implements Capability.Begin.
//
//go:nosplit
func (rtm) Begin() Status { return Status(xbegin()) }

// Abort implements Capability.Abort. Inside a transaction it does not
// return. Outside one it returns the status an abort would have reported.
//
//go:nosplit
func (rtm) Abort(code uint8) Status {
	xabort(code)
	return ExplicitAbort(code, 0)
}

// End implements Capability.End.
//
//go:nosplit
func (rtm) End() { xend() }

// Active returns true if the calling thread is inside a transaction.
func Active() bool {
	return hostRTM != nil && xtest()
}
