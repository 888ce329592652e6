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

// Package htm abstracts hardware transactional memory.
//
// A Capability begins, aborts and commits transactions and reports why a
// transaction did not start in the form of an Intel RTM status word. The
// elision protocol in package elide only talks to this interface, so the
// same protocol runs on RTM hardware, on hosts without it (every attempt
// falls back to the lock) and against the software Emulator in tests.
package htm

import (
	"fmt"
	"strings"
)

// Status is an RTM status word as returned by XBEGIN.
type Status uint32

// Status values and abort bits, as defined by the Intel SDM.
const (
	// BeginStarted is returned by Begin when a transaction is open.
	BeginStarted Status = ^Status(0)

	// AbortExplicit is set when the transaction was aborted by XABORT. The
	// abort code is in bits 31:24.
	AbortExplicit Status = 1 << 0

	// AbortRetry is set when the transaction may succeed on retry.
	AbortRetry Status = 1 << 1

	// AbortConflict is set when another processor conflicted with a memory
	// address in the transaction's read or write set.
	AbortConflict Status = 1 << 2

	// AbortCapacity is set when the transaction overflowed an internal
	// buffer.
	AbortCapacity Status = 1 << 3

	// AbortDebug is set when a debug breakpoint was hit.
	AbortDebug Status = 1 << 4

	// AbortNested is set when the abort happened in a nested transaction.
	AbortNested Status = 1 << 5
)

// Abort codes at or below ReservedMax are used by the elision protocol
// itself. User codes must be strictly greater.
const (
	// ReservedMax is the largest protocol-internal abort code.
	ReservedMax uint8 = 0x0f

	// LockTakenCode is the abort code used when a transaction observes the
	// fallback lock held right after it started.
	LockTakenCode uint8 = 0x00
)

// ExplicitAbort returns the status word of a transaction aborted by XABORT
// with the given code. flags are or'ed in (e.g. AbortNested).
func ExplicitAbort(code uint8, flags Status) Status {
	return AbortExplicit | flags | Status(code)<<24
}

// Started returns true if s reports an open transaction.
func (s Status) Started() bool {
	return s == BeginStarted
}

// Code returns the XABORT code. It is only meaningful if AbortExplicit is
// set.
func (s Status) Code() uint8 {
	return uint8(s >> 24)
}

// Retry returns true if the hardware hints that a retry may succeed.
func (s Status) Retry() bool {
	return !s.Started() && s&AbortRetry != 0
}

// Nested returns true if the abort happened inside a nested transaction.
func (s Status) Nested() bool {
	return !s.Started() && s&AbortNested != 0
}

// Outcome decodes s.
func (s Status) Outcome() Outcome {
	switch {
	case s.Started():
		return Outcome{Kind: KindStarted}
	case s&AbortExplicit != 0:
		return Outcome{Kind: KindExplicit, Code: s.Code()}
	case s&AbortConflict != 0:
		return Outcome{Kind: KindConflict}
	case s&AbortCapacity != 0:
		return Outcome{Kind: KindCapacity}
	case s&AbortNested != 0:
		return Outcome{Kind: KindNested}
	default:
		return Outcome{Kind: KindOther}
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s.Started() {
		return "started"
	}
	var parts []string
	for _, b := range []struct {
		bit  Status
		name string
	}{
		{AbortExplicit, "explicit"},
		{AbortRetry, "retry"},
		{AbortConflict, "conflict"},
		{AbortCapacity, "capacity"},
		{AbortDebug, "debug"},
		{AbortNested, "nested"},
	} {
		if s&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	if s&AbortExplicit != 0 {
		return fmt.Sprintf("%s code=%#x", strings.Join(parts, "|"), s.Code())
	}
	return strings.Join(parts, "|")
}

// Kind classifies the result of Begin.
type Kind uint8

// Kinds of Outcome.
const (
	KindStarted Kind = iota
	KindConflict
	KindCapacity
	KindExplicit
	KindNested
	KindOther
)

var kindNames = [...]string{
	KindStarted:  "started",
	KindConflict: "conflict",
	KindCapacity: "capacity",
	KindExplicit: "explicit",
	KindNested:   "nested",
	KindOther:    "other",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Outcome is a decoded Status. Code is only set for KindExplicit.
type Outcome struct {
	Kind Kind
	Code uint8
}

// Capability is a transactional memory implementation.
//
// Begin, Abort and End follow XBEGIN, XABORT and XEND. A transaction
// belongs to the OS thread that began it; callers must not let the
// goroutine block between Begin and End.
type Capability interface {
	// Supported returns false if Begin can never start a transaction.
	Supported() bool

	// Begin starts a transaction. It returns BeginStarted if the
	// transaction is open. Otherwise it returns the status word of the
	// failed or aborted transaction.
	Begin() Status

	// Abort aborts the open transaction with the given code.
	//
	// On hardware Abort does not return: execution resumes at the Begin
	// call that opened the transaction, which returns the abort status.
	// Software implementations return that status instead.
	Abort(code uint8) Status

	// End commits the open transaction.
	End()
}

// unsupported is a Capability that never starts a transaction.
type unsupported struct{}

// Supported implements Capability.Supported.
func (unsupported) Supported() bool { return false }

// Begin implements Capability.Begin.
func (unsupported) Begin() Status { return 0 }

// Abort implements Capability.Abort.
func (unsupported) Abort(code uint8) Status { return ExplicitAbort(code, 0) }

// End implements Capability.End.
func (unsupported) End() {}

// Unsupported returns a Capability that never starts a transaction.
func Unsupported() Capability {
	return unsupported{}
}

// Host returns RTM if the host supports it and Unsupported otherwise.
func Host() Capability {
	if c := RTM(); c != nil {
		return c
	}
	return Unsupported()
}
