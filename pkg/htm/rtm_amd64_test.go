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

import (
	"testing"
)

func requireRTM(t *testing.T) Capability {
	t.Helper()
	c := RTM()
	if c == nil {
		t.Skipf("RTM not usable on this host: %+v", HostFeatures())
	}
	return c
}

func TestRTMCommit(t *testing.T) {
	c := requireRTM(t)

	// Transactions may abort for reasons outside our control (interrupts,
	// preemption), so try a number of times.
	v := 0
	for i := 0; i < 1000; i++ {
		if st := c.Begin(); st.Started() {
			v++
			c.End()
			break
		}
	}
	if v != 1 {
		t.Skipf("no transaction committed in 1000 attempts")
	}
}

func TestRTMAbortCode(t *testing.T) {
	c := requireRTM(t)

	v := 0
	for i := 0; i < 1000; i++ {
		st := c.Begin()
		if st.Started() {
			v = 1
			c.Abort(0x5a)
			t.Fatalf("Abort returned inside a transaction")
		}
		if o := st.Outcome(); o.Kind == KindExplicit {
			if o.Code != 0x5a {
				t.Fatalf("abort code got %#x want 0x5a", o.Code)
			}
			if v != 0 {
				t.Fatalf("store inside aborted transaction is visible")
			}
			return
		}
	}
	t.Skipf("no explicit abort observed in 1000 attempts")
}

func TestXabortOutsideTransaction(t *testing.T) {
	c := requireRTM(t)
	if Active() {
		t.Fatalf("Active() inside test body")
	}
	for code := 0; code < 256; code++ {
		if got, want := c.Abort(uint8(code)), ExplicitAbort(uint8(code), 0); got != want {
			t.Fatalf("Abort(%#x) outside a transaction got %v want %v", code, got, want)
		}
	}
}
