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
	"github.com/klauspost/cpuid/v2"
)

// Features describes the host's transactional memory support.
type Features struct {
	// Vendor and Brand identify the CPU.
	Vendor string
	Brand  string

	// RTM is set if the CPU advertises Restricted Transactional Memory.
	RTM bool

	// HLE is set if the CPU advertises Hardware Lock Elision prefixes.
	HLE bool

	// AlwaysAbort is set if microcode forces every RTM transaction to
	// abort (TSX disabled after TAA mitigations).
	AlwaysAbort bool

	// Compiled is set if this binary contains the RTM instructions. It is
	// false on non-amd64 builds and under the race detector.
	Compiled bool
}

// Usable returns true if RTM transactions can commit on this host.
func (f Features) Usable() bool {
	return f.Compiled && f.RTM && !f.AlwaysAbort
}

// HostFeatures returns the transactional memory features of the host.
func HostFeatures() Features {
	return Features{
		Vendor:      cpuid.CPU.VendorString,
		Brand:       cpuid.CPU.BrandName,
		RTM:         cpuid.CPU.Supports(cpuid.RTM),
		HLE:         cpuid.CPU.Supports(cpuid.HLE),
		AlwaysAbort: cpuid.CPU.Supports(cpuid.RTM_ALWAYS_ABORT),
		Compiled:    rtmCompiled,
	}
}
