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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// recorder builds cleaners that append their id to calls.
type recorder struct {
	calls []int
}

func (r *recorder) cleaner(id int) func() {
	return func() { r.calls = append(r.calls, id) }
}

func TestClean(t *testing.T) {
	for _, tc := range []struct {
		name  string
		added int
		want  []int
	}{
		{name: "made only", added: 0, want: []int{0}},
		{name: "reverse order", added: 3, want: []int{3, 2, 1, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var r recorder
			cu := Make(r.cleaner(0))
			for i := 1; i <= tc.added; i++ {
				cu.Add(r.cleaner(i))
			}
			cu.Clean()
			if diff := cmp.Diff(tc.want, r.calls); diff != "" {
				t.Errorf("cleaners mismatch (-want +got):\n%s", diff)
			}

			// A second Clean is a no-op.
			cu.Clean()
			if diff := cmp.Diff(tc.want, r.calls); diff != "" {
				t.Errorf("second Clean ran cleaners (-want +got):\n%s", diff)
			}
		})
	}
}

func TestZeroValue(t *testing.T) {
	var r recorder
	var cu Cleanup
	cu.Clean()
	cu.Add(r.cleaner(1))
	cu.Add(r.cleaner(2))
	cu.Clean()
	if diff := cmp.Diff([]int{2, 1}, r.calls); diff != "" {
		t.Errorf("cleaners mismatch (-want +got):\n%s", diff)
	}
}

// deferredRelease returns the cleaners of a Cleanup released inside a
// function that also defers Clean, as callers do on success.
func deferredRelease(r *recorder) func() {
	cu := Make(r.cleaner(0))
	defer cu.Clean()
	cu.Add(r.cleaner(1))
	return cu.Release()
}

func TestRelease(t *testing.T) {
	var r recorder
	release := deferredRelease(&r)
	if len(r.calls) != 0 {
		t.Fatalf("cleaners ran despite Release: %v", r.calls)
	}
	release()
	if diff := cmp.Diff([]int{1, 0}, r.calls); diff != "" {
		t.Errorf("released cleaners mismatch (-want +got):\n%s", diff)
	}
}
