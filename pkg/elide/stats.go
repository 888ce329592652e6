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
	"io"
	"text/tabwriter"
)

// Reason is the bucket an abort is counted in.
type Reason int

// Abort reasons.
const (
	// ReasonConflict counts data conflicts with other processors.
	ReasonConflict Reason = iota

	// ReasonCapacity counts transactions that overflowed the hardware
	// buffers.
	ReasonCapacity

	// ReasonExplicit counts explicit aborts with a reserved code other
	// than the lock-taken one.
	ReasonExplicit

	// ReasonLockTaken counts transactions that found the fallback lock
	// held.
	ReasonLockTaken

	// ReasonOther counts everything else, including nested aborts.
	ReasonOther

	// NumReasons is the number of reasons.
	NumReasons
)

var reasonNames = [NumReasons]string{
	ReasonConflict:  "conflict",
	ReasonCapacity:  "capacity",
	ReasonExplicit:  "explicit",
	ReasonLockTaken: "lock_taken",
	ReasonOther:     "other",
}

// String implements fmt.Stringer.
func (r Reason) String() string {
	if r >= 0 && r < NumReasons {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Stats counts guard outcomes. A Stats is written by one goroutine at a
// time, typically one per worker; totals across workers are computed with
// Aggregate once the workers are done.
//
// Every attempt that does not end in a user abort counts one start and
// either one abort (in exactly one reason bucket) or one commit, so
// Starts() == Aborts() + Commits(). Every guard that takes the fallback
// lock counts one lock acquisition.
type Stats struct {
	starts           uint64
	commits          uint64
	aborts           uint64
	lockAcquisitions uint64
	abortsByReason   [NumReasons]uint64
}

// Starts returns the number of resolved transaction attempts.
func (s *Stats) Starts() uint64 { return s.starts }

// Commits returns the number of committed transactions.
func (s *Stats) Commits() uint64 { return s.commits }

// Aborts returns the number of aborted transactions, excluding user aborts.
func (s *Stats) Aborts() uint64 { return s.aborts }

// LockAcquisitions returns the number of guards that ran under the fallback
// lock.
func (s *Stats) LockAcquisitions() uint64 { return s.lockAcquisitions }

// AbortsByReason returns the number of aborts counted for r. It returns 0
// for a Reason outside [0, NumReasons).
func (s *Stats) AbortsByReason(r Reason) uint64 {
	if r < 0 || r >= NumReasons {
		return 0
	}
	return s.abortsByReason[r]
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	*s = Stats{}
}

// abort records an aborted attempt. s may be nil.
func (s *Stats) abort(r Reason) {
	if s == nil {
		return
	}
	s.starts++
	s.aborts++
	s.abortsByReason[r]++
}

// commit records a committed attempt. s may be nil.
func (s *Stats) commit() {
	if s == nil {
		return
	}
	s.starts++
	s.commits++
}

// lockAcquired records a fallback lock acquisition. s may be nil.
func (s *Stats) lockAcquired() {
	if s == nil {
		return
	}
	s.lockAcquisitions++
}

// Merge returns the field-wise sum of a and b.
func Merge(a, b Stats) Stats {
	r := Stats{
		starts:           a.starts + b.starts,
		commits:          a.commits + b.commits,
		aborts:           a.aborts + b.aborts,
		lockAcquisitions: a.lockAcquisitions + b.lockAcquisitions,
	}
	for i := range r.abortsByReason {
		r.abortsByReason[i] = a.abortsByReason[i] + b.abortsByReason[i]
	}
	return r
}

// Aggregate returns the sum of all stats. Since Merge is commutative and
// associative, the order of stats does not matter.
func Aggregate(stats []Stats) Stats {
	var total Stats
	for i := range stats {
		total = Merge(total, stats[i])
	}
	return total
}

// WriteTo writes a human readable summary of s to w.
func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Starts:\t%d\n", s.starts)
	fmt.Fprintf(tw, "Commits:\t%d\n", s.commits)
	fmt.Fprintf(tw, "Aborts:\t%d\n", s.aborts)
	fmt.Fprintf(tw, "Lock acquisitions:\t%d\n", s.lockAcquisitions)
	for r := Reason(0); r < NumReasons; r++ {
		fmt.Fprintf(tw, "Aborts (%s):\t%d\n", r, s.abortsByReason[r])
	}
	err := tw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
