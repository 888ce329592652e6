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
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestBasicLock(t *testing.T) {
	var m FallbackLock

	m.Lock()
	if !m.IsLocked() {
		t.Fatalf("IsLocked got false on held lock")
	}

	// Try blocking lock the mutex from a different goroutine. This must
	// not block because the mutex is held.
	ch := make(chan struct{}, 1)
	go func() {
		m.Lock()
		ch <- struct{}{}
		m.Unlock()
		ch <- struct{}{}
	}()

	select {
	case <-ch:
		t.Fatalf("Lock succeeded on locked mutex")
	case <-time.After(100 * time.Millisecond):
	}

	// Unlock the mutex and make sure that the goroutine waiting on Lock()
	// unblocks and succeeds.
	m.Unlock()

	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("Lock failed to acquire unlocked mutex")
	}
	<-ch

	// Make sure we can lock and unlock again.
	m.Lock()
	m.Unlock()
	if m.IsLocked() {
		t.Fatalf("IsLocked got true on released lock")
	}
}

func TestTryLock(t *testing.T) {
	var m FallbackLock

	// Try to lock. It should succeed.
	if !m.TryLock() {
		t.Fatalf("TryLock failed on unlocked mutex")
	}

	// Try to lock again, it should now fail.
	if m.TryLock() {
		t.Fatalf("TryLock succeeded on locked mutex")
	}

	m.Unlock()
	if !m.TryLock() {
		t.Fatalf("TryLock failed after Unlock")
	}
	m.Unlock()
}

func TestMutualExclusion(t *testing.T) {
	var m FallbackLock

	// Test mutual exclusion by running "gr" goroutines concurrently, and
	// have each one increment a counter "iters" times within the critical
	// section established by the mutex.
	//
	// If at the end the counter is not gr * iters, then we know that
	// goroutines ran concurrently within the critical section.
	const gr = 8
	const iters = 10000
	v := 0
	var wg sync.WaitGroup
	for i := 0; i < gr; i++ {
		wg.Add(1)
		go func() {
			for j := 0; j < iters; j++ {
				m.Lock()
				v++
				m.Unlock()
			}
			wg.Done()
		}()
	}

	wg.Wait()

	if v != gr*iters {
		t.Fatalf("Bad count: got %v, want %v", v, gr*iters)
	}
}

// TestNoEntry checks that a flag set for the duration of the critical
// section is never observed by another holder.
func TestNoEntry(t *testing.T) {
	const threads = 4
	var m FallbackLock
	for round := 0; round < 100; round++ {
		inside := false
		counter := 0
		bad := 0
		var wg sync.WaitGroup
		for i := 0; i < threads; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Lock()
				if inside {
					bad++
				}
				inside = true
				counter++
				inside = false
				m.Unlock()
			}()
		}
		wg.Wait()
		if counter != threads || bad != 0 {
			t.Fatalf("round %d: counter got %d want %d, %d overlapping entries", round, counter, threads, bad)
		}
	}
}

// BenchmarkFallbackLock measures lock handoff between n goroutines.
func BenchmarkFallbackLock(b *testing.B) {
	benchmarkLocker(b, func() sync.Locker { return &FallbackLock{} })
}

// BenchmarkSyncMutex is equivalent to BenchmarkFallbackLock, but uses
// sync.Mutex as a comparison point.
func BenchmarkSyncMutex(b *testing.B) {
	benchmarkLocker(b, func() sync.Locker { return &sync.Mutex{} })
}

func benchmarkLocker(b *testing.B, newLocker func() sync.Locker) {
	for n, max := 1, 4*runtime.GOMAXPROCS(0); n > 0 && n <= max; n *= 2 {
		b.Run(fmt.Sprintf("%d", n), func(b *testing.B) {
			m := newLocker()

			var ready sync.WaitGroup
			begin := make(chan struct{})
			var end sync.WaitGroup
			for i := 0; i < n; i++ {
				ready.Add(1)
				end.Add(1)
				go func() {
					ready.Done()
					<-begin
					for j := 0; j < b.N; j++ {
						m.Lock()
						m.Unlock()
					}
					end.Done()
				}()
			}

			ready.Wait()
			b.ResetTimer()
			close(begin)
			end.Wait()
		})
	}
}
