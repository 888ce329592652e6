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
	"github.com/lockelide/elide/pkg/atomicbitops"
	"github.com/lockelide/elide/pkg/sync"
)

// FallbackLock is a test-and-test-and-set spin lock. It is the lock that
// guards elide: speculative sections read its state inside their
// transaction, so acquiring it aborts them.
//
// The zero value is an unlocked lock. FallbackLock must not be copied after
// first use.
type FallbackLock struct {
	held atomicbitops.Bool
}

var _ sync.Locker = (*FallbackLock)(nil)

// Lock acquires the lock, spinning until it is available. There is no
// timeout.
func (l *FallbackLock) Lock() {
	for {
		for l.held.Load() {
			sync.Spin()
		}
		if !l.held.Swap(true) {
			return
		}
	}
}

// TryLock attempts to acquire the lock without spinning.
func (l *FallbackLock) TryLock() bool {
	return !l.held.Load() && !l.held.Swap(true)
}

// Unlock releases the lock. The caller must hold it; this is not checked.
func (l *FallbackLock) Unlock() {
	l.held.Store(false)
}

// IsLocked returns whether the lock is held. Outside a transaction the
// result may be stale by the time the caller looks at it.
func (l *FallbackLock) IsLocked() bool {
	return l.held.Load()
}
