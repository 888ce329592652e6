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

// Package elide implements lock elision on top of hardware transactional
// memory.
//
// A Guard tries to run a critical section as a hardware transaction and
// falls back to a FallbackLock when speculation keeps failing. Speculative
// sections read the lock word inside their transaction, so a goroutine that
// takes the lock aborts every speculative section that is still running:
// speculative and locked execution never overlap, without the speculative
// side ever writing the lock.
//
// Typical use:
//
//	var mu elide.FallbackLock
//	var stats elide.Stats // one per goroutine
//
//	aborted := elide.Do(elide.Options{MaxRetries: 20, Lock: &mu, Stats: &stats}, func(g *elide.Guard) {
//		counter++
//	})
//
// On hosts without RTM every guard takes the lock directly.
package elide

import (
	"time"

	"github.com/lockelide/elide/pkg/htm"
	"github.com/lockelide/elide/pkg/log"
	"github.com/lockelide/elide/pkg/sync"
)

// fallbackLog reports lock fallbacks. It is only consulted outside
// transactions.
var fallbackLog = log.BasicRateLimitedLogger(time.Second)

// Options configures a Guard.
type Options struct {
	// MaxRetries is the number of transaction attempts before the guard
	// takes the fallback lock. It must be at least 1.
	MaxRetries int

	// Lock is the fallback lock shared by every guard protecting the same
	// data. It must outlive the guard. Required.
	Lock *FallbackLock

	// AbortCode, if not nil, receives the code of a user abort.
	AbortCode *Code

	// Stats, if not nil, counts the guard's outcomes. It must not be
	// shared with guards running concurrently.
	Stats *Stats

	// HTM is the transactional memory implementation. nil means
	// htm.Host().
	HTM htm.Capability
}

type guardState uint8

const (
	stateInit guardState = iota
	stateSpeculative
	stateLocked
	stateAborted
	stateReleased
)

// action is what the attempt loop does after an unsuccessful Begin.
type action uint8

const (
	actRetry action = iota
	actFallback
	actDone
)

// Guard is one execution of a critical section. It is owned by the
// goroutine that created it and must be released exactly once, normally
// with defer.
//
// With hardware transactions, a user abort (Abort, AbortToRetry) discards
// the section's effects and resumes execution where NewGuard returned,
// this time with Aborted() reporting true. Code that uses NewGuard directly
// must therefore check Aborted before running the section; Do does this.
type Guard struct {
	_ sync.NoCopy

	htm        htm.Capability
	lock       *FallbackLock
	stats      *Stats
	codeOut    *Code
	maxRetries int

	// attempts is the number of Begin calls made so far. It is only
	// written outside transactions.
	attempts int

	state guardState

	// code is the last user abort code.
	code Code
}

// NewGuard runs the elision protocol and returns once the critical section
// may run: speculatively, under the fallback lock, or not at all if the
// guard was aborted by the user.
//
// NewGuard panics if opts.MaxRetries < 1 or opts.Lock is nil.
func NewGuard(opts Options) *Guard {
	if opts.MaxRetries < 1 {
		panic("elide: MaxRetries must be at least 1")
	}
	if opts.Lock == nil {
		panic("elide: nil fallback lock")
	}
	c := opts.HTM
	if c == nil {
		c = htm.Host()
	}
	g := &Guard{
		htm:        c,
		lock:       opts.Lock,
		stats:      opts.Stats,
		codeOut:    opts.AbortCode,
		maxRetries: opts.MaxRetries,
	}
	g.enter()
	return g
}

// Do runs fn under a new guard and releases it. fn is not run if the guard
// resolves to a user abort, which is also where hardware resumes after fn
// aborts. Do returns whether the section was discarded by a user abort.
func Do(opts Options, fn func(g *Guard)) bool {
	g := NewGuard(opts)
	defer g.Release()
	if g.Aborted() {
		return true
	}
	fn(g)
	return g.Aborted()
}

// enter is the attempt loop.
func (g *Guard) enter() {
	if !g.htm.Supported() {
		g.attempts = g.maxRetries
		g.fallback("transactions not supported")
		return
	}

	for g.attempts < g.maxRetries {
		g.attempts++
		st := g.begin()
		if st.Started() {
			g.state = stateSpeculative
			return
		}
		switch g.resolve(st) {
		case actDone:
			return
		case actFallback:
			g.fallback("hardware hinted not to retry")
			return
		}
	}
	g.fallback("retries exhausted")
}

// begin starts a transaction and checks the fallback lock inside it.
//
// The IsLocked load is the first thing the transaction does. It places the
// lock word in the transaction's read set, so a later Lock by another
// goroutine aborts this transaction. The load is atomic and follows a call
// into assembly, so the compiler can neither hoist it above Begin nor drop
// it.
func (g *Guard) begin() htm.Status {
	st := g.htm.Begin()
	if st.Started() && g.lock.IsLocked() {
		// Does not return on hardware.
		st = g.htm.Abort(htm.LockTakenCode)
	}
	return st
}

// resolve classifies a failed attempt, records it and decides what to do
// next. It runs outside any transaction.
func (g *Guard) resolve(st htm.Status) action {
	o := st.Outcome()
	switch o.Kind {
	case htm.KindExplicit:
		switch {
		case o.Code == htm.LockTakenCode && !st.Nested():
			g.stats.abort(ReasonLockTaken)
			// Wait for the holder to finish rather than queueing on the
			// lock, and give speculation another chance.
			for g.lock.IsLocked() {
				sync.Spin()
			}
			return actRetry
		case o.Code >= MinUserCode:
			g.userAbort(Code{v: o.Code})
			return actDone
		}
		g.stats.abort(ReasonExplicit)
		if !st.Retry() {
			return actFallback
		}
	case htm.KindConflict:
		g.stats.abort(ReasonConflict)
	case htm.KindCapacity:
		g.stats.abort(ReasonCapacity)
	default:
		g.stats.abort(ReasonOther)
	}
	return actRetry
}

// fallback takes the fallback lock.
func (g *Guard) fallback(why string) {
	if fallbackLog.IsLogging(log.Debug) {
		fallbackLog.Debugf("elide: taking fallback lock after %d/%d attempts: %s", g.attempts, g.maxRetries, why)
	}
	g.lock.Lock()
	g.state = stateLocked
	g.stats.lockAcquired()
}

func (g *Guard) userAbort(code Code) {
	g.state = stateAborted
	g.code = code
	if g.codeOut != nil {
		*g.codeOut = code
	}
}

// Abort aborts the critical section with a user code.
//
// In a speculative section the transaction is discarded, the code is
// stored in Options.AbortCode and the guard becomes aborted; on hardware
// Abort does not return (see Guard). Under the fallback lock the section's
// effects cannot be discarded: the code is stored and the lock is still
// released by Release. On an aborted or released guard Abort does nothing.
//
// Abort panics if code is the zero Code.
func (g *Guard) Abort(code Code) {
	if code.IsZero() {
		panic("elide: Abort with zero code")
	}
	switch g.state {
	case stateSpeculative:
		g.htm.Abort(code.v)
		// Only software capabilities get here.
		g.userAbort(code)
	case stateLocked:
		g.code = code
		if g.codeOut != nil {
			*g.codeOut = code
		}
	}
}

// AbortToRetry is Abort, returning the number of attempts the guard had
// left. The caller can use it as the retry budget of a new guard, bounding
// a retry loop that spans several guards.
func (g *Guard) AbortToRetry(code Code) int {
	g.Abort(code)
	return g.RemainingRetries()
}

// RemainingRetries returns the number of attempts the guard had left.
func (g *Guard) RemainingRetries() int {
	return g.maxRetries - g.attempts
}

// Aborted returns true if the guard was aborted by the user.
func (g *Guard) Aborted() bool {
	return g.state == stateAborted
}

// Speculative returns true while the section runs as a transaction.
func (g *Guard) Speculative() bool {
	return g.state == stateSpeculative
}

// Locked returns true while the section runs under the fallback lock.
func (g *Guard) Locked() bool {
	return g.state == stateLocked
}

// AbortCode returns the last user abort code, or the zero Code.
func (g *Guard) AbortCode() Code {
	return g.code
}

// Release ends the critical section: it commits the transaction or
// releases the fallback lock. It does nothing for an aborted guard or when
// called again.
func (g *Guard) Release() {
	switch g.state {
	case stateSpeculative:
		g.htm.End()
		g.stats.commit()
	case stateLocked:
		g.lock.Unlock()
	}
	if g.state != stateAborted {
		g.state = stateReleased
	}
}
