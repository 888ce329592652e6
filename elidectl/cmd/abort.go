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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/elide"
	"github.com/lockelide/elide/pkg/htm"
)

// Abort implements subcommands.Command for the "abort" command.
type Abort struct {
	code    uint
	retries int
}

// Name implements subcommands.Command.Name.
func (*Abort) Name() string {
	return "abort"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Abort) Synopsis() string {
	return "exercise user aborts and abort-to-retry loops"
}

// Usage implements subcommands.Command.Usage.
func (*Abort) Usage() string {
	return `abort [flags]

Aborts one critical section with --code and checks that the code is
delivered, then runs a chain of guards where each aborts to retry with the
budget left by the previous one, printing the remaining budget after each.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (a *Abort) SetFlags(f *flag.FlagSet) {
	f.UintVar(&a.code, "code", 0x42, fmt.Sprintf("user abort code, at least %#x and at most 0xff.", elide.MinUserCode))
	f.IntVar(&a.retries, "retries", 20, "retry budget of the first guard in the abort-to-retry chain.")
}

// Execute implements subcommands.Command.Execute.
func (a *Abort) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if a.code < uint(elide.MinUserCode) || a.code > 0xff {
		return Errorf("--code=%#x is outside [%#x, 0xff]", a.code, elide.MinUserCode)
	}
	if a.retries < 1 {
		return Errorf("--retries must be at least 1, got %d", a.retries)
	}
	code := elide.MustCode(uint8(a.code))

	var mu elide.FallbackLock
	opts := elide.Options{MaxRetries: conf.MaxRetries, Lock: &mu, HTM: abortCapability(conf.Mode)}
	if err := abortRoundTrip(os.Stdout, opts, code); err != nil {
		return Errorf("abort: %v", err)
	}
	if err := abortToRetryChain(os.Stdout, opts, code, a.retries); err != nil {
		return Errorf("abort to retry: %v", err)
	}
	return subcommands.ExitSuccess
}

// abortCapability is like capability, except that the emulated capability
// starts transactions. The abort command runs on a single goroutine.
func abortCapability(mode config.Mode) htm.Capability {
	if mode == config.ModeEmulated {
		return htm.NewEmulator(htm.BeginStarted)
	}
	return capability(mode)
}

// abortRoundTrip aborts one critical section with code and checks that the
// code is delivered.
func abortRoundTrip(w io.Writer, opts elide.Options, code elide.Code) error {
	var got elide.Code
	opts.AbortCode = &got
	aborted := elide.Do(opts, func(g *elide.Guard) {
		g.Abort(code)
	})
	fmt.Fprintf(w, "Abort: discarded=%t code=%v\n", aborted, got)
	if got != code {
		return fmt.Errorf("delivered code %v want %v", got, code)
	}
	return nil
}

// abortToRetryChain runs guards that each abort to retry, passing the
// remaining budget on, until the budget is exhausted.
func abortToRetryChain(w io.Writer, opts elide.Options, code elide.Code, retries int) error {
	var got elide.Code
	opts.AbortCode = &got
	for retries > 0 {
		opts.MaxRetries = retries
		g := elide.NewGuard(opts)
		next := g.RemainingRetries()
		if !g.Aborted() {
			next = g.AbortToRetry(code)
		}
		g.Release()
		fmt.Fprintf(w, "Abort to retry: remaining=%d\n", next)
		if next >= retries {
			return fmt.Errorf("remaining retries did not decrease: %d after %d", next, retries)
		}
		retries = next
	}
	if got != code {
		return fmt.Errorf("delivered code %v want %v", got, code)
	}
	return nil
}
