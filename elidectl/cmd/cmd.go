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

// Package cmd holds implementations of the elidectl commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/htm"
	"github.com/lockelide/elide/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by scripts driving elidectl in addition to stderr.
var ErrorLogger io.Writer

// Errorf logs error to the log file (--log), to stderr, and debug logs. It
// returns subcommands.ExitFailure for convenience with subcommand.Execute()
// methods:
//
//	return Errorf("Danger! Danger!")
func Errorf(format string, args ...any) subcommands.ExitStatus {
	writeError(format, args...)
	return subcommands.ExitFailure
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	writeError(format, args...)
	// Return an error that is unlikely to be used by the workload.
	os.Exit(128)
}

func writeError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintln(os.Stderr, msg)
	if ErrorLogger != nil {
		fmt.Fprintf(ErrorLogger, "%s elidectl: %s\n", time.Now().Format(time.RFC3339), msg)
	}
}

// capability returns the capability shared by all workers in mode.
//
// The emulated capability only injects aborts: an emulated transaction that
// reports started would give concurrent workers no isolation.
func capability(mode config.Mode) htm.Capability {
	switch mode {
	case config.ModeLock:
		return htm.Unsupported()
	case config.ModeEmulated:
		return htm.NewEmulator(
			htm.AbortConflict|htm.AbortRetry,
			htm.AbortConflict|htm.AbortRetry,
			htm.AbortCapacity,
		)
	default:
		c := htm.Host()
		if !c.Supported() {
			log.Warningf("RTM is not usable on this host, every critical section takes the fallback lock")
		}
		return c
	}
}
