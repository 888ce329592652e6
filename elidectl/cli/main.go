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

// Package cli is the main entrypoint for elidectl.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"github.com/lockelide/elide/elidectl/cmd"
	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/cleanup"
	"github.com/lockelide/elide/pkg/htm"
	"github.com/lockelide/elide/pkg/log"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	var cu cleanup.Cleanup
	var logFile io.Writer
	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		cu.Add(func() { f.Close() })
		logFile = f
	}
	cmd.ErrorLogger = logFile

	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	var emitters log.MultiEmitter
	if logFile != nil {
		emitters = append(emitters, newEmitter(conf.LogFormat, logFile))
		if conf.AlsoLogToStderr {
			emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
		}
	} else {
		emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
	}
	if len(emitters) == 1 {
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	} else {
		log.SetTarget(&emitters)
	}

	const delimString = `**************** elidectl ****************`
	features := htm.HostFeatures()
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("CPU: %s, RTM %t, RTM always aborts %t, RTM compiled in %t", features.Brand, features.RTM, features.AlwaysAbort, features.Compiled)
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Debugf("Flags: %v", conf.ToFlags())
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	cu.Clean()
	if subcmdCode != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, err: %v", subcmdCode)
	}
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// elidectl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Probe), "")
	cb(new(cmd.Run), "")

	const debugGroup = "debug"
	cb(new(cmd.Abort), debugGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
