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

// Package config provides basic infrastructure to set configuration settings
// for elidectl. Each setting is a field of Config, registered as a command
// line flag, and may also be set from a TOML file named by --config.
package config

import (
	"fmt"

	"github.com/lockelide/elide/pkg/log"
)

// Config holds configuration that is shared by all elidectl commands.
//
// Fields with a "flag" tag are populated from the flag of that name; fields
// with a "toml" tag may also be set from the configuration file. Flags set
// explicitly on the command line take precedence over the file.
type Config struct {
	// ConfigFile is the path of an optional TOML configuration file.
	ConfigFile string `flag:"config" toml:"-"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format: text or json.
	LogFormat string `flag:"log-format" toml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Mode selects the transactional capability used by guards.
	Mode Mode `flag:"mode" toml:"mode"`

	// MaxRetries is the transactional attempt budget of each guard.
	MaxRetries int `flag:"max-retries" toml:"max_retries"`

	// Threads is the number of concurrent workers.
	Threads int `flag:"threads" toml:"threads"`

	// Repetitions is the number of rounds each worker runs.
	Repetitions int `flag:"repetitions" toml:"repetitions"`

	// Work is the number of busy-work iterations inside each critical
	// section.
	Work int `flag:"work" toml:"work"`

	// PinCPUs pins each worker to its own CPU.
	PinCPUs bool `flag:"pin-cpus" toml:"pin_cpus"`

	// Format is the output format of statistics.
	Format Format `flag:"format" toml:"format"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", c.Repetitions)
	}
	if c.Work < 0 {
		return fmt.Errorf("work must not be negative, got %d", c.Work)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.Mode: %v", c.Mode)
	log.Infof("Config.MaxRetries: %d", c.MaxRetries)
	log.Infof("Config.Threads: %d, Repetitions: %d, Work: %d", c.Threads, c.Repetitions, c.Work)
	log.Infof("Config.PinCPUs: %t", c.PinCPUs)
	log.Infof("Config.Format: %v", c.Format)
	if c.ConfigFile != "" {
		log.Infof("Config.ConfigFile: %s", c.ConfigFile)
	}
}

// Mode selects the transactional capability used by guards.
type Mode int

const (
	// ModeHTM uses the host's hardware transactions, falling back to the
	// lock when they are unavailable.
	ModeHTM Mode = iota

	// ModeLock never speculates: every section takes the fallback lock.
	ModeLock

	// ModeEmulated injects scripted transactional aborts in software.
	ModeEmulated
)

func modePtr(m Mode) *Mode {
	return &m
}

// Set implements flag.Value.
func (m *Mode) Set(v string) error {
	switch v {
	case "htm":
		*m = ModeHTM
	case "lock":
		*m = ModeLock
	case "emulated":
		*m = ModeEmulated
	default:
		return fmt.Errorf("invalid mode %q, must be 'htm', 'lock' or 'emulated'", v)
	}
	return nil
}

// Get implements flag.Getter.
func (m *Mode) Get() any {
	return *m
}

// String implements flag.Value.
func (m Mode) String() string {
	switch m {
	case ModeHTM:
		return "htm"
	case ModeLock:
		return "lock"
	case ModeEmulated:
		return "emulated"
	}
	panic(fmt.Sprintf("Invalid mode %d", int(m)))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (m *Mode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

// Format is the output format of statistics.
type Format int

const (
	// FormatTable prints an aligned human readable table.
	FormatTable Format = iota

	// FormatJSON prints a JSON object.
	FormatJSON

	// FormatPrometheus prints the Prometheus text exposition format.
	FormatPrometheus
)

func formatPtr(f Format) *Format {
	return &f
}

// Set implements flag.Value.
func (f *Format) Set(v string) error {
	switch v {
	case "table":
		*f = FormatTable
	case "json":
		*f = FormatJSON
	case "prometheus":
		*f = FormatPrometheus
	default:
		return fmt.Errorf("invalid format %q, must be 'table', 'json' or 'prometheus'", v)
	}
	return nil
}

// Get implements flag.Getter.
func (f *Format) Get() any {
	return *f
}

// String implements flag.Value.
func (f Format) String() string {
	switch f {
	case FormatTable:
		return "table"
	case FormatJSON:
		return "json"
	case FormatPrometheus:
		return "prometheus"
	}
	panic(fmt.Sprintf("Invalid format %d", int(f)))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (f *Format) UnmarshalText(text []byte) error {
	return f.Set(string(text))
}
