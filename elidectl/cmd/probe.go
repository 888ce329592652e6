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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/lockelide/elide/elidectl/config"
	"github.com/lockelide/elide/pkg/htm"
)

// Probe implements subcommands.Command for the "probe" command.
type Probe struct{}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "report the host's transactional memory support"
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return "probe - prints the CPU and which transactional capability guards will use.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Probe) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Probe) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := writeProbe(os.Stdout, conf.Format, htm.HostFeatures(), htm.Host().Supported()); err != nil {
		return Errorf("probe failed: %v", err)
	}
	return subcommands.ExitSuccess
}

type probeJSON struct {
	Vendor      string `json:"vendor"`
	Brand       string `json:"brand"`
	RTM         bool   `json:"rtm"`
	HLE         bool   `json:"hle"`
	AlwaysAbort bool   `json:"rtm_always_abort"`
	Compiled    bool   `json:"rtm_compiled"`
	Capability  string `json:"capability"`
}

func capabilityName(supported bool) string {
	if supported {
		return "rtm"
	}
	return "unsupported"
}

func writeProbe(w io.Writer, format config.Format, f htm.Features, supported bool) error {
	if format == config.FormatJSON {
		return json.NewEncoder(w).Encode(probeJSON{
			Vendor:      f.Vendor,
			Brand:       f.Brand,
			RTM:         f.RTM,
			HLE:         f.HLE,
			AlwaysAbort: f.AlwaysAbort,
			Compiled:    f.Compiled,
			Capability:  capabilityName(supported),
		})
	}
	_, err := fmt.Fprintf(w, "CPU: %s (%s)\nRTM: %t\nHLE: %t\nRTM always aborts: %t\nRTM compiled in: %t\nCapability: %s\n",
		f.Brand, f.Vendor, f.RTM, f.HLE, f.AlwaysAbort, f.Compiled, capabilityName(supported))
	return err
}
