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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "path to a TOML file with configuration values. Flags set on the command line override it.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr in addition to --log.")

	// Flags that control guards.
	flagSet.Var(modePtr(ModeHTM), "mode", "transactional capability: htm (default, host RTM if usable), lock (fallback lock only), emulated (scripted aborts).")
	flagSet.Int("max-retries", 10, "transactional attempts per critical section before taking the fallback lock.")

	// Flags that control the workload.
	flagSet.Int("threads", 4, "number of concurrent workers.")
	flagSet.Int("repetitions", 100, "number of rounds each worker runs.")
	flagSet.Int("work", 20000, "busy-work iterations inside each critical section.")
	flagSet.Bool("pin-cpus", false, "pin each worker to its own CPU.")
	flagSet.Var(formatPtr(FormatTable), "format", "statistics output format: table (default), json, prometheus.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags and, if --config is set, from the named TOML file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	flagSet.VisitAll(func(fl *flag.Flag) {
		setFromFlag(conf, fl)
	})

	if conf.ConfigFile != "" {
		if err := conf.loadFile(conf.ConfigFile); err != nil {
			return nil, err
		}
		// Explicit flags win over the file.
		flagSet.Visit(func(fl *flag.Flag) {
			setFromFlag(conf, fl)
		})
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile decodes the TOML file at path into c. Keys that do not name a
// setting are rejected.
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("loading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config file %q: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// setFromFlag copies the value of fl into the field of conf tagged with its
// name. Flags without a matching field are ignored.
func setFromFlag(conf *Config, fl *flag.Flag) {
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok || name != fl.Name {
			continue
		}
		getter, ok := fl.Value.(flag.Getter)
		if !ok {
			panic(fmt.Sprintf("Flag %q does not implement flag.Getter", name))
		}
		obj.Field(i).Set(reflect.ValueOf(getter.Get()))
		return
	}
}

// ToFlags returns a slice of flags that correspond to the given Config.
// Settings equal to their default are omitted.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		val := getVal(obj.Field(i))

		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
