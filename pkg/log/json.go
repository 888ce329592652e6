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

package log

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// levelNames are the JSON names of each Level.
var levelNames = [...]string{
	Warning: "warning",
	Info:    "info",
	Debug:   "debug",
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	if l >= Level(len(levelNames)) {
		return nil, fmt.Errorf("unknown level %v", l)
	}
	return strconv.AppendQuote(nil, levelNames[l]), nil
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts the
// level names and their integer values.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		for lv, n := range levelNames {
			if n == name {
				*l = Level(lv)
				return nil
			}
		}
		return fmt.Errorf("unknown level %q", name)
	}
	var n uint32
	if err := json.Unmarshal(b, &n); err != nil || n >= uint32(len(levelNames)) {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

// jsonLog is one line of JSONEmitter output.
type jsonLog struct {
	Msg   string    `json:"msg"`
	Level Level     `json:"level"`
	Time  time.Time `json:"time"`

	// Caller is the file:line of the logging call.
	Caller string `json:"caller,omitempty"`

	// TID is the OS thread that logged. Pinned benchmark workers are told
	// apart by it.
	TID int `json:"tid"`
}

// JSONEmitter logs messages as one JSON object per line.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	j := jsonLog{
		Msg:   fmt.Sprintf(format, v...),
		Level: level,
		Time:  timestamp,
		TID:   unix.Gettid(),
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		j.Caller = file[strings.LastIndexByte(file, '/')+1:] + ":" + strconv.Itoa(line)
	}
	b, err := json.Marshal(&j)
	if err != nil {
		panic(err)
	}
	e.Writer.Write(append(b, '\n'))
}
