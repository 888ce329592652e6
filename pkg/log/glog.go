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
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	*Writer
}

// pid is used for the threadid component of the header. glog pads it to
// seven columns.
var pid = fmt.Sprintf("%7d", os.Getpid())

var levelChars = [...]byte{
	Warning: 'W',
	Info:    'I',
	Debug:   'D',
}

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	b := make([]byte, 0, 64+len(format))

	if int(level) < len(levelChars) {
		b = append(b, levelChars[level])
	} else {
		b = append(b, '?')
	}

	_, month, day := timestamp.Date()
	hour, minute, second := timestamp.Clock()
	b = appendPadded(b, int(month), 2)
	b = appendPadded(b, day, 2)
	b = append(b, ' ')
	b = appendPadded(b, hour, 2)
	b = append(b, ':')
	b = appendPadded(b, minute, 2)
	b = append(b, ':')
	b = appendPadded(b, second, 2)
	b = append(b, '.')
	b = appendPadded(b, timestamp.Nanosecond()/1000, 6)
	b = append(b, ' ')
	b = append(b, pid...)
	b = append(b, ' ')

	file, line := "x", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(f, '/'); slash >= 0 {
			f = f[slash+1:]
		}
		file, line = f, l
	}
	b = append(b, file...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(line), 10)
	b = append(b, "] "...)
	b = append(b, format...)

	g.Writer.Emit(depth+1, level, timestamp, string(b), args...)
}

// appendPadded appends v in decimal, zero padded to width digits.
func appendPadded(b []byte, v, width int) []byte {
	var tmp [20]byte
	d := strconv.AppendInt(tmp[:0], int64(v), 10)
	for i := len(d); i < width; i++ {
		b = append(b, '0')
	}
	return append(b, d...)
}
