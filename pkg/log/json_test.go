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
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: `"warning"`, want: Warning},
		{in: `"info"`, want: Info},
		{in: `"debug"`, want: Debug},
		{in: `0`, want: Warning},
		{in: `2`, want: Debug},
		{in: `"trace"`, wantErr: true},
		{in: `3`, wantErr: true},
		{in: `-1`, wantErr: true},
		{in: `true`, wantErr: true},
	} {
		var got Level
		err := json.Unmarshal([]byte(tc.in), &got)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Unmarshal(%s) got %v want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Unmarshal(%s) got %v want %v", tc.in, got, tc.want)
		}

		// Names survive a round trip.
		b, err := json.Marshal(got)
		if err != nil {
			t.Errorf("Marshal(%v) failed: %v", got, err)
			continue
		}
		var again Level
		if err := json.Unmarshal(b, &again); err != nil || again != got {
			t.Errorf("round trip of %v through %s got %v, %v", got, b, again, err)
		}
	}

	if _, err := json.Marshal(Level(7)); err == nil {
		t.Errorf("Marshal(Level(7)) succeeded")
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e.Emit(0, Warning, ts, "fallback after %d attempts", 20)

	out := buf.String()
	if !strings.HasSuffix(out, "}\n") || strings.Count(out, "\n") != 1 {
		t.Fatalf("output is not one JSON line: %q", out)
	}
	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("cannot decode %q: %v", out, err)
	}
	if got.Msg != "fallback after 20 attempts" {
		t.Errorf("msg got %q", got.Msg)
	}
	if got.Level != Warning {
		t.Errorf("level got %v want %v", got.Level, Warning)
	}
	if !got.Time.Equal(ts) {
		t.Errorf("time got %v want %v", got.Time, ts)
	}
	if !strings.HasPrefix(got.Caller, "json_test.go:") {
		t.Errorf("caller got %q want json_test.go:<line>", got.Caller)
	}
}

func TestJSONEmitterThread(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}

	done := make(chan int)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		e.Emit(0, Info, time.Now(), "pinned")
		done <- unix.Gettid()
	}()
	tid := <-done

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("cannot decode %q: %v", buf.String(), err)
	}
	if got.TID != tid {
		t.Errorf("tid got %d want %d", got.TID, tid)
	}
}
