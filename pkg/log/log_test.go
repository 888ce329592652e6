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
	"regexp"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %q, expected: %q", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Fatalf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}

	l.Debugf("debug")
	l.Infof("info %d", 1)
	l.Warningf("warning")
	if got, want := strings.Join(tw.lines, ""), "info 1\nwarning\n"; got != want {
		t.Fatalf("Info logger output got %q want %q", got, want)
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Fatalf("IsLogging(Debug) got false after SetLevel(Debug)")
	}
	l.Debugf("debug")
	if got, want := strings.Join(tw.lines, ""), "info 1\nwarning\ndebug\n"; got != want {
		t.Fatalf("Debug logger output got %q want %q", got, want)
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "hello %s", "world")

	out := strings.Join(tw.lines, "")
	re := regexp.MustCompile(`^W0304 05:06:07\.000008 +\d+ log_test\.go:\d+\] hello world\n$`)
	if !re.MatchString(out) {
		t.Fatalf("GoogleEmitter output %q does not match %v", out, re)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)

	for i := 0; i < 10; i++ {
		rl.Infof("message %d", i)
	}
	if got, want := strings.Join(tw.lines, ""), "message 0\n"; got != want {
		t.Fatalf("rate limited output got %q want %q", got, want)
	}
	if !rl.IsLogging(Debug) {
		t.Fatalf("IsLogging(Debug) got false want true")
	}
}

func TestRateLimitedLoggerReportsSuppressed(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, 500*time.Millisecond)

	rl.Warningf("fallback %d", 0)
	for i := 1; i <= 5; i++ {
		rl.Warningf("fallback %d", i)
	}
	// Wait for the next token.
	time.Sleep(600 * time.Millisecond)
	rl.Warningf("fallback %d", 6)

	want := []string{"fallback 0\n", "fallback 6 (5 similar messages suppressed)\n"}
	if got := strings.Join(tw.lines, ""); got != strings.Join(want, "") {
		t.Fatalf("rate limited output got %q want %q", got, strings.Join(want, ""))
	}
}
