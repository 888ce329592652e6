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
	"time"

	"golang.org/x/time/rate"

	"github.com/lockelide/elide/pkg/atomicbitops"
)

// rateLimitedLogger forwards at most one message per token. The next
// message that gets through reports how many were suppressed before it.
type rateLimitedLogger struct {
	suppressed atomicbitops.Uint64

	logger Logger
	limit  *rate.Limiter
}

// admit consumes a token. If one is available it returns the message to
// log, annotated with the number of messages suppressed since the last one.
func (rl *rateLimitedLogger) admit(format string, v []any) (string, []any, bool) {
	if !rl.limit.Allow() {
		rl.suppressed.Add(1)
		return "", nil, false
	}
	if n := rl.suppressed.Swap(0); n > 0 {
		format += " (%d similar messages suppressed)"
		v = append(v[:len(v):len(v)], n)
	}
	return format, v, true
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Debugf(format, v...)
	}
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Infof(format, v...)
	}
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Warningf(format, v...)
	}
}

// IsLogging does not consume a token, so callers can check it on hot
// paths before building arguments.
func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// globalLogger forwards to whatever Log() returns at call time, so a rate
// limited logger created at init follows later SetTarget calls.
type globalLogger struct{}

func (globalLogger) Debugf(format string, v ...any)   { Log().DebugfAtDepth(2, format, v...) }
func (globalLogger) Infof(format string, v ...any)    { Log().InfofAtDepth(2, format, v...) }
func (globalLogger) Warningf(format string, v ...any) { Log().WarningfAtDepth(2, format, v...) }
func (globalLogger) IsLogging(level Level) bool       { return Log().IsLogging(level) }

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per every.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(globalLogger{}, every)
}

// RateLimitedLogger returns a Logger that logs to logger no more than once
// per every.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
