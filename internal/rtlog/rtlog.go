// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtlog is the runtime's leveled logger: a thin wrapper over
// the standard library's log package (SetFlags(0), a fixed prefix,
// plain Print calls), gated by the LOG_LEVEL environment variable
// rather than a flag, since both the interpreter's primitives and the
// cmd/gliss entry point need to agree on one level without threading
// a logger handle through every call.
package rtlog

import (
	"log"
	"os"
	"strconv"
)

// Level orders the runtime's log levels from quietest to loudest,
// numbered 0 (none) through 6 (trace) so the LOG_LEVEL env var can be
// used as the numeric value directly.
type Level int

const (
	LevelNone Level = iota
	LevelFatal
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// DefaultLevel applies when LOG_LEVEL is unset or unparsable.
const DefaultLevel = LevelInfo

var current = DefaultLevel

func init() {
	current = DefaultLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= int(LevelNone) && n <= int(LevelTrace) {
			current = Level(n)
		}
	}
	log.SetFlags(0)
	log.SetPrefix("gliss: ")
}

// Enabled reports whether lvl would currently be logged, for callers
// (dbg-suspend) that only want to do expensive formatting work when
// the message would actually be printed.
func Enabled(lvl Level) bool { return lvl <= current }

func logAt(lvl Level, format string, args ...any) {
	if !Enabled(lvl) {
		return
	}
	log.Printf(format, args...)
}

func Fatalf(format string, args ...any) { logAt(LevelFatal, format, args...) }
func Errorf(format string, args ...any) { logAt(LevelError, format, args...) }
func Warnf(format string, args ...any)  { logAt(LevelWarn, format, args...) }
func Infof(format string, args ...any)  { logAt(LevelInfo, format, args...) }
func Debugf(format string, args ...any) { logAt(LevelDebug, format, args...) }
func Tracef(format string, args ...any) { logAt(LevelTrace, format, args...) }
