// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rterror implements the process-local error buffer: a fault
// value plus a bounded, append-only stack of trace frames. It has no
// dependency on the value representation or the interpreter so that
// both (and the image loader) can report through it without import
// cycles.
package rterror

import (
	"fmt"
	"path"
	"runtime"
	"strings"
)

// maxFrames bounds the displayed trace. Once exceeded, further frames
// are dropped from Frames but still counted in Dropped.
const maxFrames = 64

// A Frame names one step of a trace: the message raised or appended at
// that step, the function it occurred in, and a source location. A
// frame recorded with File left empty is stamped with the recording
// call site (via runtime.Caller) by Push/Errorf.
type Frame struct {
	Message string
	Func    string
	File    string
	Line    int
}

// stampCaller fills an empty source location with the host call site
// skip+1 levels up the Go stack, keeping only the file's base name.
func stampCaller(f Frame, skip int) Frame {
	if f.File != "" {
		return f
	}
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		f.File = path.Base(file)
		f.Line = line
	}
	return f
}

func (f Frame) String() string {
	return fmt.Sprintf("at %s (%s:%d): %s", f.Func, f.File, f.Line, f.Message)
}

// An Error is a raised Lisp value together with the trace accumulated
// while it propagated. Fault may be nil (a value-less, "internal"
// error) or any Lisp value (the payload of (raise v)).
type Error struct {
	Fault any // an interpreter Val; stored as any to avoid an import cycle

	frames  []Frame
	dropped int
}

// New starts a fresh Error with no frames.
func New(fault any) *Error {
	return &Error{Fault: fault}
}

// Errorf is a convenience constructor for host-side faults (load-time,
// verification, and I/O errors) that have no Lisp fault value. The
// initial frame's source location is the Errorf call site.
func Errorf(format string, args ...any) *Error {
	f := stampCaller(Frame{Message: fmt.Sprintf(format, args...)}, 1)
	return &Error{Fault: nil, frames: []Frame{f}}
}

// Push appends a frame to the trace, dropping it (but still counting
// it) once the bound is reached. A frame with no source location set
// is stamped with the Push call site.
func (e *Error) Push(f Frame) {
	if len(e.frames) >= maxFrames {
		e.dropped++
		return
	}
	e.frames = append(e.frames, stampCaller(f, 1))
}

// Frames returns the (possibly truncated) frame list, oldest first.
func (e *Error) Frames() []Frame {
	return e.frames
}

// Dropped returns the number of frames silently omitted from Frames.
func (e *Error) Dropped() int {
	return e.dropped
}

// Error implements the built-in error interface so an *Error can be
// threaded through normal Go error-handling code paths as well as
// through the explicit nullable-handle style the interpreter uses
// internally (see interp.Call).
func (e *Error) Error() string {
	var b strings.Builder
	if e.Fault != nil {
		fmt.Fprintf(&b, "Uncaught exception: %v\n", e.Fault)
	} else {
		b.WriteString("Uncaught exception:\n")
	}
	for _, f := range e.frames {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	if e.dropped > 0 {
		fmt.Fprintf(&b, "at ... (%d omitted)\n", e.dropped)
	}
	return strings.TrimRight(b.String(), "\n")
}
