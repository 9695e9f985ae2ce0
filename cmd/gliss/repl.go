// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"golang.org/x/sys/unix"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/interp"
)

// isTerminal reports whether f is connected to a terminal, gating
// whether `run` with no image files drops into the REPL. Uses
// x/sys/unix the way the host primitives do rather than an isatty
// shim.
func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// runREPL reads successive lines of source text and hands each to the
// process's eval-0 symbol (via the eval primitive's own lookup). This
// runtime has no reader of its own, so what's actually evaluated is
// whatever the loaded image bound eval-0 to. An image with no eval-0
// bound simply fails every line with "Called an undefined symbol",
// which is itself a legitimate (if unhelpful) interactive session.
func runREPL(p *interp.Process) {
	rl, err := readline.New("gliss> ")
	if err != nil {
		exitf(2, "gliss: could not start REPL: %v\n", err)
	}
	defer rl.Close()

	evalSym := p.Alloc.Intern([]byte("eval-0"))
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			exitf(2, "gliss: REPL read error: %v\n", err)
		}
		if line == "" {
			continue
		}

		form := p.NewString([]byte(line))
		rets, cerr := p.Call(gc.PtrVal(uint64(evalSym)), []gc.Val{form}, 1)
		if cerr != nil {
			fmt.Fprintln(os.Stderr, p.FormatError(cerr))
			continue
		}
		fmt.Println(p.DebugString(rets[0]))
	}
}
