// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"fmt"
	"os"
	"strings"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/rterror"
	"github.com/eutro/gliss/internal/rtlog"
)

// debugString renders v for dbg and dbg-suspend. The real reader and
// printer live outside this runtime, so this is deliberately minimal:
// enough to make a breakpoint or a debug trace legible, not a full
// writer. Cyclic structures are not guarded against.
func (p *Process) debugString(v gc.Val) string {
	switch {
	case v == gc.ValNil:
		return "()"
	case v == gc.ValTrue:
		return "#t"
	case v == gc.ValFalse:
		return "#f"
	case v.IsFixnum():
		return fmt.Sprintf("%d", v.SFix())
	case v.IsChar():
		return fmt.Sprintf("#\\%c", rune(v.Char()))
	case p.isPair(v):
		var b strings.Builder
		b.WriteByte('(')
		first := true
		for v != gc.ValNil && p.isPair(v) {
			if !first {
				b.WriteByte(' ')
			}
			first = false
			addr := gc.Addr(v.Addr())
			b.WriteString(p.debugString(p.Alloc.PairCar(addr)))
			v = p.Alloc.PairCdr(addr)
		}
		if v != gc.ValNil {
			b.WriteString(" . ")
			b.WriteString(p.debugString(v))
		}
		b.WriteByte(')')
		return b.String()
	case p.isBox(v):
		return "#box(" + p.debugString(p.Alloc.BoxValue(gc.Addr(v.Addr()))) + ")"
	case p.isSymbol(v):
		return string(p.Alloc.BytestringBytes(p.Alloc.SymbolName(gc.Addr(v.Addr()))))
	case p.isString(v):
		return fmt.Sprintf("%q", p.stringBytes(gc.Addr(v.Addr())))
	case p.isBytestring(v):
		return fmt.Sprintf("#bytes[% x]", p.Alloc.BytestringBytes(gc.Addr(v.Addr())))
	case p.isClosure(v):
		return "#closure<" + p.closureName(v) + ">"
	case v.IsStaticPtr():
		return "#native<" + p.closureName(v) + ">"
	default:
		return fmt.Sprintf("#<%#x>", uint64(v))
	}
}

// FormatError renders err for a fatal top-level report: the
// "Uncaught exception:" banner, the fault value, then one line per
// trace frame. This is the one place the raised fault (when it's a
// Lisp value, as opposed to a host-side load/verify failure) is given
// a readable form rather than rterror.Error's generic %v, using the
// same renderer dbg and dbg-suspend already print with.
func (p *Process) FormatError(err *rterror.Error) string {
	var b strings.Builder
	if fv, ok := err.Fault.(gc.Val); ok {
		fmt.Fprintf(&b, "Uncaught exception: %s\n", p.debugString(fv))
	} else if err.Fault != nil {
		fmt.Fprintf(&b, "Uncaught exception: %v\n", err.Fault)
	} else {
		b.WriteString("Uncaught exception:\n")
	}
	for _, f := range err.Frames() {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	if d := err.Dropped(); d > 0 {
		fmt.Fprintf(&b, "at ... (%d omitted)\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DebugString exports debugString for hosts (the CLI's REPL mode)
// that want to print a returned value without a full reader/printer.
func (p *Process) DebugString(v gc.Val) string { return p.debugString(v) }

func rtlogDebugValue(p *Process, v gc.Val) {
	fmt.Fprintln(os.Stderr, p.debugString(v))
}

func rtlogBreakpoint(p *Process, args []gc.Val) {
	if !rtlog.Enabled(rtlog.LevelDebug) {
		return
	}
	var b strings.Builder
	b.WriteString("Breakpoint hit:\n  args:")
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(p.debugString(a))
	}
	rtlog.Debugf("%s", b.String())
}
