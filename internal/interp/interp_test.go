// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/image"
	"github.com/eutro/gliss/internal/rterror"
)

// bcBuilder assembles a raw image buffer, mirroring the wire layout
// internal/image's reader parses. Kept minimal and local to this
// package's tests rather than shared/exported, since only a handful
// of end-to-end scenarios need it here.
type bcBuilder struct{ buf []byte }

func (b *bcBuilder) u8(v uint8) { b.buf = append(b.buf, v) }

func (b *bcBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *bcBuilder) raw(bs []byte) { b.buf = append(b.buf, bs...) }

func (b *bcBuilder) lenPrefixed(bs []byte) {
	b.u32(uint32(len(bs)))
	b.raw(bs)
	if pad := (4 - len(bs)%4) % 4; pad > 0 {
		b.raw(make([]byte, pad))
	}
}

func newBCHeader() *bcBuilder {
	b := &bcBuilder{}
	b.raw(image.Magic[:])
	b.u32(image.Version)
	return b
}

func (b *bcBuilder) codeBlock(code []byte, maxStack, locals uint32) {
	b.u32(uint32(len(code)))
	b.u32(maxStack)
	b.u32(locals)
	b.u32(0) // no stack map entries; these test blocks are straight-line
	b.raw(code)
	if pad := (4 - len(code)%4) % 4; pad > 0 {
		b.raw(make([]byte, pad))
	}
}

func ldc(idx uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = image.OpLdc
	binary.LittleEndian.PutUint32(buf[1:], idx)
	return buf
}

func ret(n uint8) []byte { return []byte{image.OpRet, n} }

func call(argc, retc uint8) []byte { return []byte{image.OpCall, argc, retc} }

func closureRef(idx uint8) []byte { return []byte{image.OpClosureRef, idx} }

func newTestProcess(t *testing.T) *Process {
	t.Helper()
	return NewProcess(gc.Config{MiniPages: 16, MaxScopeDepth: 64}, nil)
}

func loadImage(t *testing.T, p *Process, raw []byte) (*image.Image, uint32) {
	t.Helper()
	img, err := image.IndexImage(p.Alloc, raw)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if err := image.Verify(img); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return img, p.RegisterImage(img)
}

// TestComputeOnePlusTwo builds a one-block image that loads the
// fixnums 1 and 2, derefs the "+" symbol, calls it, and returns the
// result — an arithmetic smoke test end to end through the loader,
// verifier, baker and interpreter.
func TestComputeOnePlusTwo(t *testing.T) {
	p := newTestProcess(t)
	b := newBCHeader()

	b.u32(image.SectionConstants)
	b.u32(3)
	b.u32(image.ConstDirect)
	b.u32(uint32(gc.FixVal(1)))
	b.u32(0)
	b.u32(image.ConstDirect)
	b.u32(uint32(gc.FixVal(2)))
	b.u32(0)
	b.u32(image.ConstSymbol)
	b.lenPrefixed([]byte("+"))

	b.u32(image.SectionCodes)
	b.u32(1)
	var code []byte
	code = append(code, ldc(0)...)
	code = append(code, ldc(1)...)
	code = append(code, ldc(2)...)
	code = append(code, image.OpSymDeref)
	code = append(code, call(2, 1)...)
	code = append(code, ret(1)...)
	b.codeBlock(code, 3, 0)

	b.u32(image.SectionBindings)
	b.u32(0)
	b.u32(image.SectionStart)
	b.u32(0)

	_, imgIdx := loadImage(t, p, b.buf)

	closureAddr := p.newClosure(imgIdx, 0, nil)
	rets, err := p.Call(gc.PtrVal(uint64(closureAddr)), nil, 1)
	if err != nil {
		t.Fatalf("Call: %s", p.FormatError(err))
	}
	if got := rets[0].SFix(); got != 3 {
		t.Fatalf("1+2 = %d, want 3", got)
	}
}

// TestClosureCapture builds a block that reads its own (sole) capture
// and returns it unchanged, then builds two closures from it with
// different captured values, checking each keeps its own.
func TestClosureCapture(t *testing.T) {
	p := newTestProcess(t)
	b := newBCHeader()

	b.u32(image.SectionConstants)
	b.u32(0)

	b.u32(image.SectionCodes)
	b.u32(1)
	var code []byte
	code = append(code, closureRef(0)...)
	code = append(code, ret(1)...)
	b.codeBlock(code, 1, 0)

	b.u32(image.SectionBindings)
	b.u32(0)
	b.u32(image.SectionStart)
	b.u32(0)

	_, imgIdx := loadImage(t, p, b.buf)

	c1 := p.newClosure(imgIdx, 0, []gc.Val{gc.FixVal(10)})
	c2 := p.newClosure(imgIdx, 0, []gc.Val{gc.FixVal(20)})

	r1, err := p.Call(gc.PtrVal(uint64(c1)), nil, 1)
	if err != nil {
		t.Fatalf("Call c1: %s", p.FormatError(err))
	}
	if got := r1[0].SFix(); got != 10 {
		t.Fatalf("c1 capture = %d, want 10", got)
	}

	r2, err := p.Call(gc.PtrVal(uint64(c2)), nil, 1)
	if err != nil {
		t.Fatalf("Call c2: %s", p.FormatError(err))
	}
	if got := r2[0].SFix(); got != 20 {
		t.Fatalf("c2 capture = %d, want 20", got)
	}
}

// TestCallInNewScopeEscapes exercises the scope-escape contract
// directly: a value allocated inside the pushed scope must still be
// valid (and hold its original contents) once the primitive pops that
// scope and returns it to the caller.
func TestCallInNewScopeEscapes(t *testing.T) {
	p := newTestProcess(t)

	thunk := p.registerNative("test-thunk", func(pp *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
		addr := pp.Alloc.NewBox(gc.FixVal(55))
		return []gc.Val{gc.PtrVal(uint64(addr))}, nil
	})

	sym := p.Alloc.Intern([]byte("call-in-new-scope"))
	rets, err := p.Call(gc.PtrVal(uint64(sym)), []gc.Val{thunk}, 1)
	if err != nil {
		t.Fatalf("call-in-new-scope: %s", p.FormatError(err))
	}
	got := rets[0]
	if !got.IsGCPtr() {
		t.Fatalf("escaped value lost its pointer tag: %v", got)
	}
	if v := p.Alloc.BoxValue(gc.Addr(got.Addr())); v.SFix() != 55 {
		t.Fatalf("escaped box contents = %v, want 55", v)
	}
}

// TestCallInNewScopePropagatesFault checks that a raised fault value
// itself survives the scope pop (the other escape path: the
// exception, not just a normal return).
func TestCallInNewScopePropagatesFault(t *testing.T) {
	p := newTestProcess(t)

	thunk := p.registerNative("test-raising-thunk", func(pp *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
		addr := pp.Alloc.NewBox(gc.FixVal(66))
		e := rterror.New(gc.PtrVal(uint64(addr)))
		e.Push(rterror.Frame{Message: "raised"})
		return nil, e
	})

	sym := p.Alloc.Intern([]byte("call-in-new-scope"))
	_, err := p.Call(gc.PtrVal(uint64(sym)), []gc.Val{thunk}, 0)
	if err == nil {
		t.Fatalf("expected an error")
	}
	fv, ok := err.Fault.(gc.Val)
	if !ok || !fv.IsGCPtr() {
		t.Fatalf("fault = %#v, want a surviving box pointer", err.Fault)
	}
	if v := p.Alloc.BoxValue(gc.Addr(fv.Addr())); v.SFix() != 66 {
		t.Fatalf("surviving fault box contents = %v, want 66", v)
	}
}

// TestDbgDumpObjPrimitive drives dbg-dump-obj end to end on a known
// box and checks that the dump names the type and renders the boxed
// value, capturing the primitive's stderr output through a pipe.
func TestDbgDumpObjPrimitive(t *testing.T) {
	p := newTestProcess(t)
	box := p.Alloc.NewBox(gc.FixVal(42))

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	saved := os.Stderr
	os.Stderr = w

	sym := p.Alloc.Intern([]byte("dbg-dump-obj"))
	_, callErr := p.Call(gc.PtrVal(uint64(sym)), []gc.Val{gc.PtrVal(uint64(box))}, 1)

	os.Stderr = saved
	w.Close()
	out, rerr := io.ReadAll(r)
	r.Close()
	if rerr != nil {
		t.Fatalf("reading captured stderr: %v", rerr)
	}
	if callErr != nil {
		t.Fatalf("dbg-dump-obj: %s", p.FormatError(callErr))
	}

	for _, want := range []string{"box", "header:", "42"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("dbg-dump-obj output missing %q:\n%s", want, out)
		}
	}
}

func TestCallUndefinedSymbol(t *testing.T) {
	p := newTestProcess(t)
	sym := p.Alloc.Intern([]byte("nonexistent-thing"))

	_, err := p.Call(gc.PtrVal(uint64(sym)), nil, 0)
	if err == nil {
		t.Fatalf("expected an error calling an undefined symbol")
	}
	msg := p.FormatError(err)
	if !strings.Contains(msg, "Uncaught exception") {
		t.Fatalf("FormatError = %q, missing top-level banner", msg)
	}
	if !strings.Contains(msg, "Called an undefined symbol") {
		t.Fatalf("FormatError = %q, missing fault message", msg)
	}
	if !strings.Contains(msg, "nonexistent-thing") {
		t.Fatalf("FormatError = %q, missing symbol name", msg)
	}
}

// TestArgRefOutOfRange checks that calling an interpreted closure
// with fewer arguments than its body references fails with a
// reported error rather than a Go panic or silent wraparound.
func TestArgRefOutOfRange(t *testing.T) {
	p := newTestProcess(t)
	b := newBCHeader()

	b.u32(image.SectionConstants)
	b.u32(0)
	b.u32(image.SectionCodes)
	b.u32(1)
	code := []byte{image.OpArgRef, 0}
	code = append(code, ret(1)...)
	b.codeBlock(code, 1, 0)
	b.u32(image.SectionBindings)
	b.u32(0)
	b.u32(image.SectionStart)
	b.u32(0)

	_, imgIdx := loadImage(t, p, b.buf)
	closureAddr := p.newClosure(imgIdx, 0, nil)

	_, err := p.Call(gc.PtrVal(uint64(closureAddr)), nil, 1)
	if err == nil {
		t.Fatalf("expected an out-of-range argument error")
	}
}

// TestRunEmptyStartNoMain covers the empty-program edge: an image
// with only a trivial start block and no bound main returns nil
// cleanly.
func TestRunEmptyStartNoMain(t *testing.T) {
	p := newTestProcess(t)
	b := newBCHeader()

	b.u32(image.SectionConstants)
	b.u32(0)
	b.u32(image.SectionCodes)
	b.u32(1)
	b.codeBlock(ret(0), 0, 0)
	b.u32(image.SectionBindings)
	b.u32(0)
	b.u32(image.SectionStart)
	b.u32(1) // code 0

	_, imgIdx := loadImage(t, p, b.buf)

	v, err := p.Run(imgIdx)
	if err != nil {
		t.Fatalf("Run: %s", p.FormatError(err))
	}
	if v != gc.ValNil {
		t.Fatalf("Run result = %v, want ValNil", v)
	}
}

// TestRunCallsMain checks the other half of `run`: when the loaded
// image binds "main", Run invokes it with zero arguments and returns
// its single result.
func TestRunCallsMain(t *testing.T) {
	p := newTestProcess(t)
	b := newBCHeader()

	b.u32(image.SectionConstants)
	b.u32(0)
	b.u32(image.SectionCodes)
	b.u32(1)
	b.codeBlock(ret(0), 0, 0)
	b.u32(image.SectionBindings)
	b.u32(0)
	b.u32(image.SectionStart)
	b.u32(1) // code 0 (does nothing)

	img, imgIdx := loadImage(t, p, b.buf)
	image.Bake(img)

	mainSym := p.Alloc.Intern([]byte("main"))
	// Bound to a native rather than a second code block built from
	// this image: isolates Run's main-dispatch from exec's own
	// return handling, which TestComputeOnePlusTwo already exercises.
	nativeMain := p.registerNative("main", func(pp *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
		return []gc.Val{gc.FixVal(42)}, nil
	})
	p.Alloc.SetSymbolValue(mainSym, nativeMain)

	v, err := p.Run(imgIdx)
	if err != nil {
		t.Fatalf("Run: %s", p.FormatError(err))
	}
	if got := v.SFix(); got != 42 {
		t.Fatalf("Run result = %d, want 42", got)
	}
}
