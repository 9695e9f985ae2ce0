// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"
	"testing"

	"github.com/eutro/gliss/internal/gc"
)

// imgBuilder assembles a raw image buffer field by field, mirroring
// the layout reader.go parses, so tests can construct exact-shaped
// inputs (including deliberately malformed ones) without depending on
// any encoder elsewhere in the tree.
type imgBuilder struct{ buf []byte }

func (b *imgBuilder) u8(v uint8) { b.buf = append(b.buf, v) }

func (b *imgBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *imgBuilder) i32(v int32) { b.u32(uint32(v)) }

func (b *imgBuilder) raw(bs []byte) { b.buf = append(b.buf, bs...) }

func (b *imgBuilder) lenPrefixed(bs []byte) {
	b.u32(uint32(len(bs)))
	b.raw(bs)
	if pad := (4 - len(bs)%4) % 4; pad > 0 {
		b.raw(make([]byte, pad))
	}
}

func newHeader() *imgBuilder {
	b := &imgBuilder{}
	b.raw(Magic[:])
	b.u32(Version)
	return b
}

type stackMapEntry struct{ pos, height uint32 }

func (b *imgBuilder) codeBlock(code []byte, maxStack, locals uint32, sm []stackMapEntry) {
	b.u32(uint32(len(code)))
	b.u32(maxStack)
	b.u32(locals)
	b.u32(uint32(len(sm)))
	b.raw(code)
	if pad := (4 - len(code)%4) % 4; pad > 0 {
		b.raw(make([]byte, pad))
	}
	for _, e := range sm {
		b.u32(e.pos)
		b.u32(e.height)
	}
}

// buildMinimalImage builds a single-code-block image whose only
// instruction returns zero values, with start pointing at it:
// IndexImage, Verify, and Run should all accept it cleanly.
func buildMinimalImage() []byte {
	b := newHeader()

	b.u32(SectionConstants)
	b.u32(0)

	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpRet, 0}, 0, 0, nil)

	b.u32(SectionBindings)
	b.u32(0)

	b.u32(SectionStart)
	b.u32(1) // 1-based: code 0

	return b.buf
}

func newTestAlloc(t *testing.T) *gc.Allocator {
	t.Helper()
	a := gc.NewAllocator(gc.DefaultConfig)
	a.Init()
	a.InitCoreTypes()
	a.InitSymbolTable()
	return a
}

func TestIndexAndVerifyMinimalImage(t *testing.T) {
	a := newTestAlloc(t)
	img, err := IndexImage(a, buildMinimalImage())
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if img.NumConstants() != 0 {
		t.Fatalf("NumConstants = %d, want 0", img.NumConstants())
	}
	if len(img.Codes) != 1 {
		t.Fatalf("len(Codes) = %d, want 1", len(img.Codes))
	}
	if !img.HasStart || img.StartCode != 0 {
		t.Fatalf("HasStart/StartCode = %v/%d, want true/0", img.HasStart, img.StartCode)
	}
	if err := Verify(img); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestIndexImageBadMagic(t *testing.T) {
	a := newTestAlloc(t)
	raw := buildMinimalImage()
	raw[0] = 'X'
	if _, err := IndexImage(a, raw); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestIndexImageBadVersion(t *testing.T) {
	a := newTestAlloc(t)
	b := &imgBuilder{}
	b.raw(Magic[:])
	b.u32(Version + 1)
	if _, err := IndexImage(a, b.buf); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}

func TestIndexImageOutOfOrderSections(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()
	b.u32(SectionStart)
	b.u32(0)
	b.u32(SectionConstants) // 1 <= lastSection(4): out of order
	b.u32(0)
	if _, err := IndexImage(a, b.buf); err == nil {
		t.Fatalf("expected error for out-of-order sections")
	}
}

func TestIndexImageLambdaCodeIndexOutOfRange(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()

	b.u32(SectionConstants)
	b.u32(1)
	b.u32(ConstLambda)
	b.u32(5) // code index, but only one code block will exist
	b.u32(0) // capture count

	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpRet, 0}, 0, 0, nil)

	if _, err := IndexImage(a, b.buf); err == nil {
		t.Fatalf("expected error for out-of-range lambda code index")
	}
}

func TestVerifyStackUnderflow(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()
	b.u32(SectionConstants)
	b.u32(0)
	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpDrop}, 0, 0, nil) // pops with nothing on the stack
	b.u32(SectionBindings)
	b.u32(0)
	b.u32(SectionStart)
	b.u32(0)

	img, err := IndexImage(a, b.buf)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if err := Verify(img); err == nil {
		t.Fatalf("expected stack underflow error")
	}
}

func TestVerifyBranchTargetMissingFromStackMap(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()
	b.u32(SectionConstants)
	b.u32(0)
	b.u32(SectionCodes)
	b.u32(1)
	// br +0: target is the instruction's own end offset (5), which is
	// within bounds but was never declared in the (empty) stack map.
	code := []byte{OpBr, 0, 0, 0, 0}
	b.codeBlock(code, 0, 0, nil)
	b.u32(SectionBindings)
	b.u32(0)
	b.u32(SectionStart)
	b.u32(0)

	img, err := IndexImage(a, b.buf)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if err := Verify(img); err == nil {
		t.Fatalf("expected branch-target-missing error")
	}
}

func TestVerifyControlFallsOffEnd(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()
	b.u32(SectionConstants)
	b.u32(0)
	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpNop}, 0, 0, nil) // never returns
	b.u32(SectionBindings)
	b.u32(0)
	b.u32(SectionStart)
	b.u32(0)

	img, err := IndexImage(a, b.buf)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if err := Verify(img); err == nil {
		t.Fatalf("expected control-falls-off-end error")
	}
}

// TestBakeConstantsAndBindings builds every constant tag plus a
// binding and checks both the baked heap values and the bound
// symbol's value after Bake.
func TestBakeConstantsAndBindings(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()

	b.u32(SectionConstants)
	b.u32(4)
	// const 0: direct, fixnum 7 (FixVal(7) = 7<<2 = 28)
	b.u32(ConstDirect)
	b.u32(28)
	b.u32(0)
	// const 1: symbol "greeting"
	b.u32(ConstSymbol)
	b.lenPrefixed([]byte("greeting"))
	// const 2: string "hi"
	b.u32(ConstString)
	b.lenPrefixed([]byte("hi"))
	// const 3: list (const 0 const 2)
	b.u32(ConstList)
	b.u32(2)
	b.u32(0)
	b.u32(2)

	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpRet, 0}, 0, 0, nil)

	b.u32(SectionBindings)
	b.u32(1)
	b.u32(1) // symbol const 1 ("greeting")
	b.u32(0) // bound to const 0 (fixnum 7)

	b.u32(SectionStart)
	b.u32(0)

	img, err := IndexImage(a, b.buf)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}
	if err := Verify(img); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	Bake(img)

	if got := img.ConstantsBaked[0].SFix(); got != 7 {
		t.Fatalf("const 0 = %d, want 7", got)
	}
	symAddr := gc.Addr(img.ConstantsBaked[1].Addr())
	if name := a.BytestringBytes(a.SymbolName(symAddr)); string(name) != "greeting" {
		t.Fatalf("const 1 name = %q, want greeting", name)
	}
	strAddr := gc.Addr(img.ConstantsBaked[2].Addr())
	if got := string(a.BytestringBytes(strAddr)); got != "hi" {
		t.Fatalf("const 2 = %q, want hi", got)
	}
	listAddr := gc.Addr(img.ConstantsBaked[3].Addr())
	if got := a.PairCar(listAddr).SFix(); got != 7 {
		t.Fatalf("const 3 car = %d, want 7", got)
	}
	cdr := a.PairCdr(listAddr)
	if !cdr.IsGCPtr() {
		t.Fatalf("const 3 cdr = %v, want a pair", cdr)
	}
	innerAddr := gc.Addr(cdr.Addr())
	if got := a.PairCar(innerAddr); got != img.ConstantsBaked[2] {
		t.Fatalf("const 3 second element = %v, want the string constant", got)
	}
	if got := a.PairCdr(innerAddr); got != gc.ValNil {
		t.Fatalf("const 3 tail = %v, want nil", got)
	}

	if a.SymbolIsUndefined(symAddr) {
		t.Fatalf("bound symbol still reports undefined")
	}
	if got := a.SymbolValue(symAddr).SFix(); got != 7 {
		t.Fatalf("symbol value = %d, want 7", got)
	}

	// Bake is idempotent.
	Bake(img)
	if got := img.ConstantsBaked[0].SFix(); got != 7 {
		t.Fatalf("const 0 after second Bake = %d, want 7", got)
	}
}
