// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import "github.com/eutro/gliss/internal/gc"

// Field offsets within an interpreted closure object: a captured-value
// count (doubling as the resizable length word), the image table index
// and code index it executes, four reserved bytes keeping the
// captures tail 8-byte aligned, then the captures themselves. There is
// deliberately no stored arity: LAMBDA's arity operand is only ever
// the capture count (it is popped straight into this object), and a
// mismatched argument count at a call site is instead caught by
// ARG_REF's bounds check, not a minimum recorded on the closure.
// Registered here rather than in package gc because, unlike pair/box
// (needed by both image.Bake and this package), only the interpreter
// ever builds or inspects a closure.
const (
	closureFieldCount    = 0
	closureFieldImage    = 4
	closureFieldCode     = 8
	closureFieldReserved = 12
	closureBaseSize      = 16
)

func (p *Process) registerClosureType() {
	p.closureTy = p.Alloc.PushType(&gc.Type{
		Name:     "closure",
		Align:    8,
		BaseSize: closureBaseSize,
		Fields: []gc.Field{
			{Offset: closureFieldCount, Size: 4, GC: gc.TagNone},
			{Offset: closureFieldImage, Size: 4, GC: gc.TagNone},
			{Offset: closureFieldCode, Size: 4, GC: gc.TagNone},
			{Offset: closureFieldReserved, Size: 4, GC: gc.TagNone},
			{Offset: closureBaseSize, Size: 8, GC: gc.TagTagged},
		},
		Resizable: &gc.Resizable{FieldIndex: 4, LengthOff: closureFieldCount, ElemSize: 8},
	})
}

// ClosureTypeIndex reports the registered type index of an interpreted
// closure object.
func (p *Process) ClosureTypeIndex() uint32 { return p.closureTy }

func (p *Process) newClosure(imageIdx, codeIdx uint32, captures []gc.Val) gc.Addr {
	addr := p.Alloc.AllocArray(p.closureTy, int64(len(captures)))
	p.Alloc.WriteU32(addr, closureFieldImage, imageIdx)
	p.Alloc.WriteU32(addr, closureFieldCode, codeIdx)
	for i, c := range captures {
		p.Alloc.WriteVal(addr, closureBaseSize+int64(i)*8, c)
	}
	return addr
}

func (p *Process) closureImage(addr gc.Addr) uint32      { return p.Alloc.ReadU32(addr, closureFieldImage) }
func (p *Process) closureCode(addr gc.Addr) uint32       { return p.Alloc.ReadU32(addr, closureFieldCode) }
func (p *Process) closureNumCaptures(addr gc.Addr) int64 { return p.Alloc.ArrayLen(addr) }

func (p *Process) closureCapture(addr gc.Addr, idx uint8) gc.Val {
	return p.Alloc.ReadVal(addr, closureBaseSize+int64(idx)*8)
}

// string objects share bytestring's wire layout (u32 length, packed
// byte payload) but are a distinct registered type so string? and
// bytestring? can tell them apart.
const (
	stringFieldLen = 0
	stringBaseSize = 8
)

func (p *Process) registerStringType() {
	p.stringTy = p.Alloc.PushType(&gc.Type{
		Name:     "string",
		Align:    8,
		BaseSize: stringBaseSize,
		Fields: []gc.Field{
			{Offset: stringFieldLen, Size: 4, GC: gc.TagNone},
			{Offset: stringBaseSize, Size: 1, GC: gc.TagNone},
		},
		Resizable: &gc.Resizable{FieldIndex: 1, LengthOff: stringFieldLen, ElemSize: 1},
	})
}

// StringTypeIndex reports the registered type index of a string
// object (the `string?`/`list->string` family; not to be confused
// with the packed-binary bytestring type).
func (p *Process) StringTypeIndex() uint32 { return p.stringTy }

func (p *Process) newString(b []byte) gc.Addr {
	addr := p.Alloc.AllocArray(p.stringTy, int64(len(b)))
	copy(p.Alloc.ReadBytes(addr, stringBaseSize, int64(len(b))), b)
	return addr
}

// NewString builds a string object from b, for hosts (the CLI's REPL
// mode) that need to hand raw text to a guest image's eval-0 without
// going through bytecode.
func (p *Process) NewString(b []byte) gc.Val {
	return gc.PtrVal(uint64(p.newString(b)))
}

func (p *Process) stringBytes(addr gc.Addr) []byte {
	n := p.Alloc.ArrayLen(addr)
	return p.Alloc.ReadBytes(addr, stringBaseSize, n)
}

func (p *Process) isString(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.stringTy
}

func (p *Process) isBytestring(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.Alloc.BytestringTypeIndex()
}

func (p *Process) isPair(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.Alloc.PairTypeIndex()
}

func (p *Process) isBox(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.Alloc.BoxTypeIndex()
}

func (p *Process) isSymbol(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.Alloc.SymbolTypeIndex()
}

func (p *Process) isClosure(v gc.Val) bool {
	return v.IsGCPtr() && p.Alloc.TypeOf(gc.Addr(v.Addr())) == p.closureTy
}

// isCallable reports whether v can appear as the callee of CALL/apply:
// a native closure, an interpreted closure, or a symbol (dispatched
// through its value).
func (p *Process) isCallable(v gc.Val) bool {
	return v.IsStaticPtr() || p.isClosure(v) || p.isSymbol(v)
}

// isList reports whether v is a proper list: nil, or a chain of pairs
// ending in nil.
func (p *Process) isList(v gc.Val) bool {
	for v != gc.ValNil {
		if !p.isPair(v) {
			return false
		}
		v = p.Alloc.PairCdr(gc.Addr(v.Addr()))
	}
	return true
}

// imageHandleBit marks a StaticPtrVal as naming an entry in the
// process's image table rather than its native-primitive table: the
// two share the tag because both are host-side, non-GC indices, and
// this bit (far above any realistic table size) keeps index-image's
// result from colliding with a native closure's pointer. Like a native
// index, the handle is stored shifted left past the two tag bits.
const imageHandleBit = uint64(1) << 40

func (p *Process) imageHandleVal(idx uint32) gc.Val {
	return gc.StaticPtrVal((imageHandleBit | uint64(idx)) << 2)
}

func (p *Process) isImageHandle(v gc.Val) bool {
	return v.IsStaticPtr() && (v.Addr()>>2)&imageHandleBit != 0
}

func (p *Process) imageHandleIndex(v gc.Val) uint32 {
	return uint32((v.Addr() >> 2) &^ imageHandleBit)
}
