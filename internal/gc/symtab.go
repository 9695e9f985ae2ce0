// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "bytes"

// symBuckets is the fixed bucket count of the global symbol table.
const symBuckets = 64

// Field offsets within a symbol object. invokeMarker is a constant
// word, not a real function pointer: the interpreter recognizes a
// callable symbol by its registered type (symbolTy) rather than by a
// function
// pointer embedded in the object, so the field exists for structural
// fidelity (every symbol still "contains" an invoke slot) without
// needing portable function-pointer-to-integer conversion.
const (
	symFieldInvoke  = 0  // u64, constant marker
	symFieldValue   = 8  // Val, TagTagged
	symFieldName    = 16 // Val, TagTagged (bytestring)
	symFieldIsMacro = 24 // u8
	symFieldSelf    = 32 // Val, TagTagged; back-pointer to this object's own address
	symObjectSize   = 40
)

const invokeMarker = 0x53594d42 // "SYMB", arbitrary non-pointer constant

// Field offsets within a bucket object: a dynamic array of symbol
// refs, doubled on fill.
const (
	bucketFieldArr   = 0 // Val, TagTagged -> valArray
	bucketFieldCount = 8 // u32, number of slots in use
	bucketObjectSize = 16
)

// bytestring layout: a u32 length word followed by the resizable byte
// payload. Shared by symbol names and the new-bytestring primitive.
const (
	bstrFieldLen = 0
	bstrBaseSize = 8
)

// InitSymbolTable registers the symbol table's own GC types and
// allocates the (empty) table into the root generation. Must be
// called once, after Init, before any Intern call.
func (a *Allocator) InitSymbolTable() {
	a.bytestringTy = a.PushType(&Type{
		Name:     "bytestring",
		Align:    8,
		BaseSize: bstrBaseSize,
		Fields: []Field{
			{Offset: bstrFieldLen, Size: 4, GC: TagNone},
			{Offset: bstrBaseSize, Size: 1, GC: TagNone},
		},
		Resizable: &Resizable{FieldIndex: 1, LengthOff: bstrFieldLen, ElemSize: 1},
	})

	a.valArrayTy = a.PushType(&Type{
		Name:     "val-array",
		Align:    8,
		BaseSize: 8,
		Fields: []Field{
			{Offset: 0, Size: 4, GC: TagNone},
			{Offset: 8, Size: 8, GC: TagTagged},
		},
		Resizable: &Resizable{FieldIndex: 1, LengthOff: 0, ElemSize: 8},
	})

	a.bucketTy = a.PushType(&Type{
		Name:     "bucket",
		Align:    8,
		BaseSize: bucketObjectSize,
		Fields: []Field{
			{Offset: bucketFieldArr, Size: 8, GC: TagTagged},
			{Offset: bucketFieldCount, Size: 4, GC: TagNone},
		},
	})

	a.symbolTy = a.PushType(&Type{
		Name:     "symbol",
		Align:    8,
		BaseSize: symObjectSize,
		Fields: []Field{
			{Offset: symFieldInvoke, Size: 8, GC: TagNone},
			{Offset: symFieldValue, Size: 8, GC: TagTagged},
			{Offset: symFieldName, Size: 8, GC: TagTagged},
			{Offset: symFieldIsMacro, Size: 1, GC: TagNone},
			{Offset: symFieldSelf, Size: 8, GC: TagTagged},
		},
	})

	bucketsArr := a.AllocArrayAtRoot(a.valArrayTy, symBuckets)
	for i := int64(0); i < symBuckets; i++ {
		a.writeValRaw(bucketsArr, 8+i*8, ValNil)
	}
	a.symtabAddr = a.AllocArrayAtRoot(a.valArrayTy, 1)
	a.writeValRaw(a.symtabAddr, 8, PtrVal(uint64(bucketsArr)))
}

// SymbolTypeIndex reports the registered type index of a symbol
// object, so the interpreter can recognize a callable symbol.
func (a *Allocator) SymbolTypeIndex() uint32 { return a.symbolTy }

// NewBytestring copies b onto the heap as a bytestring object, in the
// current scope, and returns its address.
func (a *Allocator) NewBytestring(b []byte) Addr {
	addr := a.AllocArray(a.bytestringTy, int64(len(b)))
	copy(a.ReadBytes(addr, bstrBaseSize, int64(len(b))), b)
	return addr
}

// newBytestringAtRoot is NewBytestring but forced into the permanent
// root generation, for the symbol table's own name strings.
func (a *Allocator) newBytestringAtRoot(b []byte) Addr {
	addr := a.AllocArrayAtRoot(a.bytestringTy, int64(len(b)))
	copy(a.ReadBytes(addr, bstrBaseSize, int64(len(b))), b)
	return addr
}

// NewLargeBytestringAtRoot copies b onto the heap as a non-moving
// bytestring in the permanent root generation. The image loader uses
// this for the raw image buffer: its internal offsets are handed out
// as raw byte-slice views (CodeBlock.Code, constant name/string
// payloads), which would dangle if the collector ever relocated the
// backing object.
func (a *Allocator) NewLargeBytestringAtRoot(b []byte) Addr {
	a.ForceNextLarge()
	addr := a.AllocArrayAtRoot(a.bytestringTy, int64(len(b)))
	copy(a.ReadBytes(addr, bstrBaseSize, int64(len(b))), b)
	return addr
}

// BytestringTypeIndex reports the registered type index of a
// bytestring object.
func (a *Allocator) BytestringTypeIndex() uint32 { return a.bytestringTy }

// BytestringBytes returns the bytes of a bytestring object (a view,
// not a copy — the caller must not retain it across a collection).
func (a *Allocator) BytestringBytes(addr Addr) []byte {
	n := a.ArrayLen(addr)
	return a.ReadBytes(addr, bstrBaseSize, n)
}

func symHash(name []byte) uint32 {
	var h uint32
	for _, c := range name {
		h = 31*h + uint32(c)
	}
	return h
}

func (a *Allocator) bucketsArr() Addr {
	return Addr(a.ReadVal(a.symtabAddr, 8).Addr())
}

// Intern returns the unique symbol with the given UTF-8 name,
// allocating one (with its value field pointing to itself, the
// "undefined" sentinel) if none exists yet.
//
// The bucket/array layout mirrors the Type-described resizable-array
// pattern used throughout this package rather than a host-side Go
// map, since the table must be entirely GC-managed (its buckets are
// themselves relocatable heap objects, written to through the write
// barrier).
func (a *Allocator) Intern(name []byte) Addr {
	h := symHash(name) % symBuckets
	buckets := a.bucketsArr()
	bucketV := a.ReadVal(buckets, 8+int64(h)*8)
	if bucketV == ValNil {
		bucketAddr := a.newBucket()
		a.WriteVal(buckets, 8+int64(h)*8, PtrVal(uint64(bucketAddr)))
		bucketV = PtrVal(uint64(bucketAddr))
	}
	bucketAddr := Addr(bucketV.Addr())

	if found, ok := a.findInBucket(bucketAddr, name); ok {
		return found
	}

	sym := a.newSymbol(name)
	a.appendToBucket(bucketAddr, sym)
	return sym
}

// ReverseLookup finds any symbol currently bound (its value field) to
// v, scanning every bucket. Returns (0, false) if none is found.
func (a *Allocator) ReverseLookup(v Val) (Addr, bool) {
	buckets := a.bucketsArr()
	n := a.ArrayLen(buckets)
	for i := int64(0); i < n; i++ {
		bv := a.ReadVal(buckets, 8+i*8)
		if bv == ValNil {
			continue
		}
		bucketAddr := Addr(bv.Addr())
		arr := a.ReadVal(bucketAddr, bucketFieldArr).Addr()
		count := int64(a.readU32(bucketAddr, bucketFieldCount))
		for j := int64(0); j < count; j++ {
			symV := a.ReadVal(Addr(arr), 8+j*8)
			if a.ReadVal(Addr(symV.Addr()), symFieldValue) == v {
				return Addr(symV.Addr()), true
			}
		}
	}
	return 0, false
}

func (a *Allocator) findInBucket(bucketAddr Addr, name []byte) (Addr, bool) {
	arr := a.ReadVal(bucketAddr, bucketFieldArr).Addr()
	count := int64(a.readU32(bucketAddr, bucketFieldCount))
	for j := int64(0); j < count; j++ {
		symV := a.ReadVal(Addr(arr), 8+j*8)
		symAddr := Addr(symV.Addr())
		nameAddr := Addr(a.ReadVal(symAddr, symFieldName).Addr())
		if bytes.Equal(a.BytestringBytes(nameAddr), name) {
			return symAddr, true
		}
	}
	return 0, false
}

func (a *Allocator) newBucket() Addr {
	arr := a.AllocArrayAtRoot(a.valArrayTy, 4)
	for i := int64(0); i < 4; i++ {
		a.writeValRaw(arr, 8+i*8, ValNil)
	}
	b := a.AllocAtRoot(a.bucketTy)
	a.writeValRaw(b, bucketFieldArr, PtrVal(uint64(arr)))
	a.writeU32(b, bucketFieldCount, 0)
	return b
}

func (a *Allocator) appendToBucket(bucketAddr Addr, sym Addr) {
	arr := Addr(a.ReadVal(bucketAddr, bucketFieldArr).Addr())
	cap_ := a.ArrayLen(arr)
	count := int64(a.readU32(bucketAddr, bucketFieldCount))
	if count == cap_ {
		newCap := cap_ * 2
		if newCap == 0 {
			newCap = 4
		}
		newArr := a.AllocArrayAtRoot(a.valArrayTy, newCap)
		for i := int64(0); i < newCap; i++ {
			if i < count {
				a.writeValRaw(newArr, 8+i*8, a.ReadVal(arr, 8+i*8))
			} else {
				a.writeValRaw(newArr, 8+i*8, ValNil)
			}
		}
		a.writeValRaw(bucketAddr, bucketFieldArr, PtrVal(uint64(newArr)))
		arr = newArr
	}
	a.writeValRaw(arr, 8+count*8, PtrVal(uint64(sym)))
	a.writeU32(bucketAddr, bucketFieldCount, uint32(count+1))
}

// NewUninternedSymbol allocates a fresh symbol in the current scope
// (unlike interned symbols, which are forced into the root generation)
// that is reachable from no bucket, pointing at nameAddr as its name
// without copying it. nameAddr need not be a bytestring object: any
// object sharing its layout (a u32 length word followed by a packed
// byte payload, the same shape the interpreter's own string type
// uses) works, since every reader of a symbol's name only ever goes
// through that layout. gensym is the one caller that builds a symbol
// outside of Intern.
func (a *Allocator) NewUninternedSymbol(nameAddr Addr) Addr {
	sym := a.Alloc(a.symbolTy)
	a.writeValRaw(sym, symFieldInvoke, Val(invokeMarker))
	a.writeValRaw(sym, symFieldValue, PtrVal(uint64(sym)))
	a.writeValRaw(sym, symFieldName, PtrVal(uint64(nameAddr)))
	a.WriteU8(sym, symFieldIsMacro, 0)
	a.writeValRaw(sym, symFieldSelf, PtrVal(uint64(sym)))
	return sym
}

func (a *Allocator) newSymbol(name []byte) Addr {
	nameAddr := a.newBytestringAtRoot(name)
	sym := a.AllocAtRoot(a.symbolTy)
	a.writeValRaw(sym, symFieldInvoke, Val(invokeMarker))
	a.writeValRaw(sym, symFieldValue, PtrVal(uint64(sym))) // undefined sentinel
	a.writeValRaw(sym, symFieldName, PtrVal(uint64(nameAddr)))
	a.WriteU8(sym, symFieldIsMacro, 0)
	a.writeValRaw(sym, symFieldSelf, PtrVal(uint64(sym)))
	return sym
}

// SymbolValue, SetSymbolValue, SymbolIsMacro, SetSymbolIsMacro, and
// SymbolName give the interpreter/primitives package field-level
// access to a symbol object without exposing the raw offsets above.

func (a *Allocator) SymbolValue(sym Addr) Val { return a.ReadVal(sym, symFieldValue) }

func (a *Allocator) SetSymbolValue(sym Addr, v Val) { a.WriteVal(sym, symFieldValue, v) }

func (a *Allocator) SymbolIsUndefined(sym Addr) bool {
	return a.SymbolValue(sym) == PtrVal(uint64(sym))
}

func (a *Allocator) SymbolIsMacro(sym Addr) bool { return a.ReadU8(sym, symFieldIsMacro) != 0 }

func (a *Allocator) SetSymbolIsMacro(sym Addr, v bool) {
	if v {
		a.WriteU8(sym, symFieldIsMacro, 1)
	} else {
		a.WriteU8(sym, symFieldIsMacro, 0)
	}
}

func (a *Allocator) SymbolName(sym Addr) Addr {
	return Addr(a.ReadVal(sym, symFieldName).Addr())
}
