// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"fmt"
	"strings"
	"testing"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a := NewAllocator(Config{MiniPages: 8, MaxScopeDepth: 64})
	a.Init()
	a.InitCoreTypes()
	return a
}

func TestValTagging(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40)}
	for _, n := range cases {
		v := FixVal(n)
		if !v.IsFixnum() {
			t.Fatalf("FixVal(%d): not a fixnum", n)
		}
		if got := v.SFix(); got != n {
			t.Fatalf("FixVal(%d).SFix() = %d", n, got)
		}
	}

	p := PtrVal(0x2000)
	if !p.IsGCPtr() || !p.IsPtr() {
		t.Fatalf("PtrVal: IsGCPtr/IsPtr false")
	}
	if p.Addr() != 0x2000 {
		t.Fatalf("PtrVal.Addr() = %#x", p.Addr())
	}

	sp := StaticPtrVal(0x3000)
	if !sp.IsStaticPtr() || !sp.IsPtr() || sp.IsGCPtr() {
		t.Fatalf("StaticPtrVal: wrong kind")
	}

	c := CharVal('x')
	if !c.IsChar() || c.Char() != 'x' {
		t.Fatalf("CharVal round trip failed: %v", c)
	}

	for _, v := range []Val{ValNil, ValFalse} {
		if v.Truthy() {
			t.Fatalf("%v should not be truthy", v)
		}
	}
	for _, v := range []Val{ValTrue, ValEOF, FixVal(0), CharVal(0)} {
		if !v.Truthy() {
			t.Fatalf("%v should be truthy", v)
		}
	}

	if !FixVal(7).Eq(FixVal(7)) {
		t.Fatalf("Eq: equal fixnums compared unequal")
	}
	if FixVal(7).Eq(FixVal(8)) {
		t.Fatalf("Eq: unequal fixnums compared equal")
	}
}

func TestPairAndBoxRoundTrip(t *testing.T) {
	a := newTestAllocator(t)

	box := a.NewBox(FixVal(11))
	if got := a.BoxValue(box); got.SFix() != 11 {
		t.Fatalf("BoxValue = %v, want 11", got)
	}
	a.SetBoxValue(box, FixVal(22))
	if got := a.BoxValue(box); got.SFix() != 22 {
		t.Fatalf("SetBoxValue: BoxValue = %v, want 22", got)
	}

	pair := a.NewPair(FixVal(1), FixVal(2))
	if got := a.PairCar(pair); got.SFix() != 1 {
		t.Fatalf("PairCar = %v, want 1", got)
	}
	if got := a.PairCdr(pair); got.SFix() != 2 {
		t.Fatalf("PairCdr = %v, want 2", got)
	}
	a.SetPairCdr(pair, FixVal(3))
	if got := a.PairCdr(pair); got.SFix() != 3 {
		t.Fatalf("SetPairCdr: PairCdr = %v, want 3", got)
	}
}

// TestScopeReclaim exercises the ordinary push/alloc/pop cycle: a
// value that escapes a popped scope by being reachable from an outer
// object survives; nothing panics walking the root generation
// afterward.
func TestScopeReclaim(t *testing.T) {
	a := newTestAllocator(t)

	outer := a.NewBox(ValNil)

	freeBefore := len(a.freeList)
	a.PushScope()
	inner := a.NewBox(FixVal(99))
	a.SetBoxValue(outer, PtrVal(uint64(inner)))
	a.PopScope()

	// The popped scope's pages are recycled; at most one may have been
	// consumed by the parent generation absorbing the survivors.
	if len(a.freeList) < freeBefore-1 {
		t.Fatalf("free mini-pages = %d, want at least %d", len(a.freeList), freeBefore-1)
	}

	v := a.BoxValue(outer)
	if !v.IsGCPtr() {
		t.Fatalf("escaped value lost its pointer tag: %v", v)
	}
	if got := a.BoxValue(Addr(v.Addr())); got.SFix() != 99 {
		t.Fatalf("escaped box contents = %v, want 99", got)
	}
}

// TestMultiGenerationTrailReRecording regresses the bug where a value
// written into an object two or more generations out from where it
// was allocated would be dropped on the *second* PopScope: the first
// pop evacuates it correctly using the original trail entry, but
// unless the write barrier's own crossing check is re-applied against
// the new home, nothing records it on the next generation's trail,
// and the second pop reclaims it out from under a still-live
// reference.
func TestMultiGenerationTrailReRecording(t *testing.T) {
	a := newTestAllocator(t)

	a.PushScope() // depth 1
	container := a.NewBox(ValNil)

	a.PushScope() // depth 2
	a.PushScope() // depth 3
	inner := a.NewBox(FixVal(123))
	a.SetBoxValue(container, PtrVal(uint64(inner)))

	a.PopScope() // pops depth 3, dst = depth 2
	a.PopScope() // pops depth 2, dst = depth 1

	v := a.BoxValue(container)
	if !v.IsGCPtr() {
		t.Fatalf("container field lost its pointer after two pops: %v", v)
	}
	if got := a.BoxValue(Addr(v.Addr())); got.SFix() != 123 {
		t.Fatalf("surviving box contents = %v, want 123 (multi-generation trail re-recording regressed)", got)
	}

	a.PopScope() // pops depth 1, back to root
	v = a.BoxValue(container)
	if got := a.BoxValue(Addr(v.Addr())); got.SFix() != 123 {
		t.Fatalf("box contents after final pop = %v, want 123", got)
	}
}

// TestLargeObjectInteriorTrail regresses the bug where resolve only
// matched a large object's exact base address: a trail entry for a
// field inside a large object (offset from the base, as every element
// past the first of a resizable large array is) panicked instead of
// resolving.
func TestLargeObjectInteriorTrail(t *testing.T) {
	a := newTestAllocator(t)

	arrTy := a.PushType(&Type{
		Name:     "valarray",
		Align:    8,
		BaseSize: 8,
		Fields: []Field{
			{Offset: 0, Size: 4, GC: TagNone},
			{Offset: 8, Size: 8, GC: TagTagged},
		},
		Resizable: &Resizable{FieldIndex: 1, LengthOff: 0, ElemSize: 8},
	})

	a.PushScope() // depth 1
	a.ForceNextLarge()
	arr := a.AllocArray(arrTy, 4)

	a.PushScope() // depth 2
	inner := a.NewBox(FixVal(77))
	const elem2Off = 8 + 2*8 // third element: an interior address, not the array's base
	a.WriteVal(arr, elem2Off, PtrVal(uint64(inner)))

	a.PopScope() // pops depth 2, dst = depth 1; must resolve arr+elem2Off

	got := a.ReadVal(arr, elem2Off)
	if !got.IsGCPtr() {
		t.Fatalf("interior array field lost its pointer after pop: %v", got)
	}
	if boxed := a.BoxValue(Addr(got.Addr())); boxed.SFix() != 77 {
		t.Fatalf("surviving interior box contents = %v, want 77 (large-object interior trail regressed)", boxed)
	}

	// Other elements, never written, remain whatever zero value the
	// backing store started with and must not upset resolution either.
	if z := a.ReadVal(arr, 8); z != 0 {
		t.Fatalf("untouched element 0 = %v, want zero Val", z)
	}

	a.PopScope() // pops depth 1, back to root
}

// TestForceNextLarge checks the two observable halves of a forced
// large allocation: the header byte carries the large tag, and the
// object's address lies past the mini-page pool.
func TestForceNextLarge(t *testing.T) {
	a := newTestAllocator(t)

	a.ForceNextLarge()
	addr := a.NewBox(FixVal(5))

	if hdr := a.readHeader(addr); hdr.tag != hdrLarge {
		t.Fatalf("header tag = %#x, want %#x", hdr.tag, hdrLarge)
	}
	if addr < a.largeBase {
		t.Fatalf("large object address %#x inside the mini-page pool (ends at %#x)", addr, a.largeBase)
	}
	if got := a.BoxValue(addr); got.SFix() != 5 {
		t.Fatalf("large box contents = %v, want 5", got)
	}

	// The flag is one-shot: the next allocation is small again.
	next := a.NewBox(FixVal(6))
	if hdr := a.readHeader(next); hdr.tag != hdrNormal {
		t.Fatalf("follow-up header tag = %#x, want %#x", hdr.tag, hdrNormal)
	}
}

// TestLargeObjectSurvivesPop reparents a still-referenced large object
// on scope pop: the pointer is unchanged (large objects never move)
// but the object now belongs to the parent generation.
func TestLargeObjectSurvivesPop(t *testing.T) {
	a := newTestAllocator(t)

	outer := a.NewBox(ValNil)

	a.PushScope()
	a.ForceNextLarge()
	inner := a.NewBox(FixVal(9))
	a.SetBoxValue(outer, PtrVal(uint64(inner)))
	a.PopScope()

	v := a.BoxValue(outer)
	if got := Addr(v.Addr()); got != inner {
		t.Fatalf("large object moved: %#x -> %#x", inner, got)
	}
	hdr := a.readHeader(inner)
	if hdr.tag != hdrLarge {
		t.Fatalf("header tag after pop = %#x, want %#x", hdr.tag, hdrLarge)
	}
	if hdr.gen != 0 {
		t.Fatalf("generation after pop = %d, want 0", hdr.gen)
	}
	if got := a.BoxValue(inner); got.SFix() != 9 {
		t.Fatalf("large box contents after pop = %v, want 9", got)
	}
}

// TestDumpObject checks that an object dump includes the decoded
// header and every field's rendered value, not just the type and
// size.
func TestDumpObject(t *testing.T) {
	a := newTestAllocator(t)
	pair := a.NewPair(FixVal(7), ValNil)

	var b strings.Builder
	a.DumpObject(&b, pair, func(v Val) string {
		if v.IsFixnum() {
			return fmt.Sprintf("%d", v.SFix())
		}
		return fmt.Sprintf("%#x", uint64(v))
	})
	out := b.String()

	for _, want := range []string{"pair", "header:", "tag=0x0", "gen=root", "+0: 7", "+8:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("DumpObject output missing %q:\n%s", want, out)
		}
	}
}

// TestDumpObjectBytestring checks the resizable-byte-tail path: the
// payload renders as one hex run, and the length word as raw bytes.
func TestDumpObjectBytestring(t *testing.T) {
	a := newTestAllocator(t)
	a.InitSymbolTable()
	bs := a.NewBytestring([]byte{0xAB, 0xCD})

	var b strings.Builder
	a.DumpObject(&b, bs, func(v Val) string { return "" })
	out := b.String()

	for _, want := range []string{"bytestring", "ab cd"} {
		if !strings.Contains(out, want) {
			t.Fatalf("DumpObject output missing %q:\n%s", want, out)
		}
	}
}

func TestArrayLen(t *testing.T) {
	a := newTestAllocator(t)
	arrTy := a.PushType(&Type{
		Name:     "bytes",
		Align:    8,
		BaseSize: 8,
		Fields: []Field{
			{Offset: 0, Size: 4, GC: TagNone},
			{Offset: 8, Size: 1, GC: TagNone},
		},
		Resizable: &Resizable{FieldIndex: 1, LengthOff: 0, ElemSize: 1},
	})
	addr := a.AllocArray(arrTy, 5)
	if got := a.ArrayLen(addr); got != 5 {
		t.Fatalf("ArrayLen = %d, want 5", got)
	}
}

func TestPushScopeOverflow(t *testing.T) {
	a := NewAllocator(Config{MiniPages: 2, MaxScopeDepth: 2})
	a.Init()

	a.PushScope() // depth 1, at the limit

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic pushing past MaxScopeDepth")
		}
	}()
	a.PushScope()
}

func TestPopRootScopePanics(t *testing.T) {
	a := newTestAllocator(t)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic popping the root generation")
		}
	}()
	a.PopScope()
}
