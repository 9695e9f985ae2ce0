// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// Field offsets within a pair object: two tagged fields, car and cdr.
const (
	pairFieldCar   = 0
	pairFieldCdr   = 8
	pairObjectSize = 16
)

// Field offsets within a box object: a single mutable tagged field.
const (
	boxFieldValue = 0
	boxObjectSize = 8
)

// InitCoreTypes registers the pair and box types shared by the image
// loader's list-constant baking and the interpreter's cons/car/cdr and
// box/unbox/box-set! primitives. Both packages allocate and traverse
// these objects through the accessors below rather than raw offsets,
// so the layout only needs to be agreed upon once, here. Must be
// called once, after Init.
func (a *Allocator) InitCoreTypes() {
	a.pairTy = a.PushType(&Type{
		Name:     "pair",
		Align:    8,
		BaseSize: pairObjectSize,
		Fields: []Field{
			{Offset: pairFieldCar, Size: 8, GC: TagTagged},
			{Offset: pairFieldCdr, Size: 8, GC: TagTagged},
		},
	})

	a.boxTy = a.PushType(&Type{
		Name:     "box",
		Align:    8,
		BaseSize: boxObjectSize,
		Fields: []Field{
			{Offset: boxFieldValue, Size: 8, GC: TagTagged},
		},
	})
}

// PairTypeIndex reports the registered type index of a pair object.
func (a *Allocator) PairTypeIndex() uint32 { return a.pairTy }

// NewPair allocates a cons pair in the current scope.
func (a *Allocator) NewPair(car, cdr Val) Addr {
	addr := a.Alloc(a.pairTy)
	a.WriteVal(addr, pairFieldCar, car)
	a.WriteVal(addr, pairFieldCdr, cdr)
	return addr
}

func (a *Allocator) PairCar(addr Addr) Val { return a.ReadVal(addr, pairFieldCar) }
func (a *Allocator) PairCdr(addr Addr) Val { return a.ReadVal(addr, pairFieldCdr) }

func (a *Allocator) SetPairCar(addr Addr, v Val) { a.WriteVal(addr, pairFieldCar, v) }
func (a *Allocator) SetPairCdr(addr Addr, v Val) { a.WriteVal(addr, pairFieldCdr, v) }

// BoxTypeIndex reports the registered type index of a box object.
func (a *Allocator) BoxTypeIndex() uint32 { return a.boxTy }

// NewBox allocates a mutable box in the current scope.
func (a *Allocator) NewBox(v Val) Addr {
	addr := a.Alloc(a.boxTy)
	a.WriteVal(addr, boxFieldValue, v)
	return addr
}

func (a *Allocator) BoxValue(addr Addr) Val { return a.ReadVal(addr, boxFieldValue) }

func (a *Allocator) SetBoxValue(addr Addr, v Val) { a.WriteVal(addr, boxFieldValue, v) }
