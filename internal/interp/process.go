// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interp implements the stack-machine bytecode interpreter:
// closures (interpreted and native), the calling convention, the
// shadow call stack used for error traces, and the host-provided
// primitive procedures bytecode can invoke. It is the one package
// that ties the GC (internal/gc) and the image loader
// (internal/image) together into a runnable process.
package interp

import (
	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/image"
	"github.com/eutro/gliss/internal/rterror"
)

// NativeFn is a host-implemented primitive procedure. args has length
// argc; the function must return exactly retc values on success.
type NativeFn func(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error)

type nativeClosure struct {
	name string
	fn   NativeFn
}

// callFrame is one entry of the shadow call stack: pushed for every
// native or interpreted closure call (a call through a symbol pushes
// only the frame of the closure it resolves to), named after the
// native's registered name or, for an interpreted closure, a symbol
// currently bound to it (found via reverse lookup), or "{unknown}".
type callFrame struct {
	name string
	prev *callFrame
}

// Process is the runtime's top-level handle: the allocator, the
// registered image table, the native primitive table, and the shadow
// call stack. One struct gathers everything a command needs to drive
// a loaded artifact.
type Process struct {
	Alloc *gc.Allocator
	Args  []string

	images  []*image.Image
	natives []nativeClosure

	// bakedConsts roots every registered image's ConstantsBaked table
	// for the life of the process, through one indirect root-chain
	// entry pushed at NewProcess. The tables live in host memory, so
	// the write barrier can't see stores into them; without this root
	// a string or list constant baked inside a scope would be reclaimed
	// (or left un-forwarded) when that scope popped.
	bakedConsts [][]gc.Val

	frame    *callFrame
	depth    int
	maxDepth int

	closureTy uint32
	stringTy  uint32
}

// DefaultMaxCallDepth bounds shadow-stack depth; invocations past it
// fail with a stack-overflow error instead of exhausting host memory.
const DefaultMaxCallDepth = 10000

// NewProcess builds a fresh process: initializes the allocator, the
// core pair/box types, the symbol table, this package's own
// closure/string types, and every host primitive.
func NewProcess(cfg gc.Config, args []string) *Process {
	alloc := gc.NewAllocator(cfg)
	alloc.Init()
	alloc.InitCoreTypes()
	alloc.InitSymbolTable()

	p := &Process{
		Alloc:    alloc,
		Args:     args,
		maxDepth: DefaultMaxCallDepth,
	}
	p.registerClosureType()
	p.registerStringType()
	alloc.PushRootIndirect(&p.bakedConsts)
	installPrimitives(p)
	return p
}

// RegisterImage adds img to the process's image table, used by
// closures built from it (LAMBDA opcode, new-image-closure primitive)
// to find their code blocks, and returns its index.
func (p *Process) RegisterImage(img *image.Image) uint32 {
	p.images = append(p.images, img)
	p.bakedConsts = append(p.bakedConsts, img.ConstantsBaked)
	return uint32(len(p.images) - 1)
}

func (p *Process) imageAt(idx uint32) *image.Image {
	if int(idx) >= len(p.images) {
		panic("interp: image index out of range")
	}
	return p.images[idx]
}

// registerNative appends fn under name to the native table and
// returns the static (non-GC) pointer Val identifying it: the value
// just indexes a host-side table rather than naming a heap address.
// The index is shifted left past the two tag bits, so Addr()>>2
// recovers it.
func (p *Process) registerNative(name string, fn NativeFn) gc.Val {
	p.natives = append(p.natives, nativeClosure{name: name, fn: fn})
	return gc.StaticPtrVal(uint64(len(p.natives)-1) << 2)
}

func (p *Process) pushFrame(name string) {
	p.frame = &callFrame{name: name, prev: p.frame}
}

func (p *Process) popFrame() {
	p.frame = p.frame.prev
}

// closureName resolves the display name of a closure for trace
// frames: the symbol it's currently bound to (via the symbol table's
// reverse lookup), else "{unknown}".
func (p *Process) closureName(v gc.Val) string {
	if sym, ok := p.Alloc.ReverseLookup(v); ok {
		return string(p.Alloc.BytestringBytes(p.Alloc.SymbolName(sym)))
	}
	return "{unknown}"
}

// Call is the interpreter's public entry point: invoke closure with
// args, expecting exactly retc return values. closure may be a native
// closure, an interpreted closure, or a symbol, dispatched through
// its bound value by recognizing the symbol's registered type rather
// than an embedded function pointer.
func (p *Process) Call(closure gc.Val, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if p.depth >= p.maxDepth {
		return nil, rterror.Errorf("Stack overflow")
	}

	switch {
	case closure.IsGCPtr():
		addr := gc.Addr(closure.Addr())
		switch p.Alloc.TypeOf(addr) {
		case p.Alloc.SymbolTypeIndex():
			if p.Alloc.SymbolIsUndefined(addr) {
				e := rterror.Errorf("Called an undefined symbol")
				e.Push(rterror.Frame{Message: "undefined", Func: string(p.Alloc.BytestringBytes(p.Alloc.SymbolName(addr)))})
				return nil, e
			}
			return p.Call(p.Alloc.SymbolValue(addr), args, retc)
		case p.closureTy:
			return p.callInterpreted(closure, addr, args, retc)
		default:
			return nil, rterror.Errorf("Not a function")
		}
	case closure.IsStaticPtr():
		idx := closure.Addr() >> 2
		if idx >= uint64(len(p.natives)) {
			return nil, rterror.Errorf("Not a function")
		}
		nc := p.natives[idx]
		p.depth++
		p.pushFrame(nc.name)
		rets, err := nc.fn(p, args, retc)
		p.popFrame()
		p.depth--
		if err != nil {
			err.Push(rterror.Frame{Message: "native primitive", Func: nc.name})
			return nil, err
		}
		return rets, nil
	default:
		return nil, rterror.Errorf("Not a function")
	}
}

// Run executes img's start code block (if it has one), then, if the
// symbol "main" is bound, calls it with zero arguments expecting one
// return value — the `run` command in its entirety. The returned Val
// is ValNil whenever main is undefined, whether or not a start block
// ran.
func (p *Process) Run(imgIdx uint32) (gc.Val, *rterror.Error) {
	img := p.imageAt(imgIdx)
	image.Bake(img)

	if img.HasStart {
		start := p.newClosure(imgIdx, img.StartCode, nil)
		if _, err := p.Call(gc.PtrVal(uint64(start)), nil, 0); err != nil {
			return gc.ValNil, err
		}
	}

	mainSym := p.Alloc.Intern([]byte("main"))
	if p.Alloc.SymbolIsUndefined(mainSym) {
		return gc.ValNil, nil
	}
	rets, err := p.Call(gc.PtrVal(uint64(mainSym)), nil, 1)
	if err != nil {
		return gc.ValNil, err
	}
	return rets[0], nil
}

func (p *Process) callInterpreted(closureVal gc.Val, addr gc.Addr, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	imgIdx := p.closureImage(addr)
	codeIdx := p.closureCode(addr)
	img := p.imageAt(imgIdx)
	image.Bake(img)

	name := p.closureName(closureVal)
	p.depth++
	p.pushFrame(name)
	rets, err := p.exec(img, imgIdx, codeIdx, closureVal, addr, args, retc)
	p.popFrame()
	p.depth--
	if err != nil {
		err.Push(rterror.Frame{Message: "lambda body", Func: name})
		return nil, err
	}
	return rets, nil
}
