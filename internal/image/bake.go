// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import "github.com/eutro/gliss/internal/gc"

// Bake is idempotent: it populates ConstantsBaked on its first call
// and is a no-op afterward. lambda constants are deliberately left as
// gc.ValNil here — a lambda constant is only ever realized by the
// interpreter's LAMBDA opcode, never read through LDC, so there is no
// live heap value to build for it at bake time.
func Bake(img *Image) {
	if img.baked {
		return
	}
	img.baked = true

	for i, c := range img.constants {
		switch c.tag {
		case ConstDirect:
			img.ConstantsBaked[i] = gc.Val(uint64(c.lo) | uint64(c.hi)<<32)
		case ConstSymbol:
			sym := img.Alloc.Intern(c.bytes)
			img.ConstantsBaked[i] = gc.PtrVal(uint64(sym))
		case ConstString:
			s := img.Alloc.NewBytestring(c.bytes)
			img.ConstantsBaked[i] = gc.PtrVal(uint64(s))
		case ConstList:
			v := gc.ValNil
			for j := len(c.indices) - 1; j >= 0; j-- {
				v = consPair(img.Alloc, img.ConstantsBaked[c.indices[j]], v)
			}
			img.ConstantsBaked[i] = v
		case ConstLambda:
			img.ConstantsBaked[i] = gc.ValNil
		}
	}

	for _, b := range img.Bindings {
		sym := gc.Addr(img.ConstantsBaked[b.SymbolConst].Addr())
		img.Alloc.SetSymbolValue(sym, img.ConstantsBaked[b.BindingConst])
	}
}

// consPair builds a cons pair using the core pair type shared with the
// interpreter's cons/car/cdr primitives, see gc.Allocator.NewPair.
func consPair(alloc *gc.Allocator, car, cdr gc.Val) gc.Val {
	addr := alloc.NewPair(car, cdr)
	return gc.PtrVal(uint64(addr))
}
