// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import "github.com/eutro/gliss/internal/gc"

// listFromSlice builds a proper list from vs, right to left, the same
// order RESTARG_REF and the primitives below build lists in.
func (p *Process) listFromSlice(vs []gc.Val) gc.Val {
	out := gc.ValNil
	for i := len(vs) - 1; i >= 0; i-- {
		addr := p.Alloc.NewPair(vs[i], out)
		out = gc.PtrVal(uint64(addr))
	}
	return out
}

// sliceFromList flattens a proper list into a slice, or reports ok=false
// if v is not a proper list.
func (p *Process) sliceFromList(v gc.Val) (vs []gc.Val, ok bool) {
	for v != gc.ValNil {
		if !p.isPair(v) {
			return nil, false
		}
		addr := gc.Addr(v.Addr())
		vs = append(vs, p.Alloc.PairCar(addr))
		v = p.Alloc.PairCdr(addr)
	}
	return vs, true
}
