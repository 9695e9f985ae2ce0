// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"encoding/binary"
	"fmt"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/image"
	"github.com/eutro/gliss/internal/rterror"
)

// exec runs one interpreted code block to completion: the tight
// dispatch loop. The operand stack and locals array live on the host
// (Go) stack, not the managed heap — interpreter bookkeeping is never
// Lisp heap data.
func (p *Process) exec(img *image.Image, imgIdx, codeIdx uint32, closureVal gc.Val, closureAddr gc.Addr, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	cb := &img.Codes[codeIdx]
	code := cb.Code
	stack := make([]gc.Val, cb.MaxStack)
	locals := make([]gc.Val, cb.Locals)
	sp := 0
	ip := 0

	push := func(v gc.Val) { stack[sp] = v; sp++ }
	pop := func() gc.Val { sp--; return stack[sp] }

	for {
		op := code[ip]
		ip++
		switch op {
		case image.OpNop:

		case image.OpDrop:
			pop()

		case image.OpRet:
			n := int(code[ip])
			ip++
			if n > retc {
				return nil, rterror.Errorf("Returning too many values")
			}
			out := make([]gc.Val, retc)
			copy(out, stack[sp-n:sp])
			return out, nil

		case image.OpBr:
			off := int32(binary.LittleEndian.Uint32(code[ip:]))
			ip += 4
			ip += int(off)

		case image.OpBrIfNot:
			off := int32(binary.LittleEndian.Uint32(code[ip:]))
			ip += 4
			v := pop()
			if !v.Truthy() {
				ip += int(off)
			}

		case image.OpLdc:
			idx := binary.LittleEndian.Uint32(code[ip:])
			ip += 4
			push(img.ConstantsBaked[idx])

		case image.OpSymDeref:
			v := pop()
			if !p.isSymbol(v) {
				return nil, rterror.Errorf("Not a symbol")
			}
			push(p.Alloc.SymbolValue(gc.Addr(v.Addr())))

		case image.OpLambda:
			lambdaCode := binary.LittleEndian.Uint32(code[ip:])
			ip += 4
			arity := binary.LittleEndian.Uint16(code[ip:])
			ip += 2
			captures := make([]gc.Val, arity)
			for i := int(arity) - 1; i >= 0; i-- {
				captures[i] = pop()
			}
			addr := p.newClosure(imgIdx, lambdaCode, captures)
			push(gc.PtrVal(uint64(addr)))

		case image.OpCall:
			argc := int(code[ip])
			ip++
			callRetc := int(code[ip])
			ip++
			callee := stack[sp-1]
			callArgs := make([]gc.Val, argc)
			copy(callArgs, stack[sp-1-argc:sp-1])
			sp -= argc + 1
			if !p.isCallable(callee) {
				return nil, rterror.Errorf("Not a function")
			}
			rets, err := p.Call(callee, callArgs, callRetc)
			if err != nil {
				return nil, err
			}
			for _, r := range rets {
				push(r)
			}

		case image.OpLocalRef:
			idx := code[ip]
			ip++
			push(locals[idx])

		case image.OpLocalSet:
			idx := code[ip]
			ip++
			locals[idx] = pop()

		case image.OpArgRef:
			idx := int(code[ip])
			ip++
			if idx >= len(args) {
				return nil, rterror.Errorf("Argument index out of range")
			}
			push(args[idx])

		case image.OpRestargRef:
			idx := int(code[ip])
			ip++
			var rest []gc.Val
			if idx < len(args) {
				rest = args[idx:]
			}
			push(p.listFromSlice(rest))

		case image.OpThisRef:
			push(closureVal)

		case image.OpClosureRef:
			idx := code[ip]
			ip++
			if int64(idx) >= p.closureNumCaptures(closureAddr) {
				return nil, rterror.Errorf("Closure capture index out of range")
			}
			push(p.closureCapture(closureAddr, idx))

		default:
			panic(fmt.Sprintf("interp: unknown opcode %#x (verification invariant violated)", op))
		}
	}
}
