// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import "github.com/eutro/gliss/internal/rterror"

// Verify abstractly interprets every code block in img, checking
// operand-stack discipline against its declared stack map. It must be
// called once, after IndexImage and before Bake/execution.
func Verify(img *Image) error {
	for i := range img.Codes {
		if err := verifyBlock(img, i); err != nil {
			return err
		}
	}
	return nil
}

type verifyState struct {
	height      uint32
	unreachable bool
}

func verifyBlock(img *Image, codeIdx int) error {
	cb := &img.Codes[codeIdx]
	r := newReader(cb.Code[:cb.CodeLen])
	st := verifyState{}
	visited := make(map[uint32]bool, len(cb.StackMap))

	checkMapEntry := func(pos uint32) error {
		want, ok := cb.StackMap[pos]
		if !ok {
			return nil
		}
		if !st.unreachable && st.height != want {
			return rterror.Errorf("image: code %d: stack height mismatch at %d (have %d want %d)", codeIdx, pos, st.height, want)
		}
		st.height = want
		st.unreachable = false
		visited[pos] = true
		return nil
	}

	for !r.atEnd() {
		pos := r.offset()
		if err := checkMapEntry(pos); err != nil {
			return err
		}
		op, err := r.u8("opcode")
		if err != nil {
			return err
		}
		if err := verifyOp(img, codeIdx, r, &st, op); err != nil {
			return err
		}
	}
	if err := checkMapEntry(r.offset()); err != nil {
		return err
	}
	if !st.unreachable {
		return rterror.Errorf("image: code %d: control falls off end", codeIdx)
	}
	if len(visited) != len(cb.StackMap) {
		return rterror.Errorf("image: code %d: stack map has unreachable entries", codeIdx)
	}
	return nil
}

func verifyOp(img *Image, codeIdx int, r *reader, st *verifyState, op uint8) error {
	cb := &img.Codes[codeIdx]

	pop := func(n uint32) error {
		if st.height < n {
			return rterror.Errorf("image: code %d: stack underflow at %d", codeIdx, r.offset())
		}
		st.height -= n
		return nil
	}
	push := func(n uint32) error {
		if st.height+n > cb.MaxStack {
			return rterror.Errorf("image: code %d: stack overflow at %d", codeIdx, r.offset())
		}
		st.height += n
		return nil
	}
	branch := func(target int64) error {
		if target < 0 || target > int64(len(cb.Code)) {
			return rterror.Errorf("image: code %d: branch target out of bounds", codeIdx)
		}
		want, ok := cb.StackMap[uint32(target)]
		if !ok {
			return rterror.Errorf("image: code %d: branch target %d missing from stack map", codeIdx, target)
		}
		if want != st.height {
			return rterror.Errorf("image: code %d: branch to %d with mismatched height (have %d want %d)", codeIdx, target, st.height, want)
		}
		return nil
	}

	switch op {
	case OpNop:
	case OpDrop:
		return pop(1)
	case OpRet:
		n, err := r.u8("ret count")
		if err != nil {
			return err
		}
		if err := pop(uint32(n)); err != nil {
			return err
		}
		st.unreachable = true
	case OpBr:
		off, err := r.i32("branch offset")
		if err != nil {
			return err
		}
		target := int64(r.offset()) + int64(off)
		if err := branch(target); err != nil {
			return err
		}
		st.unreachable = true
	case OpBrIfNot:
		off, err := r.i32("branch offset")
		if err != nil {
			return err
		}
		if err := pop(1); err != nil {
			return err
		}
		target := int64(r.offset()) + int64(off)
		if err := branch(target); err != nil {
			return err
		}
	case OpLdc:
		idx, err := r.u32("constant index")
		if err != nil {
			return err
		}
		if int(idx) >= len(img.constants) {
			return rterror.Errorf("image: code %d: constant index out of range", codeIdx)
		}
		return push(1)
	case OpSymDeref:
	case OpLambda:
		code, err := r.u32("lambda code index")
		if err != nil {
			return err
		}
		arity, err := r.u16("lambda arity")
		if err != nil {
			return err
		}
		if int(code) >= len(img.Codes) {
			return rterror.Errorf("image: code %d: lambda code index out of range", codeIdx)
		}
		if err := pop(uint32(arity)); err != nil {
			return err
		}
		return push(1)
	case OpCall:
		argc, err := r.u8("call argc")
		if err != nil {
			return err
		}
		retc, err := r.u8("call retc")
		if err != nil {
			return err
		}
		if err := pop(uint32(argc) + 1); err != nil {
			return err
		}
		return push(uint32(retc))
	case OpLocalRef:
		idx, err := r.u8("local index")
		if err != nil {
			return err
		}
		if uint32(idx) >= cb.Locals {
			return rterror.Errorf("image: code %d: local index out of range", codeIdx)
		}
		return push(1)
	case OpLocalSet:
		idx, err := r.u8("local index")
		if err != nil {
			return err
		}
		if uint32(idx) >= cb.Locals {
			return rterror.Errorf("image: code %d: local index out of range", codeIdx)
		}
		return pop(1)
	case OpArgRef:
		if _, err := r.u8("arg index"); err != nil {
			return err
		}
		return push(1)
	case OpRestargRef:
		if _, err := r.u8("restarg index"); err != nil {
			return err
		}
		return push(1)
	case OpThisRef:
		return push(1)
	case OpClosureRef:
		if _, err := r.u8("closure index"); err != nil {
			return err
		}
		return push(1)
	default:
		return rterror.Errorf("image: code %d: unknown opcode %#x at %d", codeIdx, op, r.offset()-1)
	}
	return nil
}
