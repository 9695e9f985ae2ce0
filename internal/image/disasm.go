// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// constTagName names a Constants-section tag for disassembly.
func constTagName(tag uint32) string {
	switch tag {
	case ConstLambda:
		return "lambda"
	case ConstList:
		return "list"
	case ConstDirect:
		return "direct"
	case ConstSymbol:
		return "symbol"
	case ConstString:
		return "string"
	default:
		return fmt.Sprintf("tag%d", tag)
	}
}

// Disassemble writes a human-readable rendering of img to w: the
// constant table, the bindings, the start code index (if any), and
// every code block's instructions, one per line. This is the
// `gliss dump` command's renderer.
func Disassemble(img *Image, w io.Writer) error {
	t := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(t, "version\t%d\n", img.Version)
	fmt.Fprintf(t, "constants\t%d\n", len(img.constants))
	fmt.Fprintf(t, "codes\t%d\n", len(img.Codes))
	fmt.Fprintf(t, "bindings\t%d\n", len(img.Bindings))
	if img.HasStart {
		fmt.Fprintf(t, "start\tcode %d\n", img.StartCode)
	} else {
		fmt.Fprintf(t, "start\t(none)\n")
	}
	if err := t.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "constants:")
	t = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, c := range img.constants {
		fmt.Fprintf(t, "  [%d]\t%s\t%s\n", i, constTagName(c.tag), describeConstant(c))
	}
	if err := t.Flush(); err != nil {
		return err
	}

	if len(img.Bindings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "bindings:")
		t = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, b := range img.Bindings {
			fmt.Fprintf(t, "  symbol const %d\t= const %d\n", b.SymbolConst, b.BindingConst)
		}
		if err := t.Flush(); err != nil {
			return err
		}
	}

	for i := range img.Codes {
		fmt.Fprintln(w)
		if err := disassembleBlock(w, img, i); err != nil {
			return err
		}
	}
	return nil
}

func describeConstant(c constant) string {
	switch c.tag {
	case ConstLambda:
		return fmt.Sprintf("code=%d captures=%d", c.codeIndex, len(c.captures))
	case ConstList:
		return fmt.Sprintf("%d elements", len(c.indices))
	case ConstDirect:
		return fmt.Sprintf("lo=%#x hi=%#x", c.lo, c.hi)
	case ConstSymbol, ConstString:
		return fmt.Sprintf("%q", string(c.bytes))
	default:
		return ""
	}
}

func disassembleBlock(w io.Writer, img *Image, codeIdx int) error {
	cb := &img.Codes[codeIdx]
	fmt.Fprintf(w, "code %d: maxStack=%d locals=%d\n", codeIdx, cb.MaxStack, cb.Locals)

	t := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	r := newReader(cb.Code[:cb.CodeLen])
	for !r.atEnd() {
		pos := r.offset()
		mark := " "
		if _, ok := cb.StackMap[pos]; ok {
			mark = "*"
		}
		op, err := r.u8("opcode")
		if err != nil {
			return err
		}
		operand, err := disassembleOperand(r, op)
		if err != nil {
			return err
		}
		fmt.Fprintf(t, "  %s%d\t%s\t%s\n", mark, pos, opName(op), operand)
	}
	return t.Flush()
}

// disassembleOperand decodes op's operand bytes from r (already past
// the opcode byte), mirroring the layouts verifyOp and exec both
// assume.
func disassembleOperand(r *reader, op uint8) (string, error) {
	switch op {
	case OpNop, OpDrop, OpSymDeref, OpThisRef:
		return "", nil
	case OpRet:
		n, err := r.u8("ret count")
		return fmt.Sprintf("%d", n), err
	case OpBr, OpBrIfNot:
		off, err := r.i32("branch offset")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%+d -> %d", off, int64(r.offset())+int64(off)), nil
	case OpLdc:
		idx, err := r.u32("constant index")
		return fmt.Sprintf("const[%d]", idx), err
	case OpLambda:
		code, err := r.u32("lambda code index")
		if err != nil {
			return "", err
		}
		arity, err := r.u16("lambda arity")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("code=%d arity=%d", code, arity), nil
	case OpCall:
		argc, err := r.u8("call argc")
		if err != nil {
			return "", err
		}
		retc, err := r.u8("call retc")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("argc=%d retc=%d", argc, retc), nil
	case OpLocalRef, OpLocalSet:
		idx, err := r.u8("local index")
		return fmt.Sprintf("local[%d]", idx), err
	case OpArgRef:
		idx, err := r.u8("arg index")
		return fmt.Sprintf("arg[%d]", idx), err
	case OpRestargRef:
		idx, err := r.u8("restarg index")
		return fmt.Sprintf("restarg[%d]", idx), err
	case OpClosureRef:
		idx, err := r.u8("closure index")
		return fmt.Sprintf("closure[%d]", idx), err
	default:
		return "", fmt.Errorf("image: unknown opcode %#x", op)
	}
}

func opName(op uint8) string {
	switch op {
	case OpNop:
		return "nop"
	case OpDrop:
		return "drop"
	case OpRet:
		return "ret"
	case OpBr:
		return "br"
	case OpBrIfNot:
		return "br.if-not"
	case OpLdc:
		return "ldc"
	case OpSymDeref:
		return "sym-deref"
	case OpLambda:
		return "lambda"
	case OpCall:
		return "call"
	case OpLocalRef:
		return "local-ref"
	case OpLocalSet:
		return "local-set"
	case OpArgRef:
		return "arg-ref"
	case OpRestargRef:
		return "restarg-ref"
	case OpThisRef:
		return "this-ref"
	case OpClosureRef:
		return "closure-ref"
	default:
		return fmt.Sprintf("op%#x", op)
	}
}
