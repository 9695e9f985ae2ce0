// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"os"
	"unicode"

	"golang.org/x/sys/unix"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/image"
	"github.com/eutro/gliss/internal/rterror"
)

func boolVal(b bool) gc.Val {
	if b {
		return gc.ValTrue
	}
	return gc.ValFalse
}

func arityErr(argc, want int) *rterror.Error {
	return rterror.Errorf("Arity mismatch: expected %d arguments, got %d", want, argc)
}

// def interns name and binds its value to a freshly registered native
// primitive.
func def(p *Process, name string, fn NativeFn) {
	v := p.registerNative(name, fn)
	sym := p.Alloc.Intern([]byte(name))
	p.Alloc.SetSymbolValue(sym, v)
}

// installPrimitives binds every host primitive to its symbol.
func installPrimitives(p *Process) {
	def(p, "raise", primRaise)
	def(p, "symbol-set-value!", primSymbolSetValue)
	def(p, "symbol-set-macro!", primSymbolSetMacro)
	def(p, "symbol-macro-value", primSymbolMacroValue)
	def(p, "cons", primCons)
	def(p, "car", primCar)
	def(p, "cdr", primCdr)
	def(p, "eq?", primEq)
	def(p, "list?", primIsList)
	def(p, "string?", primIsString)
	def(p, "bytestring?", primIsBytestring)
	def(p, "symbol?", primIsSymbol)
	def(p, "number?", primIsNumber)
	def(p, "char?", primIsChar)
	def(p, "program-args", primProgramArgs)
	def(p, "apply", primApply)
	def(p, "box", primBox)
	def(p, "unbox", primUnbox)
	def(p, "box-set!", primBoxSet)
	def(p, "new-bytestring", primNewBytestring)
	def(p, "bytestring-length", primBytestringLength)
	def(p, "bytestring-ref", primBytestringRef)
	def(p, "bytestring-set!", primBytestringSet)
	def(p, "bytestring-copy!", primBytestringCopy)
	def(p, "string-length", primStringLength)
	def(p, "string-ref", primStringRef)
	def(p, "list->string", primListToString)
	def(p, "substring", primSubstring)
	def(p, "string=?", primStringEq)
	def(p, "string-prefix?", primStringPrefix)
	def(p, "char->integer", primCharToInteger)
	def(p, "char-whitespace?", primCharWhitespace)
	def(p, "intern", primIntern)
	def(p, "gensym", primGensym)
	def(p, "string->number", primStringToNumber)
	def(p, "string->bytestring", primStringToBytestring)
	def(p, "symbol->bytestring", primSymbolToBytestring)
	def(p, "+", primAdd)
	def(p, "-", primSub)
	def(p, "*", primMul)
	def(p, "arithmetic-shift", primArithmeticShift)
	def(p, "remainder", primRemainder)
	def(p, "modulo", primModulo)
	def(p, "bitwise-and", primBitwiseAnd)
	def(p, "bitwise-ior", primBitwiseIor)
	def(p, "bitwise-xor", primBitwiseXor)
	def(p, "<", primCmp(func(a, b int64) bool { return a < b }))
	def(p, "<=", primCmp(func(a, b int64) bool { return a <= b }))
	def(p, ">", primCmp(func(a, b int64) bool { return a > b }))
	def(p, ">=", primCmp(func(a, b int64) bool { return a >= b }))
	def(p, "=", primCmp(func(a, b int64) bool { return a == b }))
	def(p, "dbg", primDbg)
	def(p, "dbg-suspend", primDbgSuspend)
	def(p, "dbg-dump-gc", primDbgDumpGC)
	def(p, "dbg-dump-obj", primDbgDumpObj)
	def(p, "open-file", primOpenFile)
	def(p, "write-file", primWriteFile)
	def(p, "call-in-new-scope", primCallInNewScope)
	def(p, "eval", primEval)
	def(p, "index-image", primIndexImage)
	def(p, "new-image-closure", primNewImageClosure)
}

func primRaise(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if args[0].IsGCPtr() && args[0].Addr() == 0 {
		return nil, rterror.Errorf("Cannot raise null")
	}
	e := rterror.New(args[0])
	e.Push(rterror.Frame{Message: "raised"})
	return nil, e
}

func primSymbolSetValue(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isSymbol(args[0]) {
		return nil, rterror.Errorf("Not a symbol")
	}
	sym := gc.Addr(args[0].Addr())
	p.Alloc.SetSymbolValue(sym, args[1])
	return []gc.Val{args[0]}, nil
}

func primSymbolSetMacro(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isSymbol(args[0]) {
		return nil, rterror.Errorf("Not a symbol")
	}
	sym := gc.Addr(args[0].Addr())
	p.Alloc.SetSymbolIsMacro(sym, args[1].Truthy())
	return []gc.Val{args[0]}, nil
}

func primSymbolMacroValue(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isSymbol(args[0]) {
		return nil, rterror.Errorf("Not a symbol")
	}
	sym := gc.Addr(args[0].Addr())
	if p.Alloc.SymbolIsMacro(sym) {
		return []gc.Val{p.Alloc.SymbolValue(sym)}, nil
	}
	return []gc.Val{gc.ValNil}, nil
}

func primCons(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isList(args[1]) {
		return nil, rterror.Errorf("Attempted to create improper list")
	}
	addr := p.Alloc.NewPair(args[0], args[1])
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primCar(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isPair(args[0]) {
		return nil, rterror.Errorf("Not a pair")
	}
	return []gc.Val{p.Alloc.PairCar(gc.Addr(args[0].Addr()))}, nil
}

func primCdr(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isPair(args[0]) {
		return nil, rterror.Errorf("Not a pair")
	}
	return []gc.Val{p.Alloc.PairCdr(gc.Addr(args[0].Addr()))}, nil
}

func primEq(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	return []gc.Val{boolVal(args[0] == args[1])}, nil
}

func primIsList(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(p.isList(args[0]))}, nil
}

func primIsString(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(p.isString(args[0]))}, nil
}

func primIsBytestring(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(p.isBytestring(args[0]))}, nil
}

func primIsSymbol(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(p.isSymbol(args[0]))}, nil
}

func primIsNumber(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(args[0].IsFixnum())}, nil
}

func primIsChar(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	return []gc.Val{boolVal(args[0].IsChar())}, nil
}

func primProgramArgs(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 0 {
		return nil, arityErr(len(args), 0)
	}
	vs := make([]gc.Val, len(p.Args))
	for i, a := range p.Args {
		addr := p.newString([]byte(a))
		vs[i] = gc.PtrVal(uint64(addr))
	}
	return []gc.Val{p.listFromSlice(vs)}, nil
}

func primApply(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) < 2 {
		return nil, rterror.Errorf("Not enough arguments")
	}
	callee := args[0]
	if !p.isCallable(callee) {
		return nil, rterror.Errorf("Not a function")
	}
	arglist := args[len(args)-1]
	tail, ok := p.sliceFromList(arglist)
	if !ok {
		return nil, rterror.Errorf("Not a list")
	}
	callArgs := make([]gc.Val, 0, len(args)-2+len(tail))
	callArgs = append(callArgs, args[1:len(args)-1]...)
	callArgs = append(callArgs, tail...)
	return p.Call(callee, callArgs, retc)
}

func primBox(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	addr := p.Alloc.NewBox(args[0])
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primUnbox(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isBox(args[0]) {
		return nil, rterror.Errorf("Not a box")
	}
	return []gc.Val{p.Alloc.BoxValue(gc.Addr(args[0].Addr()))}, nil
}

func primBoxSet(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isBox(args[0]) {
		return nil, rterror.Errorf("Not a box")
	}
	addr := gc.Addr(args[0].Addr())
	p.Alloc.SetBoxValue(addr, args[1])
	return []gc.Val{args[1]}, nil
}

// new-bytestring zeros its own payload: the allocator never zeros
// reused mini-page memory (see gc.Allocator.Alloc), so a freshly
// allocated bytestring must be cleared explicitly. Copying in a
// zero-valued Go slice does the clearing implicitly.
func primNewBytestring(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !args[0].IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	n := args[0].UFix()
	addr := p.Alloc.NewBytestring(make([]byte, n))
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primBytestringLength(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isBytestring(args[0]) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	return []gc.Val{gc.FixVal(int64(len(p.Alloc.BytestringBytes(gc.Addr(args[0].Addr())))))}, nil
}

func primBytestringRef(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isBytestring(args[0]) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	if !args[1].IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	bs := p.Alloc.BytestringBytes(gc.Addr(args[0].Addr()))
	idx := args[1].UFix()
	if idx >= uint64(len(bs)) {
		return nil, rterror.Errorf("Index out of bounds")
	}
	return []gc.Val{gc.FixVal(int64(bs[idx]))}, nil
}

func primBytestringSet(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 3 {
		return nil, arityErr(len(args), 3)
	}
	if !p.isBytestring(args[0]) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	if !args[1].IsFixnum() || !args[2].IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	bs := p.Alloc.BytestringBytes(gc.Addr(args[0].Addr()))
	idx := args[1].UFix()
	if idx >= uint64(len(bs)) {
		return nil, rterror.Errorf("Index out of bounds")
	}
	bs[idx] = byte(args[2].UFix())
	return []gc.Val{gc.ValNil}, nil
}

func primBytestringCopy(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 5 {
		return nil, arityErr(len(args), 5)
	}
	dst, dstStart, src, srcStart, n := args[0], args[1], args[2], args[3], args[4]
	if !p.isBytestring(dst) || !p.isBytestring(src) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	if !dstStart.IsFixnum() || !srcStart.IsFixnum() || !n.IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	dstBytes := p.Alloc.BytestringBytes(gc.Addr(dst.Addr()))
	srcBytes := p.Alloc.BytestringBytes(gc.Addr(src.Addr()))
	dstOff, srcOff, length := dstStart.UFix(), srcStart.UFix(), n.UFix()
	if dstOff+length > uint64(len(dstBytes)) {
		return nil, rterror.Errorf("Destination region out of range")
	}
	if srcOff+length > uint64(len(srcBytes)) {
		return nil, rterror.Errorf("Source region out of range")
	}
	copy(dstBytes[dstOff:dstOff+length], srcBytes[srcOff:srcOff+length])
	return []gc.Val{gc.ValNil}, nil
}

func primStringLength(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	return []gc.Val{gc.FixVal(int64(len(p.stringBytes(gc.Addr(args[0].Addr())))))}, nil
}

func primStringRef(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	if !args[1].IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	bs := p.stringBytes(gc.Addr(args[0].Addr()))
	idx := args[1].UFix()
	if idx >= uint64(len(bs)) {
		return nil, rterror.Errorf("Index out of bounds")
	}
	return []gc.Val{gc.CharVal(uint32(bs[idx]))}, nil
}

func primListToString(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	vs, ok := p.sliceFromList(args[0])
	if !ok {
		return nil, rterror.Errorf("Not a list")
	}
	buf := make([]byte, len(vs))
	for i, v := range vs {
		if !v.IsChar() {
			return nil, rterror.Errorf("Not a char")
		}
		buf[i] = byte(v.Char()) // TODO utf-8
	}
	addr := p.newString(buf)
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primSubstring(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, rterror.Errorf("Bad arity")
	}
	str, start := args[0], args[1]
	if !p.isString(str) {
		return nil, rterror.Errorf("Not a string")
	}
	if !start.IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	bs := p.stringBytes(gc.Addr(str.Addr()))
	startV := start.UFix()
	if startV > uint64(len(bs)) {
		return nil, rterror.Errorf("Start index out of range")
	}
	var length uint64
	if len(args) == 3 {
		end := args[2]
		if !end.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		length = end.UFix()
		if length > uint64(len(bs))-startV {
			return nil, rterror.Errorf("End out of range")
		}
	} else {
		length = uint64(len(bs)) - startV
	}
	addr := p.newString(bs[startV : startV+length])
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primStringEq(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isString(args[0]) || !p.isString(args[1]) {
		return nil, rterror.Errorf("Not a string")
	}
	lhs := p.stringBytes(gc.Addr(args[0].Addr()))
	rhs := p.stringBytes(gc.Addr(args[1].Addr()))
	return []gc.Val{boolVal(string(lhs) == string(rhs))}, nil
}

func primStringPrefix(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isString(args[0]) || !p.isString(args[1]) {
		return nil, rterror.Errorf("Not a string")
	}
	str := p.stringBytes(gc.Addr(args[0].Addr()))
	pref := p.stringBytes(gc.Addr(args[1].Addr()))
	ok := len(pref) <= len(str)
	for i := 0; ok && i < len(pref); i++ {
		if str[i] != pref[i] {
			ok = false
		}
	}
	return []gc.Val{boolVal(ok)}, nil
}

func primCharToInteger(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !args[0].IsChar() {
		return nil, rterror.Errorf("Not a char")
	}
	return []gc.Val{gc.FixVal(int64(args[0].Char()))}, nil
}

func primCharWhitespace(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !args[0].IsChar() {
		return nil, rterror.Errorf("Not a char")
	}
	return []gc.Val{boolVal(unicode.IsSpace(rune(args[0].Char())))}, nil
}

func primIntern(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	sym := p.Alloc.Intern(p.stringBytes(gc.Addr(args[0].Addr())))
	return []gc.Val{gc.PtrVal(uint64(sym))}, nil
}

// gensym builds a fresh, uninterned symbol named by the given string:
// it is given an explicit name rather than inventing one from a
// counter, and it is never reachable from the symbol table's buckets,
// so two gensyms given the same name remain distinct symbols.
func primGensym(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	nameAddr := gc.Addr(args[0].Addr())
	sym := p.Alloc.NewUninternedSymbol(nameAddr)
	return []gc.Val{gc.PtrVal(uint64(sym))}, nil
}

func primStringToNumber(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	bs := p.stringBytes(gc.Addr(args[0].Addr()))
	if len(bs) == 0 {
		return nil, rterror.Errorf("Empty string")
	}
	i := 0
	sign := int64(1)
	if bs[0] == '-' || bs[0] == '+' {
		if bs[0] == '-' {
			sign = -1
		}
		i++
	}
	hasDigits := false
	var abs uint64
	for ; i < len(bs); i++ {
		if bs[i] == '_' {
			continue
		}
		if bs[i] < '0' || bs[i] > '9' {
			return nil, rterror.Errorf("Invalid character for number")
		}
		hasDigits = true
		newVal := abs*10 + uint64(bs[i]-'0')
		if newVal < abs {
			return nil, rterror.Errorf("Integer literal too large")
		}
		abs = newVal
	}
	if !hasDigits {
		return nil, rterror.Errorf("No digits")
	}
	if abs>>63 == 1 {
		return nil, rterror.Errorf("Integer literal too large")
	}
	return []gc.Val{gc.FixVal(sign * int64(abs))}, nil
}

func primStringToBytestring(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	addr := p.Alloc.NewBytestring(p.stringBytes(gc.Addr(args[0].Addr())))
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primSymbolToBytestring(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isSymbol(args[0]) {
		return nil, rterror.Errorf("Not a symbol")
	}
	sym := gc.Addr(args[0].Addr())
	name := p.Alloc.BytestringBytes(p.Alloc.SymbolName(sym))
	addr := p.Alloc.NewBytestring(name)
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primAdd(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	var val int64
	for _, x := range args {
		if !x.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		val += x.SFix()
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func primMul(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	val := int64(1)
	for _, x := range args {
		if !x.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		val *= x.SFix()
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func primBitwiseAnd(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	val := int64(-1)
	for _, x := range args {
		if !x.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		val &= x.SFix()
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func primBitwiseIor(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	var val int64
	for _, x := range args {
		if !x.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		val |= x.SFix()
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func primBitwiseXor(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	var val int64
	for _, x := range args {
		if !x.IsFixnum() {
			return nil, rterror.Errorf("Not a number")
		}
		val ^= x.SFix()
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func primSub(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) == 0 {
		return nil, rterror.Errorf("Not enough arguments")
	}
	if !args[0].IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	val := args[0].SFix()
	if len(args) == 1 {
		val = -val
	} else {
		for _, x := range args[1:] {
			if !x.IsFixnum() {
				return nil, rterror.Errorf("Not a number")
			}
			val -= x.SFix()
		}
	}
	return []gc.Val{gc.FixVal(val)}, nil
}

func fxBinopArgs(args []gc.Val) (int64, int64, *rterror.Error) {
	if len(args) != 2 {
		return 0, 0, arityErr(len(args), 2)
	}
	if !args[0].IsFixnum() || !args[1].IsFixnum() {
		return 0, 0, rterror.Errorf("Not a number")
	}
	return args[0].SFix(), args[1].SFix(), nil
}

func primArithmeticShift(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	ret, shift, err := fxBinopArgs(args)
	if err != nil {
		return nil, err
	}
	if shift < 0 {
		ret >>= uint((-shift) % 64)
	} else {
		ret <<= uint(shift % 64)
	}
	return []gc.Val{gc.FixVal(ret)}, nil
}

func primRemainder(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	a, n, err := fxBinopArgs(args)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, rterror.Errorf("Division by zero")
	}
	// Go's % truncates toward zero like C99, so this already carries
	// the sign of a.
	return []gc.Val{gc.FixVal(a % n)}, nil
}

func primModulo(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	a, n, err := fxBinopArgs(args)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, rterror.Errorf("Division by zero")
	}
	var res int64
	if (a < 0) != (n < 0) {
		res = (n - (-a % n)) % n
	} else {
		res = a % n
	}
	return []gc.Val{gc.FixVal(res)}, nil
}

func primCmp(cmp func(a, b int64) bool) NativeFn {
	return func(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
		if len(args) == 0 {
			return []gc.Val{gc.ValTrue}, nil
		}
		for _, x := range args {
			if !x.IsFixnum() {
				return nil, rterror.Errorf("Not a number")
			}
		}
		last := args[0].SFix()
		for _, x := range args[1:] {
			next := x.SFix()
			if !cmp(last, next) {
				return []gc.Val{gc.ValFalse}, nil
			}
			last = next
		}
		return []gc.Val{gc.ValTrue}, nil
	}
}

func primDbg(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	rtlogDebugValue(p, args[0])
	return []gc.Val{args[0]}, nil
}

func primDbgSuspend(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	rtlogBreakpoint(p, args)
	return []gc.Val{gc.ValNil}, nil
}

func primDbgDumpGC(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 0 {
		return nil, arityErr(len(args), 0)
	}
	p.Alloc.Dump().Write(os.Stderr)
	return []gc.Val{gc.ValNil}, nil
}

func primDbgDumpObj(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !args[0].IsGCPtr() {
		return nil, rterror.Errorf("Not a GC object")
	}
	p.Alloc.DumpObject(os.Stderr, gc.Addr(args[0].Addr()), p.debugString)
	return []gc.Val{gc.ValNil}, nil
}

func primOpenFile(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	path := string(p.stringBytes(gc.Addr(args[0].Addr())))
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, rterror.Errorf("Could not open file")
	}
	defer unix.Close(fd)

	var content []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if err != nil {
			return nil, rterror.Errorf("IO error occured")
		}
		if n == 0 {
			break
		}
	}

	vs := make([]gc.Val, len(content))
	for i, b := range content {
		vs[i] = gc.CharVal(uint32(b))
	}
	addr := p.Alloc.NewBox(p.listFromSlice(vs))
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}

func primWriteFile(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 2 {
		return nil, arityErr(len(args), 2)
	}
	if !p.isString(args[0]) {
		return nil, rterror.Errorf("Not a string")
	}
	if !p.isBytestring(args[1]) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	path := string(p.stringBytes(gc.Addr(args[0].Addr())))
	data := p.Alloc.BytestringBytes(gc.Addr(args[1].Addr()))

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		return nil, rterror.Errorf("Could not open file")
	}
	defer unix.Close(fd)

	written := 0
	for written < len(data) {
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			return nil, rterror.Errorf("Error writing to file")
		}
		written += n
	}
	return []gc.Val{gc.ValNil}, nil
}

// call-in-new-scope pushes a new GC scope, calls its first argument
// with the rest, and pops the scope before returning, rooting
// whichever of the return values or the raised fault crossed the pop
// so the collector evacuates them into the surviving generation.
func primCallInNewScope(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) < 1 {
		return nil, rterror.Errorf("Not enough arguments")
	}
	if !p.isCallable(args[0]) {
		return nil, rterror.Errorf("Not a function")
	}
	p.Alloc.PushScope()
	rets, callErr := p.Call(args[0], args[1:], retc)
	if callErr != nil {
		fault := []gc.Val{gc.ValNil}
		if fv, ok := callErr.Fault.(gc.Val); ok {
			fault[0] = fv
		}
		p.Alloc.PushRootDirect(&fault)
		p.Alloc.PopScope()
		p.Alloc.PopRoot()
		if _, ok := callErr.Fault.(gc.Val); ok {
			callErr.Fault = fault[0]
		}
		callErr.Push(rterror.Frame{Message: "call-in-new-scope"})
		return nil, callErr
	}
	p.Alloc.PushRootDirect(&rets)
	p.Alloc.PopScope()
	p.Alloc.PopRoot()
	return rets, nil
}

// eval forwards to whatever the host image has bound the eval-0
// symbol to; this runtime has no reader or compiler of its own, so
// evaluation of data as code is entirely a guest-image concern. An
// undefined eval-0 fails through the same "Called an undefined
// symbol" path as any other unbound symbol call.
func primEval(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	sym := p.Alloc.Intern([]byte("eval-0"))
	return p.Call(gc.PtrVal(uint64(sym)), args, retc)
}

// asRTError passes an already-rich *rterror.Error through unchanged,
// or wraps a plain error (e.g. a load-time failure) into one.
func asRTError(err error) *rterror.Error {
	if re, ok := err.(*rterror.Error); ok {
		return re
	}
	return rterror.Errorf("%v", err)
}

func primIndexImage(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) != 1 {
		return nil, arityErr(len(args), 1)
	}
	if !p.isBytestring(args[0]) {
		return nil, rterror.Errorf("Not a bytestring")
	}
	raw := p.Alloc.BytestringBytes(gc.Addr(args[0].Addr()))
	img, err := image.IndexImage(p.Alloc, raw)
	if err != nil {
		return nil, asRTError(err)
	}
	if err := image.Verify(img); err != nil {
		return nil, asRTError(err)
	}
	idx := p.RegisterImage(img)
	return []gc.Val{p.imageHandleVal(idx)}, nil
}

func primNewImageClosure(p *Process, args []gc.Val, retc int) ([]gc.Val, *rterror.Error) {
	if len(args) < 2 {
		return nil, rterror.Errorf("Not enough arguments")
	}
	imgV, idxV := args[0], args[1]
	if !p.isImageHandle(imgV) {
		return nil, rterror.Errorf("Not an image")
	}
	if !idxV.IsFixnum() {
		return nil, rterror.Errorf("Not a number")
	}
	imgIdx := p.imageHandleIndex(imgV)
	img := p.imageAt(imgIdx)
	codeIdx := idxV.UFix()
	if codeIdx >= uint64(len(img.Codes)) {
		return nil, rterror.Errorf("Code out of range")
	}
	addr := p.newClosure(imgIdx, uint32(codeIdx), args[2:])
	return []gc.Val{gc.PtrVal(uint64(addr))}, nil
}
