// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image implements the bytecode image wire format: indexing a
// raw byte buffer into typed tables without copying, verifying every
// code block's stack discipline, and baking wire-level constants into
// live heap values on first use.
package image

// Magic is the 4-byte header every image must begin with: "gls\0".
var Magic = [4]byte{0x67, 0x6c, 0x73, 0x00}

// Version is the only wire version this loader accepts.
const Version = 1

// Section identifiers, which must appear in strictly ascending order.
const (
	SectionConstants = 1
	SectionCodes     = 2
	SectionBindings  = 3
	SectionStart     = 4
)

// Constant tags.
const (
	ConstLambda = 0
	ConstList   = 1
	ConstDirect = 2
	ConstSymbol = 3
	ConstString = 4
)

// Opcodes.
const (
	OpNop        = 0x00
	OpDrop       = 0x01
	OpRet        = 0x02
	OpBr         = 0x03
	OpBrIfNot    = 0x04
	OpLdc        = 0x05
	OpSymDeref   = 0x06
	OpLambda     = 0x07
	OpCall       = 0x08
	OpLocalRef   = 0x12
	OpLocalSet   = 0x13
	OpArgRef     = 0x14
	OpRestargRef = 0x15
	OpThisRef    = 0x16
	OpClosureRef = 0x17
)

// padTo4 rounds n up to the next multiple of 4, the padding every
// length-prefixed byte payload in the wire format is subject to.
func padTo4(n uint32) uint32 {
	return (n + 3) &^ 3
}
