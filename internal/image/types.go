// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import "github.com/eutro/gliss/internal/gc"

// constant is the indexed (not yet baked) form of one Constants
// section entry. Only the fields relevant to its tag are populated.
type constant struct {
	tag uint32

	lo, hi uint32 // direct

	bytes []byte // symbol, string — a view into the image's buffer

	indices []uint32 // list

	codeIndex uint32   // lambda
	captures  []uint32 // lambda
}

// CodeBlock is one indexed (and, after Verify, checked) code block.
type CodeBlock struct {
	Code        []byte // a view into the image's buffer, CodeLen bytes (padding excluded)
	CodeLen     uint32 // the true (unpadded) instruction byte length
	MaxStack    uint32
	Locals      uint32
	StackMap    map[uint32]uint32 // bytecode offset -> required operand height
	stackMapPos []uint32          // offsets in ascending order, for verification
}

// Binding is one entry of the Bindings section: a symbol constant
// index paired with the constant index of the value it should be
// bound to at bake time.
type Binding struct {
	SymbolConst  uint32
	BindingConst uint32
}

// Image is the indexed, verified form of a loaded bytecode buffer.
// Baking (ConstantsBaked) happens lazily, on first use, via Bake.
type Image struct {
	Alloc *gc.Allocator

	// BufAddr is the image's raw bytes, held as a non-moving GC
	// bytestring so every []byte view taken above remains valid for
	// the image's entire lifetime.
	BufAddr gc.Addr

	Version uint32

	constants      []constant
	ConstantsBaked []gc.Val
	baked          bool

	Codes []CodeBlock

	Bindings []Binding

	HasStart  bool
	StartCode uint32
}

// NumConstants reports the size of the constant table.
func (img *Image) NumConstants() int { return len(img.constants) }
