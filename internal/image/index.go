// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"bytes"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/rterror"
)

// IndexImage validates and indexes raw into an Image: magic, version,
// and section order are checked, and every table (constants, codes,
// bindings, start) is parsed into typed, bounds-checked Go slices
// backed by a single non-moving copy of raw on the GC heap. It does
// not verify code blocks or bake constants — call Verify and Bake
// before executing anything (the interpreter calls Bake itself before
// running a code block).
func IndexImage(alloc *gc.Allocator, raw []byte) (*Image, error) {
	bufAddr := alloc.NewLargeBytestringAtRoot(raw)
	buf := alloc.BytestringBytes(bufAddr)

	r := newReader(buf)
	magic, err := r.bytes(4, "magic")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, Magic[:]) {
		return nil, rterror.Errorf("image: missing magic header")
	}
	version, err := r.u32("version")
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, rterror.Errorf("image: unsupported version %d", version)
	}

	img := &Image{Alloc: alloc, BufAddr: bufAddr, Version: version}

	lastSection := uint32(0)
	for !r.atEnd() {
		id, err := r.u32("section id")
		if err != nil {
			return nil, err
		}
		if id <= lastSection || id < SectionConstants || id > SectionStart {
			return nil, rterror.Errorf("image: out-of-order or unknown section %d at offset %d", id, r.offset())
		}
		lastSection = id
		switch id {
		case SectionConstants:
			if err := indexConstants(img, r); err != nil {
				return nil, err
			}
		case SectionCodes:
			if err := indexCodes(img, r); err != nil {
				return nil, err
			}
		case SectionBindings:
			if err := indexBindings(img, r); err != nil {
				return nil, err
			}
		case SectionStart:
			code, err := r.u32("start code index")
			if err != nil {
				return nil, err
			}
			img.HasStart = code != 0
			if img.HasStart {
				img.StartCode = code - 1
				if img.StartCode >= uint32(len(img.Codes)) {
					return nil, rterror.Errorf("image: start code index out of range")
				}
			}
		}
	}

	// Lambda constants name a code index, but the Constants section is
	// indexed before Codes exists (section order fixes Constants <
	// Codes), so the bounds check against the now-complete code table
	// has to happen here instead of inline in the ConstLambda case
	// above.
	for i, c := range img.constants {
		if c.tag == ConstLambda && c.codeIndex >= uint32(len(img.Codes)) {
			return nil, rterror.Errorf("image: constant %d: lambda code index out of range", i)
		}
	}

	img.ConstantsBaked = make([]gc.Val, len(img.constants))
	return img, nil
}

func indexConstants(img *Image, r *reader) error {
	count, err := r.u32("constants count")
	if err != nil {
		return err
	}
	img.constants = make([]constant, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.u32("constant tag")
		if err != nil {
			return err
		}
		c := constant{tag: tag}
		switch tag {
		case ConstLambda:
			codeIdx, err := r.u32("lambda code index")
			if err != nil {
				return err
			}
			n, err := r.u32("lambda capture count")
			if err != nil {
				return err
			}
			captures := make([]uint32, n)
			for j := range captures {
				v, err := r.u32("lambda capture index")
				if err != nil {
					return err
				}
				if v >= i {
					return rterror.Errorf("image: constant %d: capture index out of range", i)
				}
				captures[j] = v
			}
			c.codeIndex = codeIdx
			c.captures = captures
		case ConstList:
			n, err := r.u32("list length")
			if err != nil {
				return err
			}
			indices := make([]uint32, n)
			for j := range indices {
				v, err := r.u32("list element index")
				if err != nil {
					return err
				}
				if v >= i {
					return rterror.Errorf("image: constant %d: list element index out of range", i)
				}
				indices[j] = v
			}
			c.indices = indices
		case ConstDirect:
			lo, err := r.u32("direct lo")
			if err != nil {
				return err
			}
			hi, err := r.u32("direct hi")
			if err != nil {
				return err
			}
			c.lo, c.hi = lo, hi
		case ConstSymbol, ConstString:
			n, err := r.u32("string length")
			if err != nil {
				return err
			}
			b, err := r.bytes(n, "string bytes")
			if err != nil {
				return err
			}
			if err := r.skip(padTo4(n)-n, "string padding"); err != nil {
				return err
			}
			c.bytes = b
		default:
			return rterror.Errorf("image: constant %d: unknown tag %d", i, tag)
		}
		img.constants = append(img.constants, c)
	}
	return nil
}

func indexCodes(img *Image, r *reader) error {
	count, err := r.u32("codes count")
	if err != nil {
		return err
	}
	img.Codes = make([]CodeBlock, count)
	for i := range img.Codes {
		codeLen, err := r.u32("code len")
		if err != nil {
			return err
		}
		maxStack, err := r.u32("code maxStack")
		if err != nil {
			return err
		}
		locals, err := r.u32("code locals")
		if err != nil {
			return err
		}
		stackMapLen, err := r.u32("code stackMapLen")
		if err != nil {
			return err
		}
		code, err := r.bytes(codeLen, "code bytes")
		if err != nil {
			return err
		}
		if err := r.skip(padTo4(codeLen)-codeLen, "code padding"); err != nil {
			return err
		}
		sm := make(map[uint32]uint32, stackMapLen)
		pos := make([]uint32, 0, stackMapLen)
		last := int64(-1)
		for j := uint32(0); j < stackMapLen; j++ {
			bcPos, err := r.u32("stack map position")
			if err != nil {
				return err
			}
			height, err := r.u32("stack map height")
			if err != nil {
				return err
			}
			if int64(bcPos) <= last {
				return rterror.Errorf("image: code %d: stack map not strictly ascending", i)
			}
			last = int64(bcPos)
			sm[bcPos] = height
			pos = append(pos, bcPos)
		}
		img.Codes[i] = CodeBlock{
			Code:        code,
			CodeLen:     codeLen,
			MaxStack:    maxStack,
			Locals:      locals,
			StackMap:    sm,
			stackMapPos: pos,
		}
	}
	return nil
}

func indexBindings(img *Image, r *reader) error {
	count, err := r.u32("bindings count")
	if err != nil {
		return err
	}
	img.Bindings = make([]Binding, count)
	for i := range img.Bindings {
		symConst, err := r.u32("binding symbol const")
		if err != nil {
			return err
		}
		valConst, err := r.u32("binding value const")
		if err != nil {
			return err
		}
		if int(symConst) >= len(img.constants) || img.constants[symConst].tag != ConstSymbol {
			return rterror.Errorf("image: binding %d: symbolConstIndex does not name a symbol constant", i)
		}
		if int(valConst) >= len(img.constants) {
			return rterror.Errorf("image: binding %d: bindingConstIndex out of range", i)
		}
		img.Bindings[i] = Binding{SymbolConst: symConst, BindingConst: valConst}
	}
	return nil
}
