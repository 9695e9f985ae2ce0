// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "fmt"

// GCTag classifies how the collector should treat one field of a
// registered type when scanning an object for outgoing references.
type GCTag uint8

const (
	// TagNone marks a field the collector must not interpret: raw
	// bytes (fixnum payloads, lengths, packed char/byte data).
	TagNone GCTag = iota
	// TagTagged marks a field that holds a full Val — it may or may
	// not be a pointer, and if it is, it carries its own tag.
	TagTagged
	// TagRaw marks a field that holds a naked heap address (no tag
	// bits), which the collector relocates but which is never exposed
	// to the interpreter as a Val. No type registered in this module
	// uses it; trail nodes and mini-page links are host-side Go
	// structs, not heap objects.
	TagRaw
)

// Field describes one field of a registered type.
type Field struct {
	Offset int64
	Size   int64
	GC     GCTag
}

// Resizable describes the single variable-length field a type may
// have: its position in Fields and the offset of a u32 length word
// stored in the object itself, written by the allocator at alloc
// time.
type Resizable struct {
	FieldIndex int
	LengthOff  int64
	ElemSize   int64
}

// Type is an immutable type descriptor for a type this runtime
// defined and registered via Allocator.PushType. Descriptors never
// change after registration; the collector reads them on every scan.
type Type struct {
	Name      string
	Align     int64
	BaseSize  int64
	Fields    []Field
	Resizable *Resizable
}

// Sized returns the total object size for length copies of the
// resizable field (length is ignored, and must be 0, for a
// fixed-size type).
func (t *Type) Sized(length int64) int64 {
	if t.Resizable == nil {
		if length != 0 {
			panic(fmt.Sprintf("gc: type %s is not resizable", t.Name))
		}
		return t.BaseSize
	}
	return t.BaseSize + length*t.Resizable.ElemSize
}

// forEachGCField calls fn for every field of t whose GC tag is not
// TagNone, passing its byte offset and tag. length is the resizable
// element count (0 for fixed types); resizable elements beyond the
// first are walked by repeating the resizable field's own descriptor
// at each element stride.
func (t *Type) forEachGCField(length int64, fn func(off int64, tag GCTag, size int64)) {
	for i, f := range t.Fields {
		if t.Resizable != nil && i == t.Resizable.FieldIndex {
			continue // walked below, once per element
		}
		if f.GC != TagNone {
			fn(f.Offset, f.GC, f.Size)
		}
	}
	if t.Resizable == nil || length == 0 {
		return
	}
	rf := t.Fields[t.Resizable.FieldIndex]
	if rf.GC == TagNone {
		return
	}
	for i := int64(0); i < length; i++ {
		fn(rf.Offset+i*t.Resizable.ElemSize, rf.GC, rf.Size)
	}
}
