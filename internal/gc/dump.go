// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Stat is one entry of a heap usage report returned by Dump: either a
// leaf measurement or a named group of sub-measurements whose value is
// the sum of its children.
type Stat struct {
	Name  string
	Value int64

	children map[string]*Stat
}

func leafStat(name string, value int64) *Stat {
	return &Stat{Name: name, Value: value}
}

func groupStat(name string, children ...*Stat) *Stat {
	var cmap map[string]*Stat
	var value int64
	if len(children) != 0 {
		cmap = make(map[string]*Stat, len(children))
		for _, c := range children {
			cmap[c.Name] = c
			value += c.Value
		}
	}
	return &Stat{Name: name, Value: value, children: cmap}
}

// Sub looks up a nested child by chain of names, returning nil if any
// link is missing.
func (s *Stat) Sub(chain ...string) *Stat {
	for _, name := range chain {
		if s == nil {
			return nil
		}
		s = s.children[name]
	}
	return s
}

// Children calls fn for each direct child, in no particular order.
func (s *Stat) Children(fn func(*Stat)) {
	for _, c := range s.children {
		fn(c)
	}
}

// Write renders the tree to w, one line per entry, children indented
// under their group and sorted by name for stable output.
func (s *Stat) Write(w io.Writer) {
	s.write(w, 0)
}

func (s *Stat) write(w io.Writer, depth int) {
	fmt.Fprintf(w, "%*s%s: %d\n", depth*2, "", s.Name, s.Value)
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.children[name].write(w, depth+1)
	}
}

// Dump builds a usage report of the whole heap: one child per live
// generation, each broken down by registered type name, with
// mini-page and large-object bytes of a type summed together. Used by
// the dbg-dump-gc host primitive.
func (a *Allocator) Dump() *Stat {
	gens := make([]*Stat, len(a.gens))
	for i, g := range a.gens {
		gens[i] = a.dumpGeneration(g)
	}
	return groupStat("heap", gens...)
}

func (a *Allocator) dumpGeneration(g *generation) *Stat {
	byType := map[string]int64{}

	for mp := g.miniTail; mp != nil; mp = mp.prev {
		a.walkMiniPage(mp, func(typeIdx uint32, size int64) {
			byType[a.typeFor(typeIdx).Name] += size
		})
	}
	for lo := g.largeHead; lo != nil; lo = lo.next {
		hdr := decodeHeader(binary.LittleEndian.Uint64(lo.data))
		byType[a.typeFor(hdr.typ).Name] += int64(len(lo.data)) - headerSize
	}

	children := make([]*Stat, 0, len(byType))
	for name, size := range byType {
		children = append(children, leafStat(name, size))
	}
	return groupStat(genName(g.depth), children...)
}

// DumpObject writes a description of the object at addr to w: its
// type and size, the decoded header word, then one line per field
// with its byte offset and value. render turns a tagged Val into
// text — value rendering is an interpreter concern, so the caller
// injects it (the dbg-dump-obj host primitive passes its own debug
// printer). Raw-byte fields print as hex; a resizable byte tail
// prints as one contiguous hex run rather than one line per element.
func (a *Allocator) DumpObject(w io.Writer, addr Addr, render func(Val) string) {
	hdr := a.readHeader(addr)
	t := a.typeFor(hdr.typ)
	length := int64(0)
	if t.Resizable != nil {
		length = a.ArrayLen(addr)
	}
	fmt.Fprintf(w, "%#x: %s, %d bytes\n", uint64(addr), t.Name, t.Sized(length))
	fmt.Fprintf(w, "  header: tag=%#x colour=%#x gen=%s type=%d\n",
		hdr.tag, hdr.color, genName(hdr.gen), hdr.typ)

	dumpField := func(off int64, tag GCTag, size int64) {
		switch tag {
		case TagTagged:
			fmt.Fprintf(w, "  +%d: %s\n", off, render(a.ReadVal(addr, off)))
		case TagRaw:
			fmt.Fprintf(w, "  +%d: raw %#x\n", off, a.ReadU64(addr, off))
		default:
			fmt.Fprintf(w, "  +%d: % x\n", off, a.ReadBytes(addr, off, size))
		}
	}

	for i, f := range t.Fields {
		if t.Resizable != nil && i == t.Resizable.FieldIndex {
			continue
		}
		dumpField(f.Offset, f.GC, f.Size)
	}
	if t.Resizable == nil || length == 0 {
		return
	}
	rf := t.Fields[t.Resizable.FieldIndex]
	if rf.GC == TagNone {
		dumpField(rf.Offset, TagNone, length*t.Resizable.ElemSize)
		return
	}
	for i := int64(0); i < length; i++ {
		dumpField(rf.Offset+i*t.Resizable.ElemSize, rf.GC, rf.Size)
	}
}

func genName(depth uint16) string {
	if depth == 0 {
		return "root"
	}
	return fmt.Sprintf("scope%d", depth)
}

// walkMiniPage calls fn(typeIdx, objectSize) for every live (non-
// padding, non-forwarded — a fully-collected mini-page never retains
// forwarding headers, but Dump can run mid-program between
// collections too) object laid out in mp.
func (a *Allocator) walkMiniPage(mp *miniPage, fn func(typeIdx uint32, size int64)) {
	off := int64(0)
	for off < mp.used {
		tag := mp.data[off]
		if tag == hdrPadding {
			off++
			continue
		}
		hdr := decodeHeader(binary.LittleEndian.Uint64(mp.data[off:]))
		if hdr.tag == hdrForwarding {
			// A forwarded object's true size isn't recoverable from
			// the stale mini-page slot; skip forward conservatively.
			off += headerSize
			continue
		}
		t := a.typeFor(hdr.typ)
		length := int64(0)
		if t.Resizable != nil {
			off2 := off + headerSize
			length = int64(binary.LittleEndian.Uint32(mp.data[off2+t.Resizable.LengthOff:]))
		}
		size := t.Sized(length)
		fn(hdr.typ, size)
		off += headerSize + size
	}
}
