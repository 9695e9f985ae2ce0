// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// RootKind distinguishes how a root-chain entry should be walked.
// Root-chain entries are host-side bookkeeping rather than guest heap
// objects, so the four kinds are an ordinary tagged union, the way
// the rest of this package represents host structures (headers,
// types) with plain Go fields rather than bit-packed words.
type RootKind uint8

const (
	// RootDirect roots every element of a Val slice directly.
	RootDirect RootKind = iota
	// RootIndirect roots every element of each of a slice of Val
	// slices (an "array of arrays"), for callers that keep their
	// roots split across multiple growable buffers.
	RootIndirect
	// RootRaw roots through a slice of raw heap addresses rather than
	// tagged Vals, for links that must be relocated but are never
	// visible to the interpreter. Nothing in this module installs one.
	RootRaw
	// RootCallback defers root production to a function, invoked once
	// per collection, for roots that can't be expressed as a stable
	// slice (e.g. a native stack of interpreter frames).
	RootCallback
)

// rootEntry is one link of the root chain a scope sees at PushScope
// time. The chain is a singly linked list of entries installed by
// PushRoot and removed in LIFO order by PopRoot.
type rootEntry struct {
	kind RootKind

	direct   *[]Val
	indirect *[][]Val
	raw      *[]uint64
	callback func() []Val

	prev *rootEntry
}

// PushRootDirect installs p as a root: every Val in *p is scanned and,
// if moved, rewritten in place on every collection until the matching
// PopRoot.
func (a *Allocator) PushRootDirect(p *[]Val) {
	a.roots = &rootEntry{kind: RootDirect, direct: p, prev: a.roots}
}

// PushRootIndirect installs p as a root over an array of Val arrays.
func (a *Allocator) PushRootIndirect(p *[][]Val) {
	a.roots = &rootEntry{kind: RootIndirect, indirect: p, prev: a.roots}
}

// PushRootRaw installs p as a root over raw (untagged) heap addresses.
func (a *Allocator) PushRootRaw(p *[]uint64) {
	a.roots = &rootEntry{kind: RootRaw, raw: p, prev: a.roots}
}

// PushRootCallback installs fn, called fresh on every collection, as a
// root producer.
func (a *Allocator) PushRootCallback(fn func() []Val) {
	a.roots = &rootEntry{kind: RootCallback, callback: fn, prev: a.roots}
}

// PopRoot removes the most recently pushed root entry.
func (a *Allocator) PopRoot() {
	if a.roots == nil {
		panic("gc: PopRoot with no root pushed")
	}
	a.roots = a.roots.prev
}

// forEachRoot calls visit(ptr) for every Val root currently installed,
// where visit may rewrite *ptr in place (the collector's evacuation
// step does exactly this).
func (a *Allocator) forEachRoot(visit func(ptr *Val)) {
	for e := a.roots; e != nil; e = e.prev {
		switch e.kind {
		case RootDirect:
			s := *e.direct
			for i := range s {
				visit(&s[i])
			}
		case RootIndirect:
			for _, s := range *e.indirect {
				for i := range s {
					visit(&s[i])
				}
			}
		case RootRaw:
			s := *e.raw
			for i := range s {
				if s[i] == 0 {
					continue
				}
				v := PtrVal(s[i])
				visit(&v)
				s[i] = v.Addr()
			}
		case RootCallback:
			s := e.callback()
			for i := range s {
				visit(&s[i])
			}
		}
	}
}
