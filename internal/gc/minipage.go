// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// miniPageSize is the fixed size of a mini-page arena.
const miniPageSize = 32 * 1024

// miniPageAlign is the alignment every heap allocation honours; all
// objects are 8-byte aligned so GC pointers (tag bits 01/11) never
// collide with a real address bit.
const miniPageAlign = 8

// minPadding is the minimum number of spare bytes left between two
// objects in a mini-page, filled with the padding tag byte so a scan
// that walks off the end of a corrupted object's declared size hits a
// recognizable sentinel instead of silently misinterpreting the next
// object's header.
const minPadding = 8

// miniPageMaxObjectSize is the largest object size the bump allocator
// will place in a mini-page; anything bigger goes to the large-object
// path regardless of forceNextLarge. Chosen as a quarter of a
// mini-page so that even a single maximal small object leaves enough
// of the page for further allocations to be worth attempting.
const miniPageMaxObjectSize = miniPageSize / 4

// miniPage is one 32 KiB bump-allocation arena. Its address never
// changes once assigned by the pool at Allocator init; only its
// owning generation and contents change as it's handed out, filled,
// and recycled.
type miniPage struct {
	base Addr
	data []byte // len(data) == miniPageSize

	used int64  // bump offset; data[0:used] is a sequence of objects/padding
	gen  uint16 // owning generation index

	prev, next *miniPage // generation's mini-page list (HEAD = current)
}

// alignUp rounds n up to a multiple of a (a must be a power of two).
func alignUp(n, a int64) int64 {
	return (n + a - 1) &^ (a - 1)
}

// bumpAlloc reserves size bytes (already including the header) at the
// page's current offset, padding as needed so the object starts
// aligned and at least minPadding bytes past the previous object. It
// returns the byte offset of the reservation, or -1 if it doesn't
// fit.
func (mp *miniPage) bumpAlloc(size int64) int64 {
	start := alignUp(mp.used+minPadding, miniPageAlign)
	if mp.used == 0 {
		start = 0 // the very first object needs no leading pad
	}
	if start+size > miniPageSize {
		return -1
	}
	for i := mp.used; i < start; i++ {
		mp.data[i] = hdrPadding
	}
	mp.used = start + size
	return start
}

// reset clears a mini-page for reuse by a (possibly different)
// generation. The backing array is not zeroed — the first write to
// each reused region is always the 8-byte header, and mark/scan never
// trusts stale bytes beyond `used`.
func (mp *miniPage) reset(gen uint16) {
	mp.used = 0
	mp.gen = gen
	mp.prev = nil
	mp.next = nil
}
