// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// trailNodeCap is the number of field addresses packed into one trail
// node before a fresh node is linked on. Chosen small enough that a
// generation with only a handful of cross-generation writes doesn't
// allocate much host memory for bookkeeping it will throw away on the
// next collection.
const trailNodeCap = 31

// trailNode is one fixed-capacity link of a generation's trail.
type trailNode struct {
	fields [trailNodeCap]Addr
	n      int
	next   *trailNode
}

// trail is the inverted remembered set attached to a generation: the
// addresses of fields, anywhere in an outer (longer-lived) generation,
// that have been written to point at an object living in this
// generation. WriteVal appends to it; PopScope walks it as
// additional roots before evacuating this generation's survivors, then
// discards it — once this generation's survivors are promoted to the
// parent scope, a field that pointed here either now points at the
// (older) parent generation, or the write is stale and will be
// retraced the next time it's written again.
type trail struct {
	head *trailNode
	n    int
}

// record appends fieldAddr to the trail.
func (t *trail) record(fieldAddr Addr) {
	if t.head == nil || t.head.n == trailNodeCap {
		t.head = &trailNode{next: t.head}
	}
	t.head.fields[t.head.n] = fieldAddr
	t.head.n++
	t.n++
}

// forEach calls fn once for every recorded field address, in no
// particular order.
func (t *trail) forEach(fn func(fieldAddr Addr)) {
	for n := t.head; n != nil; n = n.next {
		for i := 0; i < n.n; i++ {
			fn(n.fields[i])
		}
	}
}

// reset discards every recorded entry.
func (t *trail) reset() {
	t.head = nil
	t.n = 0
}
