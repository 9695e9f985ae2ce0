// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// largeObj is a non-moving allocation that wouldn't fit (or was forced
// not to fit, via ForceNextLarge) in a mini-page. Its own backing slice
// holds the header immediately followed by the object, exactly like a
// mini-page allocation, so the rest of the collector can treat the two
// uniformly once it has resolved an address to bytes.
type largeObj struct {
	base Addr
	data []byte // len(data) == headerSize + object size

	gen uint16

	prev, next *largeObj
}
