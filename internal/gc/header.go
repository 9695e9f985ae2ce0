// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "encoding/binary"

// Header tags (byte 0 of every object header).
const (
	hdrNormal     = 0x00
	hdrForwarding = 0x01
	hdrLarge      = 0x02
	hdrPadding    = 0xFF
)

// Colour (byte 1). The header layout reserves a colour byte, but the
// collector scans through an explicit worklist (see PopScope's queue)
// rather than per-object marking, so every header is written with the
// unmarked colour and never repainted.
const colourUnmarked = 0x00

// headerSize is the number of bytes every heap object is preceded by.
const headerSize = 8

// header is the decoded form of the 8-byte word preceding every heap
// object. Encoding/decoding is centralized here so the rest of the
// collector never pokes at the raw bit layout.
type header struct {
	tag   uint8
	color uint8
	gen   uint16
	typ   uint32
}

func buildHeader(tag, color uint8, gen uint16, typ uint32) uint64 {
	var b [8]byte
	b[0] = tag
	b[1] = color
	binary.LittleEndian.PutUint16(b[2:4], gen)
	binary.LittleEndian.PutUint32(b[4:8], typ)
	return binary.LittleEndian.Uint64(b[:])
}

func decodeHeader(w uint64) header {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w)
	return header{
		tag:   b[0],
		color: b[1],
		gen:   binary.LittleEndian.Uint16(b[2:4]),
		typ:   binary.LittleEndian.Uint32(b[4:8]),
	}
}

// forwardingHeader builds a header word that marks an object as moved
// to address p (which must fit in 56 bits). byte 0 is the forwarding
// tag; the remaining 7 bytes hold p directly, since on a
// little-endian machine that's exactly "p shifted left by 8".
func forwardingHeader(p uint64) uint64 {
	if p>>56 != 0 {
		panic("gc: forwarding address does not fit in 56 bits")
	}
	return hdrForwarding | p<<8
}

// readForwarded extracts the forwarding address from a header word
// built by forwardingHeader. The caller must already know tag ==
// hdrForwarding.
func readForwarded(w uint64) uint64 {
	return w >> 8
}
