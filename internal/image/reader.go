// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"

	"github.com/eutro/gliss/internal/rterror"
)

// reader is a bounds-checked cursor over an image's byte buffer. Every
// read method reports the byte offset of a truncation failure so
// load-time errors can name the field that failed.
type reader struct {
	buf []byte
	pos uint32
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) offset() uint32 { return r.pos }

func (r *reader) need(n uint32, field string) error {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return rterror.Errorf("image: truncated %s at offset %d", field, r.pos)
	}
	return nil
}

func (r *reader) u8(field string) (uint8, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16(field string) (uint16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) i32(field string) (int32, error) {
	v, err := r.u32(field)
	return int32(v), err
}

func (r *reader) bytes(n uint32, field string) ([]byte, error) {
	if err := r.need(n, field); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) skip(n uint32, field string) error {
	if err := r.need(n, field); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *reader) atEnd() bool { return int(r.pos) >= len(r.buf) }
