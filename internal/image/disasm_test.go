// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"strings"
	"testing"
)

func TestDisassembleMinimalImage(t *testing.T) {
	a := newTestAlloc(t)
	img, err := IndexImage(a, buildMinimalImage())
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}

	var b strings.Builder
	if err := Disassemble(img, &b); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	out := b.String()

	for _, want := range []string{"version", "1", "codes", "ret", "code 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Disassemble output missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleConstants(t *testing.T) {
	a := newTestAlloc(t)
	b := newHeader()

	b.u32(SectionConstants)
	b.u32(1)
	b.u32(ConstSymbol)
	b.lenPrefixed([]byte("foo"))

	b.u32(SectionCodes)
	b.u32(1)
	b.codeBlock([]byte{OpLdc, 0, 0, 0, 0, OpRet, 1}, 1, 0, nil)

	b.u32(SectionBindings)
	b.u32(0)
	b.u32(SectionStart)
	b.u32(0)

	img, err := IndexImage(a, b.buf)
	if err != nil {
		t.Fatalf("IndexImage: %v", err)
	}

	var out strings.Builder
	if err := Disassemble(img, &out); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(out.String(), `"foo"`) {
		t.Fatalf("Disassemble output missing symbol constant: %s", out.String())
	}
	if !strings.Contains(out.String(), "ldc") {
		t.Fatalf("Disassemble output missing ldc mnemonic: %s", out.String())
	}
}
