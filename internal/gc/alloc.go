// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gc implements the scoped generational copying collector:
// mini-page bump allocation, large objects, the scope (generation)
// stack, the cross-generation write barrier, and the root chain
// through which the interpreter and image loader register live
// values. It is the one package in this module allowed to reach past
// a Val's tag bits into raw memory.
package gc

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Addr is a heap address: either an offset into the mini-page pool, or
// (for a large object) a handle assigned when that object was
// allocated. It carries no tag bits — it's the untagged value
// extracted from a gc.Val by Val.Addr.
type Addr uint64

const poolBase Addr = 0x1000

// Config controls the fixed resources the allocator manages.
type Config struct {
	// MiniPages is the number of 32 KiB mini-pages in the pool. This
	// bounds total mini-page-backed heap size; large objects are not
	// affected by it.
	MiniPages int
	// MaxScopeDepth bounds the nesting of PushScope, catching runaway
	// recursion in call-in-new-scope before it exhausts host memory.
	MaxScopeDepth int
}

// DefaultConfig is the configuration the `gliss run` command and the
// image tests use: enough mini-pages for a small program's heap, and
// a generous but finite scope depth.
var DefaultConfig = Config{
	MiniPages:     256, // 8 MiB of mini-page heap
	MaxScopeDepth: 10000,
}

// Allocator is the collector's top-level handle: one per running
// program. It owns the mini-page pool, the large-object address
// space, the type table, the scope stack, and the root chain.
type Allocator struct {
	cfg Config

	pages    []*miniPage // index i -> pool address poolBase+i*miniPageSize
	freeList []*miniPage // pages owned by no generation

	largeBase   Addr
	nextLarge   Addr
	large       map[Addr]*largeObj
	largeBases  []Addr // sorted ascending bases of a.large, for interior-address lookup

	types []*Type

	gens     []*generation // gens[0] is the permanent root generation
	roots    *rootEntry
	forceLrg bool

	// Symbol table and bytestring types/state; see symtab.go. These
	// are the one piece of Lisp-level structure the collector builds
	// itself, since interning is part of the image bake step and the
	// table must be a GC root for the whole process lifetime.
	bytestringTy uint32
	symbolTy     uint32
	bucketTy     uint32
	valArrayTy   uint32
	symtabAddr   Addr

	// Shared core types every other package allocates through, so that
	// image's list-constant baking and interp's pair/box primitives
	// agree on layout without importing one another. See coretypes.go.
	pairTy uint32
	boxTy  uint32
}

// NewAllocator builds an allocator with cfg's resource limits. Call
// Init before any allocation.
func NewAllocator(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

// Init carves out the mini-page pool and establishes generation 0, the
// permanent root scope that is never popped.
func (a *Allocator) Init() {
	a.pages = make([]*miniPage, a.cfg.MiniPages)
	a.freeList = make([]*miniPage, 0, a.cfg.MiniPages)
	for i := range a.pages {
		mp := &miniPage{
			base: poolBase + Addr(i)*miniPageSize,
			data: make([]byte, miniPageSize),
		}
		a.pages[i] = mp
		a.freeList = append(a.freeList, mp)
	}
	a.largeBase = poolBase + Addr(a.cfg.MiniPages)*miniPageSize
	a.nextLarge = a.largeBase
	a.large = make(map[Addr]*largeObj)

	root := newGeneration(0)
	a.gens = []*generation{root}
	a.adoptFreeMiniPage(root)
}

// Dispose releases every resource Init acquired. The Allocator must
// not be used afterward.
func (a *Allocator) Dispose() {
	a.pages = nil
	a.freeList = nil
	a.large = nil
	a.gens = nil
	a.roots = nil
	a.types = nil
}

// PushType registers t and returns its index, used as the type word
// stored in every object header allocated with this type.
func (a *Allocator) PushType(t *Type) uint32 {
	a.types = append(a.types, t)
	return uint32(len(a.types) - 1)
}

// typeFor looks up a previously registered type by index, panicking on
// a corrupt/out-of-range index — this can only happen for a malformed
// bytecode image, which the loader's verifier is responsible for
// catching before execution reaches the allocator.
func (a *Allocator) typeFor(idx uint32) *Type {
	if int(idx) >= len(a.types) {
		panic(fmt.Sprintf("gc: type index %d out of range", idx))
	}
	return a.types[idx]
}

// TypeOf returns the type index stored in addr's header.
func (a *Allocator) TypeOf(addr Addr) uint32 {
	return a.readHeader(addr).typ
}

// currentGen is the innermost (deepest) live generation: every
// allocation lands here.
func (a *Allocator) currentGen() *generation {
	return a.gens[len(a.gens)-1]
}

func (a *Allocator) adoptFreeMiniPage(g *generation) *miniPage {
	var mp *miniPage
	if n := len(a.freeList); n > 0 {
		mp = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
	} else {
		panic("gc: mini-page pool exhausted")
	}
	g.adoptMiniPage(mp)
	return mp
}

// ForceNextLarge makes the very next Alloc/AllocArray call place its
// object on the large-object path even if it would fit in a
// mini-page, regardless of size. Used by the image loader to keep the
// backing bytes of a loaded image itself non-moving.
func (a *Allocator) ForceNextLarge() {
	a.forceLrg = true
}

// Alloc allocates a fixed-size object of the given registered type and
// returns its address (already past the header). Field contents are
// whatever bytes the backing mini-page or large-object buffer already
// held (zero only the first time that memory is used); callers that
// need zeroed fields, such as new-bytestring, clear them explicitly.
func (a *Allocator) Alloc(typeIdx uint32) Addr {
	return a.allocSized(a.currentGen(), typeIdx, 0)
}

// AllocArray allocates a resizable object of the given type with
// length elements in its variable-length field, and writes length
// into the type's declared length word.
func (a *Allocator) AllocArray(typeIdx uint32, length int64) Addr {
	return a.allocArrayIn(a.currentGen(), typeIdx, length)
}

// AllocAtRoot and AllocArrayAtRoot allocate into the permanent root
// generation regardless of how deeply scoped the caller currently is.
// The symbol table (symtab.go) uses these: an interned symbol must
// outlive the scope it happened to be interned in.
func (a *Allocator) AllocAtRoot(typeIdx uint32) Addr {
	return a.allocSized(a.gens[0], typeIdx, 0)
}

func (a *Allocator) AllocArrayAtRoot(typeIdx uint32, length int64) Addr {
	return a.allocArrayIn(a.gens[0], typeIdx, length)
}

func (a *Allocator) allocArrayIn(g *generation, typeIdx uint32, length int64) Addr {
	addr := a.allocSized(g, typeIdx, length)
	t := a.typeFor(typeIdx)
	if t.Resizable != nil {
		a.writeU32(addr, t.Resizable.LengthOff, uint32(length))
	}
	return addr
}

func (a *Allocator) allocSized(g *generation, typeIdx uint32, length int64) Addr {
	t := a.typeFor(typeIdx)
	size := t.Sized(length)
	total := headerSize + size

	large := a.forceLrg || total > miniPageMaxObjectSize
	a.forceLrg = false

	if large {
		hdr := buildHeader(hdrLarge, colourUnmarked, g.depth, typeIdx)
		return a.allocLarge(g, hdr, total, size)
	}

	hdr := buildHeader(hdrNormal, colourUnmarked, g.depth, typeIdx)

	off := g.miniHead.bumpAlloc(total)
	if off < 0 {
		a.adoptFreeMiniPage(g)
		off = g.miniHead.bumpAlloc(total)
		if off < 0 {
			panic("gc: object too large for an empty mini-page")
		}
	}
	binary.LittleEndian.PutUint64(g.miniHead.data[off:], hdr)
	return g.miniHead.base + Addr(off) + headerSize
}

func (a *Allocator) allocLarge(g *generation, hdr uint64, total, size int64) Addr {
	data := make([]byte, total)
	binary.LittleEndian.PutUint64(data, hdr)
	addr := a.nextLarge
	a.nextLarge += Addr(alignUp(total, miniPageAlign))
	lo := &largeObj{base: addr, data: data}
	g.addLarge(lo)
	a.large[addr] = lo
	a.insertLargeBase(addr)
	_ = size
	return addr
}

// insertLargeBase records addr in the sorted largeBases index, used to
// resolve an address that falls inside a large object's body (not just
// its header-adjacent base) to the object that owns it — needed
// because the trail records raw field addresses, and a field of a
// multi-field large object does not generally equal that object's own
// base address.
func (a *Allocator) insertLargeBase(addr Addr) {
	i := sort.Search(len(a.largeBases), func(i int) bool { return a.largeBases[i] >= addr })
	a.largeBases = append(a.largeBases, 0)
	copy(a.largeBases[i+1:], a.largeBases[i:])
	a.largeBases[i] = addr
}

// removeLargeBase undoes insertLargeBase when a large object is
// reclaimed.
func (a *Allocator) removeLargeBase(addr Addr) {
	i := sort.Search(len(a.largeBases), func(i int) bool { return a.largeBases[i] >= addr })
	if i < len(a.largeBases) && a.largeBases[i] == addr {
		a.largeBases = append(a.largeBases[:i], a.largeBases[i+1:]...)
	}
}

// findLarge returns the large object whose body contains addr,
// whether or not addr is exactly its base.
func (a *Allocator) findLarge(addr Addr) *largeObj {
	i := sort.Search(len(a.largeBases), func(i int) bool { return a.largeBases[i] > addr })
	if i == 0 {
		panic(fmt.Sprintf("gc: address %#x does not name a live object", addr))
	}
	base := a.largeBases[i-1]
	lo := a.large[base]
	if addr >= base+Addr(len(lo.data)-headerSize) {
		panic(fmt.Sprintf("gc: address %#x does not name a live object", addr))
	}
	return lo
}

// resolve maps a heap address to its backing byte slice and the
// position within that slice corresponding to addr. The header
// immediately precedes position pos at data[pos-headerSize:pos]. addr
// may be a large object's base or any address within its body (the
// latter arises when resolving a trail-recorded field address).
func (a *Allocator) resolve(addr Addr) (data []byte, pos int64) {
	if addr >= poolBase && addr < a.largeBase {
		rel := int64(addr - poolBase)
		idx := rel / miniPageSize
		mp := a.pages[idx]
		return mp.data, rel - idx*miniPageSize
	}
	lo := a.findLarge(addr)
	return lo.data, int64(addr-lo.base) + headerSize
}

// genAt reports the generation currently owning the object whose body
// contains addr. Unlike TypeOf/readHeader, this works for any address
// inside an object (mini-page objects all share their page's
// generation; a large object's generation is read from its own
// bookkeeping rather than its header, since addr need not be its
// base).
func (a *Allocator) genAt(addr Addr) uint16 {
	if addr >= poolBase && addr < a.largeBase {
		rel := int64(addr - poolBase)
		return a.pages[rel/miniPageSize].gen
	}
	return a.findLarge(addr).gen
}

func (a *Allocator) readHeader(addr Addr) header {
	data, pos := a.resolve(addr)
	return decodeHeader(binary.LittleEndian.Uint64(data[pos-headerSize:]))
}

func (a *Allocator) writeHeader(addr Addr, w uint64) {
	data, pos := a.resolve(addr)
	binary.LittleEndian.PutUint64(data[pos-headerSize:], w)
}

// ReadVal reads a tagged Val field at byte offset off within the
// object at addr.
func (a *Allocator) ReadVal(addr Addr, off int64) Val {
	data, pos := a.resolve(addr)
	return Val(binary.LittleEndian.Uint64(data[pos+off:]))
}

// writeValRaw stores v at byte offset off without any write-barrier
// bookkeeping. Used for initializing freshly allocated objects (whose
// fields cannot yet be targets of a stale remembered-set entry) and
// internally by the collector's own evacuation code.
func (a *Allocator) writeValRaw(addr Addr, off int64, v Val) {
	data, pos := a.resolve(addr)
	binary.LittleEndian.PutUint64(data[pos+off:], uint64(v))
}

// WriteVal stores v at byte offset off within the object at addr,
// honouring the write barrier: if v is a GC pointer into a generation
// deeper (more recently pushed) than addr's own generation, the field
// address is recorded on that generation's trail so a later PopScope
// of it treats this field as an extra root.
func (a *Allocator) WriteVal(addr Addr, off int64, v Val) {
	a.writeValRaw(addr, off, v)
	if !v.IsGCPtr() {
		return
	}
	containerGen := a.readHeader(addr).gen
	targetGen := a.readHeader(Addr(v.Addr())).gen
	if targetGen > containerGen {
		a.gens[targetGen].trail.record(addr + Addr(off))
	}
}

// ReadU8/WriteU8, ReadU32/WriteU32, ReadU64/WriteU64, and ReadBytes are
// the raw-field accessors for TagNone/TagRaw fields (lengths, packed
// bytestring payloads, fixnum-shaped data that isn't itself a Val).

func (a *Allocator) ReadU8(addr Addr, off int64) uint8 {
	data, pos := a.resolve(addr)
	return data[pos+off]
}

func (a *Allocator) WriteU8(addr Addr, off int64, v uint8) {
	data, pos := a.resolve(addr)
	data[pos+off] = v
}

func (a *Allocator) readU32(addr Addr, off int64) uint32 {
	data, pos := a.resolve(addr)
	return binary.LittleEndian.Uint32(data[pos+off:])
}

func (a *Allocator) writeU32(addr Addr, off int64, v uint32) {
	data, pos := a.resolve(addr)
	binary.LittleEndian.PutUint32(data[pos+off:], v)
}

// ReadU32 exposes readU32 to other packages (e.g. interp reading a
// bytestring length).
func (a *Allocator) ReadU32(addr Addr, off int64) uint32 { return a.readU32(addr, off) }

// WriteU32 exposes writeU32.
func (a *Allocator) WriteU32(addr Addr, off int64, v uint32) { a.writeU32(addr, off, v) }

func (a *Allocator) ReadU64(addr Addr, off int64) uint64 {
	data, pos := a.resolve(addr)
	return binary.LittleEndian.Uint64(data[pos+off:])
}

func (a *Allocator) WriteU64(addr Addr, off int64, v uint64) {
	data, pos := a.resolve(addr)
	binary.LittleEndian.PutUint64(data[pos+off:], v)
}

// ReadBytes returns a view of n raw bytes at offset off within the
// object at addr. The slice aliases the object's backing storage and
// must not be retained past a collection.
func (a *Allocator) ReadBytes(addr Addr, off, n int64) []byte {
	data, pos := a.resolve(addr)
	return data[pos+off : pos+off+n]
}

// ArrayLen returns the element count of a resizable object, as
// written by AllocArray.
func (a *Allocator) ArrayLen(addr Addr) int64 {
	t := a.typeFor(a.TypeOf(addr))
	if t.Resizable == nil {
		panic(fmt.Sprintf("gc: type %s is not resizable", t.Name))
	}
	return int64(a.readU32(addr, t.Resizable.LengthOff))
}
