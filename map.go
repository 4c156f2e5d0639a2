// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package strmap implements an insert-only hash map keyed by strings that
// stores every distinct key exactly once in a single packed byte buffer. It
// is intended for counting or assigning ids to a large stream of tokens where
// the number of distinct keys is much smaller than the number of lookups, and
// where allocating a Go string per distinct key (as map[string]V does) shows
// up in heap profiles.
//
// # Layout
//
// A Map owns two independent arrays:
//
//   - buf, an append-only byte buffer. Each distinct key is appended once as
//     a uvarint byte length followed by the raw key bytes. A key is
//     referenced by a Handle, the 32-bit offset of its length prefix. The
//     buffer is never rewritten, so a Handle is valid for the life of the
//     Map. The total size of buf must stay below 4GiB; this is not checked
//     outside of invariants builds.
//   - slots, an array of (value, Handle) pairs whose length is always a power
//     of two. An empty slot holds the null Handle (0xFFFFFFFF).
//
// # Probing
//
// Collisions are resolved with open addressing. The initial slot is derived
// from the top bits of a fixed 32-bit hash of the key: the hash is shifted
// right so that exactly one more bit than the slot index needs remains, and
// the shift shrinks by one every time the table doubles. Probing then visits
//
//	p(i) := hash + (i^2 + i)/2 (mod len(slots))   for i = 2, 3, 4, ...
//
// i.e. the offsets grow by triangular numbers. Modulo a power of two this
// sequence visits every slot within 2*len(slots) steps (though not within
// len(slots) steps), and the load factor is capped at 2/3, so a probe always
// terminates at either a matching key or an empty slot.
//
// # Growth
//
// Before an insertion the table doubles if used*1.5 > len(slots). Growth
// re-probes every occupied slot into the new array without comparing keys,
// since the keys are already known to be distinct. Only the slot array is
// reallocated; buf and every Handle stay where they are.
//
// There is no deletion.
package strmap

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"strings"
	"unsafe"
)

const (
	debug = false

	// defaultCapacityExponent gives New an initial table of 512 slots.
	defaultCapacityExponent = 10

	// maxKeyBytes is the addressable size of the key buffer. The top offset
	// is reserved for nullHandle.
	maxKeyBytes = math.MaxUint32
)

// Handle is the offset of a key inside the key buffer of the Map that
// produced it.
type Handle uint32

const nullHandle Handle = math.MaxUint32

// IsNull returns true if h does not reference a key.
func (h Handle) IsNull() bool {
	return h == nullHandle
}

// Addr returns the byte offset of the key's length prefix.
func (h Handle) Addr() uint32 {
	return uint32(h)
}

// Slot holds a value and the handle of its key.
type Slot[V any] struct {
	value  V
	handle Handle
}

// Map is an insert-only map from strings to values. See the package
// documentation for the layout.
//
// Pointers returned by GetOrCreate, GetOrCreateBytes, Get, Values and All
// alias the slot array. They remain readable but stop being connected to
// the map the next time the map grows, which may happen on any call to
// GetOrCreate, GetOrCreateBytes or Intern. Strings returned by ReadString and
// All alias the key buffer and stay valid forever.
//
// A Map is NOT goroutine-safe.
type Map[V any] struct {
	// hash is always hashString outside of tests.
	hash      func(key string) uint32
	allocator Allocator[V]
	// buf holds every distinct key as uvarint(len) followed by the key
	// bytes.
	buf   []byte
	slots unsafeSlice[Slot[V]]
	// The number of slots (always 2^N). capacity-1 is used as a mask.
	capacity uint32
	mask     uint32
	// shift is applied to the 32-bit hash before probing. It always equals
	// 31-log2(capacity).
	shift uint32
	// The number of occupied slots.
	used int
}

// New constructs a Map with the default initial capacity.
func New[V any](options ...Option[V]) *Map[V] {
	return NewWithCapacityExponent[V](defaultCapacityExponent, options...)
}

// NewWithCapacityExponent constructs a Map with an initial table of
// 2^(exponent-1) slots. The exponent must be in [1, 32].
func NewWithCapacityExponent[V any](exponent uint, options ...Option[V]) *Map[V] {
	if exponent == 0 || exponent > 32 {
		panic(fmt.Sprintf("strmap: capacity exponent %d out of range [1, 32]", exponent))
	}
	capacity := uint32(1) << (exponent - 1)

	m := &Map[V]{
		hash:      hashString,
		allocator: defaultAllocator[V]{},
		buf:       make([]byte, 0, 2*int(capacity)),
		shift:     uint32(32 - exponent),
	}
	for _, op := range options {
		op.apply(m)
	}
	m.setSlots(capacity)

	m.checkInvariants()
	return m
}

// Close releases the slot array back to the configured allocator. It is
// unnecessary to close a map using the default allocator. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map[V]) Close() {
	if m.capacity > 0 {
		m.allocator.FreeSlots(m.slots.Slice(0, uintptr(m.capacity)))
		m.capacity = 0
		m.used = 0
	}
	m.slots = makeUnsafeSlice([]Slot[V](nil))
	m.buf = nil
}

// GetOrCreate returns a pointer to the value stored for key. If key is not
// present it is inserted with value, and the returned pointer refers to the
// stored copy.
func (m *Map[V]) GetOrCreate(key string, value V) *V {
	return &m.getOrCreate(key, value).value
}

// GetOrCreateBytes is GetOrCreate for a key held in a byte slice. The bytes
// are copied into the map only if the key is inserted.
func (m *Map[V]) GetOrCreateBytes(key []byte, value V) *V {
	return &m.getOrCreate(unsafeString(key), value).value
}

// Intern inserts key with the zero value if it is not present and returns
// its Handle. The Handle can be resolved with ReadString for the life of the
// map.
func (m *Map[V]) Intern(key string) Handle {
	var zero V
	return m.getOrCreate(key, zero).handle
}

// getOrCreate returns the slot holding key, inserting it with value if
// necessary. key may alias memory owned by the caller: it is only read, and
// copied into buf on insertion.
func (m *Map[V]) getOrCreate(key string, value V) *Slot[V] {
	// Keep the load factor at or below 2/3 so that the probe below always
	// reaches an empty slot.
	if m.used*3 > int(m.capacity)*2 {
		m.grow()
	}

	seq := makeProbeSeq(m.hash(key)>>m.shift, m.mask)
	if debug {
		fmt.Printf("get-or-create(%q): %s\n", key, seq)
	}

	for ; ; seq = seq.next() {
		s := m.slots.At(uintptr(seq.offset))
		if s.handle.IsNull() {
			s.handle = m.appendKey(key)
			s.value = value
			m.used++
			if debug {
				fmt.Printf("get-or-create(inserting): index=%d handle=%d used=%d\n",
					seq.offset, s.handle, m.used)
			}
			m.checkInvariants()
			return s
		}
		if m.readString(s.handle) == key {
			if debug {
				fmt.Printf("get-or-create(found): index=%d handle=%d\n", seq.offset, s.handle)
			}
			return s
		}
		if debug {
			fmt.Printf("get-or-create(skipping): index=%d handle=%d\n", seq.offset, s.handle)
		}
	}
}

// Get returns a pointer to the value stored for key, or ok=false if key is
// not present. Get never inserts and never grows the map.
func (m *Map[V]) Get(key string) (value *V, ok bool) {
	s := m.find(key)
	if s == nil {
		return nil, false
	}
	return &s.value, true
}

func (m *Map[V]) find(key string) *Slot[V] {
	if m.capacity == 0 {
		return nil
	}
	// Tables of 1 or 2 slots can be completely full, so the probe is bounded
	// by 2*capacity steps, which visit every slot.
	seq := makeProbeSeq(m.hash(key)>>m.shift, m.mask)
	for n := 2 * uint64(m.capacity); n > 0; n, seq = n-1, seq.next() {
		s := m.slots.At(uintptr(seq.offset))
		if s.handle.IsNull() {
			return nil
		}
		if m.readString(s.handle) == key {
			return s
		}
	}
	return nil
}

// Values calls yield sequentially for each value present in the map, in
// slot order. If yield returns false, iteration stops. Values does not
// mutate the map and may be called any number of times.
func (m *Map[V]) Values(yield func(value *V) bool) {
	slots, capacity := m.slots, uintptr(m.capacity)
	for i := uintptr(0); i < capacity; i++ {
		s := slots.At(i)
		if s.handle.IsNull() {
			continue
		}
		if !yield(&s.value) {
			return
		}
	}
}

// All calls yield sequentially for each key and value present in the map,
// in slot order. If yield returns false, iteration stops.
func (m *Map[V]) All(yield func(key string, value *V) bool) {
	slots, capacity := m.slots, uintptr(m.capacity)
	for i := uintptr(0); i < capacity; i++ {
		s := slots.At(i)
		if s.handle.IsNull() {
			continue
		}
		if !yield(m.readString(s.handle), &s.value) {
			return
		}
	}
}

// Len returns the number of distinct keys in the map.
func (m *Map[V]) Len() int {
	return m.used
}

// KeyBytes returns the size of the packed key buffer, including length
// prefixes.
func (m *Map[V]) KeyBytes() int {
	return len(m.buf)
}

// ReadString returns the key referenced by h. The returned string shares
// memory with the map's key buffer. ReadString panics if h was not produced
// by this map.
func (m *Map[V]) ReadString(h Handle) string {
	if h.IsNull() {
		panic("strmap: ReadString of null handle")
	}
	pos := int(h.Addr())
	if pos >= len(m.buf) {
		panic(fmt.Sprintf("strmap: handle %d beyond key buffer of %d bytes", pos, len(m.buf)))
	}
	n, w := binary.Uvarint(m.buf[pos:])
	if w <= 0 || uint64(len(m.buf)-pos-w) < n {
		panic(fmt.Sprintf("strmap: handle %d does not reference a key", pos))
	}
	start := pos + w
	return unsafeString(m.buf[start : start+int(n)])
}

// readString is ReadString without the contract checks. h must be a handle
// stored in one of m's slots.
func (m *Map[V]) readString(h Handle) string {
	pos := int(h)
	n, w := binary.Uvarint(m.buf[pos:])
	start := pos + w
	return unsafeString(m.buf[start : start+int(n)])
}

// appendKey copies key to the end of the key buffer and returns its handle.
func (m *Map[V]) appendKey(key string) Handle {
	h := Handle(len(m.buf))
	m.buf = binary.AppendUvarint(m.buf, uint64(len(key)))
	m.buf = append(m.buf, key...)
	return h
}

// slotCount returns the number of slots, occupied or not.
func (m *Map[V]) slotCount() int {
	return int(m.capacity)
}

// setSlots installs a fresh slot array of the given size with every slot
// empty.
func (m *Map[V]) setSlots(capacity uint32) {
	slots := m.allocator.AllocSlots(int(capacity))
	for i := range slots {
		slots[i] = Slot[V]{handle: nullHandle}
	}
	m.slots = makeUnsafeSlice(slots)
	m.capacity = capacity
	m.mask = capacity - 1
}

// grow doubles the slot array and relocates every occupied slot. Keys are
// not compared during relocation because they are already distinct, and the
// key buffer is left untouched.
func (m *Map[V]) grow() {
	oldSlots, oldCapacity := m.slots, m.capacity

	m.setSlots(2 * oldCapacity)
	// The table now consumes one more bit of the hash.
	m.shift--

	if debug {
		fmt.Printf("grow: capacity=%d->%d shift=%d used=%d\n",
			oldCapacity, m.capacity, m.shift, m.used)
	}

	for i := uintptr(0); i < uintptr(oldCapacity); i++ {
		s := oldSlots.At(i)
		if s.handle.IsNull() {
			continue
		}
		m.uncheckedPut(m.readString(s.handle), s)
	}

	m.allocator.FreeSlots(oldSlots.Slice(0, uintptr(oldCapacity)))

	m.checkInvariants()
}

// uncheckedPut copies an entry known not to be in the table into the first
// empty slot of key's probe sequence.
func (m *Map[V]) uncheckedPut(key string, entry *Slot[V]) {
	for seq := makeProbeSeq(m.hash(key)>>m.shift, m.mask); ; seq = seq.next() {
		s := m.slots.At(uintptr(seq.offset))
		if s.handle.IsNull() {
			*s = *entry
			if debug {
				fmt.Printf("grow(relocating): key=%q index=%d\n", key, seq.offset)
			}
			return
		}
	}
}

func (m *Map[V]) checkInvariants() {
	if invariants {
		if m.capacity == 0 || m.capacity&(m.capacity-1) != 0 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of 2\n%s",
				m.capacity, m.debugString()))
		}
		if m.mask != m.capacity-1 {
			panic(fmt.Sprintf("invariant failed: mask %d != capacity-1 (%d)\n%s",
				m.mask, m.capacity-1, m.debugString()))
		}
		if expected := uint32(31 - bits.TrailingZeros32(m.capacity)); m.shift != expected {
			panic(fmt.Sprintf("invariant failed: shift %d, expected %d\n%s",
				m.shift, expected, m.debugString()))
		}
		if uint64(len(m.buf)) >= maxKeyBytes {
			panic(fmt.Sprintf("invariant failed: key buffer of %d bytes exceeds 32-bit handles",
				len(m.buf)))
		}

		// For every occupied slot, verify that probing for its key finds this
		// slot (and not a duplicate of the key elsewhere).
		var used int
		for i := uintptr(0); i < uintptr(m.capacity); i++ {
			s := m.slots.At(i)
			if s.handle.IsNull() {
				continue
			}
			if int(s.handle) >= len(m.buf) {
				panic(fmt.Sprintf("invariant failed: slot(%d): handle %d beyond key buffer\n%s",
					i, s.handle, m.debugString()))
			}
			key := m.readString(s.handle)
			if found := m.find(key); found != s {
				panic(fmt.Sprintf("invariant failed: slot(%d): %q not found at its slot\n%s",
					i, key, m.debugString()))
			}
			used++
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if used > int(m.capacity) {
			panic(fmt.Sprintf("invariant failed: %d used slots exceed capacity %d", used, m.capacity))
		}
	}
}

func (m *Map[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  shift=%d  key-bytes=%d\n",
		m.capacity, m.used, m.shift, len(m.buf))
	for i := uintptr(0); i < uintptr(m.capacity); i++ {
		s := m.slots.At(i)
		if s.handle.IsNull() {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		key := m.readString(s.handle)
		fmt.Fprintf(&buf, "  %4d: %q [handle=%d h=%08x] %v\n",
			i, key, s.handle, m.hash(key)>>m.shift, s.value)
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence. The sequence is a
// triangular progression of the form
//
//	p(i) := hash + (i^2 + i)/2 (mod mask+1)   for i = 2, 3, 4, ...
//
// computed incrementally since p(i) - p(i-1) = i. Modulo a power of two the
// triangular numbers repeat with period 2*(mask+1), and the first mask+1 of
// them are a permutation of the slots, so any window of 2*(mask+1)
// consecutive probes visits every slot.
type probeSeq struct {
	mask   uint32
	offset uint32
	index  uint32
}

func makeProbeSeq(hash, mask uint32) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: (hash + 3) & mask,
		index:  2,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}

// unsafeSlice provides semi-ergonomic limited slice-like functionality
// without bounds checking for fixed sized slices.
type unsafeSlice[T any] struct {
	ptr unsafe.Pointer
}

func makeUnsafeSlice[T any](s []T) unsafeSlice[T] {
	return unsafeSlice[T]{ptr: unsafe.Pointer(unsafe.SliceData(s))}
}

// At returns a pointer to the element at index i.
func (s unsafeSlice[T]) At(i uintptr) *T {
	var t T
	return (*T)(unsafe.Add(s.ptr, unsafe.Sizeof(t)*i))
}

// Slice returns a Go slice akin to slice[start:end] for a Go builtin slice.
func (s unsafeSlice[T]) Slice(start, end uintptr) []T {
	return unsafe.Slice((*T)(s.ptr), end)[start:end]
}
