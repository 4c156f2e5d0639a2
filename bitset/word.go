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

package bitset

import (
	"fmt"
	"math/bits"
)

// Word is a set of integers in [0, 64) stored as the bits of a uint64. A Word
// is a value: every method except InsertMut and PopLowest returns a new Word
// rather than modifying the receiver.
type Word uint64

// EmptyWord is the Word containing no elements.
const EmptyWord Word = 0

// Singleton returns the Word containing only el. el must be < 64.
func Singleton(el uint32) Word {
	return Word(1) << el
}

// RangeLower returns the Word containing every value in [0, upper). upper is
// taken modulo 64, so RangeLower(64) is empty.
func RangeLower(upper uint32) Word {
	return Word(1)<<(upper%64) - 1
}

// RangeGreaterOrEqual returns the Word containing every value in
// [from, 64). from is taken modulo 64.
func RangeGreaterOrEqual(from uint32) Word {
	return RangeLower(from).Complement()
}

// Complement returns the complement of w over the full 64-bit domain.
func (w Word) Complement() Word {
	return ^w
}

// Union returns the union of w and other.
func (w Word) Union(other Word) Word {
	return w | other
}

// Intersect returns the intersection of w and other.
func (w Word) Intersect(other Word) Word {
	return w & other
}

// Insert returns w with el added. el must be < 64.
func (w Word) Insert(el uint32) Word {
	return w.Union(Singleton(el))
}

// InsertMut adds el to w in place and reports whether el was newly added.
func (w *Word) InsertMut(el uint32) bool {
	old := *w
	*w = old.Insert(el)
	return old != *w
}

// Contains returns true iff el is in w.
func (w Word) Contains(el uint32) bool {
	return !w.Intersect(Singleton(el)).IsEmpty()
}

// Len returns the number of elements in w.
func (w Word) Len() int {
	return bits.OnesCount64(uint64(w))
}

// IsEmpty returns true iff w has no elements.
func (w Word) IsEmpty() bool {
	return w == EmptyWord
}

// PopLowest removes the smallest element of w and returns it, or returns
// ok=false if w is empty.
func (w *Word) PopLowest() (el uint32, ok bool) {
	if w.IsEmpty() {
		return 0, false
	}
	el = uint32(bits.TrailingZeros64(uint64(*w)))
	*w &= *w - 1
	return el, true
}

// All calls yield for each element of w in ascending order. If yield returns
// false, iteration stops.
func (w Word) All(yield func(el uint32) bool) {
	for {
		el, ok := w.PopLowest()
		if !ok || !yield(el) {
			return
		}
	}
}

// String formats w as its list of elements, e.g. "[0 5 63]".
func (w Word) String() string {
	els := make([]uint32, 0, w.Len())
	for el := range w.All {
		els = append(els, el)
	}
	return fmt.Sprint(els)
}
