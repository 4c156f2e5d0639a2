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

// Package bitset implements a fixed-capacity set of small non-negative
// integers. Membership for the range [64*i, 64*(i+1)) is held in the i'th
// Word, so a set able to hold [0, n) costs n/8 bytes regardless of how many
// elements it contains, and iteration skips empty words cheaply.
package bitset

import "fmt"

// BitSet is a set of integers in [0, MaxValue()). Its capacity is fixed at
// construction.
//
// A BitSet is NOT goroutine-safe.
type BitSet struct {
	words []Word
	// len is the number of elements, maintained incrementally. It always
	// equals the population count of words.
	len      int
	maxValue uint32
}

func numWords(maxValue uint32) int {
	return int((uint64(maxValue) + 63) / 64)
}

// New returns an empty BitSet that may contain elements in [0, maxValue).
func New(maxValue uint32) *BitSet {
	return &BitSet{
		words:    make([]Word, numWords(maxValue)),
		maxValue: maxValue,
	}
}

// Clear removes every element. The capacity is retained.
func (s *BitSet) Clear() {
	clear(s.words)
	s.len = 0
}

// Len returns the number of elements in s.
func (s *BitSet) Len() int {
	return s.len
}

// MaxValue returns the exclusive upper bound s was created with.
func (s *BitSet) MaxValue() uint32 {
	return s.maxValue
}

// Insert adds el to s. Inserting an element that is already present is a
// no-op. Insert panics if el lies beyond the last word of s; values in
// [MaxValue(), 64*ceil(MaxValue()/64)) are not checked.
func (s *BitSet) Insert(el uint32) {
	if s.words[el/64].InsertMut(el % 64) {
		s.len++
	}
}

// Contains returns true iff el is in s.
func (s *BitSet) Contains(el uint32) bool {
	return s.words[el/64].Contains(el % 64)
}

// Word returns the Word holding the elements in [64*bucket, 64*(bucket+1)),
// relative to 64*bucket.
func (s *BitSet) Word(bucket uint32) Word {
	return s.words[bucket]
}

// NumBuckets returns the number of Words backing s.
func (s *BitSet) NumBuckets() uint32 {
	return uint32(len(s.words))
}

// FirstNonEmptyBucket returns the index of the first non-empty Word at or
// after bucket, or ok=false if every remaining Word is empty.
func (s *BitSet) FirstNonEmptyBucket(bucket uint32) (_ uint32, ok bool) {
	for i, w := range s.words[bucket:] {
		if !w.IsEmpty() {
			return bucket + uint32(i), true
		}
	}
	return 0, false
}

// All calls yield for each element of s in ascending order. If yield
// returns false, iteration stops. All does not modify s.
func (s *BitSet) All(yield func(el uint32) bool) {
	for bucket, ok := s.FirstNonEmptyBucket(0); ok; bucket, ok = s.nextBucket(bucket) {
		offset := bucket * 64
		w := s.words[bucket]
		for {
			el, ok := w.PopLowest()
			if !ok {
				break
			}
			if !yield(offset + el) {
				return
			}
		}
	}
}

func (s *BitSet) nextBucket(bucket uint32) (uint32, bool) {
	if bucket+1 >= uint32(len(s.words)) {
		return 0, false
	}
	return s.FirstNonEmptyBucket(bucket + 1)
}

// UnionWith adds every element of other to s. Both sets must have the same
// number of buckets.
func (s *BitSet) UnionWith(other *BitSet) {
	s.checkCompatible(other)
	s.len = 0
	for i := range s.words {
		s.words[i] = s.words[i].Union(other.words[i])
		s.len += s.words[i].Len()
	}
}

// IntersectWith removes every element of s that is not in other. Both sets
// must have the same number of buckets.
func (s *BitSet) IntersectWith(other *BitSet) {
	s.checkCompatible(other)
	s.len = 0
	for i := range s.words {
		s.words[i] = s.words[i].Intersect(other.words[i])
		s.len += s.words[i].Len()
	}
}

func (s *BitSet) checkCompatible(other *BitSet) {
	if len(s.words) != len(other.words) {
		panic(fmt.Sprintf("bitset: combining sets of %d and %d buckets",
			len(s.words), len(other.words)))
	}
}

// String formats s as its list of elements.
func (s *BitSet) String() string {
	els := make([]uint32, 0, s.len)
	for el := range s.All {
		els = append(els, el)
	}
	return fmt.Sprint(els)
}
