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
	"io"
	"math/rand"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkInsert(b *testing.B) {
	b.Run("impl=runtimeMap", benchDensities(func(b *testing.B, maxValue uint32, els []uint32) {
		b.ResetTimer()
		perfbench.Open(b)
		for i := 0; i < b.N; i++ {
			m := make(map[uint32]struct{})
			for _, el := range els {
				m[el] = struct{}{}
			}
		}
	}))
	b.Run("impl=bitSet", benchDensities(func(b *testing.B, maxValue uint32, els []uint32) {
		s := New(maxValue)
		b.ResetTimer()
		perfbench.Open(b)
		for i := 0; i < b.N; i++ {
			s.Clear()
			for _, el := range els {
				s.Insert(el)
			}
		}
	}))
}

func BenchmarkContains(b *testing.B) {
	b.Run("impl=runtimeMap", benchDensities(func(b *testing.B, maxValue uint32, els []uint32) {
		m := make(map[uint32]struct{})
		for _, el := range els {
			m[el] = struct{}{}
		}
		b.ResetTimer()
		perfbench.Open(b)
		var n int
		for i := 0; i < b.N; i++ {
			if _, ok := m[uint32(i)%maxValue]; ok {
				n++
			}
		}
		b.StopTimer()
		fmt.Fprint(io.Discard, n)
	}))
	b.Run("impl=bitSet", benchDensities(func(b *testing.B, maxValue uint32, els []uint32) {
		s := New(maxValue)
		for _, el := range els {
			s.Insert(el)
		}
		b.ResetTimer()
		perfbench.Open(b)
		var n int
		for i := 0; i < b.N; i++ {
			if s.Contains(uint32(i) % maxValue) {
				n++
			}
		}
		b.StopTimer()
		fmt.Fprint(io.Discard, n)
	}))
}

func BenchmarkIter(b *testing.B) {
	b.Run("impl=bitSet", benchDensities(func(b *testing.B, maxValue uint32, els []uint32) {
		s := New(maxValue)
		for _, el := range els {
			s.Insert(el)
		}
		b.ResetTimer()
		perfbench.Open(b)
		var tmp uint32
		for i := 0; i < b.N; i++ {
			for el := range s.All {
				tmp += el
			}
		}
		b.StopTimer()
		fmt.Fprint(io.Discard, tmp)
	}))
}

// benchDensities runs f over sets of 1<<16 possible values filled to
// various densities.
func benchDensities(f func(b *testing.B, maxValue uint32, els []uint32)) func(*testing.B) {
	const maxValue = 1 << 16
	var cases = []int{
		1, 10, 100, 1000,
	}

	return func(b *testing.B) {
		for _, perMille := range cases {
			rng := rand.New(rand.NewSource(int64(perMille)))
			els := make([]uint32, maxValue*perMille/1000)
			for i := range els {
				els[i] = uint32(rng.Intn(maxValue))
			}
			b.Run("permille="+strconv.Itoa(perMille), func(b *testing.B) { f(b, maxValue, els) })
		}
	}
}
