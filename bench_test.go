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

package strmap

import (
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/swiss"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/twmb/murmur3"
)

// BenchmarkCount counts the tokens of a corpus into a fresh map per
// iteration, which includes the cost of growing the map and of storing the
// keys.
func BenchmarkCount(b *testing.B) {
	b.Run("impl=runtimeMap", benchVocabs(benchmarkRuntimeMapCount))
	b.Run("impl=swissMap", benchVocabs(benchmarkSwissMapCount))
	b.Run("impl=strMap", benchVocabs(benchmarkStrMapCount))
}

// BenchmarkCountHit counts the tokens of a corpus into a map that already
// contains every token.
func BenchmarkCountHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchVocabs(benchmarkRuntimeMapCountHit))
	b.Run("impl=swissMap", benchVocabs(benchmarkSwissMapCountHit))
	b.Run("impl=strMap", benchVocabs(benchmarkStrMapCountHit))
}

func BenchmarkHash(b *testing.B) {
	b.Run("impl=yoshimitsu", benchKeyLens(func(k []byte) uint64 {
		return uint64(hashBytes(k))
	}))
	fnv32a := fnv.New32a()
	b.Run("impl=fnv1a", benchKeyLens(func(k []byte) uint64 {
		h := fnv32a
		h.Reset()
		_, _ = h.Write(k)
		return uint64(h.Sum32())
	}))
	b.Run("impl=murmur3", benchKeyLens(func(k []byte) uint64 {
		return uint64(murmur3.Sum32(k))
	}))
	b.Run("impl=xxhash32", benchKeyLens(func(k []byte) uint64 {
		return uint64(xxHash32.Checksum(k, 0))
	}))
	b.Run("impl=xxhash64", benchKeyLens(func(k []byte) uint64 {
		return xxhash.Sum64(k)
	}))
}

func benchVocabs(f func(b *testing.B, tokens []string)) func(*testing.B) {
	var cases = []int{
		64,
		1024,
		16384,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, vocab := range cases {
			tokens := strings.Fields(genCorpus(1, 100000, vocab))
			b.Run("vocab="+strconv.Itoa(vocab), func(b *testing.B) { f(b, tokens) })
		}
	}
}

func benchKeyLens(hash func(k []byte) uint64) func(*testing.B) {
	var cases = []int{
		4, 8, 12, 16, 32, 64, 256,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			key := []byte(strings.Repeat("k", n))
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) {
				b.SetBytes(int64(n))
				b.ResetTimer()
				perfbench.Open(b)
				var tmp uint64
				for i := 0; i < b.N; i++ {
					key[i%n]++
					tmp += hash(key)
				}
				b.StopTimer()
				fmt.Fprint(io.Discard, tmp)
			})
		}
	}
}

func benchmarkRuntimeMapCount(b *testing.B, tokens []string) {
	b.ReportAllocs()
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[string]uint32, 512)
		for _, tok := range tokens {
			m[tok]++
		}
	}
}

func benchmarkSwissMapCount(b *testing.B, tokens []string) {
	b.ReportAllocs()
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := swiss.New[string, uint32](512)
		for _, tok := range tokens {
			v, _ := m.Get(tok)
			m.Put(tok, v+1)
		}
	}
}

func benchmarkStrMapCount(b *testing.B, tokens []string) {
	b.ReportAllocs()
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := New[uint32]()
		for _, tok := range tokens {
			*m.GetOrCreate(tok, 0) += 1
		}
	}
}

func benchmarkRuntimeMapCountHit(b *testing.B, tokens []string) {
	m := make(map[string]uint32)
	for _, tok := range tokens {
		m[strings.Clone(tok)] = 0
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m[tokens[i%len(tokens)]]++
	}
}

func benchmarkSwissMapCountHit(b *testing.B, tokens []string) {
	m := swiss.New[string, uint32](0)
	for _, tok := range tokens {
		m.Put(strings.Clone(tok), 0)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		tok := tokens[i%len(tokens)]
		v, _ := m.Get(tok)
		m.Put(tok, v+1)
	}
}

func benchmarkStrMapCountHit(b *testing.B, tokens []string) {
	m := New[uint32]()
	for _, tok := range tokens {
		m.GetOrCreate(tok, 0)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		*m.GetOrCreate(tokens[i%len(tokens)], 0) += 1
	}
}
