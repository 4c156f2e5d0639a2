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
	"math/bits"
	"unsafe"
)

const (
	fnvOffset32 = 2166136261
	// yoshimitsuPrime replaces the FNV-1a prime 16777619. It has more set bits
	// which mixes better when whole 32-bit words are folded in per step.
	yoshimitsuPrime = 709607
)

// hashString is the FNV-1a "Yoshimitsu" variant: two FNV-1a style lanes that
// consume 16 bytes per iteration (two rotated/xored 32-bit words per lane),
// followed by a tail of 8/4/2/1 byte steps, a lane merge and a final
// xor-shift. It is not cryptographic and is not seeded, so the same key always
// hashes to the same value.
func hashString(s string) uint32 {
	h1 := uint32(fnvOffset32)
	h2 := uint32(fnvOffset32)

	n, p := len(s), 0
	for ; n >= 16; n, p = n-16, p+16 {
		h1 = (h1 ^ (bits.RotateLeft32(load32(s, p), 5) ^ load32(s, p+4))) * yoshimitsuPrime
		h2 = (h2 ^ (bits.RotateLeft32(load32(s, p+8), 5) ^ load32(s, p+12))) * yoshimitsuPrime
	}
	if n&8 != 0 {
		h1 = (h1 ^ load32(s, p)) * yoshimitsuPrime
		h2 = (h2 ^ load32(s, p+4)) * yoshimitsuPrime
		p += 8
	}
	if n&4 != 0 {
		h1 = (h1 ^ load16(s, p)) * yoshimitsuPrime
		h2 = (h2 ^ load16(s, p+2)) * yoshimitsuPrime
		p += 4
	}
	if n&2 != 0 {
		h1 = (h1 ^ load16(s, p)) * yoshimitsuPrime
		p += 2
	}
	if n&1 != 0 {
		h1 = (h1 ^ uint32(s[p])) * yoshimitsuPrime
	}
	h1 = (h1 ^ bits.RotateLeft32(h2, 5)) * yoshimitsuPrime
	return h1 ^ (h1 >> 16)
}

// hashBytes hashes b without copying it.
func hashBytes(b []byte) uint32 {
	return hashString(unsafeString(b))
}

func load32(s string, i int) uint32 {
	_ = s[i+3]
	return uint32(s[i]) | uint32(s[i+1])<<8 | uint32(s[i+2])<<16 | uint32(s[i+3])<<24
}

func load16(s string, i int) uint32 {
	_ = s[i+1]
	return uint32(s[i]) | uint32(s[i+1])<<8
}

// unsafeString returns a string sharing b's memory. The caller must not
// mutate b while the string is in use.
func unsafeString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}
