// Package prng implements the deterministic reseed-per-step shuffle shared
// by BlockFlow's group-iteration order and a block's script-execution
// order: both need every honest node to derive the identical permutation
// from the identical seed material.
package prng

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Seed hashes the concatenation of parts into a 32-byte seed.
func Seed(parts ...[]byte) [32]byte {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return blake3.Sum256(buf)
}

// Permutation returns a permutation of [0,n) derived from seed via
// Fisher-Yates, re-hashing the running seed before each swap so the whole
// sequence is reproducible from seed alone.
func Permutation(seed [32]byte, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s := seed
	for i := n - 1; i > 0; i-- {
		s = blake3.Sum256(s[:])
		j := int(binary.BigEndian.Uint64(s[:8]) % uint64(i+1))
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
