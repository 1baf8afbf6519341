package util

import (
	"bytes"
	"crypto/sha256"
)

// HashSnapshot computes a stable SHA256 hash over the serialized parts of a
// snapshot. Parts are length-prefixed so that ("ab","c") and ("a","bc")
// never collide. An empty snapshot hashes to an empty slice.
func HashSnapshot(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total == 0 {
		return []byte{}
	}

	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

// SameHash reports whether two snapshot hashes are equal and non-empty.
func SameHash(a, b []byte) bool {
	return len(a) > 0 && bytes.Equal(a, b)
}
