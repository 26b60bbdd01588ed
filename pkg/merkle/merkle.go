// Package merkle computes the merkle root over snapshot leaf hashes.
// Inclusion proofs are not generated here; the root alone is persisted so
// proofs can be reconstructed later from the same leaf set.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// Root reduces the given leaves pairwise with SHA-256 and returns the hex
// root. An odd leaf at any level is paired with itself. A single leaf is its
// own root. An empty leaf set yields "".
func Root(leaves [][]byte) string {
	if len(leaves) == 0 {
		return ""
	}

	level := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		sum := sha256.Sum256(leaf)
		level[i] = sum[:]
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			sum := sha256.Sum256(append(append([]byte{}, level[i]...), level[i+1]...))
			next = append(next, sum[:])
		}
		level = next
	}

	return hex.EncodeToString(level[0])
}
