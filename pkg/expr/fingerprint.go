package expr

import (
	"fmt"

	"github.com/segmentio/fasthash/fnv1a"
)

// Fingerprint returns a 64-bit FNV-1a hash of the canonical form of node.
// Sources that differ only in whitespace, comments or redundant parentheses
// share a fingerprint.
func Fingerprint(node Node) uint64 {
	return fnv1a.HashString64(Format(node))
}

// FingerprintHex is Fingerprint as a fixed-width hex string.
func FingerprintHex(node Node) string {
	return fmt.Sprintf("%016x", Fingerprint(node))
}
