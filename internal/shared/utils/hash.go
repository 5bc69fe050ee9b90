package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256  HashAlgorithm = "sha256"
	BLAKE2b HashAlgorithm = "blake2b"
)

// Hasher provides content hashing for cache keys and attempt fingerprints
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(BLAKE2b)
}

// Hash computes a hex digest of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// ShortHash returns the first 8 characters of a digest for display
func ShortHash(digest string) string {
	if len(digest) < 8 {
		return digest
	}
	return digest[:8]
}
