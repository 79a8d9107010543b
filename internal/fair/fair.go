// Package fair implements the provably-fair draw protocol: commit-reveal
// server seeds and deterministic result derivation.
//
// The protocol gives third-party verifiability:
//   - The server commits to a secret seed by publishing SHA-256(seed).
//   - Each draw derives a 32-bit integer from (serverSeed, clientSeed, nonce)
//     via HMAC-SHA512 keyed by the server seed.
//   - Once the seed is revealed, any client can recompute both the commitment
//     and every draw result bit-exactly.
//
// Derivation is HMAC-SHA512(key=serverSeed, msg=serverSeed+"-"+clientSeed+"-"+nonce),
// taking the first 4 bytes of the MAC as a big-endian uint32. Changing any
// part of this breaks verifiability for already-published commitments.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when a draw is requested without an active
	// seed commitment. The caller must re-commit before retrying.
	ErrNoSession = errors.New("fair: no active seed commitment")

	// ErrEmptyCatalog is returned when the weighted picker is given no items.
	ErrEmptyCatalog = errors.New("fair: empty item list")

	// ErrZeroWeight is returned when the item weights sum to zero.
	ErrZeroWeight = errors.New("fair: item weights sum to zero")
)

// seedBytes is the server seed entropy. 256 bits, hex-encoded on the wire.
const seedBytes = 32

// GenerateServerSeed returns a cryptographically random 256-bit seed as hex.
// Seeds are never reused across commitment sessions.
func GenerateServerSeed() (string, error) {
	b := make([]byte, seedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("fair: seed generation: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashSeed returns the SHA-256 commitment of a server seed as hex.
// Pure and deterministic: revealing the seed later lets anyone verify
// HashSeed(seed) against the previously published commitment.
func HashSeed(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// DeriveResult computes the deterministic draw value for one nonce.
// Reproducible bit-exactly by any verifier holding the revealed seed.
func DeriveResult(serverSeed, clientSeed string, nonce uint64) uint32 {
	mac := hmac.New(sha512.New, []byte(serverSeed))
	fmt.Fprintf(mac, "%s-%s-%d", serverSeed, clientSeed, nonce)
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// Pick maps a draw value onto a weighted table and returns the selected
// index. target = n mod Σweights; the first item whose cumulative weight
// exceeds target wins, so ties break by list order with no extra randomness.
func Pick(weights []int64, n uint32) (int, error) {
	if len(weights) == 0 {
		return 0, ErrEmptyCatalog
	}
	var total int64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0, ErrZeroWeight
	}

	target := int64(n) % total
	var cum int64
	for i, w := range weights {
		cum += w
		if target < cum {
			return i, nil
		}
	}
	// Unreachable: target < total and weights are non-negative.
	return len(weights) - 1, nil
}
