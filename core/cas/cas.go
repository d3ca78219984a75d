// Package cas computes content addresses for conversion inputs. A digest is
// the lowercase BLAKE3-256 hex of the input bytes; it keys the in-memory
// cache, the conversion store, and job deduplication.
package cas

import (
	"encoding/hex"
	"io"
	"regexp"

	"github.com/zeebo/blake3"
)

// digestPattern matches a lowercase BLAKE3-256 hex digest (64 characters).
var digestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Sum returns the digest of data.
func Sum(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumReader digests r to EOF.
func SumReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s is a well-formed digest.
func Valid(s string) bool {
	return digestPattern.MatchString(s)
}

// Verify reports whether data matches digest.
func Verify(data []byte, digest string) bool {
	return Valid(digest) && Sum(data) == digest
}
