package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength is the number of hex characters kept from the digest (64 bits).
//
// At 10^5 distinct keys the chance of any collision is about 3e-10. A
// collision makes two prompts share a cached verdict; that is accepted for a
// fail-open heuristic cache.
const KeyLength = 16

// Key returns the truncated SHA-256 hex digest of s, used as the suffix of
// word and prompt cache keys. Callers normalize s first.
func Key(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:KeyLength]
}
