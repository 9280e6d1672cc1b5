package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const evidenceHashLen = 2 + sha256.Size*2

// CanonicalTimeLayout is how time values appear inside hashed payloads.
const CanonicalTimeLayout = "2006-01-02T15:04:05.000Z"

// Hash returns the SHA-256 digest of b as 0x-prefixed lowercase hex.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and hashes the result.
func HashValue(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(canonical), nil
}

// RunIDHash is the ledger's replay key for a run id.
func RunIDHash(runID string) string {
	return Hash([]byte(runID))
}

// ValidEvidenceHash reports whether s is 0x followed by 64 lowercase hex digits.
func ValidEvidenceHash(s string) bool {
	if len(s) != evidenceHashLen || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(CanonicalTimeLayout)
}

func sha256Bytes(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
