// Package fingerprint computes content fingerprints for uploaded documents.
//
// A fingerprint is the Keccak-256 digest of the raw bytes rendered as "0x"
// followed by 64 lowercase hex characters, the same shape wallets and
// contracts use for 32-byte hashes.
package fingerprint

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "kycvault/pkg/domain-errors"
)

// Prefix marks a hex-encoded fingerprint.
const Prefix = "0x"

// Size is the digest length in bytes.
const Size = 32

// ContentHash is a prefixed, lowercase hex Keccak-256 digest.
type ContentHash string

// Fingerprint hashes data.
func Fingerprint(data []byte) ContentHash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return encode(h.Sum(nil))
}

func encode(sum []byte) ContentHash {
	return ContentHash(Prefix + hex.EncodeToString(sum))
}

// ParseContentHash validates an externally supplied fingerprint and normalises its case.
func ParseContentHash(s string) (ContentHash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	digest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "hash must start with 0x")
	}
	if len(digest) != Size*2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "hash must be 32 bytes")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "hash must be hex encoded")
	}
	return ContentHash(s), nil
}

// Equal compares two fingerprints in constant time.
func (h ContentHash) Equal(other ContentHash) bool {
	return subtle.ConstantTimeCompare([]byte(h), []byte(other)) == 1
}

func (h ContentHash) String() string {
	return string(h)
}
