package models

import (
	"strings"
	"unicode"

	dErrors "kycvault/pkg/domain-errors"
)

// MaxIdentifierLength bounds subject and requester identifiers.
const MaxIdentifierLength = 128

// reservedSubjects are path segments the HTTP routes use as literals, so a
// subject by that name could never be addressed.
var reservedSubjects = []string{"logs"}

// ParseSubject validates the wallet-style identifier of a document owner.
// Identifiers are opaque: no checksum or prefix is enforced.
func ParseSubject(s string) (string, error) {
	s, err := parseIdentifier("subject", s)
	if err != nil {
		return "", err
	}
	for _, reserved := range reservedSubjects {
		if strings.EqualFold(s, reserved) {
			return "", dErrors.New(dErrors.CodeValidation, "subject "+s+" is reserved")
		}
	}
	return s, nil
}

// ParseRequester validates the identifier of an institution requesting access.
func ParseRequester(s string) (string, error) {
	return parseIdentifier("bankId", s)
}

func parseIdentifier(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if len(s) > MaxIdentifierLength {
		return "", dErrors.New(dErrors.CodeValidation, field+" is too long")
	}
	for _, r := range s {
		// Identifiers appear as URL path segments and cache keys.
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return "", dErrors.New(dErrors.CodeValidation, field+" contains invalid characters")
		}
	}
	return s, nil
}
