// Package content stores document bytes in a content-addressed store and
// reads them back by identifier.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidID is returned by ParseID for strings that are not CIDs.
var ErrInvalidID = errors.New("invalid content id")

// sha2-256 multihash header: function code then digest length.
const (
	multihashSHA256 = 0x12
	sha256Length    = 0x20
)

// ID is the identifier a content store assigns to stored bytes. For IPFS
// backed stores it is a CID.
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID accepts a CIDv0: the base58 encoding of a sha2-256 multihash.
// Anything else, including path or query fragments, is rejected.
func ParseID(s string) (ID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(raw) != 2+sha256Length || raw[0] != multihashSHA256 || raw[1] != sha256Length {
		return "", fmt.Errorf("%w: not a sha2-256 multihash", ErrInvalidID)
	}
	return ID(s), nil
}

// Metadata travels with the bytes to stores that keep it.
type Metadata struct {
	Name         string
	MimeType     string
	Subject      string
	DocumentType string
}

// Store is the content store contract. Retrieve returns exactly the bytes that
// were stored under id.
type Store interface {
	Store(ctx context.Context, data []byte, meta Metadata) (ID, error)
	Retrieve(ctx context.Context, id ID) ([]byte, error)
}
