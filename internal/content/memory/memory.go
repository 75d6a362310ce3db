// Package memory is an in-process content store for development and tests.
package memory

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/mr-tron/base58"

	"kycvault/internal/content"
	"kycvault/pkg/platform/sentinel"
)

// multihash header for sha2-256 with a 32-byte digest.
var sha256Multihash = []byte{0x12, 0x20}

// Store keeps content in a map keyed by a CIDv0-style identifier, so ids have
// the same shape as those issued by an IPFS pinning service.
type Store struct {
	mu    sync.RWMutex
	items map[content.ID][]byte
}

func New() *Store {
	return &Store{items: make(map[content.ID][]byte)}
}

// CID derives the CIDv0 ("Qm...") identifier for data.
func CID(data []byte) content.ID {
	sum := sha256.Sum256(data)
	mh := make([]byte, 0, len(sha256Multihash)+len(sum))
	mh = append(mh, sha256Multihash...)
	mh = append(mh, sum[:]...)
	return content.ID(base58.Encode(mh))
}

func (s *Store) Store(ctx context.Context, data []byte, _ content.Metadata) (content.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := CID(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = append([]byte(nil), data...)
	return id, nil
}

func (s *Store) Retrieve(ctx context.Context, id content.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[id]
	if !ok {
		return nil, content.NewProviderError(content.ErrorNotFound, "memory", "content not found", sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Len reports how many distinct items are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
