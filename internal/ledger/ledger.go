// Package ledger submits KYC decisions to a transaction ledger and returns
// receipts that the access log references.
package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"kycvault/internal/kyc/fingerprint"
)

// Tx describes one state-changing decision.
type Tx struct {
	Kind      string
	Subject   string
	Requester string
	// Reference ties the decision to the stored document, usually its content hash.
	Reference string
}

// Receipt acknowledges a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	SubmittedAt time.Time
}

type Submitter interface {
	Submit(ctx context.Context, tx Tx) (Receipt, error)
}

// Simulated issues receipts without a chain: each transaction gets a random
// Keccak-shaped hash and the next block number.
type Simulated struct {
	mu    sync.Mutex
	block uint64
	now   func() time.Time
}

func NewSimulated(startBlock uint64) *Simulated {
	return &Simulated{block: startBlock, now: time.Now}
}

func (s *Simulated) Submit(ctx context.Context, tx Tx) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return Receipt{}, fmt.Errorf("generate tx nonce: %w", err)
	}
	payload := append(nonce, []byte(tx.Kind+"|"+tx.Subject+"|"+tx.Requester+"|"+tx.Reference)...)

	s.mu.Lock()
	s.block++
	block := s.block
	s.mu.Unlock()

	return Receipt{
		TxHash:      fingerprint.Fingerprint(payload).String(),
		BlockNumber: block,
		SubmittedAt: s.now().UTC(),
	}, nil
}

// Head returns the last issued block number.
func (s *Simulated) Head() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}
