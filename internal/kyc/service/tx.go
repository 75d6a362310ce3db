package service

import (
	"context"
	"sync"
	"time"

	dErrors "kycvault/pkg/domain-errors"
)

// SubjectTx serialises every mutation that touches one subject's record,
// permissions and access log.
type SubjectTx interface {
	RunInTx(ctx context.Context, subject string, fn func(ctx context.Context) error) error
}

// Operations are distributed across shards by a hash of the subject so
// unrelated subjects rarely contend.
const numSubjectShards = 128

// defaultSubjectTxTimeout is the maximum duration for a subject transaction.
const defaultSubjectTxTimeout = 5 * time.Second

type shardedSubjectTx struct {
	shards  [numSubjectShards]sync.Mutex
	timeout time.Duration
}

// NewShardedSubjectTx returns an in-process SubjectTx. A zero timeout uses
// the default.
func NewShardedSubjectTx(timeout time.Duration) SubjectTx {
	return &shardedSubjectTx{timeout: timeout}
}

func (t *shardedSubjectTx) RunInTx(ctx context.Context, subject string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultSubjectTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashSubject(subject) % numSubjectShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// hashSubject is FNV-1a.
func hashSubject(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
