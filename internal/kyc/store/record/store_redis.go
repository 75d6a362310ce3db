package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kycvault/internal/kyc/models"
	"kycvault/pkg/platform/sentinel"
)

const (
	// Redis key prefix for KYC records
	recordKeyPrefix = "kyc:record:"

	maxCASAttempts = 10
)

// RedisStore keeps each record as a single JSON value so a read never sees a
// partially written record.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(subject string) string {
	return recordKeyPrefix + subject
}

func (s *RedisStore) Put(ctx context.Context, r *models.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(r.Subject), data, 0).Err(); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, subject string) (*models.Record, error) {
	raw, err := s.client.Get(ctx, recordKey(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Delete(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, recordKey(subject)).Err(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Execute applies validate and mutate under WATCH/MULTI. A concurrent write to
// the key aborts the transaction and the whole read-validate-write is retried.
func (s *RedisStore) Execute(ctx context.Context, subject string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	key := recordKey(subject)
	var result *models.Record

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if err := validate(r); err != nil {
			return err
		}
		mutate(r)

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update record %s: %w", subject, sentinel.ErrConflict)
}

func decodeRecord(raw []byte) (*models.Record, error) {
	var r models.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
