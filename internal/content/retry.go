package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kycvault/internal/content/metrics"
	"kycvault/pkg/platform/circuit"
)

const (
	defaultAttemptTimeout  = 15 * time.Second
	defaultMaxAttempts     = 3
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// Retrying bounds every call to the wrapped store with a per-attempt timeout
// and retries retryable provider errors with exponential backoff. While the
// circuit is open each call gets a single attempt.
type Retrying struct {
	next            Store
	breaker         *circuit.Breaker
	attemptTimeout  time.Duration
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

type RetryOption func(*Retrying)

func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *Retrying) {
		if d > 0 {
			r.attemptTimeout = d
		}
	}
}

func WithMaxAttempts(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(initial, max time.Duration) RetryOption {
	return func(r *Retrying) {
		if initial > 0 {
			r.initialInterval = initial
		}
		if max > 0 {
			r.maxInterval = max
		}
	}
}

func WithBreaker(b *circuit.Breaker) RetryOption {
	return func(r *Retrying) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrying) {
		r.logger = logger
	}
}

func WithRetryMetrics(m *metrics.Metrics) RetryOption {
	return func(r *Retrying) {
		r.metrics = m
	}
}

func NewRetrying(next Store, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:            next,
		breaker:         circuit.New("content"),
		attemptTimeout:  defaultAttemptTimeout,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrying) Store(ctx context.Context, data []byte, meta Metadata) (ID, error) {
	var id ID
	err := r.do(ctx, "store", func(ctx context.Context) error {
		var err error
		id, err = r.next.Store(ctx, data, meta)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Retrying) Retrieve(ctx context.Context, id ID) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "retrieve", func(ctx context.Context) error {
		var err error
		data, err = r.next.Retrieve(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Retrying) do(ctx context.Context, op string, call func(context.Context) error) error {
	start := time.Now()
	if r.metrics != nil {
		defer r.metrics.ObserveCall(op, start)
	}

	attempts := r.maxAttempts
	if r.breaker.IsOpen() {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 && r.metrics != nil {
			r.metrics.IncrementRetry(op)
		}
		err := r.attempt(ctx, call)
		if err == nil {
			r.recordSuccess()
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		r.recordFailure()
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))

	if err != nil {
		if r.metrics != nil {
			r.metrics.IncrementError(op, string(CategoryOf(err)))
		}
		r.logger.WarnContext(ctx, "content store call failed",
			"op", op,
			"attempts", attempt,
			"category", CategoryOf(err),
			"error", err,
		)
		return err
	}
	return nil
}

// attempt runs one call under its own deadline. A deadline hit by the attempt
// (not by the caller) becomes a retryable timeout.
func (r *Retrying) attempt(ctx context.Context, call func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	err := call(attemptCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !IsRetryable(err) {
		return NewProviderError(ErrorTimeout, "content", "attempt timed out", err)
	}
	return err
}

func (r *Retrying) recordSuccess() {
	change := r.breaker.RecordSuccess()
	if change.Closed {
		r.logger.Info("content store circuit closed", "breaker", r.breaker.Name())
		if r.metrics != nil {
			r.metrics.SetCircuitOpen(false)
		}
	}
}

func (r *Retrying) recordFailure() {
	change := r.breaker.RecordFailure()
	if change.Opened {
		r.logger.Warn("content store circuit opened", "breaker", r.breaker.Name())
		if r.metrics != nil {
			r.metrics.SetCircuitOpen(true)
		}
	}
}
