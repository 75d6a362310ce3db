// Package service implements the KYC workflow: document upload and hash
// verification, access permissions between subjects and requesters, KYC
// decisions and the access log that records all of them.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycvault/internal/content"
	kycmetrics "kycvault/internal/kyc/metrics"
	"kycvault/internal/kyc/models"
	"kycvault/internal/ledger"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

const tracerName = "kycvault/internal/kyc/service"

const defaultMaxUploadBytes int64 = 10 << 20

type RecordStore interface {
	Put(ctx context.Context, r *models.Record) error
	Get(ctx context.Context, subject string) (*models.Record, error)
	Delete(ctx context.Context, subject string) error
	Execute(ctx context.Context, subject string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
}

type PermissionStore interface {
	Request(ctx context.Context, p *models.Permission) error
	Get(ctx context.Context, subject, requester string) (*models.Permission, error)
	Delete(ctx context.Context, subject, requester string) error
	Execute(ctx context.Context, subject, requester string, validate func(*models.Permission) error, mutate func(*models.Permission)) (*models.Permission, error)
	ListBySubject(ctx context.Context, subject string) ([]*models.Permission, error)
}

type EventStore interface {
	Append(ctx context.Context, e models.Event) error
	ListBySubject(ctx context.Context, subject string, kinds ...models.EventKind) ([]models.Event, error)
}

// EventPublisher forwards committed events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e models.Event) error
}

// ApprovalPolicy decides who may approve or reject a KYC record.
type ApprovalPolicy int

const (
	// ApprovalOpen lets any requester decide.
	ApprovalOpen ApprovalPolicy = iota
	// RequireApprovedAccess limits decisions to requesters holding approved access.
	RequireApprovedAccess
)

// Service orchestrates the KYC workflow. Every mutation for a subject runs
// inside that subject's transaction; calls to the content store happen
// outside it.
type Service struct {
	records        RecordStore
	permissions    PermissionStore
	events         EventStore
	contents       content.Store
	tx             SubjectTx
	ledger         ledger.Submitter
	publisher      EventPublisher
	approvalPolicy ApprovalPolicy
	maxUploadBytes int64
	logger         *slog.Logger
	metrics        *kycmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *kycmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLedger submits every decision to l and references the receipt in the
// access log.
func WithLedger(l ledger.Submitter) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithApprovalPolicy(p ApprovalPolicy) Option {
	return func(s *Service) {
		s.approvalPolicy = p
	}
}

func WithTx(tx SubjectTx) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs a Service.
func New(records RecordStore, permissions PermissionStore, events EventStore, contents content.Store, opts ...Option) *Service {
	s := &Service{
		records:        records,
		permissions:    permissions,
		events:         events,
		contents:       contents,
		tx:             NewShardedSubjectTx(0),
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := requestcontext.RequestID(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// submit records tx on the ledger and returns its hash. The ledger is not a
// source of truth: failures are logged and yield an empty reference.
func (s *Service) submit(ctx context.Context, tx ledger.Tx) string {
	if s.ledger == nil {
		return ""
	}
	receipt, err := s.ledger.Submit(ctx, tx)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "ledger submission failed",
			"kind", tx.Kind,
			"subject", tx.Subject,
			"error", err,
		)
		return ""
	}
	return receipt.TxHash
}

func (s *Service) publish(ctx context.Context, e models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log(ctx).WarnContext(ctx, "event not published",
			"event_id", e.ID,
			"kind", e.Kind,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementEventPublishDropped()
		}
	}
}

// appendFailed reports an access-log write failure after the state change it
// belonged to has been rolled back.
func (s *Service) appendFailed(ctx context.Context, err error) error {
	s.log(ctx).ErrorContext(ctx, "access log append failed", "error", err)
	if s.metrics != nil {
		s.metrics.IncrementEventAppendFailure()
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
}

// rollbackRecord restores prev, or removes the record when there was none.
// It runs even if the caller's context is already cancelled.
func (s *Service) rollbackRecord(ctx context.Context, subject string, prev *models.Record) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if prev == nil {
		err = s.records.Delete(ctx, subject)
	} else {
		err = s.records.Put(ctx, prev)
	}
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "kyc record rollback failed", "subject", subject, "error", err)
	}
}

func (s *Service) rollbackPermission(ctx context.Context, subject, requester string, prev *models.Permission) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if prev == nil {
		err = s.permissions.Delete(ctx, subject, requester)
	} else {
		err = s.permissions.Request(ctx, prev)
	}
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "permission rollback failed",
			"subject", subject,
			"requester", requester,
			"error", err,
		)
	}
}

// translateStoreErr maps store facts to domain errors. Errors that already
// carry a domain code pass through.
func translateStoreErr(err error, notFoundMsg, failMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry the request")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, failMsg)
	}
}

// translateContentErr hides provider details behind a generic upstream error.
func translateContentErr(err error, failMsg string) error {
	var pe *content.ProviderError
	isProvider := errors.As(err, &pe)
	switch {
	case isProvider && pe.Category == content.ErrorNotFound:
		return dErrors.New(dErrors.CodeNotFound, "content not found")
	case !isProvider && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstream, failMsg)
	}
}
