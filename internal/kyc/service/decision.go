package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kycvault/internal/kyc/models"
	"kycvault/internal/ledger"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

const maxRejectReasonLength = 512

// ApproveKYC moves a pending record to verified.
func (s *Service) ApproveKYC(ctx context.Context, subject, approver string) (*models.Record, error) {
	return s.decide(ctx, "kyc.ApproveKYC", subject, approver, models.EventKYCApproved,
		func(r *models.Record) error { return r.CanApprove() },
		func(r *models.Record, by string, now time.Time) { r.ApplyApproval(by, now) },
	)
}

// RejectKYC moves a pending record to rejected.
func (s *Service) RejectKYC(ctx context.Context, subject, approver, reason string) (*models.Record, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxRejectReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return s.decide(ctx, "kyc.RejectKYC", subject, approver, models.EventKYCRejected,
		func(r *models.Record) error { return r.CanReject() },
		func(r *models.Record, by string, now time.Time) { r.ApplyRejection(by, reason, now) },
	)
}

func (s *Service) decide(
	ctx context.Context,
	spanName string,
	subject, approver string,
	kind models.EventKind,
	validate func(*models.Record) error,
	mutate func(r *models.Record, approver string, now time.Time),
) (_ *models.Record, err error) {
	ctx, span := s.startSpan(ctx, spanName)
	defer func() { endSpan(span, err) }()

	subject, approver, err = parsePair(subject, approver)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.subject", subject), attribute.String("kyc.approver", approver))

	now := requestcontext.Now(ctx)
	var (
		updated *models.Record
		ev      models.Event
	)
	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		// Revocations run in the same subject transaction, so the approver's
		// access cannot change before the decision commits.
		if err := s.checkApprover(ctx, subject, approver); err != nil {
			return err
		}

		var prev *models.Record
		r, err := s.records.Execute(ctx, subject,
			func(r *models.Record) error {
				prev = r.Clone()
				return validate(r)
			},
			func(r *models.Record) { mutate(r, approver, now) },
		)
		if err != nil {
			return translateStoreErr(err, "kyc record not found", "failed to update kyc record")
		}

		ref := s.submit(ctx, ledger.Tx{
			Kind:      string(kind),
			Subject:   subject,
			Requester: approver,
			Reference: r.ContentHash.String(),
		})
		ev = models.NewEvent(kind, subject, approver, ref, now)
		if err := s.events.Append(ctx, ev); err != nil {
			s.rollbackRecord(ctx, subject, prev)
			return s.appendFailed(ctx, err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	if s.metrics != nil {
		s.metrics.IncrementKYCDecision(string(updated.Status))
	}
	s.log(ctx).InfoContext(ctx, "kyc decision recorded",
		"subject", subject,
		"approver", approver,
		"status", updated.Status,
	)
	return updated, nil
}

// checkApprover enforces the approval policy. Under ApprovalOpen anyone may
// decide.
func (s *Service) checkApprover(ctx context.Context, subject, approver string) error {
	if s.approvalPolicy != RequireApprovedAccess {
		return nil
	}
	p, err := s.permissions.Get(ctx, subject, approver)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeForbidden, "approver has no access to this subject")
	}
	if err != nil {
		return translateStoreErr(err, "", "failed to load permission")
	}
	if !p.IsApproved() {
		return dErrors.New(dErrors.CodeForbidden, "approver access is "+string(p.Status))
	}
	return nil
}
