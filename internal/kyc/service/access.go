package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"kycvault/internal/kyc/models"
	"kycvault/internal/ledger"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

const maxRequestIDLength = 128

// RequestAccess records that requester wants to read subject's KYC record.
// Any earlier permission for the pair, approved or not, is replaced by a
// fresh pending one.
func (s *Service) RequestAccess(ctx context.Context, requester, subject, requestID string) (_ *models.Permission, err error) {
	ctx, span := s.startSpan(ctx, "kyc.RequestAccess")
	defer func() { endSpan(span, err) }()

	subject, requester, err = parsePair(subject, requester)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.subject", subject), attribute.String("kyc.requester", requester))

	requestID = strings.TrimSpace(requestID)
	if len(requestID) > maxRequestIDLength {
		return nil, dErrors.New(dErrors.CodeValidation, "requestId is too long")
	}

	now := requestcontext.Now(ctx)
	perm, err := models.NewPermission(uuid.New(), subject, requester, requestID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build permission")
	}

	var ev models.Event
	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		prev, err := s.permissions.Get(ctx, subject, requester)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translateStoreErr(err, "", "failed to load permission")
		}
		if err := s.permissions.Request(ctx, perm); err != nil {
			return translateStoreErr(err, "", "failed to save permission")
		}
		ref := s.submit(ctx, ledger.Tx{
			Kind:      string(models.EventAccessRequested),
			Subject:   subject,
			Requester: requester,
			Reference: requestID,
		})
		ev = models.NewEvent(models.EventAccessRequested, subject, requester, ref, now)
		if err := s.events.Append(ctx, ev); err != nil {
			s.rollbackPermission(ctx, subject, requester, prev)
			return s.appendFailed(ctx, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	s.countTransition(perm.Status)
	s.log(ctx).InfoContext(ctx, "access requested",
		"subject", subject,
		"requester", requester,
		"permission_id", perm.ID,
	)
	return perm, nil
}

// GrantAccess approves requester's pending or revoked permission. Only the
// subject is expected to call this; no caller identity is checked.
func (s *Service) GrantAccess(ctx context.Context, subject, requester string) (*models.Permission, error) {
	return s.transitionPermission(ctx, "kyc.GrantAccess", subject, requester, models.EventAccessGranted,
		func(p *models.Permission) error { return p.CanGrant() },
		func(p *models.Permission, now time.Time) { p.ApplyGrant(now) },
	)
}

// RevokeAccess revokes requester's permission from whatever state it is in.
func (s *Service) RevokeAccess(ctx context.Context, subject, requester string) (*models.Permission, error) {
	return s.transitionPermission(ctx, "kyc.RevokeAccess", subject, requester, models.EventAccessRevoked,
		func(p *models.Permission) error { return p.CanRevoke() },
		func(p *models.Permission, now time.Time) { p.ApplyRevoke(now) },
	)
}

func (s *Service) transitionPermission(
	ctx context.Context,
	spanName string,
	subject, requester string,
	kind models.EventKind,
	validate func(*models.Permission) error,
	mutate func(*models.Permission, time.Time),
) (_ *models.Permission, err error) {
	ctx, span := s.startSpan(ctx, spanName)
	defer func() { endSpan(span, err) }()

	subject, requester, err = parsePair(subject, requester)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.subject", subject), attribute.String("kyc.requester", requester))

	now := requestcontext.Now(ctx)
	var (
		updated *models.Permission
		ev      models.Event
	)
	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		var prev *models.Permission
		p, err := s.permissions.Execute(ctx, subject, requester,
			func(p *models.Permission) error {
				prev = p.Clone()
				return validate(p)
			},
			func(p *models.Permission) { mutate(p, now) },
		)
		if err != nil {
			return translateStoreErr(err, "access request not found", "failed to update permission")
		}

		ref := s.submit(ctx, ledger.Tx{
			Kind:      string(kind),
			Subject:   subject,
			Requester: requester,
			Reference: p.ID.String(),
		})
		ev = models.NewEvent(kind, subject, requester, ref, now)
		if err := s.events.Append(ctx, ev); err != nil {
			s.rollbackPermission(ctx, subject, requester, prev)
			return s.appendFailed(ctx, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	s.countTransition(updated.Status)
	s.log(ctx).InfoContext(ctx, "access permission updated",
		"subject", subject,
		"requester", requester,
		"status", updated.Status,
	)
	return updated, nil
}

// VerifyAccess returns the pair's permission. Callers inspect its status.
// Reads take the subject transaction so they never observe a transition that
// is later rolled back.
func (s *Service) VerifyAccess(ctx context.Context, subject, requester string) (*models.Permission, error) {
	subject, requester, err := parsePair(subject, requester)
	if err != nil {
		return nil, err
	}
	var p *models.Permission
	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		var err error
		p, err = s.permissions.Get(ctx, subject, requester)
		return err
	})
	if err != nil {
		return nil, translateStoreErr(err, "access request not found", "failed to load permission")
	}
	return p, nil
}

// ListPermissions returns every permission held against subject.
func (s *Service) ListPermissions(ctx context.Context, subject string) ([]*models.Permission, error) {
	subject, err := models.ParseSubject(subject)
	if err != nil {
		return nil, err
	}
	var list []*models.Permission
	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		var err error
		list, err = s.permissions.ListBySubject(ctx, subject)
		return err
	})
	if err != nil {
		return nil, translateStoreErr(err, "", "failed to list permissions")
	}
	return list, nil
}

// ListAccessLogs returns subject's access log in append order, optionally
// restricted to kinds.
func (s *Service) ListAccessLogs(ctx context.Context, subject string, kinds ...models.EventKind) ([]models.Event, error) {
	subject, err := models.ParseSubject(subject)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown event kind: "+string(k))
		}
	}
	events, err := s.events.ListBySubject(ctx, subject, kinds...)
	if err != nil {
		return nil, translateStoreErr(err, "", "failed to list access logs")
	}
	return events, nil
}

func parsePair(subject, requester string) (string, string, error) {
	subject, err := models.ParseSubject(subject)
	if err != nil {
		return "", "", err
	}
	requester, err = models.ParseRequester(requester)
	if err != nil {
		return "", "", err
	}
	return subject, requester, nil
}

func (s *Service) countTransition(status models.PermissionStatus) {
	if s.metrics != nil {
		s.metrics.IncrementPermissionTransition(string(status))
	}
}
