package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "kycvault/pkg/domain-errors"
)

// Permission records whether a requester may read a subject's KYC record.
// Exactly one permission exists per (subject, requester) pair.
type Permission struct {
	ID          uuid.UUID        `json:"id"`
	RequestID   string           `json:"requestId,omitempty"`
	Subject     string           `json:"subject"`
	Requester   string           `json:"bankId"`
	Status      PermissionStatus `json:"status"`
	RequestedAt time.Time        `json:"requestedAt"`
	ApprovedAt  *time.Time       `json:"approvedAt,omitempty"`
	RevokedAt   *time.Time       `json:"revokedAt,omitempty"`
}

// NewPermission builds a pending permission. Storing it replaces whatever
// permission the pair held before.
func NewPermission(id uuid.UUID, subject, requester, requestID string, now time.Time) (*Permission, error) {
	if subject == "" || requester == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "permission requires subject and requester")
	}
	return &Permission{
		ID:          id,
		RequestID:   requestID,
		Subject:     subject,
		Requester:   requester,
		Status:      PermissionStatusPending,
		RequestedAt: now,
	}, nil
}

func (p *Permission) Clone() *Permission {
	if p == nil {
		return nil
	}
	c := *p
	if p.ApprovedAt != nil {
		t := *p.ApprovedAt
		c.ApprovedAt = &t
	}
	if p.RevokedAt != nil {
		t := *p.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

func (p *Permission) IsApproved() bool {
	return p.Status == PermissionStatusApproved
}

func (p *Permission) CanGrant() error {
	if !p.Status.CanTransitionTo(PermissionStatusApproved) {
		return dErrors.New(dErrors.CodeConflict, "access is already "+string(p.Status))
	}
	return nil
}

// ApplyGrant approves the permission and clears any earlier revocation.
// Must only be called after CanGrant returns nil.
func (p *Permission) ApplyGrant(now time.Time) {
	p.Status = PermissionStatusApproved
	p.ApprovedAt = &now
	p.RevokedAt = nil
}

func (p *Permission) CanRevoke() error {
	if !p.Status.CanTransitionTo(PermissionStatusRevoked) {
		return dErrors.New(dErrors.CodeConflict, "access cannot be revoked from "+string(p.Status))
	}
	return nil
}

// ApplyRevoke keeps ApprovedAt so the log of the last grant survives.
func (p *Permission) ApplyRevoke(now time.Time) {
	p.Status = PermissionStatusRevoked
	p.RevokedAt = &now
}
