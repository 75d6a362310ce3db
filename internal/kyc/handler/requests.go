package handler

import (
	"strings"

	dErrors "kycvault/pkg/domain-errors"
)

// Field size limits checked before the service parses identifiers.
const (
	maxFieldLength  = 256
	maxReasonLength = 512
)

// VerifyHashRequest is the body for POST /kyc/verify-hash.
type VerifyHashRequest struct {
	Subject string `json:"subject"`
	Hash    string `json:"hash"`
}

// Validate implements httputil.Validatable.
func (r *VerifyHashRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Subject) > maxFieldLength || len(r.Hash) > maxFieldLength {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	// An empty or malformed hash is reported by the service as invalid_hash.
	r.Hash = strings.TrimSpace(r.Hash)
	return nil
}

// AccessRequest is the body for POST /access/request.
type AccessRequest struct {
	BankID    string `json:"bankId"`
	Subject   string `json:"subject"`
	RequestID string `json:"requestId"`
}

// Validate implements httputil.Validatable.
func (r *AccessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.BankID) > maxFieldLength || len(r.Subject) > maxFieldLength || len(r.RequestID) > maxFieldLength {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.BankID = strings.TrimSpace(r.BankID)
	r.Subject = strings.TrimSpace(r.Subject)
	r.RequestID = strings.TrimSpace(r.RequestID)
	return requirePair(r.Subject, r.BankID)
}

// PermissionRequest is the body for POST /access/grant and /access/revoke.
type PermissionRequest struct {
	Subject string `json:"subject"`
	BankID  string `json:"bankId"`
}

// Validate implements httputil.Validatable.
func (r *PermissionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.BankID) > maxFieldLength || len(r.Subject) > maxFieldLength {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.Subject = strings.TrimSpace(r.Subject)
	r.BankID = strings.TrimSpace(r.BankID)
	return requirePair(r.Subject, r.BankID)
}

// DecisionRequest is the body for POST /kyc/approve and /kyc/reject. Reason
// is only read on rejection.
type DecisionRequest struct {
	Subject string `json:"subject"`
	BankID  string `json:"bankId"`
	Reason  string `json:"reason,omitempty"`
}

// Validate implements httputil.Validatable.
func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.BankID) > maxFieldLength || len(r.Subject) > maxFieldLength {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 512 characters")
	}
	r.Subject = strings.TrimSpace(r.Subject)
	r.BankID = strings.TrimSpace(r.BankID)
	r.Reason = strings.TrimSpace(r.Reason)
	return requirePair(r.Subject, r.BankID)
}

func requirePair(subject, bankID string) error {
	if subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if bankID == "" {
		return dErrors.New(dErrors.CodeValidation, "bankId is required")
	}
	return nil
}
