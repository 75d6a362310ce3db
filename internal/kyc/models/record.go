package models

import (
	"strings"
	"time"

	"kycvault/internal/kyc/fingerprint"
	dErrors "kycvault/pkg/domain-errors"
)

// DocumentType names the kind of identity document that was uploaded.
// The set below is what clients are expected to send; other values are kept
// as-is after normalisation.
type DocumentType string

const (
	DocumentTypeIdentity       DocumentType = "identity"
	DocumentTypeAadhaar        DocumentType = "aadhaar"
	DocumentTypePAN            DocumentType = "pan"
	DocumentTypePassport       DocumentType = "passport"
	DocumentTypeDriversLicense DocumentType = "drivers_license"
	DocumentTypeVoterID        DocumentType = "voter_id"
)

const maxDocumentTypeLength = 64

// ParseDocumentType lowercases s and defaults an empty value to identity.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DocumentTypeIdentity, nil
	}
	if len(s) > maxDocumentTypeLength {
		return "", dErrors.New(dErrors.CodeValidation, "documentType is too long")
	}
	return DocumentType(s), nil
}

// IsKnown reports whether t is one of the predefined document types.
func (t DocumentType) IsKnown() bool {
	switch t {
	case DocumentTypeIdentity, DocumentTypeAadhaar, DocumentTypePAN,
		DocumentTypePassport, DocumentTypeDriversLicense, DocumentTypeVoterID:
		return true
	}
	return false
}

// Record is the KYC metadata held for one subject.
//
// Invariants:
//   - at most one record per subject; an upload replaces the previous one
//   - VerifiedBy/VerifiedAt are set only when Status is verified
//   - RejectedBy/RejectedAt/RejectReason are set only when Status is rejected
//   - verified and rejected are terminal
type Record struct {
	Subject      string                  `json:"subject"`
	DocumentType DocumentType            `json:"documentType"`
	ContentHash  fingerprint.ContentHash `json:"contentHash"`
	ContentID    string                  `json:"contentId"`
	FileName     string                  `json:"fileName,omitempty"`
	MimeType     string                  `json:"mimeType,omitempty"`
	Size         int64                   `json:"size"`
	Status       RecordStatus            `json:"status"`
	UploadedAt   time.Time               `json:"uploadedAt"`
	VerifiedBy   string                  `json:"verifiedBy,omitempty"`
	VerifiedAt   *time.Time              `json:"verifiedAt,omitempty"`
	RejectedBy   string                  `json:"rejectedBy,omitempty"`
	RejectedAt   *time.Time              `json:"rejectedAt,omitempty"`
	RejectReason string                  `json:"rejectReason,omitempty"`
}

// Document describes the uploaded file the record points at.
type Document struct {
	Type      DocumentType
	Hash      fingerprint.ContentHash
	ContentID string
	FileName  string
	MimeType  string
	Size      int64
}

func NewRecord(subject string, doc Document, now time.Time) (*Record, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record subject cannot be empty")
	}
	if doc.Hash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record content hash cannot be empty")
	}
	if doc.ContentID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record content id cannot be empty")
	}
	return &Record{
		Subject:      subject,
		DocumentType: doc.Type,
		ContentHash:  doc.Hash,
		ContentID:    doc.ContentID,
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		Size:         doc.Size,
		Status:       RecordStatusPending,
		UploadedAt:   now,
	}, nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		c.RejectedAt = &t
	}
	return &c
}

func (r *Record) IsVerified() bool {
	return r.Status == RecordStatusVerified
}

// CanApprove checks that the record is still awaiting a decision.
func (r *Record) CanApprove() error {
	if !r.Status.CanTransitionTo(RecordStatusVerified) {
		return dErrors.New(dErrors.CodeConflict, "kyc record is already "+string(r.Status))
	}
	return nil
}

// ApplyApproval marks the record verified.
// Must only be called after CanApprove returns nil.
func (r *Record) ApplyApproval(approver string, now time.Time) {
	r.Status = RecordStatusVerified
	r.VerifiedBy = approver
	r.VerifiedAt = &now
}

func (r *Record) CanReject() error {
	if !r.Status.CanTransitionTo(RecordStatusRejected) {
		return dErrors.New(dErrors.CodeConflict, "kyc record is already "+string(r.Status))
	}
	return nil
}

// ApplyRejection marks the record rejected.
// Must only be called after CanReject returns nil.
func (r *Record) ApplyRejection(approver, reason string, now time.Time) {
	r.Status = RecordStatusRejected
	r.RejectedBy = approver
	r.RejectedAt = &now
	r.RejectReason = reason
}
