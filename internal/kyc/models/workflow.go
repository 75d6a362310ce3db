package models

import (
	"time"

	"kycvault/internal/kyc/fingerprint"
)

// UploadCommand carries an uploaded document into the workflow.
type UploadCommand struct {
	Subject      string
	DocumentType string
	FileName     string
	MimeType     string
	Data         []byte
}

// UploadResult is returned once the document is stored and recorded.
type UploadResult struct {
	ContentHash fingerprint.ContentHash `json:"contentHash"`
	ContentID   string                  `json:"contentId"`
	UploadedAt  time.Time               `json:"uploadedAt"`
}

// VerifyReason explains a negative hash verification.
type VerifyReason string

const (
	VerifyReasonNotFound    VerifyReason = "not_found"
	VerifyReasonInvalidHash VerifyReason = "invalid_hash"
)

// HashVerification is the outcome of comparing a supplied hash against the
// stored one.
type HashVerification struct {
	Verified bool         `json:"verified"`
	Reason   VerifyReason `json:"reason,omitempty"`
}

// Accepted upload media types.
const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

func IsAllowedMimeType(m string) bool {
	switch m {
	case MimePDF, MimeJPEG, MimePNG:
		return true
	}
	return false
}
