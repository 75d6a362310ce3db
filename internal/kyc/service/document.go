package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kycvault/internal/content"
	"kycvault/internal/kyc/fingerprint"
	"kycvault/internal/kyc/models"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

// Upload fingerprints and stores a document, then records it as the
// subject's pending KYC record.
//
// Either the record and its upload event are both written or neither is:
// a content store failure or a cancelled caller writes nothing, and a failed
// event append restores the previous record.
func (s *Service) Upload(ctx context.Context, cmd models.UploadCommand) (_ *models.UploadResult, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "kyc.Upload")
	defer func() { endSpan(span, err) }()

	subject, err := models.ParseSubject(cmd.Subject)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.subject", subject))

	docType, err := models.ParseDocumentType(cmd.DocumentType)
	if err != nil {
		return nil, err
	}
	if len(cmd.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	if int64(len(cmd.Data)) > s.maxUploadBytes {
		return nil, dErrors.New(dErrors.CodePayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes))
	}
	if !models.IsAllowedMimeType(cmd.MimeType) {
		return nil, dErrors.New(dErrors.CodeUnsupportedMediaType, "file must be a PDF, JPEG or PNG image")
	}

	hash := fingerprint.Fingerprint(cmd.Data)
	id, err := s.contents.Store(ctx, cmd.Data, content.Metadata{
		Name:         cmd.FileName,
		MimeType:     cmd.MimeType,
		Subject:      subject,
		DocumentType: string(docType),
	})
	if err != nil {
		s.log(ctx).WarnContext(ctx, "content store rejected upload", "subject", subject, "error", err)
		return nil, translateContentErr(err, "failed to store document")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "upload cancelled")
	}

	now := requestcontext.Now(ctx)
	record, err := models.NewRecord(subject, models.Document{
		Type:      docType,
		Hash:      hash,
		ContentID: id.String(),
		FileName:  cmd.FileName,
		MimeType:  cmd.MimeType,
		Size:      int64(len(cmd.Data)),
	}, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build kyc record")
	}
	ev := models.NewEvent(models.EventUpload, subject, "", id.String(), now)

	err = s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		prev, err := s.records.Get(ctx, subject)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translateStoreErr(err, "", "failed to load kyc record")
		}
		if err := s.records.Put(ctx, record); err != nil {
			return translateStoreErr(err, "", "failed to save kyc record")
		}
		if err := s.events.Append(ctx, ev); err != nil {
			s.rollbackRecord(ctx, subject, prev)
			return s.appendFailed(ctx, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	if s.metrics != nil {
		s.metrics.ObserveUpload(documentTypeLabel(docType), len(cmd.Data), start)
	}
	s.log(ctx).InfoContext(ctx, "kyc document uploaded",
		"subject", subject,
		"content_id", id,
		"document_type", docType,
		"size", len(cmd.Data),
	)
	return &models.UploadResult{ContentHash: hash, ContentID: id.String(), UploadedAt: now}, nil
}

// documentTypeLabel keeps metric cardinality bounded for free-form types.
func documentTypeLabel(t models.DocumentType) string {
	if t.IsKnown() {
		return string(t)
	}
	return "other"
}

// VerifyHash compares supplied against the subject's stored fingerprint. A
// missing record or a malformed hash is a negative result, not an error.
// Checks against an existing record are recorded in the access log.
func (s *Service) VerifyHash(ctx context.Context, subject, supplied string) (_ *models.HashVerification, err error) {
	ctx, span := s.startSpan(ctx, "kyc.VerifyHash")
	defer func() { endSpan(span, err) }()

	subject, err = models.ParseSubject(subject)
	if err != nil {
		return nil, err
	}

	record, err := s.loadRecord(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.countVerification("not_found")
		return &models.HashVerification{Verified: false, Reason: models.VerifyReasonNotFound}, nil
	}
	if err != nil {
		return nil, translateStoreErr(err, "", "failed to load kyc record")
	}

	var result *models.HashVerification
	hash, err := fingerprint.ParseContentHash(supplied)
	switch {
	case err != nil:
		s.countVerification("invalid_hash")
		result = &models.HashVerification{Verified: false, Reason: models.VerifyReasonInvalidHash}
	case record.ContentHash.Equal(hash):
		s.countVerification("match")
		result = &models.HashVerification{Verified: true}
	default:
		s.countVerification("mismatch")
		result = &models.HashVerification{Verified: false}
	}

	s.recordVerification(ctx, subject, record.ContentID)
	return result, nil
}

// recordVerification appends a hash_verified entry. The verification result
// stands even if the log write fails.
func (s *Service) recordVerification(ctx context.Context, subject, contentID string) {
	ev := models.NewEvent(models.EventHashVerified, subject, "", contentID, requestcontext.Now(ctx))
	err := s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		return s.events.Append(ctx, ev)
	})
	if err != nil {
		s.log(ctx).WarnContext(ctx, "hash verification not logged", "subject", subject, "error", err)
		return
	}
	s.publish(ctx, ev)
}

func (s *Service) countVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementHashVerification(outcome)
	}
}

// Status returns the subject's KYC record.
func (s *Service) Status(ctx context.Context, subject string) (*models.Record, error) {
	subject, err := models.ParseSubject(subject)
	if err != nil {
		return nil, err
	}
	record, err := s.loadRecord(ctx, subject)
	if err != nil {
		return nil, translateStoreErr(err, "kyc record not found", "failed to load kyc record")
	}
	return record, nil
}

// loadRecord reads the record inside the subject transaction. An upload whose
// event append fails is rolled back before the lock is released, so readers
// never see it.
func (s *Service) loadRecord(ctx context.Context, subject string) (*models.Record, error) {
	var record *models.Record
	err := s.tx.RunInTx(ctx, subject, func(ctx context.Context) error {
		var err error
		record, err = s.records.Get(ctx, subject)
		return err
	})
	return record, err
}

// Content returns the stored bytes for a content id.
func (s *Service) Content(ctx context.Context, id string) (_ []byte, err error) {
	ctx, span := s.startSpan(ctx, "kyc.Content")
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "contentId is required")
	}
	cid, err := content.ParseID(id)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "contentId must be a CID")
	}
	data, err := s.contents.Retrieve(ctx, cid)
	if err != nil {
		return nil, translateContentErr(err, "failed to retrieve document")
	}
	return data, nil
}
