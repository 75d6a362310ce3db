package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycvault/internal/kyc/fingerprint"
	"kycvault/internal/kyc/handler/mocks"
	"kycvault/internal/kyc/models"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service
type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.service = mocks.NewMockService(ctrl)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger, 1<<10).Register(s.router)
}

// =============================================================================
// Upload
// =============================================================================

func (s *HandlerSuite) TestUpload() {
	t := s.T()

	s.Run("accepts a sniffed PDF", func() {
		doc := testutil.PDFBytes("doc-A")
		hash := fingerprint.Fingerprint(doc)
		s.service.EXPECT().Upload(gomock.Any(), models.UploadCommand{
			Subject:      "0xS",
			DocumentType: "passport",
			FileName:     "scan.pdf",
			MimeType:     models.MimePDF,
			Data:         doc,
		}).Return(&models.UploadResult{ContentHash: hash, ContentID: "QmA", UploadedAt: s.now}, nil)

		req := testutil.NewMultipartRequest(t, http.MethodPost, "/kyc/upload",
			map[string]string{"subject": "0xS", "documentType": "passport"},
			&testutil.MultipartFile{Field: "file", FileName: "scan.pdf", Content: doc})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(t, rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[UploadResponse](t, rr)
		s.Equal(hash.String(), resp.ContentHash)
		s.Equal("QmA", resp.ContentID)
	})

	s.Run("ignores the client content type", func() {
		s.service.EXPECT().Upload(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd models.UploadCommand) (*models.UploadResult, error) {
				s.Equal(models.MimePNG, cmd.MimeType)
				return &models.UploadResult{ContentID: "QmB", UploadedAt: s.now}, nil
			})

		req := testutil.NewMultipartRequest(t, http.MethodPost, "/kyc/upload",
			map[string]string{"subject": "0xS"},
			&testutil.MultipartFile{Field: "file", FileName: "scan.pdf", Content: testutil.PNGBytes()})
		testutil.AssertStatus(t, testutil.DoRequest(s.router, req), http.StatusCreated)
	})

	s.Run("missing file reaches service validation", func() {
		s.service.EXPECT().Upload(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd models.UploadCommand) (*models.UploadResult, error) {
				s.Empty(cmd.Data)
				return nil, dErrors.New(dErrors.CodeValidation, "file is required")
			})

		req := testutil.NewMultipartRequest(t, http.MethodPost, "/kyc/upload", map[string]string{"subject": "0xS"}, nil)
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadRequest, "validation_error")
	})

	s.Run("oversized body is rejected before the service", func() {
		big := testutil.PDFBytes(string(bytes.Repeat([]byte("x"), 2<<20)))
		req := testutil.NewMultipartRequest(t, http.MethodPost, "/kyc/upload",
			map[string]string{"subject": "0xS"},
			&testutil.MultipartFile{Field: "file", FileName: "big.pdf", Content: big})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusRequestEntityTooLarge, "payload_too_large")
	})

	s.Run("non multipart body is a bad request", func() {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/upload", map[string]string{"subject": "0xS"})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadRequest, "bad_request")
	})

	s.Run("upstream failure maps to bad gateway", func() {
		s.service.EXPECT().Upload(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUpstream, "failed to store document"))

		req := testutil.NewMultipartRequest(t, http.MethodPost, "/kyc/upload",
			map[string]string{"subject": "0xS"},
			&testutil.MultipartFile{Field: "file", FileName: "a.pdf", Content: testutil.PDFBytes("a")})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadGateway, "upstream_error")
	})
}

// =============================================================================
// Verification and status
// =============================================================================

func (s *HandlerSuite) TestVerifyHash() {
	t := s.T()

	s.Run("returns the verification result", func() {
		s.service.EXPECT().VerifyHash(gomock.Any(), "0xS", "0xabc").
			Return(&models.HashVerification{Verified: false, Reason: models.VerifyReasonNotFound}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/verify-hash", VerifyHashRequest{Subject: " 0xS ", Hash: "0xabc"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "verified", false)
		testutil.AssertJSONContains(t, rr, "reason", "not_found")
	})

	s.Run("missing subject", func() {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/verify-hash", VerifyHashRequest{Hash: "0xabc"})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/kyc/verify-hash", "{")
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestStatus() {
	t := s.T()

	s.Run("found", func() {
		s.service.EXPECT().Status(gomock.Any(), "0xS").Return(&models.Record{
			Subject: "0xS",
			Status:  models.RecordStatusVerified,
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/kyc/status/0xS"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "verified")
	})

	s.Run("not found", func() {
		s.service.EXPECT().Status(gomock.Any(), "0xNobody").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "kyc record not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/kyc/status/0xNobody"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestDecisions() {
	t := s.T()

	s.Run("approve", func() {
		s.service.EXPECT().ApproveKYC(gomock.Any(), "0xS", "0xB").
			Return(&models.Record{Subject: "0xS", Status: models.RecordStatusVerified, VerifiedBy: "0xB"}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/approve", DecisionRequest{Subject: "0xS", BankID: "0xB"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "verifiedBy", "0xB")
	})

	s.Run("approve twice conflicts", func() {
		s.service.EXPECT().ApproveKYC(gomock.Any(), "0xS", "0xB").
			Return(nil, dErrors.New(dErrors.CodeConflict, "kyc record is already verified"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/approve", DecisionRequest{Subject: "0xS", BankID: "0xB"})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusConflict, "conflict")
	})

	s.Run("reject passes the reason", func() {
		s.service.EXPECT().RejectKYC(gomock.Any(), "0xS", "0xB", "blurry scan").
			Return(&models.Record{Subject: "0xS", Status: models.RecordStatusRejected}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/reject", DecisionRequest{Subject: "0xS", BankID: "0xB", Reason: "blurry scan"})
		testutil.AssertStatus(t, testutil.DoRequest(s.router, req), http.StatusOK)
	})

	s.Run("missing bank id", func() {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/kyc/approve", DecisionRequest{Subject: "0xS"})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusBadRequest, "validation_error")
	})
}

// =============================================================================
// Access
// =============================================================================

func (s *HandlerSuite) TestAccessLifecycle() {
	t := s.T()
	permission := &models.Permission{
		ID:          uuid.New(),
		Subject:     "0xS",
		Requester:   "0xB",
		Status:      models.PermissionStatusPending,
		RequestedAt: s.now,
	}

	s.Run("request", func() {
		s.service.EXPECT().RequestAccess(gomock.Any(), "0xB", "0xS", "req-1").Return(permission, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/access/request", AccessRequest{BankID: "0xB", Subject: "0xS", RequestID: "req-1"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		testutil.AssertJSONContains(t, rr, "status", "pending")
		testutil.AssertJSONContains(t, rr, "bankId", "0xB")
	})

	s.Run("grant before request", func() {
		s.service.EXPECT().GrantAccess(gomock.Any(), "0xS", "0xOther").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "access request not found"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/access/grant", PermissionRequest{Subject: "0xS", BankID: "0xOther"})
		testutil.AssertStatusAndError(t, testutil.DoRequest(s.router, req), http.StatusNotFound, "not_found")
	})

	s.Run("grant", func() {
		approved := *permission
		approved.Status = models.PermissionStatusApproved
		s.service.EXPECT().GrantAccess(gomock.Any(), "0xS", "0xB").Return(&approved, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/access/grant", PermissionRequest{Subject: "0xS", BankID: "0xB"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "approved")
	})

	s.Run("revoke", func() {
		revoked := *permission
		revoked.Status = models.PermissionStatusRevoked
		s.service.EXPECT().RevokeAccess(gomock.Any(), "0xS", "0xB").Return(&revoked, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/access/revoke", PermissionRequest{Subject: "0xS", BankID: "0xB"})
		testutil.AssertStatus(t, testutil.DoRequest(s.router, req), http.StatusOK)
	})

	s.Run("verify access", func() {
		s.service.EXPECT().VerifyAccess(gomock.Any(), "0xS", "0xB").Return(permission, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/access/0xS/0xB"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "subject", "0xS")
	})

	s.Run("list permissions never returns null", func() {
		s.service.EXPECT().ListPermissions(gomock.Any(), "0xS").Return(nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/access/0xS"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[PermissionListResponse](t, rr)
		s.NotNil(resp.Permissions)
		s.Empty(resp.Permissions)
	})
}

func (s *HandlerSuite) TestAccessLogs() {
	t := s.T()

	s.Run("without filter", func() {
		s.service.EXPECT().ListAccessLogs(gomock.Any(), "0xS").Return([]models.Event{
			{ID: uuid.New(), Kind: models.EventUpload, Subject: "0xS", Timestamp: s.now},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/access/logs/0xS"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		events := testutil.UnmarshalResponse[[]models.Event](t, rr)
		s.Len(*events, 1)
	})

	s.Run("kind filter accepts repeats and commas", func() {
		s.service.EXPECT().ListAccessLogs(gomock.Any(), "0xS",
			models.EventAccessGranted, models.EventAccessRevoked, models.EventKYCApproved,
		).Return([]models.Event{}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet,
			"/access/logs/0xS?kind=access_granted,access_revoked&kind=kyc_approved"))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

// =============================================================================
// Content
// =============================================================================

func (s *HandlerSuite) TestContent() {
	t := s.T()

	s.Run("serves bytes with a sniffed type", func() {
		doc := testutil.PDFBytes("doc-A")
		s.service.EXPECT().Content(gomock.Any(), "QmA").Return(doc, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/content/QmA"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		s.Equal("application/pdf", rr.Header().Get("Content-Type"))
		s.Equal(doc, rr.Body.Bytes())
	})

	s.Run("unknown id", func() {
		s.service.EXPECT().Content(gomock.Any(), "QmMissing").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "content not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/content/QmMissing"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}
