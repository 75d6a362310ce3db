package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"kycvault/internal/kyc/models"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/httputil"
	pstrings "kycvault/pkg/platform/strings"
	"kycvault/pkg/requestcontext"
)

// multipartOverhead leaves room for form fields and part headers on top of
// the document itself.
const multipartOverhead = 1 << 20

// Service defines the workflow operations exposed over HTTP.
type Service interface {
	Upload(ctx context.Context, cmd models.UploadCommand) (*models.UploadResult, error)
	VerifyHash(ctx context.Context, subject, hash string) (*models.HashVerification, error)
	Status(ctx context.Context, subject string) (*models.Record, error)
	Content(ctx context.Context, id string) ([]byte, error)
	RequestAccess(ctx context.Context, requester, subject, requestID string) (*models.Permission, error)
	GrantAccess(ctx context.Context, subject, requester string) (*models.Permission, error)
	RevokeAccess(ctx context.Context, subject, requester string) (*models.Permission, error)
	VerifyAccess(ctx context.Context, subject, requester string) (*models.Permission, error)
	ListPermissions(ctx context.Context, subject string) ([]*models.Permission, error)
	ListAccessLogs(ctx context.Context, subject string, kinds ...models.EventKind) ([]models.Event, error)
	ApproveKYC(ctx context.Context, subject, approver string) (*models.Record, error)
	RejectKYC(ctx context.Context, subject, approver, reason string) (*models.Record, error)
}

// Handler wires KYC, access and content endpoints to the workflow service.
type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// New constructs a handler. maxUploadBytes bounds the document part of an
// upload request.
func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc/upload", h.HandleUpload)
	r.Post("/kyc/verify-hash", h.HandleVerifyHash)
	r.Get("/kyc/status/{subject}", h.HandleStatus)
	r.Post("/kyc/approve", h.HandleApprove)
	r.Post("/kyc/reject", h.HandleReject)

	r.Post("/access/request", h.HandleRequestAccess)
	r.Post("/access/grant", h.HandleGrantAccess)
	r.Post("/access/revoke", h.HandleRevokeAccess)
	r.Get("/access/logs/{subject}", h.HandleAccessLogs)
	r.Get("/access/{subject}", h.HandleListPermissions)
	r.Get("/access/{subject}/{bankId}", h.HandleVerifyAccess)

	r.Get("/content/{contentId}", h.HandleContent)
}

// HandleUpload handles POST /kyc/upload multipart requests.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	limit := h.maxUploadBytes + multipartOverhead
	if r.ContentLength > limit {
		httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "upload exceeds size limit"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "upload exceeds size limit"))
			return
		}
		h.logger.WarnContext(ctx, "invalid upload form", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart form body is required"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	cmd := models.UploadCommand{
		Subject:      r.FormValue("subject"),
		DocumentType: r.FormValue("documentType"),
	}
	data, fileName, err := readFormFile(r, "file", h.maxUploadBytes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd.Data = data
	cmd.FileName = fileName
	cmd.MimeType = sniffMimeType(data)

	result, err := h.service.Upload(ctx, cmd)
	if err != nil {
		h.logger.ErrorContext(ctx, "kyc upload failed",
			"request_id", requestID,
			"subject", cmd.Subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "kyc upload accepted",
		"request_id", requestID,
		"subject", cmd.Subject,
		"content_id", result.ContentID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromUploadResult(result))
}

// readFormFile returns the named file part. A missing part yields no data so
// the service reports it alongside its other validation.
func readFormFile(r *http.Request, field string, limit int64) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "invalid file part")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file part")
	}
	return data, header.Filename, nil
}

// sniffMimeType detects the media type from content; client supplied
// Content-Type headers are ignored.
func sniffMimeType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mt
}

// HandleVerifyHash handles POST /kyc/verify-hash.
func (h *Handler) HandleVerifyHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyHashRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.VerifyHash(ctx, req.Subject, req.Hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "hash verification failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleStatus handles GET /kyc/status/{subject}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Status(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleApprove handles POST /kyc/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.ApproveKYC(ctx, req.Subject, req.BankID)
	if err != nil {
		h.logger.WarnContext(ctx, "kyc approval failed",
			"request_id", requestID,
			"subject", req.Subject,
			"bank_id", req.BankID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleReject handles POST /kyc/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.RejectKYC(ctx, req.Subject, req.BankID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "kyc rejection failed",
			"request_id", requestID,
			"subject", req.Subject,
			"bank_id", req.BankID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleRequestAccess handles POST /access/request.
func (h *Handler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AccessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	permission, err := h.service.RequestAccess(ctx, req.BankID, req.Subject, req.RequestID)
	if err != nil {
		h.logger.WarnContext(ctx, "access request failed",
			"request_id", requestID,
			"subject", req.Subject,
			"bank_id", req.BankID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, permission)
}

// HandleGrantAccess handles POST /access/grant.
func (h *Handler) HandleGrantAccess(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "grant", h.service.GrantAccess)
}

// HandleRevokeAccess handles POST /access/revoke.
func (h *Handler) HandleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "revoke", h.service.RevokeAccess)
}

func (h *Handler) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	apply func(ctx context.Context, subject, requester string) (*models.Permission, error),
) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PermissionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	permission, err := apply(ctx, req.Subject, req.BankID)
	if err != nil {
		h.logger.WarnContext(ctx, "access "+action+" failed",
			"request_id", requestID,
			"subject", req.Subject,
			"bank_id", req.BankID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, permission)
}

// HandleVerifyAccess handles GET /access/{subject}/{bankId}.
func (h *Handler) HandleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	permission, err := h.service.VerifyAccess(r.Context(), chi.URLParam(r, "subject"), chi.URLParam(r, "bankId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, permission)
}

// HandleListPermissions handles GET /access/{subject}.
func (h *Handler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	permissions, err := h.service.ListPermissions(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if permissions == nil {
		permissions = []*models.Permission{}
	}
	httputil.WriteJSON(w, http.StatusOK, PermissionListResponse{Subject: subject, Permissions: permissions})
}

// HandleAccessLogs handles GET /access/logs/{subject}. Repeated kind
// parameters filter the log.
func (h *Handler) HandleAccessLogs(w http.ResponseWriter, r *http.Request) {
	var kinds []models.EventKind
	for _, k := range pstrings.SplitList(r.URL.Query()["kind"]...) {
		kinds = append(kinds, models.EventKind(k))
	}

	events, err := h.service.ListAccessLogs(r.Context(), chi.URLParam(r, "subject"), kinds...)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

// HandleContent handles GET /content/{contentId}. Content ids address
// immutable bytes, so responses are cacheable indefinitely.
func (h *Handler) HandleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := h.service.Content(ctx, chi.URLParam(r, "contentId"))
	if err != nil {
		h.logger.WarnContext(ctx, "content retrieval failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
