package handler

import (
	"time"

	"kycvault/internal/kyc/models"
)

// UploadResponse is returned by POST /kyc/upload.
type UploadResponse struct {
	ContentHash string    `json:"contentHash"`
	ContentID   string    `json:"contentId"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// FromUploadResult converts a service result to its response shape.
func FromUploadResult(r *models.UploadResult) UploadResponse {
	return UploadResponse{
		ContentHash: r.ContentHash.String(),
		ContentID:   r.ContentID,
		UploadedAt:  r.UploadedAt,
	}
}

// PermissionListResponse is returned by GET /access/{subject}.
type PermissionListResponse struct {
	Subject     string               `json:"subject"`
	Permissions []*models.Permission `json:"permissions"`
}
