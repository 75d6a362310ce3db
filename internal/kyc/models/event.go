package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "kycvault/pkg/domain-errors"
)

// EventKind classifies an access-log entry.
type EventKind string

const (
	EventUpload          EventKind = "upload"
	EventAccessRequested EventKind = "access_requested"
	EventAccessGranted   EventKind = "access_granted"
	EventAccessRevoked   EventKind = "access_revoked"
	EventKYCApproved     EventKind = "kyc_approved"
	EventKYCRejected     EventKind = "kyc_rejected"
	EventHashVerified    EventKind = "hash_verified"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{
	EventUpload,
	EventAccessRequested,
	EventAccessGranted,
	EventAccessRevoked,
	EventKYCApproved,
	EventKYCRejected,
	EventHashVerified,
}

func (k EventKind) IsValid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown event kind: "+s)
	}
	return k, nil
}

// Event is an immutable access-log entry. Reference carries the content id
// for uploads and the ledger transaction hash for decisions.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	Subject   string    `json:"subject"`
	Requester string    `json:"requester,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reference string    `json:"reference,omitempty"`
}

func NewEvent(kind EventKind, subject, requester, reference string, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Subject:   subject,
		Requester: requester,
		Timestamp: now,
		Reference: reference,
	}
}
