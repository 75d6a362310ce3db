package models

// RecordStatus is the lifecycle state of a KYC record.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusVerified RecordStatus = "verified"
	RecordStatusRejected RecordStatus = "rejected"
)

// Verified and rejected are terminal. A re-upload replaces the record
// wholesale rather than transitioning it.
var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordStatusPending: {RecordStatusVerified, RecordStatusRejected},
}

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPending, RecordStatusVerified, RecordStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	for _, allowed := range recordTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PermissionStatus is the state of an access grant held by a requester.
type PermissionStatus string

const (
	PermissionStatusPending  PermissionStatus = "pending"
	PermissionStatusApproved PermissionStatus = "approved"
	PermissionStatusRevoked  PermissionStatus = "revoked"
)

// Revocation is accepted from every state, including revoked itself.
// Re-requesting is not a transition: it replaces the permission with a fresh
// pending one.
var permissionTransitions = map[PermissionStatus][]PermissionStatus{
	PermissionStatusPending:  {PermissionStatusApproved, PermissionStatusRevoked},
	PermissionStatusApproved: {PermissionStatusRevoked},
	PermissionStatusRevoked:  {PermissionStatusApproved, PermissionStatusRevoked},
}

func (s PermissionStatus) IsValid() bool {
	switch s {
	case PermissionStatusPending, PermissionStatusApproved, PermissionStatusRevoked:
		return true
	}
	return false
}

func (s PermissionStatus) CanTransitionTo(next PermissionStatus) bool {
	for _, allowed := range permissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
