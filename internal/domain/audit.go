package domain

import (
	"time"
)

// Audit actions recorded for admin and system-driven changes.
const (
	ActionClaimStatusChange = "claim_status_change"
	ActionDocumentReview    = "document_review"
	ActionClaimApprove      = "claim_approve"
	ActionClaimReject       = "claim_reject"
	ActionClaimComplete     = "claim_complete"
)

// Audit target types.
const (
	TargetClaim    = "claim"
	TargetDocument = "document"
)

// AdminLog is an immutable audit record. Rows are append-only.
type AdminLog struct {
	ID         string    `json:"id"`
	AdminID    string    `json:"adminId"`
	Action     string    `json:"action"`
	TargetType string    `json:"targetType"`
	TargetID   string    `json:"targetId"`
	OldValue   string    `json:"oldValue,omitempty"`
	NewValue   string    `json:"newValue,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notification is a user-facing message created by the engine and
// handed off to an external delivery channel.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ClaimID   string    `json:"claimId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification types.
const (
	NotifyClaimApproved    = "claim_approved"
	NotifyClaimRejected    = "claim_rejected"
	NotifyClaimUnderReview = "claim_under_review"
	NotifyClaimCompleted   = "claim_completed"
)
