// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	StatusPending     ClaimStatus = "pending"
	StatusUnderReview ClaimStatus = "under_review"
	StatusApproved    ClaimStatus = "approved"
	StatusRejected    ClaimStatus = "rejected"
	StatusCompleted   ClaimStatus = "completed"
)

// Terminal reports whether a status is terminal with respect to
// document-driven reconciliation. A terminal status is only revisited
// when new document evidence arrives.
func (s ClaimStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCompleted
}

// StatusOrigin records which actor last set the claim status.
// An explicit admin decision takes precedence over reconciliation.
type StatusOrigin string

const (
	OriginSystem StatusOrigin = "system"
	OriginAdmin  StatusOrigin = "admin"
)

// Claim represents a payout request filed against a user policy.
type Claim struct {
	ID              string       `json:"id"`
	ClaimNumber     string       `json:"claimNumber"`
	UserPolicyID    string       `json:"userPolicyId"`
	UserID          string       `json:"userId"`
	ClaimType       string       `json:"claimType"`
	IncidentDate    time.Time    `json:"incidentDate"`
	AmountClaimed   float64      `json:"amountClaimed"`
	Status          ClaimStatus  `json:"status"`
	StatusOrigin    StatusOrigin `json:"statusOrigin"`
	StatusNotes     string       `json:"statusNotes,omitempty"`
	RejectionReason *string      `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Document classification types.
const (
	DocTypeMedicalReport = "medical_report"
	DocTypeInvoice       = "invoice"
	DocTypePhoto         = "photo"
	DocTypePoliceReport  = "police_report"
	DocTypePrescription  = "prescription"
	DocTypeOther         = "other"
)

// ClaimDocument is an uploaded file attached to a claim.
type ClaimDocument struct {
	ID         string    `json:"id"`
	ClaimID    string    `json:"claimId"`
	FileURL    string    `json:"fileUrl"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	DocType    string    `json:"docType"`
	Checksum   string    `json:"checksum,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ApprovalStatus is an admin's verdict on a single document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// DocumentApproval records one review iteration of a claim document.
// A document may accumulate multiple approvals across review rounds;
// the latest one by ReviewedAt is authoritative.
type DocumentApproval struct {
	ID              string         `json:"id"`
	DocumentID      string         `json:"documentId"`
	Status          ApprovalStatus `json:"status"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	ReviewedBy      string         `json:"reviewedBy"`
	ReviewedAt      time.Time      `json:"reviewedAt"`
}

// ClaimSnapshot is a consistent read of a claim and its full document
// review state, taken inside a single repository transaction.
type ClaimSnapshot struct {
	Claim     *Claim
	Documents []*ClaimDocument

	// Approvals maps document ID to its approval history, oldest first.
	Approvals map[string][]*DocumentApproval
}

// LatestApproval returns the most recent approval for a document, or
// nil when the document has not been reviewed yet.
func (s *ClaimSnapshot) LatestApproval(documentID string) *DocumentApproval {
	approvals := s.Approvals[documentID]
	if len(approvals) == 0 {
		return nil
	}
	latest := approvals[0]
	for _, a := range approvals[1:] {
		if a.ReviewedAt.After(latest.ReviewedAt) {
			latest = a
		}
	}
	return latest
}

// ReconcileResult reports the outcome of one reconciliation run.
type ReconcileResult struct {
	ClaimID       string      `json:"claimId"`
	OldStatus     ClaimStatus `json:"oldStatus"`
	NewStatus     ClaimStatus `json:"newStatus"`
	Approved      int         `json:"approved"`
	Rejected      int         `json:"rejected"`
	Pending       int         `json:"pending"`
	StatusChanged bool        `json:"statusChanged"`
	Message       string      `json:"message,omitempty"`
}

// DocumentMatch is a duplicate-document hit on another claim.
type DocumentMatch struct {
	ClaimID     string `json:"claimId"`
	ClaimNumber string `json:"claimNumber"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
}
