package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/audit"
	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/notify"
)

// ErrValidation marks an admin action rejected before any mutation.
var ErrValidation = errors.New("validation failed")

// Actions hosts the explicit admin approve/reject/complete operations.
// These set claim status directly, bypassing document reconciliation;
// the audit write afterwards is best-effort unless the logger is
// strict.
type Actions struct {
	repo     domain.Repository
	auditLog *audit.Logger
	notifier *notify.Dispatcher
}

// NewActions creates the admin action set. Notifier may be nil.
func NewActions(repo domain.Repository, auditLog *audit.Logger, notifier *notify.Dispatcher) *Actions {
	return &Actions{
		repo:     repo,
		auditLog: auditLog,
		notifier: notifier,
	}
}

// ApproveClaim sets the claim approved by explicit admin decision.
func (a *Actions) ApproveClaim(ctx context.Context, claimID, adminID, notes string) (*domain.Claim, error) {
	if adminID == "" {
		return nil, fmt.Errorf("%w: adminID is required", ErrValidation)
	}

	claim, err := a.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	oldStatus := claim.Status
	if err := a.repo.SetClaimStatus(ctx, claimID, domain.StatusApproved, domain.OriginAdmin, nil, notes); err != nil {
		return nil, err
	}

	a.notifyUser(ctx, claim, domain.NotifyClaimApproved, "Claim approved",
		fmt.Sprintf("Your claim %s has been approved.", claim.ClaimNumber))

	if err := a.record(ctx, adminID, domain.ActionClaimApprove, claimID, oldStatus, domain.StatusApproved, notes); err != nil {
		return nil, err
	}

	return a.repo.GetClaim(ctx, claimID)
}

// RejectClaim sets the claim rejected by explicit admin decision.
// A non-empty reason is required.
func (a *Actions) RejectClaim(ctx context.Context, claimID, adminID, reason, notes string) (*domain.Claim, error) {
	if adminID == "" {
		return nil, fmt.Errorf("%w: adminID is required", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	claim, err := a.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	oldStatus := claim.Status
	if err := a.repo.SetClaimStatus(ctx, claimID, domain.StatusRejected, domain.OriginAdmin, &reason, notes); err != nil {
		return nil, err
	}

	a.notifyUser(ctx, claim, domain.NotifyClaimRejected, "Claim rejected",
		fmt.Sprintf("Your claim %s has been rejected. %s", claim.ClaimNumber, reason))

	if err := a.record(ctx, adminID, domain.ActionClaimReject, claimID, oldStatus, domain.StatusRejected, reason); err != nil {
		return nil, err
	}

	return a.repo.GetClaim(ctx, claimID)
}

// CompleteClaim marks an approved claim paid out.
func (a *Actions) CompleteClaim(ctx context.Context, claimID, adminID, notes string) (*domain.Claim, error) {
	if adminID == "" {
		return nil, fmt.Errorf("%w: adminID is required", ErrValidation)
	}

	claim, err := a.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.StatusApproved {
		return nil, fmt.Errorf("%w: only approved claims can be completed (current status %s)", ErrValidation, claim.Status)
	}

	if err := a.repo.SetClaimStatus(ctx, claimID, domain.StatusCompleted, domain.OriginAdmin, nil, notes); err != nil {
		return nil, err
	}

	a.notifyUser(ctx, claim, domain.NotifyClaimCompleted, "Claim completed",
		fmt.Sprintf("Your claim %s has been paid out.", claim.ClaimNumber))

	if err := a.record(ctx, adminID, domain.ActionClaimComplete, claimID, claim.Status, domain.StatusCompleted, notes); err != nil {
		return nil, err
	}

	return a.repo.GetClaim(ctx, claimID)
}

// ReviewDocument records an admin verdict for one document.
// Reconciling the owning claim is left to the caller.
func (a *Actions) ReviewDocument(ctx context.Context, documentID, adminID string, status domain.ApprovalStatus, reason, comments string) (*domain.DocumentApproval, error) {
	if adminID == "" {
		return nil, fmt.Errorf("%w: adminID is required", ErrValidation)
	}
	switch status {
	case domain.ApprovalApproved, domain.ApprovalRejected, domain.ApprovalPending:
	default:
		return nil, fmt.Errorf("%w: unknown approval status %q", ErrValidation, status)
	}
	if status == domain.ApprovalRejected && reason == "" && comments == "" {
		return nil, fmt.Errorf("%w: rejection requires a reason or comments", ErrValidation)
	}

	doc, err := a.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	approval := &domain.DocumentApproval{
		ID:              uuid.New().String(),
		DocumentID:      doc.ID,
		Status:          status,
		RejectionReason: reason,
		Comments:        comments,
		ReviewedBy:      adminID,
		ReviewedAt:      time.Now().UTC(),
	}
	if err := a.repo.SaveApproval(ctx, approval); err != nil {
		return nil, err
	}

	if err := a.record(ctx, adminID, domain.ActionDocumentReview, doc.ID, "", domain.ClaimStatus(status), reason); err != nil {
		return nil, err
	}

	return approval, nil
}

func (a *Actions) record(ctx context.Context, adminID, action, targetID string, oldStatus, newStatus domain.ClaimStatus, reason string) error {
	targetType := domain.TargetClaim
	if action == domain.ActionDocumentReview {
		targetType = domain.TargetDocument
	}

	return a.auditLog.Record(ctx, &domain.AdminLog{
		AdminID:    adminID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		OldValue:   string(oldStatus),
		NewValue:   string(newStatus),
		Reason:     reason,
	})
}

func (a *Actions) notifyUser(ctx context.Context, claim *domain.Claim, notifyType, title, message string) {
	if a.notifier == nil {
		return
	}
	_ = a.notifier.Dispatch(ctx, &domain.Notification{
		UserID:  claim.UserID,
		ClaimID: claim.ID,
		Type:    notifyType,
		Title:   title,
		Message: message,
	})
}
