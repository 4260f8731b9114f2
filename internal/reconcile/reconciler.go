// Package reconcile derives a claim's aggregate status from the
// approval state of its documents, and hosts the explicit admin
// approve/reject actions. These are the only two writers of claim
// status; an explicit admin decision takes precedence over
// document-driven reconciliation.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/notify"
	"github.com/opensource-claims/kestrel/internal/repository"
)

// Reconciler recomputes claim status from document approvals. The
// status update, rejection reason and audit row commit in one
// repository transaction.
type Reconciler struct {
	repo     domain.Repository
	bus      domain.EventBus
	notifier *notify.Dispatcher
}

// NewReconciler creates a reconciler. Bus and notifier may be nil.
func NewReconciler(repo domain.Repository, eventBus domain.EventBus, notifier *notify.Dispatcher) *Reconciler {
	return &Reconciler{
		repo:     repo,
		bus:      eventBus,
		notifier: notifier,
	}
}

// Reconcile recomputes the claim's status. A concurrent update is
// retried once; a second conflict surfaces to the caller.
func (r *Reconciler) Reconcile(ctx context.Context, claimID string) (*domain.ReconcileResult, error) {
	result, err := r.reconcileOnce(ctx, claimID)
	if errors.Is(err, repository.ErrConflict) {
		slog.Warn("concurrent reconciliation detected, retrying",
			"claim_id", claimID,
		)
		result, err = r.reconcileOnce(ctx, claimID)
	}
	if err != nil {
		return nil, err
	}

	if result.StatusChanged {
		r.announce(ctx, result)
	}
	return result, nil
}

func (r *Reconciler) reconcileOnce(ctx context.Context, claimID string) (*domain.ReconcileResult, error) {
	var result *domain.ReconcileResult
	var userID string

	err := r.repo.ReconcileClaim(ctx, claimID, func(s *domain.ClaimSnapshot) (*domain.ReconcileDecision, error) {
		userID = s.Claim.UserID
		decision, res := Decide(s)
		result = res
		return decision, nil
	})
	if err != nil {
		return nil, err
	}

	result.ClaimID = claimID
	if result.StatusChanged {
		slog.Info("claim status reconciled",
			"claim_id", claimID,
			"old_status", result.OldStatus,
			"new_status", result.NewStatus,
			"approved", result.Approved,
			"rejected", result.Rejected,
			"pending", result.Pending,
			"user_id", userID,
		)
	}
	return result, nil
}

// Decide is the pure transition function over one claim snapshot.
// Evaluated in order, first match wins:
//
//  1. any document's latest review rejected: claim rejected, with a
//     reason naming every rejected document
//  2. every document reviewed exactly once and approved: claim approved
//  3. any document unreviewed or pending: claim under review
//  4. zero documents: no change
//
// An admin-set terminal status is only revisited when a review newer
// than the claim's last update exists.
func Decide(s *domain.ClaimSnapshot) (*domain.ReconcileDecision, *domain.ReconcileResult) {
	result := &domain.ReconcileResult{
		ClaimID:   s.Claim.ID,
		OldStatus: s.Claim.Status,
		NewStatus: s.Claim.Status,
	}

	if len(s.Documents) == 0 {
		result.Message = "No documents found"
		return &domain.ReconcileDecision{Skip: true}, result
	}

	var rejectedDocs []*domain.ClaimDocument
	singleApproval := true
	var newestReview time.Time

	for _, doc := range s.Documents {
		approvals := s.Approvals[doc.ID]
		if len(approvals) != 1 {
			singleApproval = false
		}
		for _, a := range approvals {
			if a.ReviewedAt.After(newestReview) {
				newestReview = a.ReviewedAt
			}
		}

		switch a := s.LatestApproval(doc.ID); {
		case a == nil || a.Status == domain.ApprovalPending:
			result.Pending++
		case a.Status == domain.ApprovalApproved:
			result.Approved++
		case a.Status == domain.ApprovalRejected:
			result.Rejected++
			rejectedDocs = append(rejectedDocs, doc)
		}
	}

	var newStatus domain.ClaimStatus
	var rejectionReason *string

	switch {
	case result.Rejected > 0:
		newStatus = domain.StatusRejected
		reason := buildRejectionReason(s, rejectedDocs)
		rejectionReason = &reason
	case result.Pending == 0 && result.Approved == len(s.Documents) && singleApproval:
		newStatus = domain.StatusApproved
	default:
		newStatus = domain.StatusUnderReview
	}

	// An explicit admin decision wins: a terminal admin-set status is
	// only downgraded by document evidence newer than that decision.
	if s.Claim.StatusOrigin == domain.OriginAdmin && s.Claim.Status.Terminal() {
		if !newestReview.After(s.Claim.UpdatedAt) {
			result.Message = "status set by admin; no newer document evidence"
			return &domain.ReconcileDecision{Skip: true}, result
		}
	}

	if newStatus == s.Claim.Status {
		result.Message = "status unchanged"
		return &domain.ReconcileDecision{Skip: true}, result
	}

	result.NewStatus = newStatus
	result.StatusChanged = true
	result.Message = fmt.Sprintf("status changed from %s to %s", s.Claim.Status, newStatus)

	return &domain.ReconcileDecision{
		NewStatus:       newStatus,
		StatusOrigin:    domain.OriginSystem,
		RejectionReason: rejectionReason,
		StatusNotes:     fmt.Sprintf("reconciled: %d approved, %d rejected, %d pending", result.Approved, result.Rejected, result.Pending),
		Audit: &domain.AdminLog{
			ID:         uuid.New().String(),
			AdminID:    "system",
			Action:     domain.ActionClaimStatusChange,
			TargetType: domain.TargetClaim,
			TargetID:   s.Claim.ID,
			OldValue:   string(s.Claim.Status),
			NewValue:   string(newStatus),
			Reason:     result.Message,
			Timestamp:  time.Now().UTC(),
		},
	}, result
}

// buildRejectionReason names every rejected document and the reviewer's
// stated reason, falling back to comments or a generic line.
func buildRejectionReason(s *domain.ClaimSnapshot, rejected []*domain.ClaimDocument) string {
	parts := make([]string, 0, len(rejected))
	for _, doc := range rejected {
		label := doc.DocType
		if label == "" {
			label = doc.FileName
		}

		reason := "Document does not meet requirements"
		if a := s.LatestApproval(doc.ID); a != nil {
			if a.RejectionReason != "" {
				reason = a.RejectionReason
			} else if a.Comments != "" {
				reason = a.Comments
			}
		}

		parts = append(parts, fmt.Sprintf("%s: %s", label, reason))
	}
	return "Claim rejected because: " + strings.Join(parts, " | ")
}

// announce emits the status-change notification and bus event.
func (r *Reconciler) announce(ctx context.Context, result *domain.ReconcileResult) {
	claim, err := r.repo.GetClaim(ctx, result.ClaimID)
	if err != nil {
		slog.Warn("failed to load claim for announcement",
			"claim_id", result.ClaimID,
			"error", err,
		)
		return
	}

	if r.notifier != nil {
		n := notificationFor(claim, result)
		if n != nil {
			if err := r.notifier.Dispatch(ctx, n); err != nil {
				slog.Warn("notification dispatch failed",
					"claim_id", claim.ID,
					"error", err,
				)
			}
		}
	}

	if r.bus != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			err = r.bus.Publish(ctx, domain.TopicStatusChanged, payload)
		}
		if err != nil {
			slog.Warn("status change publish failed",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	}
}

func notificationFor(claim *domain.Claim, result *domain.ReconcileResult) *domain.Notification {
	switch result.NewStatus {
	case domain.StatusApproved:
		return &domain.Notification{
			UserID:  claim.UserID,
			ClaimID: claim.ID,
			Type:    domain.NotifyClaimApproved,
			Title:   "Claim approved",
			Message: fmt.Sprintf("Your claim %s has been approved.", claim.ClaimNumber),
		}
	case domain.StatusRejected:
		msg := fmt.Sprintf("Your claim %s has been rejected.", claim.ClaimNumber)
		if claim.RejectionReason != nil {
			msg = fmt.Sprintf("Your claim %s has been rejected. %s", claim.ClaimNumber, *claim.RejectionReason)
		}
		return &domain.Notification{
			UserID:  claim.UserID,
			ClaimID: claim.ID,
			Type:    domain.NotifyClaimRejected,
			Title:   "Claim rejected",
			Message: msg,
		}
	case domain.StatusUnderReview:
		return &domain.Notification{
			UserID:  claim.UserID,
			ClaimID: claim.ID,
			Type:    domain.NotifyClaimUnderReview,
			Title:   "Claim under review",
			Message: fmt.Sprintf("Your claim %s is under review.", claim.ClaimNumber),
		}
	default:
		return nil
	}
}
