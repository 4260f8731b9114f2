package api

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/audit"
	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fraud"
	"github.com/opensource-claims/kestrel/internal/history"
	"github.com/opensource-claims/kestrel/internal/notify"
	"github.com/opensource-claims/kestrel/internal/reconcile"
	"github.com/opensource-claims/kestrel/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	history    *history.Service
	evaluator  *fraud.Evaluator
	classifier *fraud.Classifier
	engine     *fraud.Engine
	reconciler *reconcile.Reconciler
	actions    *reconcile.Actions
	auditLog   *audit.Logger
	notifier   *notify.Dispatcher

	version   string
	asyncEval bool
	fraudCfg  domain.FraudConfig
}

// HandlerDeps bundles the constructor arguments.
type HandlerDeps struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	History    *history.Service
	Evaluator  *fraud.Evaluator
	Classifier *fraud.Classifier
	Engine     *fraud.Engine
	Reconciler *reconcile.Reconciler
	Actions    *reconcile.Actions
	AuditLog   *audit.Logger
	Notifier   *notify.Dispatcher

	Version   string
	AsyncEval bool
	FraudCfg  domain.FraudConfig
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		history:    deps.History,
		evaluator:  deps.Evaluator,
		classifier: deps.Classifier,
		engine:     deps.Engine,
		reconciler: deps.Reconciler,
		actions:    deps.Actions,
		auditLog:   deps.AuditLog,
		notifier:   deps.Notifier,
		version:    deps.Version,
		asyncEval:  deps.AsyncEval,
		fraudCfg:   deps.FraudCfg,
	}
}

// newClaimNumber builds a human-readable claim reference like
// CLM-20260830-193042.
func newClaimNumber(now time.Time) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	n := binary.BigEndian.Uint32(b[:]) % 1000000
	return fmt.Sprintf("CLM-%s-%06d", now.Format("20060102"), n)
}

// writeError maps sentinel errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput), errors.Is(err, reconcile.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// CreateClaimRequest is the request body for POST /claims. Documents
// attached inline are stored before the first evaluation runs, so
// document-driven rules see them from the start.
type CreateClaimRequest struct {
	UserPolicyID  string               `json:"userPolicyId"`
	ClaimType     string               `json:"claimType"`
	IncidentDate  time.Time            `json:"incidentDate"`
	AmountClaimed float64              `json:"amountClaimed"`
	Documents     []AddDocumentRequest `json:"documents,omitempty"`
}

// CreateClaimResponse is the response for POST /claims.
type CreateClaimResponse struct {
	Claim     *domain.Claim       `json:"claim"`
	Risk      *domain.RiskSummary `json:"risk,omitempty"`
	FlagCount int                 `json:"flagCount"`
	Async     bool                `json:"async"`
}

// CreateClaim handles POST /claims: the claim and any inline documents
// are stored, the filing is counted against the user's velocity window,
// and fraud evaluation runs inline or is handed to the worker.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.UserPolicyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userPolicyId is required",
		})
		return
	}
	if req.AmountClaimed <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amountClaimed must be positive",
		})
		return
	}
	if req.IncidentDate.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "incidentDate is required",
		})
		return
	}
	for _, d := range req.Documents {
		if d.FileName == "" || d.FileURL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "each document requires fileName and fileUrl",
			})
			return
		}
	}

	up, err := h.repo.GetUserPolicy(ctx, req.UserPolicyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "user policy not found",
			})
			return
		}
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:            uuid.New().String(),
		ClaimNumber:   newClaimNumber(now),
		UserPolicyID:  up.ID,
		UserID:        up.UserID,
		ClaimType:     req.ClaimType,
		IncidentDate:  req.IncidentDate.UTC(),
		AmountClaimed: req.AmountClaimed,
		Status:        domain.StatusPending,
		StatusOrigin:  domain.OriginSystem,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.repo.CreateClaim(ctx, claim); err != nil {
		slog.Error("failed to create claim", "error", err)
		writeError(w, err)
		return
	}
	claimsFiledTotal.Inc()

	for _, d := range req.Documents {
		doc := &domain.ClaimDocument{
			ID:         uuid.New().String(),
			ClaimID:    claim.ID,
			FileURL:    d.FileURL,
			FileName:   d.FileName,
			FileType:   d.FileType,
			FileSize:   d.FileSize,
			DocType:    d.DocType,
			Checksum:   d.Checksum,
			UploadedAt: now,
		}
		if err := h.repo.AddDocument(ctx, doc); err != nil {
			slog.Error("failed to attach inline document",
				"claim_id", claim.ID,
				"file_name", d.FileName,
				"error", err,
			)
			writeError(w, err)
			return
		}
	}

	if h.history != nil {
		window := time.Duration(h.fraudCfg.ClaimWindowDays) * 24 * time.Hour
		if _, err := h.history.RecordFiling(ctx, claim.UserID, window); err != nil {
			slog.Warn("failed to record filing counter",
				"user_id", claim.UserID,
				"error", err,
			)
		}
	}

	resp := CreateClaimResponse{Claim: claim}

	if h.asyncEval && h.publishClaimEvent(ctx, domain.TopicClaimFiled, claim) {
		resp.Async = true
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	// Inline evaluation, also the fallback when publishing fails.
	flags, err := h.evaluator.Evaluate(ctx, claim.ID)
	if err != nil {
		slog.Error("inline fraud evaluation failed",
			"claim_id", claim.ID,
			"error", err,
		)
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	evaluationsTotal.Inc()
	for _, flag := range flags {
		fraudFlagsTotal.WithLabelValues(flag.RuleCode).Inc()
	}

	summary, err := h.classifier.Classify(ctx, claim.ID)
	if err != nil {
		slog.Error("risk classification failed",
			"claim_id", claim.ID,
			"error", err,
		)
	} else {
		resp.Risk = summary
	}
	resp.FlagCount = len(flags)

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) publishClaimEvent(ctx context.Context, topic string, claim *domain.Claim) bool {
	if h.bus == nil {
		return false
	}
	payload, err := json.Marshal(map[string]string{
		"claimId":     claim.ID,
		"claimNumber": claim.ClaimNumber,
		"userId":      claim.UserID,
	})
	if err == nil {
		err = h.bus.Publish(ctx, topic, payload)
	}
	if err != nil {
		slog.Warn("claim event publish failed, falling back to inline processing",
			"claim_id", claim.ID,
			"topic", topic,
			"error", err,
		)
		return false
	}
	return true
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.repo.GetClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// ListUserClaims handles GET /users/{id}/claims.
func (h *Handler) ListUserClaims(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC 3339",
			})
			return
		}
		since = parsed
	}

	claims, err := h.repo.ListClaimsByUser(r.Context(), userID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claims": claims,
		"count":  len(claims),
	})
}

// EvaluateClaim handles POST /claims/{id}/evaluate: a forced
// re-evaluation. Flags append; earlier flags are never removed.
func (h *Handler) EvaluateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := chi.URLParam(r, "id")

	flags, err := h.evaluator.Evaluate(ctx, claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	evaluationsTotal.Inc()
	for _, flag := range flags {
		fraudFlagsTotal.WithLabelValues(flag.RuleCode).Inc()
	}

	summary, err := h.classifier.Classify(ctx, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flags": flags,
		"risk":  summary,
	})
}

// ListFlags handles GET /claims/{id}/flags.
func (h *Handler) ListFlags(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	// 404 for unknown claims rather than an empty list.
	if _, err := h.repo.GetClaim(r.Context(), claimID); err != nil {
		writeError(w, err)
		return
	}

	flags, err := h.repo.ListFraudFlags(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"flags": flags,
		"count": len(flags),
	})
}

// GetRisk handles GET /claims/{id}/risk.
func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	if _, err := h.repo.GetClaim(r.Context(), claimID); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.classifier.Classify(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AddDocumentRequest is the request body for POST /claims/{id}/documents.
type AddDocumentRequest struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	DocType  string `json:"docType"`
	Checksum string `json:"checksum,omitempty"`
}

// AddDocument handles POST /claims/{id}/documents. Files live in
// external storage; only metadata is recorded here. The claim is
// re-evaluated afterwards so document-driven rules see the new
// evidence.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := chi.URLParam(r, "id")

	var req AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.FileName == "" || req.FileURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fileName and fileUrl are required",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	doc := &domain.ClaimDocument{
		ID:         uuid.New().String(),
		ClaimID:    claimID,
		FileURL:    req.FileURL,
		FileName:   req.FileName,
		FileType:   req.FileType,
		FileSize:   req.FileSize,
		DocType:    req.DocType,
		Checksum:   req.Checksum,
		UploadedAt: time.Now().UTC(),
	}
	if err := h.repo.AddDocument(ctx, doc); err != nil {
		writeError(w, err)
		return
	}

	if h.asyncEval && h.publishClaimEvent(ctx, domain.TopicClaimFiled, claim) {
		writeJSON(w, http.StatusCreated, doc)
		return
	}
	if flags, err := h.evaluator.Evaluate(ctx, claimID); err != nil {
		slog.Error("re-evaluation after document upload failed",
			"claim_id", claimID,
			"error", err,
		)
	} else {
		evaluationsTotal.Inc()
		for _, flag := range flags {
			fraudFlagsTotal.WithLabelValues(flag.RuleCode).Inc()
		}
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments handles GET /claims/{id}/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	if _, err := h.repo.GetClaim(r.Context(), claimID); err != nil {
		writeError(w, err)
		return
	}

	docs, err := h.repo.ListDocuments(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// ReviewDocumentRequest is the request body for POST /documents/{id}/review.
type ReviewDocumentRequest struct {
	Status          domain.ApprovalStatus `json:"status"`
	RejectionReason string                `json:"rejectionReason,omitempty"`
	Comments        string                `json:"comments,omitempty"`
}

// ReviewDocument handles POST /documents/{id}/review: the admin's
// verdict is recorded, then the owning claim is reconciled, inline or
// by the worker over the bus.
func (h *Handler) ReviewDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := chi.URLParam(r, "id")
	adminID := GetAdminID(ctx)

	var req ReviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	approval, err := h.actions.ReviewDocument(ctx, documentID, adminID, req.Status, req.RejectionReason, req.Comments)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.repo.GetDocument(ctx, documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.asyncEval && h.publishReviewEvent(ctx, doc) {
		writeJSON(w, http.StatusOK, map[string]any{
			"approval": approval,
			"async":    true,
		})
		return
	}

	// Inline reconciliation, also the fallback when publishing fails.
	result, err := h.reconciler.Reconcile(ctx, doc.ClaimID)
	if err != nil {
		writeError(w, err)
		return
	}
	reconciliationsTotal.WithLabelValues(fmt.Sprintf("%t", result.StatusChanged)).Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"approval":       approval,
		"reconciliation": result,
	})
}

func (h *Handler) publishReviewEvent(ctx context.Context, doc *domain.ClaimDocument) bool {
	if h.bus == nil {
		return false
	}
	payload, err := json.Marshal(map[string]string{
		"claimId":    doc.ClaimID,
		"documentId": doc.ID,
	})
	if err == nil {
		err = h.bus.Publish(ctx, domain.TopicDocumentReviewed, payload)
	}
	if err != nil {
		slog.Warn("review event publish failed, reconciling inline",
			"claim_id", doc.ClaimID,
			"document_id", doc.ID,
			"error", err,
		)
		return false
	}
	return true
}

// ReconcileClaim handles POST /claims/{id}/reconcile.
func (h *Handler) ReconcileClaim(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	reconciliationsTotal.WithLabelValues(fmt.Sprintf("%t", result.StatusChanged)).Inc()
	writeJSON(w, http.StatusOK, result)
}

// AdminDecisionRequest is the request body for approve/reject/complete.
type AdminDecisionRequest struct {
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// ApproveClaim handles POST /claims/{id}/approve.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	var req AdminDecisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	claim, err := h.actions.ApproveClaim(r.Context(), chi.URLParam(r, "id"), GetAdminID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// RejectClaim handles POST /claims/{id}/reject.
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	var req AdminDecisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	claim, err := h.actions.RejectClaim(r.Context(), chi.URLParam(r, "id"), GetAdminID(r.Context()), req.Reason, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// CompleteClaim handles POST /claims/{id}/complete.
func (h *Handler) CompleteClaim(w http.ResponseWriter, r *http.Request) {
	var req AdminDecisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	claim, err := h.actions.CompleteClaim(r.Context(), chi.URLParam(r, "id"), GetAdminID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// GetAuditTrail handles GET /claims/{id}/audit.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	if _, err := h.repo.GetClaim(r.Context(), claimID); err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.auditLog.List(r.Context(), domain.TargetClaim, claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": logs,
		"count":   len(logs),
	})
}

// ListNotifications handles GET /users/{id}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notifier.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// CreatePolicyRequest is the request body for POST /policies.
type CreatePolicyRequest struct {
	Name           string  `json:"name"`
	PolicyType     string  `json:"policyType"`
	Premium        float64 `json:"premium"`
	Deductible     float64 `json:"deductible"`
	CoverageAmount float64 `json:"coverageAmount"`
	Description    string  `json:"description,omitempty"`
}

// CreatePolicy handles POST /policies (catalog seeding).
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Name == "" || req.PolicyType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and policyType are required",
		})
		return
	}

	policy := &domain.Policy{
		ID:             uuid.New().String(),
		Name:           req.Name,
		PolicyType:     req.PolicyType,
		Premium:        req.Premium,
		Deductible:     req.Deductible,
		CoverageAmount: req.CoverageAmount,
		Description:    req.Description,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.repo.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

// GetPolicy handles GET /policies/{id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.repo.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// CreateUserPolicyRequest is the request body for POST /user-policies.
type CreateUserPolicyRequest struct {
	UserID    string    `json:"userId"`
	PolicyID  string    `json:"policyId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// CreateUserPolicy handles POST /user-policies.
func (h *Handler) CreateUserPolicy(w http.ResponseWriter, r *http.Request) {
	var req CreateUserPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" || req.PolicyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId and policyId are required",
		})
		return
	}

	if _, err := h.repo.GetPolicy(r.Context(), req.PolicyID); err != nil {
		writeError(w, err)
		return
	}

	up := &domain.UserPolicy{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		PolicyID:    req.PolicyID,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		PurchasedAt: time.Now().UTC(),
		Active:      true,
	}
	if err := h.repo.SaveUserPolicy(r.Context(), up); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

// ListRules returns the custom rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Severity    domain.Severity `json:"severity"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule creates a custom CEL rule and saves it to the database.
// The rule participates in evaluation after POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Code == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	switch severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be low, medium, or high",
		})
		return
	}

	now := time.Now().UTC()
	ruleConfig := &domain.RuleConfig{
		ID:          uuid.New().String(),
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Reject invalid CEL up front.
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "code", ruleConfig.Code, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("rule created", "code", ruleConfig.Code, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads enabled rules from the database into the
// engine without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, err)
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
