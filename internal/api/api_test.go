package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-claims/kestrel/internal/audit"
	"github.com/opensource-claims/kestrel/internal/bus"
	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fraud"
	"github.com/opensource-claims/kestrel/internal/history"
	"github.com/opensource-claims/kestrel/internal/notify"
	"github.com/opensource-claims/kestrel/internal/reconcile"
	"github.com/opensource-claims/kestrel/internal/repository"
	"github.com/opensource-claims/kestrel/internal/worker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := fraud.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	cfg := domain.DefaultConfig()
	hist := history.NewService(repo, nil, cfg.Fraud.DuplicateMatchChecksum)
	notifier := notify.NewDispatcher(repo, nil)
	auditLog := audit.NewLogger(repo, cfg.AuditLogStrict)

	handler := NewHandler(HandlerDeps{
		Repo:       repo,
		Bus:        nil,
		History:    hist,
		Evaluator:  fraud.NewEvaluator(repo, hist, nil, engine, cfg.Fraud),
		Classifier: fraud.NewClassifier(repo, nil),
		Engine:     engine,
		Reconciler: reconcile.NewReconciler(repo, nil, notifier),
		Actions:    reconcile.NewActions(repo, auditLog, notifier),
		AuditLog:   auditLog,
		Notifier:   notifier,
		Version:    "test",
		AsyncEval:  false,
		FraudCfg:   cfg.Fraud,
	})

	return NewServer(cfg.Server, handler)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set(AdminIDHeader, "admin-001")
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v (body %s)", err, rec.Body.String())
	}
}

// seedUserPolicy provisions a catalog policy and a purchased instance
// through the API, returning the user policy ID.
func seedUserPolicy(t *testing.T, srv *Server) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/policies", CreatePolicyRequest{
		Name:           "Standard Auto",
		PolicyType:     domain.PolicyAuto,
		Premium:        1200,
		Deductible:     500,
		CoverageAmount: 50000,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating policy, got %d: %s", rec.Code, rec.Body.String())
	}
	var policy domain.Policy
	decodeBody(t, rec, &policy)

	now := time.Now().UTC()
	rec = doRequest(t, srv, http.MethodPost, "/user-policies", CreateUserPolicyRequest{
		UserID:    "user-001",
		PolicyID:  policy.ID,
		StartDate: now.AddDate(0, -6, 0),
		EndDate:   now.AddDate(0, 6, 0),
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating user policy, got %d: %s", rec.Code, rec.Body.String())
	}
	var up domain.UserPolicy
	decodeBody(t, rec, &up)
	return up.ID
}

func fileClaim(t *testing.T, srv *Server, userPolicyID string, amount float64) *domain.Claim {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/claims", CreateClaimRequest{
		UserPolicyID:  userPolicyID,
		ClaimType:     "collision",
		IncidentDate:  time.Now().UTC().AddDate(0, 0, -10),
		AmountClaimed: amount,
	}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 filing claim, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateClaimResponse
	decodeBody(t, rec, &resp)
	return resp.Claim
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}
}

func TestCreateClaim(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)

	t.Run("Validation", func(t *testing.T) {
		cases := []struct {
			name string
			req  CreateClaimRequest
		}{
			{"MissingUserPolicy", CreateClaimRequest{AmountClaimed: 100, IncidentDate: time.Now()}},
			{"NonPositiveAmount", CreateClaimRequest{UserPolicyID: upID, IncidentDate: time.Now()}},
			{"MissingIncidentDate", CreateClaimRequest{UserPolicyID: upID, AmountClaimed: 100}},
			{"UnknownUserPolicy", CreateClaimRequest{UserPolicyID: "nope", AmountClaimed: 100, IncidentDate: time.Now()}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := doRequest(t, srv, http.MethodPost, "/claims", tc.req, false)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("expected 400, got %d", rec.Code)
				}
			})
		}
	})

	t.Run("InlineEvaluation", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/claims", CreateClaimRequest{
			UserPolicyID:  upID,
			ClaimType:     "collision",
			IncidentDate:  time.Now().UTC().AddDate(0, 0, -10),
			AmountClaimed: 15000,
		}, false)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp CreateClaimResponse
		decodeBody(t, rec, &resp)
		if resp.Claim.ClaimNumber == "" {
			t.Error("expected claim number to be assigned")
		}
		if resp.Async {
			t.Error("expected inline evaluation")
		}
		if resp.FlagCount == 0 {
			t.Error("expected a high-amount claim to be flagged at filing")
		}
		if resp.Risk == nil || (resp.Risk.Level != domain.RiskHigh && resp.Risk.Level != domain.RiskCritical) {
			t.Errorf("unexpected risk summary: %+v", resp.Risk)
		}
	})
}

func TestClaimInspection(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)
	claim := fileClaim(t, srv, upID, 15000)

	t.Run("GetClaim", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID, nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got domain.Claim
		decodeBody(t, rec, &got)
		if got.ClaimNumber != claim.ClaimNumber {
			t.Errorf("expected claim number %s, got %s", claim.ClaimNumber, got.ClaimNumber)
		}
	})

	t.Run("UnknownClaim", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/nope", nil, false)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		rec = doRequest(t, srv, http.MethodGet, "/claims/nope/flags", nil, false)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for flags of unknown claim, got %d", rec.Code)
		}
	})

	t.Run("Flags", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID+"/flags", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Flags []*domain.FraudFlag `json:"flags"`
			Count int                 `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count == 0 {
			t.Error("expected flags for a high-amount claim")
		}
	})

	t.Run("Risk", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID+"/risk", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var summary domain.RiskSummary
		decodeBody(t, rec, &summary)
		if summary.Level == domain.RiskLow {
			t.Errorf("unexpected risk level %s", summary.Level)
		}
	})

	t.Run("UserClaims", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/users/user-001/claims", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 1 {
			t.Errorf("expected 1 claim, got %d", body.Count)
		}
	})
}

func TestReEvaluationAppendsFlags(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)
	claim := fileClaim(t, srv, upID, 15000)

	flagCount := func() int {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID+"/flags", nil, false)
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		return body.Count
	}

	before := flagCount()
	rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/evaluate", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if after := flagCount(); after != before*2 {
		t.Errorf("expected flags to double from %d, got %d", before, after)
	}
}

func TestInlineDocumentFiling(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/claims", CreateClaimRequest{
		UserPolicyID:  upID,
		ClaimType:     "collision",
		IncidentDate:  time.Now().UTC().AddDate(0, 0, -10),
		AmountClaimed: 800,
		Documents: []AddDocumentRequest{
			{FileURL: "https://files.example.com/report.pdf", FileName: "report.pdf", FileType: "application/pdf", FileSize: 4096, DocType: domain.DocTypePoliceReport},
			{FileURL: "https://files.example.com/damage.jpg", FileName: "damage.jpg", FileType: "image/jpeg", FileSize: 8192, DocType: domain.DocTypePhoto},
		},
	}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateClaimResponse
	decodeBody(t, rec, &resp)

	t.Run("DocumentsStored", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+resp.Claim.ID+"/documents", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 2 {
			t.Errorf("expected 2 documents, got %d", body.Count)
		}
	})

	t.Run("NoMissingDocsFlag", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+resp.Claim.ID+"/flags", nil, false)
		var body struct {
			Flags []*domain.FraudFlag `json:"flags"`
		}
		decodeBody(t, rec, &body)
		for _, flag := range body.Flags {
			if flag.RuleCode == domain.RuleMissingDocs {
				t.Errorf("missing-documents flag raised despite complete inline set: %s", flag.Details)
			}
		}
	})

	t.Run("RejectsIncompleteDocument", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/claims", CreateClaimRequest{
			UserPolicyID:  upID,
			ClaimType:     "collision",
			IncidentDate:  time.Now().UTC().AddDate(0, 0, -10),
			AmountClaimed: 800,
			Documents:     []AddDocumentRequest{{FileName: "orphan.pdf"}},
		}, false)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for document without fileUrl, got %d", rec.Code)
		}
	})
}

func TestDocumentAttachReEvaluates(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)

	// File with one of the two required documents so the first
	// evaluation flags the missing photo.
	rec := doRequest(t, srv, http.MethodPost, "/claims", CreateClaimRequest{
		UserPolicyID:  upID,
		ClaimType:     "collision",
		IncidentDate:  time.Now().UTC().AddDate(0, 0, -10),
		AmountClaimed: 15000,
		Documents: []AddDocumentRequest{
			{FileURL: "https://files.example.com/report.pdf", FileName: "report.pdf", FileType: "application/pdf", FileSize: 4096, DocType: domain.DocTypePoliceReport},
		},
	}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateClaimResponse
	decodeBody(t, rec, &resp)

	countByCode := func(code string) int {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+resp.Claim.ID+"/flags", nil, false)
		var body struct {
			Flags []*domain.FraudFlag `json:"flags"`
		}
		decodeBody(t, rec, &body)
		n := 0
		for _, flag := range body.Flags {
			if flag.RuleCode == code {
				n++
			}
		}
		return n
	}

	if got := countByCode(domain.RuleMissingDocs); got != 1 {
		t.Fatalf("expected 1 missing-documents flag after filing, got %d", got)
	}
	highBefore := countByCode(domain.RuleHighAmount)

	rec = doRequest(t, srv, http.MethodPost, "/claims/"+resp.Claim.ID+"/documents", AddDocumentRequest{
		FileURL:  "https://files.example.com/damage.jpg",
		FileName: "damage.jpg",
		FileType: "image/jpeg",
		FileSize: 8192,
		DocType:  domain.DocTypePhoto,
	}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding document, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := countByCode(domain.RuleHighAmount); got != highBefore+1 {
		t.Errorf("expected the upload to trigger a fresh evaluation, high-amount flags went %d -> %d", highBefore, got)
	}
	if got := countByCode(domain.RuleMissingDocs); got != 1 {
		t.Errorf("expected no new missing-documents flag once the set is complete, got %d", got)
	}
}

func TestDocumentReviewFlow(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)
	claim := fileClaim(t, srv, upID, 1500)

	addDoc := func(name string) *domain.ClaimDocument {
		rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/documents", AddDocumentRequest{
			FileURL:  "https://files.example.com/" + name,
			FileName: name,
			FileType: "application/pdf",
			FileSize: 2048,
			DocType:  domain.DocTypeInvoice,
		}, false)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 adding document, got %d: %s", rec.Code, rec.Body.String())
		}
		var doc domain.ClaimDocument
		decodeBody(t, rec, &doc)
		return &doc
	}

	doc1 := addDoc("invoice-1.pdf")
	doc2 := addDoc("invoice-2.pdf")

	t.Run("RequiresAdminHeader", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/documents/"+doc1.ID+"/review", ReviewDocumentRequest{
			Status: domain.ApprovalApproved,
		}, false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("ApproveFirstDocument", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/documents/"+doc1.ID+"/review", ReviewDocumentRequest{
			Status: domain.ApprovalApproved,
		}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body struct {
			Reconciliation domain.ReconcileResult `json:"reconciliation"`
		}
		decodeBody(t, rec, &body)
		if body.Reconciliation.NewStatus != domain.StatusUnderReview {
			t.Errorf("expected %s with one document unreviewed, got %s",
				domain.StatusUnderReview, body.Reconciliation.NewStatus)
		}
	})

	t.Run("ApproveSecondDocument", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/documents/"+doc2.ID+"/review", ReviewDocumentRequest{
			Status: domain.ApprovalApproved,
		}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body struct {
			Reconciliation domain.ReconcileResult `json:"reconciliation"`
		}
		decodeBody(t, rec, &body)
		if body.Reconciliation.NewStatus != domain.StatusApproved {
			t.Errorf("expected %s with all documents approved, got %s",
				domain.StatusApproved, body.Reconciliation.NewStatus)
		}
	})

	t.Run("AuditTrail", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID+"/audit", nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count == 0 {
			t.Error("expected audit entries after reconciliation")
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/users/user-001/notifications", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count == 0 {
			t.Error("expected a notification after the status change")
		}
	})
}

func TestAdminDecisions(t *testing.T) {
	srv := newTestServer(t)
	upID := seedUserPolicy(t, srv)

	t.Run("RejectRequiresReason", func(t *testing.T) {
		claim := fileClaim(t, srv, upID, 1500)
		rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/reject", AdminDecisionRequest{}, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("RejectOverridesReconciliation", func(t *testing.T) {
		claim := fileClaim(t, srv, upID, 1500)
		rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/reject", AdminDecisionRequest{
			Reason: "Confirmed duplicate filing",
		}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got domain.Claim
		decodeBody(t, rec, &got)
		if got.Status != domain.StatusRejected {
			t.Errorf("expected status %s, got %s", domain.StatusRejected, got.Status)
		}
		if got.StatusOrigin != domain.OriginAdmin {
			t.Errorf("expected origin %s, got %s", domain.OriginAdmin, got.StatusOrigin)
		}
	})

	t.Run("ApproveThenComplete", func(t *testing.T) {
		claim := fileClaim(t, srv, upID, 1500)
		rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/approve", AdminDecisionRequest{
			Notes: "manual override",
		}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/complete", AdminDecisionRequest{}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got domain.Claim
		decodeBody(t, rec, &got)
		if got.Status != domain.StatusCompleted {
			t.Errorf("expected status %s, got %s", domain.StatusCompleted, got.Status)
		}
	})
}

func TestRuleManagement(t *testing.T) {
	srv := newTestServer(t)

	t.Run("InvalidExpression", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
			Code:       "BROKEN",
			Name:       "Broken rule",
			Expression: "amount >",
			Severity:   domain.SeverityLow,
			Enabled:    true,
		}, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
			Code:       "UNDOCUMENTED_LARGE",
			Name:       "Large claim with no documents",
			Expression: "document_count == 0 && amount > 1000.0",
			Severity:   domain.SeverityLow,
			Enabled:    true,
		}, true)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodPost, "/rules/reload", nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 1 {
			t.Errorf("expected 1 reloaded rule, got %d", body.Count)
		}

		rec = doRequest(t, srv, http.MethodGet, "/rules", nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var list struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &list)
		if list.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", list.Count)
		}
	})
}

func TestClaimNumberFormat(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	n := newClaimNumber(now)
	var datePart string
	var seq int
	if _, err := fmt.Sscanf(n, "CLM-%8s-%06d", &datePart, &seq); err != nil {
		t.Fatalf("unexpected claim number format %q: %v", n, err)
	}
	if datePart != "20260830" {
		t.Errorf("expected date part 20260830, got %s", datePart)
	}
}

// newAsyncTestServer wires a channel bus and a running worker so
// filed claims and document reviews are processed off the request
// path.
func newAsyncTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-async-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := fraud.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	cfg := domain.DefaultConfig()
	hist := history.NewService(repo, nil, cfg.Fraud.DuplicateMatchChecksum)
	notifier := notify.NewDispatcher(repo, eventBus)
	auditLog := audit.NewLogger(repo, cfg.AuditLogStrict)
	evaluator := fraud.NewEvaluator(repo, hist, nil, engine, cfg.Fraud)
	classifier := fraud.NewClassifier(repo, nil)
	reconciler := reconcile.NewReconciler(repo, eventBus, notifier)

	wrk := worker.NewWorker(eventBus, evaluator, classifier, reconciler)
	if err := wrk.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { wrk.Stop() })

	handler := NewHandler(HandlerDeps{
		Repo:       repo,
		Bus:        eventBus,
		History:    hist,
		Evaluator:  evaluator,
		Classifier: classifier,
		Engine:     engine,
		Reconciler: reconciler,
		Actions:    reconcile.NewActions(repo, auditLog, notifier),
		AuditLog:   auditLog,
		Notifier:   notifier,
		Version:    "test",
		AsyncEval:  true,
		FraudCfg:   cfg.Fraud,
	})

	return NewServer(cfg.Server, handler)
}

func TestAsyncDocumentReviewReconcilesViaWorker(t *testing.T) {
	srv := newAsyncTestServer(t)
	upID := seedUserPolicy(t, srv)
	claim := fileClaim(t, srv, upID, 900)

	rec := doRequest(t, srv, http.MethodPost, "/claims/"+claim.ID+"/documents", AddDocumentRequest{
		FileURL:  "https://files.example.com/report.pdf",
		FileName: "report.pdf",
		FileType: "application/pdf",
		FileSize: 4096,
		DocType:  domain.DocTypePoliceReport,
	}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding document, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc domain.ClaimDocument
	decodeBody(t, rec, &doc)

	rec = doRequest(t, srv, http.MethodPost, "/documents/"+doc.ID+"/review", ReviewDocumentRequest{
		Status:   domain.ApprovalApproved,
		Comments: "Legible and complete",
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Async bool `json:"async"`
	}
	decodeBody(t, rec, &body)
	if !body.Async {
		t.Fatal("expected the review to be handed to the worker")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := doRequest(t, srv, http.MethodGet, "/claims/"+claim.ID, nil, false)
		var got domain.Claim
		decodeBody(t, rec, &got)
		if got.Status == domain.StatusApproved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("claim was not reconciled from the review event, status %s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
