package fraud

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// fakeHistory is an in-memory history.Reader for rule tests.
type fakeHistory struct {
	claimCount   int64
	prior        *domain.Claim
	flaggedCount int64
	matches      []*domain.DocumentMatch
	err          error
}

func (f *fakeHistory) ClaimCountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return f.claimCount, f.err
}

func (f *fakeHistory) LatestPriorClaim(ctx context.Context, userPolicyID string, before time.Time, excludeClaimID string) (*domain.Claim, error) {
	return f.prior, f.err
}

func (f *fakeHistory) PriorFlaggedClaimCount(ctx context.Context, userID string, excludeClaimID string) (int64, error) {
	return f.flaggedCount, f.err
}

func (f *fakeHistory) DocumentMatches(ctx context.Context, doc *domain.ClaimDocument, excludeClaimID string) ([]*domain.DocumentMatch, error) {
	return f.matches, f.err
}

func baseInput() *Input {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -6, 0)

	return &Input{
		Claim: &domain.Claim{
			ID:            "claim-001",
			ClaimNumber:   "CLM-20260315-000001",
			UserPolicyID:  "up-001",
			UserID:        "user-001",
			ClaimType:     "auto",
			IncidentDate:  now.AddDate(0, 0, -5),
			AmountClaimed: 2000,
			Status:        domain.StatusPending,
			CreatedAt:     now,
		},
		UserPolicy: &domain.UserPolicy{
			ID:          "up-001",
			UserID:      "user-001",
			PolicyID:    "pol-001",
			StartDate:   start,
			EndDate:     start.AddDate(1, 0, 0),
			PurchasedAt: start,
			Active:      true,
		},
		Policy: &domain.Policy{
			ID:             "pol-001",
			PolicyType:     domain.PolicyAuto,
			Premium:        1200,
			Deductible:     500,
			CoverageAmount: 50000,
		},
		History: &fakeHistory{},
		Now:     now,
	}
}

func runCheck(t *testing.T, check CheckFunc, in *Input) (bool, string) {
	t.Helper()
	triggered, details, err := check(context.Background(), in)
	if err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	return triggered, details
}

func TestSuspiciousTiming(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkSuspiciousTiming(cfg)

	t.Run("ThreeDaysAfterStartTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.StartDate.AddDate(0, 0, 3)

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for incident 3 days after policy start")
		}
		if !strings.Contains(details, "3 days") {
			t.Errorf("details should name the gap, got: %s", details)
		}
	})

	t.Run("TenDaysAfterStartDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.StartDate.AddDate(0, 0, 10)

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger for incident 10 days after policy start")
		}
	})

	t.Run("BoundaryDayTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.StartDate.AddDate(0, 0, cfg.EarlyClaimDays)

		if triggered, _ := runCheck(t, check, in); !triggered {
			t.Errorf("expected trigger exactly %d days after start", cfg.EarlyClaimDays)
		}
	})

	t.Run("NearExpiryDisabledByDefault", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.EndDate.AddDate(0, 0, -2)

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("near-expiry should not trigger when disabled")
		}
	})

	t.Run("NearExpiryEnabled", func(t *testing.T) {
		expiryCfg := cfg
		expiryCfg.NearExpiryEnabled = true
		expiryCheck := checkSuspiciousTiming(expiryCfg)

		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.EndDate.AddDate(0, 0, -2)

		if triggered, _ := runCheck(t, expiryCheck, in); !triggered {
			t.Error("expected trigger for incident 2 days before expiry")
		}
	})

	t.Run("NilPolicyIsGraceful", func(t *testing.T) {
		in := baseInput()
		in.UserPolicy = nil

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger without policy data")
		}
	})
}

func TestHighAmount(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkHighAmount(cfg)

	t.Run("AboveThresholdTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.AmountClaimed = 10001

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger above absolute threshold")
		}
		if !strings.Contains(details, "10001.00") {
			t.Errorf("details should name the amount, got: %s", details)
		}
	})

	t.Run("AtThresholdDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.Claim.AmountClaimed = 10000

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger at exactly the threshold")
		}
	})
}

func TestHighAmountRelative(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkHighAmountRelative(cfg)

	t.Run("ElevenTimesDeductibleTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.AmountClaimed = 11 * in.Policy.Deductible

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger at 11x deductible")
		}
		if !strings.Contains(details, "deductible") {
			t.Errorf("details should name the deductible, got: %s", details)
		}
	})

	t.Run("NineTimesDeductibleDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		// 4500 is also below 50x the monthly premium of 100
		in.Claim.AmountClaimed = 9 * in.Policy.Deductible

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger at 9x deductible")
		}
	})

	t.Run("MonthlyPremiumMultiple", func(t *testing.T) {
		in := baseInput()
		in.Policy.Deductible = 0
		// Monthly premium is 100; 51x exceeds the 50x limit.
		in.Claim.AmountClaimed = 5100

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger above premium multiple")
		}
		if !strings.Contains(details, "premium") {
			t.Errorf("details should name the premium, got: %s", details)
		}
	})

	t.Run("NilPolicyIsGraceful", func(t *testing.T) {
		in := baseInput()
		in.Policy = nil
		in.Claim.AmountClaimed = 1000000

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger without policy data")
		}
	})
}

func TestMultipleClaims(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkMultipleClaims(cfg)

	t.Run("FourClaimsTriggers", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{claimCount: 4}

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger with 4 claims in window")
		}
		if !strings.Contains(details, "4 claims") {
			t.Errorf("details should name the count, got: %s", details)
		}
	})

	t.Run("ThreeClaimsDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{claimCount: 3}

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger with 3 claims in window")
		}
	})
}

func TestMissingDocuments(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkMissingDocuments(cfg)

	t.Run("MissingRequiredTriggers", func(t *testing.T) {
		in := baseInput()
		in.Documents = []*domain.ClaimDocument{
			{DocType: domain.DocTypePhoto},
		}

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for missing police report on auto policy")
		}
		if !strings.Contains(details, domain.DocTypePoliceReport) {
			t.Errorf("details should name the missing type, got: %s", details)
		}
	})

	t.Run("AllRequiredPresent", func(t *testing.T) {
		in := baseInput()
		in.Documents = []*domain.ClaimDocument{
			{DocType: domain.DocTypePoliceReport},
			{DocType: domain.DocTypePhoto},
		}

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger with all required documents")
		}
	})

	t.Run("UnmappedPolicyType", func(t *testing.T) {
		in := baseInput()
		in.Policy.PolicyType = domain.PolicyTravel

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger for policy type without requirements")
		}
	})
}

func TestAmountVsPremium(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkAmountVsPremium(cfg)

	t.Run("AboveRatioTriggers", func(t *testing.T) {
		in := baseInput()
		// 81% of the annual premium of 1200
		in.Claim.AmountClaimed = 972

		if triggered, _ := runCheck(t, check, in); !triggered {
			t.Error("expected trigger above 80% of annual premium")
		}
	})

	t.Run("BelowRatioDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.Claim.AmountClaimed = 900

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger below 80% of annual premium")
		}
	})
}

func TestPriorFraudHistory(t *testing.T) {
	t.Run("PriorFlaggedClaimTriggers", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{flaggedCount: 1}

		if triggered, _ := runCheck(t, checkPriorFraudHistory, in); !triggered {
			t.Error("expected trigger with 1 prior flagged claim")
		}
	})

	t.Run("CleanHistoryDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{flaggedCount: 0}

		if triggered, _ := runCheck(t, checkPriorFraudHistory, in); triggered {
			t.Error("expected no trigger with clean history")
		}
	})

	t.Run("LookupErrorSurfaces", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{err: errors.New("db down")}

		_, _, err := checkPriorFraudHistory(context.Background(), in)
		if err == nil {
			t.Error("expected lookup error to surface to the evaluator")
		}
	})
}

func TestUnrealisticDate(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkUnrealisticDate(cfg)

	t.Run("FutureDateTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.Now.AddDate(0, 0, 1)

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for future incident date")
		}
		if !strings.Contains(details, "future") {
			t.Errorf("details should say future, got: %s", details)
		}
	})

	t.Run("OnPolicyStartDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.StartDate

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("incident exactly on policy start must not trigger")
		}
	})

	t.Run("BeforePolicyStartTriggers", func(t *testing.T) {
		in := baseInput()
		in.Claim.IncidentDate = in.UserPolicy.StartDate.AddDate(0, 0, -1)

		if triggered, _ := runCheck(t, check, in); !triggered {
			t.Error("expected trigger for incident before policy start")
		}
	})

	t.Run("StaleIncidentTriggers", func(t *testing.T) {
		in := baseInput()
		in.UserPolicy.StartDate = in.Now.AddDate(-5, 0, 0)
		in.Claim.IncidentDate = in.Now.AddDate(-3, 0, 0)

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for incident more than 2 years old")
		}
		if !strings.Contains(details, "2 years") {
			t.Errorf("details should name the age limit, got: %s", details)
		}
	})
}

func TestNewPolicyClaim(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkNewPolicyClaim(cfg)

	t.Run("WithinWindowTriggers", func(t *testing.T) {
		in := baseInput()
		in.UserPolicy.PurchasedAt = in.Claim.CreatedAt.AddDate(0, 0, -10)

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for claim 10 days after purchase")
		}
		if !strings.Contains(details, "10 days") {
			t.Errorf("details should name the gap, got: %s", details)
		}
	})

	t.Run("OutsideWindowDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.UserPolicy.PurchasedAt = in.Claim.CreatedAt.AddDate(0, 0, -16)

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger for claim 16 days after purchase")
		}
	})
}

func TestRapidSuccession(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	check := checkRapidSuccession(cfg)

	t.Run("RecentPriorClaimTriggers", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{prior: &domain.Claim{
			ID:          "claim-000",
			ClaimNumber: "CLM-20260312-000009",
			CreatedAt:   in.Claim.CreatedAt.AddDate(0, 0, -3),
		}}

		triggered, details := runCheck(t, check, in)
		if !triggered {
			t.Error("expected trigger for prior claim 3 days earlier")
		}
		if !strings.Contains(details, "CLM-20260312-000009") {
			t.Errorf("details should name the prior claim, got: %s", details)
		}
	})

	t.Run("OldPriorClaimDoesNotTrigger", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{prior: &domain.Claim{
			ID:        "claim-000",
			CreatedAt: in.Claim.CreatedAt.AddDate(0, 0, -20),
		}}

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger for prior claim 20 days earlier")
		}
	})

	t.Run("NoPriorClaim", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{prior: nil}

		if triggered, _ := runCheck(t, check, in); triggered {
			t.Error("expected no trigger without a prior claim")
		}
	})
}

func TestDuplicateDocument(t *testing.T) {
	t.Run("MatchTriggers", func(t *testing.T) {
		in := baseInput()
		in.Documents = []*domain.ClaimDocument{
			{FileName: "report.pdf", FileSize: 12345},
		}
		in.History = &fakeHistory{matches: []*domain.DocumentMatch{
			{ClaimID: "claim-000", ClaimNumber: "CLM-20260201-000004", FileName: "report.pdf", FileSize: 12345},
		}}

		triggered, details := runCheck(t, checkDuplicateDocument, in)
		if !triggered {
			t.Error("expected trigger for matching document on another claim")
		}
		if !strings.Contains(details, "CLM-20260201-000004") {
			t.Errorf("details should reference the other claim's number, got: %s", details)
		}
	})

	t.Run("NoDocuments", func(t *testing.T) {
		in := baseInput()
		in.History = &fakeHistory{matches: []*domain.DocumentMatch{{ClaimNumber: "CLM-X"}}}

		if triggered, _ := runCheck(t, checkDuplicateDocument, in); triggered {
			t.Error("expected no trigger without documents")
		}
	})
}

func TestBuiltinRuleSet(t *testing.T) {
	cfg := domain.DefaultFraudConfig()
	rules := BuiltinRules(cfg)

	if len(rules) != 11 {
		t.Fatalf("expected 11 built-in rules, got %d", len(rules))
	}

	seen := make(map[string]bool)
	for _, rule := range rules {
		if rule.Code == "" || rule.Check == nil {
			t.Errorf("rule %q missing code or check", rule.Code)
		}
		if seen[rule.Code] {
			t.Errorf("duplicate rule code %s", rule.Code)
		}
		seen[rule.Code] = true
	}

	if !seen[domain.RuleHighAmount] || !seen[domain.RuleHighAmountRelative] {
		t.Error("absolute and relative high-amount rules must be distinct codes")
	}
}
