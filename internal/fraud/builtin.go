package fraud

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// BuiltinRules returns the stock detection rules with thresholds
// taken from the configuration.
func BuiltinRules(cfg domain.FraudConfig) []Rule {
	return []Rule{
		{Code: domain.RuleDuplicateDoc, Severity: cfg.DuplicateDocSeverity, Check: checkDuplicateDocument},
		{Code: domain.RuleSuspiciousTiming, Severity: domain.SeverityMedium, Check: checkSuspiciousTiming(cfg)},
		{Code: domain.RuleHighAmount, Severity: domain.SeverityHigh, Check: checkHighAmount(cfg)},
		{Code: domain.RuleHighAmountRelative, Severity: domain.SeverityMedium, Check: checkHighAmountRelative(cfg)},
		{Code: domain.RuleMultipleClaims, Severity: domain.SeverityMedium, Check: checkMultipleClaims(cfg)},
		{Code: domain.RuleMissingDocs, Severity: domain.SeverityLow, Check: checkMissingDocuments(cfg)},
		{Code: domain.RuleAmountVsPremium, Severity: domain.SeverityLow, Check: checkAmountVsPremium(cfg)},
		{Code: domain.RulePriorFraudHistory, Severity: domain.SeverityHigh, Check: checkPriorFraudHistory},
		{Code: domain.RuleUnrealisticDate, Severity: domain.SeverityHigh, Check: checkUnrealisticDate(cfg)},
		{Code: domain.RuleNewPolicyClaim, Severity: domain.SeverityMedium, Check: checkNewPolicyClaim(cfg)},
		{Code: domain.RuleRapidSuccession, Severity: domain.SeverityMedium, Check: checkRapidSuccession(cfg)},
	}
}

// checkDuplicateDocument searches other claims for a document with the
// same file name and size as any document on this claim.
func checkDuplicateDocument(ctx context.Context, in *Input) (bool, string, error) {
	if in.History == nil {
		return false, "", nil
	}

	for _, doc := range in.Documents {
		matches, err := in.History.DocumentMatches(ctx, doc, in.Claim.ID)
		if err != nil {
			return false, "", err
		}
		if len(matches) > 0 {
			m := matches[0]
			return true, fmt.Sprintf(
				"document %s (%d bytes) also appears on claim %s",
				doc.FileName, doc.FileSize, m.ClaimNumber,
			), nil
		}
	}
	return false, "", nil
}

// checkSuspiciousTiming flags incidents falling within the early days
// of the policy, and optionally within the final days before expiry.
func checkSuspiciousTiming(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.UserPolicy == nil {
			return false, "", nil
		}

		daysSinceStart := int(in.Claim.IncidentDate.Sub(in.UserPolicy.StartDate).Hours() / 24)
		if daysSinceStart >= 0 && daysSinceStart <= cfg.EarlyClaimDays {
			return true, fmt.Sprintf(
				"incident occurred %d days after policy start (early-claim window is %d days)",
				daysSinceStart, cfg.EarlyClaimDays,
			), nil
		}

		if cfg.NearExpiryEnabled {
			daysBeforeEnd := int(in.UserPolicy.EndDate.Sub(in.Claim.IncidentDate).Hours() / 24)
			if daysBeforeEnd >= 0 && daysBeforeEnd <= cfg.NearExpiryDays {
				return true, fmt.Sprintf(
					"incident occurred %d days before policy expiry (near-expiry window is %d days)",
					daysBeforeEnd, cfg.NearExpiryDays,
				), nil
			}
		}

		return false, "", nil
	}
}

// checkHighAmount flags claims above the absolute currency cutoff.
func checkHighAmount(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.Claim.AmountClaimed > cfg.HighAmountThreshold {
			return true, fmt.Sprintf(
				"claim amount %.2f exceeds the absolute threshold of %.2f",
				in.Claim.AmountClaimed, cfg.HighAmountThreshold,
			), nil
		}
		return false, "", nil
	}
}

// checkHighAmountRelative flags claims that dwarf the policy's
// deductible or monthly premium.
func checkHighAmountRelative(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.Policy == nil {
			return false, "", nil
		}

		amount := in.Claim.AmountClaimed

		if in.Policy.Deductible > 0 && amount > cfg.DeductibleMultiple*in.Policy.Deductible {
			return true, fmt.Sprintf(
				"claim amount %.2f is %.1fx the deductible of %.2f (limit %.0fx)",
				amount, amount/in.Policy.Deductible, in.Policy.Deductible, cfg.DeductibleMultiple,
			), nil
		}

		monthly := in.Policy.Premium / 12
		if monthly > 0 && amount > cfg.PremiumMultiple*monthly {
			return true, fmt.Sprintf(
				"claim amount %.2f is %.1fx the monthly premium of %.2f (limit %.0fx)",
				amount, amount/monthly, monthly, cfg.PremiumMultiple,
			), nil
		}

		return false, "", nil
	}
}

// checkMultipleClaims flags users filing more than the allowed number
// of claims, across all their policies, within the trailing window.
func checkMultipleClaims(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.History == nil {
			return false, "", nil
		}

		since := in.Now.AddDate(0, 0, -cfg.ClaimWindowDays)
		count, err := in.History.ClaimCountSince(ctx, in.Claim.UserID, since)
		if err != nil {
			return false, "", err
		}

		// Count includes the current claim, already persisted.
		if count > int64(cfg.ClaimWindowMax) {
			return true, fmt.Sprintf(
				"%d claims filed in the last %d days (limit %d)",
				count, cfg.ClaimWindowDays, cfg.ClaimWindowMax,
			), nil
		}
		return false, "", nil
	}
}

// checkMissingDocuments flags claims whose attached document types do
// not cover the required set for the policy type.
func checkMissingDocuments(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.Policy == nil {
			return false, "", nil
		}

		required := cfg.RequiredDocs[in.Policy.PolicyType]
		if len(required) == 0 {
			return false, "", nil
		}

		attached := make(map[string]bool, len(in.Documents))
		for _, doc := range in.Documents {
			attached[doc.DocType] = true
		}

		var missing []string
		for _, docType := range required {
			if !attached[docType] {
				missing = append(missing, docType)
			}
		}

		if len(missing) > 0 {
			return true, fmt.Sprintf(
				"%s policy requires document types [%s]; missing [%s]",
				in.Policy.PolicyType, strings.Join(required, ", "), strings.Join(missing, ", "),
			), nil
		}
		return false, "", nil
	}
}

// checkAmountVsPremium is the softer review signal: the claim exceeds
// a fraction of the annual premium.
func checkAmountVsPremium(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.Policy == nil || in.Policy.Premium <= 0 {
			return false, "", nil
		}

		limit := cfg.PremiumRatio * in.Policy.Premium
		if in.Claim.AmountClaimed > limit {
			return true, fmt.Sprintf(
				"claim amount %.2f exceeds %.0f%% of the annual premium %.2f",
				in.Claim.AmountClaimed, cfg.PremiumRatio*100, in.Policy.Premium,
			), nil
		}
		return false, "", nil
	}
}

// checkPriorFraudHistory flags users with at least one other claim
// carrying a medium- or high-severity flag.
func checkPriorFraudHistory(ctx context.Context, in *Input) (bool, string, error) {
	if in.History == nil {
		return false, "", nil
	}

	count, err := in.History.PriorFlaggedClaimCount(ctx, in.Claim.UserID, in.Claim.ID)
	if err != nil {
		return false, "", err
	}

	if count >= 1 {
		return true, fmt.Sprintf("user has %d prior claims with medium or high severity flags", count), nil
	}
	return false, "", nil
}

// checkUnrealisticDate flags incidents in the future, before the
// policy start, or too far in the past. An incident exactly on the
// policy start date is acceptable.
func checkUnrealisticDate(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		incident := in.Claim.IncidentDate

		if incident.After(in.Now) {
			return true, fmt.Sprintf("incident date %s is in the future", incident.Format("2006-01-02")), nil
		}

		if in.UserPolicy != nil && incident.Before(in.UserPolicy.StartDate) {
			return true, fmt.Sprintf(
				"incident date %s predates the policy start %s",
				incident.Format("2006-01-02"), in.UserPolicy.StartDate.Format("2006-01-02"),
			), nil
		}

		if incident.Before(in.Now.AddDate(-cfg.StaleIncidentYears, 0, 0)) {
			return true, fmt.Sprintf(
				"incident date %s is more than %d years old",
				incident.Format("2006-01-02"), cfg.StaleIncidentYears,
			), nil
		}

		return false, "", nil
	}
}

// checkNewPolicyClaim flags claims filed soon after policy purchase.
// Distinct window from the suspicious-timing rule.
func checkNewPolicyClaim(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.UserPolicy == nil {
			return false, "", nil
		}

		days := int(in.Claim.CreatedAt.Sub(in.UserPolicy.PurchasedAt).Hours() / 24)
		if days >= 0 && days <= cfg.NewPolicyDays {
			return true, fmt.Sprintf(
				"claim filed %d days after policy purchase (new-policy window is %d days)",
				days, cfg.NewPolicyDays,
			), nil
		}
		return false, "", nil
	}
}

// checkRapidSuccession flags back-to-back claims on the same user
// policy, reporting the specific prior claim and the gap.
func checkRapidSuccession(cfg domain.FraudConfig) CheckFunc {
	return func(ctx context.Context, in *Input) (bool, string, error) {
		if in.History == nil {
			return false, "", nil
		}

		prior, err := in.History.LatestPriorClaim(ctx, in.Claim.UserPolicyID, in.Claim.CreatedAt, in.Claim.ID)
		if err != nil {
			return false, "", err
		}
		if prior == nil {
			return false, "", nil
		}

		gap := int(in.Claim.CreatedAt.Sub(prior.CreatedAt).Hours() / 24)
		if gap <= cfg.RapidSuccessionDays {
			return true, fmt.Sprintf(
				"claim %s on the same policy was filed %d days earlier (window is %d days)",
				prior.ClaimNumber, gap, cfg.RapidSuccessionDays,
			), nil
		}
		return false, "", nil
	}
}
