package domain

import (
	"time"
)

// Severity of a fraud flag.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskLevel is a claim-level classification derived from its flags.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Stable rule codes for the built-in detectors.
const (
	RuleDuplicateDoc       = "DUPLICATE_DOC"
	RuleSuspiciousTiming   = "SUSPICIOUS_TIMING"
	RuleHighAmount         = "HIGH_AMOUNT"
	RuleHighAmountRelative = "HIGH_AMOUNT_RELATIVE"
	RuleMultipleClaims     = "MULTIPLE_CLAIMS"
	RuleMissingDocs        = "MISSING_DOCS"
	RuleAmountVsPremium    = "AMOUNT_VS_PREMIUM"
	RulePriorFraudHistory  = "PRIOR_FRAUD_HISTORY"
	RuleUnrealisticDate    = "UNREALISTIC_DATE"
	RuleNewPolicyClaim     = "NEW_POLICY_CLAIM"
	RuleRapidSuccession    = "RAPID_SUCCESSION"
)

// FraudFlag records that a detection rule fired for a claim.
// Flags are append-only: re-evaluation produces new rows, it never
// mutates or deletes existing ones.
type FraudFlag struct {
	ID        string    `json:"id"`
	ClaimID   string    `json:"claimId"`
	RuleCode  string    `json:"ruleCode"`
	Severity  Severity  `json:"severity"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

// RiskSummary is the classification output for one claim.
type RiskSummary struct {
	ClaimID     string    `json:"claimId"`
	Level       RiskLevel `json:"level"`
	FlagCount   int       `json:"flagCount"`
	HighCount   int       `json:"highCount"`
	MediumCount int       `json:"mediumCount"`
	LowCount    int       `json:"lowCount"`
}
