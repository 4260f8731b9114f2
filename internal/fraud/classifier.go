package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Classifier derives a claim-level risk level from its persisted
// fraud flags. Summaries are cached briefly; the evaluator clears the
// cache entry when it appends new flags.
type Classifier struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

// NewClassifier creates a risk classifier. Cache may be nil.
func NewClassifier(repo domain.Repository, cacheStore domain.Cache) *Classifier {
	return &Classifier{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: time.Minute,
	}
}

func riskCacheKey(claimID string) string {
	return "risk:" + claimID
}

// Classify aggregates the claim's flags into a risk summary.
// Precedence: two or more high flags is CRITICAL, one high is HIGH,
// two or more medium (with no high) is MEDIUM, anything else is LOW.
// A claim with zero flags is LOW.
func (c *Classifier) Classify(ctx context.Context, claimID string) (*domain.RiskSummary, error) {
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, riskCacheKey(claimID)); err == nil && data != nil {
			var summary domain.RiskSummary
			if err := json.Unmarshal(data, &summary); err == nil {
				return &summary, nil
			}
		}
	}

	flags, err := c.repo.ListFraudFlags(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}

	summary := Summarize(claimID, flags)

	if c.cache != nil {
		if data, err := json.Marshal(summary); err == nil {
			_ = c.cache.Set(ctx, riskCacheKey(claimID), data, c.cacheTTL)
		}
	}

	return summary, nil
}

// Summarize computes the risk summary for a flag set.
func Summarize(claimID string, flags []*domain.FraudFlag) *domain.RiskSummary {
	summary := &domain.RiskSummary{
		ClaimID:   claimID,
		FlagCount: len(flags),
	}

	for _, flag := range flags {
		switch flag.Severity {
		case domain.SeverityHigh:
			summary.HighCount++
		case domain.SeverityMedium:
			summary.MediumCount++
		default:
			summary.LowCount++
		}
	}

	switch {
	case summary.HighCount >= 2:
		summary.Level = domain.RiskCritical
	case summary.HighCount >= 1:
		summary.Level = domain.RiskHigh
	case summary.MediumCount >= 2:
		summary.Level = domain.RiskMedium
	default:
		summary.Level = domain.RiskLow
	}

	return summary
}
