// Package history provides claim-history lookups for fraud detection.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Reader is the claim-history surface the fraud rules consume.
type Reader interface {
	ClaimCountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	LatestPriorClaim(ctx context.Context, userPolicyID string, before time.Time, excludeClaimID string) (*domain.Claim, error)
	PriorFlaggedClaimCount(ctx context.Context, userID string, excludeClaimID string) (int64, error)
	DocumentMatches(ctx context.Context, doc *domain.ClaimDocument, excludeClaimID string) ([]*domain.DocumentMatch, error)
}

// Service answers history questions against the repository and keeps
// a windowed filing counter in the cache.
type Service struct {
	repo          domain.Repository
	cache         domain.Cache
	matchChecksum bool
}

// NewService creates a new history service. When matchChecksum is set,
// duplicate-document lookups also match on content checksum.
func NewService(repo domain.Repository, cache domain.Cache, matchChecksum bool) *Service {
	return &Service{
		repo:          repo,
		cache:         cache,
		matchChecksum: matchChecksum,
	}
}

// ClaimCountSince returns how many claims a user filed at or after
// the given time. The windowed filing counter answers first when one
// exists for the requested window; otherwise the repository is
// consulted.
func (s *Service) ClaimCountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}
	if s.cache != nil {
		window := time.Since(since).Round(time.Hour)
		count, err := s.cache.CounterValue(ctx, filingKey(userID, window))
		if err == nil && count > 0 {
			return count, nil
		}
	}
	return s.repo.CountClaimsByUserSince(ctx, userID, since)
}

// LatestPriorClaim returns the user policy's most recent claim filed
// before the given time, or nil when there is none.
func (s *Service) LatestPriorClaim(ctx context.Context, userPolicyID string, before time.Time, excludeClaimID string) (*domain.Claim, error) {
	if userPolicyID == "" {
		return nil, fmt.Errorf("userPolicyID is required")
	}
	return s.repo.LatestPriorClaim(ctx, userPolicyID, before, excludeClaimID)
}

// PriorFlaggedClaimCount returns how many of a user's other claims
// carry medium- or high-severity flags.
func (s *Service) PriorFlaggedClaimCount(ctx context.Context, userID string, excludeClaimID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}
	return s.repo.PriorFlaggedClaimCount(ctx, userID, excludeClaimID)
}

// DocumentMatches returns documents on other claims that match the
// given one by name and size, and optionally by checksum.
func (s *Service) DocumentMatches(ctx context.Context, doc *domain.ClaimDocument, excludeClaimID string) ([]*domain.DocumentMatch, error) {
	checksum := ""
	if s.matchChecksum {
		checksum = doc.Checksum
	}
	return s.repo.FindDocumentMatches(ctx, doc.FileName, doc.FileSize, checksum, excludeClaimID)
}

// RecordFiling bumps the user's windowed filing counter and returns
// the new count. A nil cache disables tracking and returns zero.
func (s *Service) RecordFiling(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, filingKey(userID, window), window)
}

// filingKey names a user's counter for one velocity window, so that
// lookups over a different window never read a mismatched count.
func filingKey(userID string, window time.Duration) string {
	return fmt.Sprintf("filings:%s:%dh", userID, int(window.Hours()))
}
