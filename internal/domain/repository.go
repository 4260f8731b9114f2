package domain

import (
	"context"
	"time"
)

// ReconcileDecision is produced by the reconciliation callback and
// applied atomically by the repository: claim status, rejection
// reason and the audit row commit in one transaction, or not at all.
type ReconcileDecision struct {
	// Skip leaves the claim untouched (no write, no audit row).
	Skip bool

	NewStatus       ClaimStatus
	StatusOrigin    StatusOrigin
	RejectionReason *string
	StatusNotes     string

	// Audit, when non nil, is inserted in the same transaction.
	Audit *AdminLog
}

// DecideFunc inspects a locked claim snapshot and returns the
// decision to apply. Returning an error rolls everything back.
type DecideFunc func(snapshot *ClaimSnapshot) (*ReconcileDecision, error)

// Repository defines the interface for data persistence.
type Repository interface {
	// Claims
	CreateClaim(ctx context.Context, claim *Claim) error
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
	ListClaimsByUser(ctx context.Context, userID string, since time.Time) ([]*Claim, error)
	CountClaimsByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
	LatestPriorClaim(ctx context.Context, userPolicyID string, before time.Time, excludeClaimID string) (*Claim, error)

	// SetClaimStatus is the direct status setter used by explicit
	// admin actions. It locks the claim row for the update.
	SetClaimStatus(ctx context.Context, claimID string, status ClaimStatus, origin StatusOrigin, rejectionReason *string, notes string) error

	// ReconcileClaim locks the claim row, reads a consistent snapshot
	// of its documents and approvals, and applies the returned
	// decision atomically.
	ReconcileClaim(ctx context.Context, claimID string, decide DecideFunc) error

	// Documents and approvals
	AddDocument(ctx context.Context, doc *ClaimDocument) error
	GetDocument(ctx context.Context, documentID string) (*ClaimDocument, error)
	ListDocuments(ctx context.Context, claimID string) ([]*ClaimDocument, error)
	FindDocumentMatches(ctx context.Context, fileName string, fileSize int64, checksum string, excludeClaimID string) ([]*DocumentMatch, error)
	SaveApproval(ctx context.Context, approval *DocumentApproval) error
	ListApprovalsByClaim(ctx context.Context, claimID string) (map[string][]*DocumentApproval, error)

	// Policy catalog (read-mostly; writes are for seeding)
	SavePolicy(ctx context.Context, policy *Policy) error
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)
	SaveUserPolicy(ctx context.Context, up *UserPolicy) error
	GetUserPolicy(ctx context.Context, userPolicyID string) (*UserPolicy, error)

	// Fraud flags (append-only)
	SaveFraudFlag(ctx context.Context, flag *FraudFlag) error
	ListFraudFlags(ctx context.Context, claimID string) ([]*FraudFlag, error)
	PriorFlaggedClaimCount(ctx context.Context, userID string, excludeClaimID string) (int64, error)

	// Audit log (append-only)
	AppendAdminLog(ctx context.Context, entry *AdminLog) error
	ListAdminLogs(ctx context.Context, targetType, targetID string) ([]*AdminLog, error)

	// Notifications
	SaveNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string) ([]*Notification, error)

	// Custom rule configurations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `envconfig:"DB_DRIVER"`

	// SQLite specific
	SQLitePath string `envconfig:"SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `envconfig:"PG_HOST"`
	PostgresPort     int    `envconfig:"PG_PORT"`
	PostgresUser     string `envconfig:"PG_USER"`
	PostgresPassword string `envconfig:"PG_PASSWORD"`
	PostgresDB       string `envconfig:"PG_DB"`
	PostgresSSLMode  string `envconfig:"PG_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME"`
}
