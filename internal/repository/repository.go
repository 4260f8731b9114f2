// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict signals a concurrent status update; callers may
	// retry the reconciliation once.
	ErrConflict = errors.New("concurrent claim update")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const claimColumns = `id, claim_number, user_policy_id, user_id, claim_type,
	   incident_date, amount_claimed, status, status_origin, status_notes,
	   rejection_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var c domain.Claim
	var rejection sql.NullString

	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.UserPolicyID, &c.UserID, &c.ClaimType,
		&c.IncidentDate, &c.AmountClaimed, &c.Status, &c.StatusOrigin, &c.StatusNotes,
		&rejection, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rejection.Valid {
		c.RejectionReason = &rejection.String
	}
	return &c, nil
}

// CreateClaim stores a new claim.
func (r *SQLRepository) CreateClaim(ctx context.Context, claim *domain.Claim) error {
	if claim.ID == "" || claim.ClaimNumber == "" {
		return fmt.Errorf("%w: claim id and number are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO claims (
			id, claim_number, user_policy_id, user_id, claim_type,
			incident_date, amount_claimed, status, status_origin, status_notes,
			rejection_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, claim.ClaimNumber, claim.UserPolicyID, claim.UserID, claim.ClaimType,
		claim.IncidentDate, claim.AmountClaimed, claim.Status, claim.StatusOrigin, claim.StatusNotes,
		nullString(claim.RejectionReason), claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ListClaimsByUser retrieves a user's claims created at or after since.
func (r *SQLRepository) ListClaimsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// CountClaimsByUserSince counts a user's claims created at or after since.
func (r *SQLRepository) CountClaimsByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM claims WHERE user_id = ? AND created_at >= ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LatestPriorClaim returns the most recent claim on a user policy
// created before the given time, excluding one claim id. Returns
// nil, nil when there is no prior claim.
func (r *SQLRepository) LatestPriorClaim(ctx context.Context, userPolicyID string, before time.Time, excludeClaimID string) (*domain.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE user_policy_id = ? AND id != ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), userPolicyID, excludeClaimID, before))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// SetClaimStatus updates claim status directly. Used by explicit
// admin actions; document-driven updates go through ReconcileClaim.
func (r *SQLRepository) SetClaimStatus(ctx context.Context, claimID string, status domain.ClaimStatus, origin domain.StatusOrigin, rejectionReason *string, notes string) error {
	query := `
		UPDATE claims
		SET status = ?, status_origin = ?, rejection_reason = ?, status_notes = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		status, origin, nullString(rejectionReason), notes, time.Now().UTC(), claimID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ReconcileClaim locks the claim row, reads a consistent snapshot of
// its documents and approvals, and applies the callback's decision.
// Status, rejection reason and the audit row commit atomically; any
// error rolls the whole update back.
func (r *SQLRepository) ReconcileClaim(ctx context.Context, claimID string, decide domain.DecideFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?` + r.lockClause()

	claim, err := scanClaim(tx.QueryRowContext(ctx, r.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	docs, err := r.listDocumentsTx(ctx, tx, claimID)
	if err != nil {
		return err
	}

	approvals, err := r.listApprovalsTx(ctx, tx, claimID)
	if err != nil {
		return err
	}

	decision, err := decide(&domain.ClaimSnapshot{
		Claim:     claim,
		Documents: docs,
		Approvals: approvals,
	})
	if err != nil {
		return err
	}

	if decision == nil || decision.Skip {
		// Nothing to write; commit to release the row lock.
		return tx.Commit()
	}

	update := `
		UPDATE claims
		SET status = ?, status_origin = ?, rejection_reason = ?, status_notes = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, r.rebind(update),
		decision.NewStatus, decision.StatusOrigin, nullString(decision.RejectionReason),
		decision.StatusNotes, time.Now().UTC(), claimID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}

	if decision.Audit != nil {
		if err := r.appendAdminLogTx(ctx, tx, decision.Audit); err != nil {
			return fmt.Errorf("audit log write failed: %w", err)
		}
	}

	return tx.Commit()
}

// lockClause returns the row-locking suffix for claim reads inside a
// transaction. SQLite serializes writers at the connection level, so
// only PostgreSQL needs an explicit FOR UPDATE.
func (r *SQLRepository) lockClause() string {
	if r.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// AddDocument stores a claim document.
func (r *SQLRepository) AddDocument(ctx context.Context, doc *domain.ClaimDocument) error {
	if doc.ClaimID == "" {
		return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO claim_documents (
			id, claim_id, file_url, file_name, file_type, file_size, doc_type, checksum, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		doc.ID, doc.ClaimID, doc.FileURL, doc.FileName, doc.FileType,
		doc.FileSize, doc.DocType, doc.Checksum, doc.UploadedAt,
	)
	return err
}

const documentColumns = `id, claim_id, file_url, file_name, file_type, file_size, doc_type, checksum, uploaded_at`

func scanDocument(row rowScanner) (*domain.ClaimDocument, error) {
	var d domain.ClaimDocument
	err := row.Scan(
		&d.ID, &d.ClaimID, &d.FileURL, &d.FileName, &d.FileType,
		&d.FileSize, &d.DocType, &d.Checksum, &d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument retrieves a document by ID.
func (r *SQLRepository) GetDocument(ctx context.Context, documentID string) (*domain.ClaimDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM claim_documents WHERE id = ?`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, r.rebind(query), documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments retrieves all documents attached to a claim.
func (r *SQLRepository) ListDocuments(ctx context.Context, claimID string) ([]*domain.ClaimDocument, error) {
	return r.listDocuments(ctx, r.db, claimID)
}

func (r *SQLRepository) listDocumentsTx(ctx context.Context, tx *sql.Tx, claimID string) ([]*domain.ClaimDocument, error) {
	return r.listDocuments(ctx, tx, claimID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLRepository) listDocuments(ctx context.Context, q querier, claimID string) ([]*domain.ClaimDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM claim_documents WHERE claim_id = ? ORDER BY uploaded_at`

	rows, err := q.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.ClaimDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindDocumentMatches searches other claims for documents matching
// by (file_name, file_size), or by checksum when one is provided.
func (r *SQLRepository) FindDocumentMatches(ctx context.Context, fileName string, fileSize int64, checksum string, excludeClaimID string) ([]*domain.DocumentMatch, error) {
	query := `
		SELECT d.claim_id, c.claim_number, d.file_name, d.file_size
		FROM claim_documents d
		JOIN claims c ON c.id = d.claim_id
		WHERE d.claim_id != ? AND d.file_name = ? AND d.file_size = ?
	`
	args := []any{excludeClaimID, fileName, fileSize}

	if checksum != "" {
		query = `
			SELECT d.claim_id, c.claim_number, d.file_name, d.file_size
			FROM claim_documents d
			JOIN claims c ON c.id = d.claim_id
			WHERE d.claim_id != ?
			  AND ((d.file_name = ? AND d.file_size = ?) OR (d.checksum != '' AND d.checksum = ?))
		`
		args = append(args, checksum)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.DocumentMatch
	for rows.Next() {
		var m domain.DocumentMatch
		if err := rows.Scan(&m.ClaimID, &m.ClaimNumber, &m.FileName, &m.FileSize); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// SaveApproval stores a document approval record.
func (r *SQLRepository) SaveApproval(ctx context.Context, approval *domain.DocumentApproval) error {
	if approval.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO document_approvals (
			id, document_id, status, rejection_reason, comments, reviewed_by, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		approval.ID, approval.DocumentID, approval.Status,
		approval.RejectionReason, approval.Comments, approval.ReviewedBy, approval.ReviewedAt,
	)
	return err
}

// ListApprovalsByClaim returns every approval for a claim's
// documents, keyed by document ID, oldest first.
func (r *SQLRepository) ListApprovalsByClaim(ctx context.Context, claimID string) (map[string][]*domain.DocumentApproval, error) {
	return r.listApprovals(ctx, r.db, claimID)
}

func (r *SQLRepository) listApprovalsTx(ctx context.Context, tx *sql.Tx, claimID string) (map[string][]*domain.DocumentApproval, error) {
	return r.listApprovals(ctx, tx, claimID)
}

func (r *SQLRepository) listApprovals(ctx context.Context, q querier, claimID string) (map[string][]*domain.DocumentApproval, error) {
	query := `
		SELECT a.id, a.document_id, a.status, a.rejection_reason, a.comments, a.reviewed_by, a.reviewed_at
		FROM document_approvals a
		JOIN claim_documents d ON d.id = a.document_id
		WHERE d.claim_id = ?
		ORDER BY a.reviewed_at
	`

	rows, err := q.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	approvals := make(map[string][]*domain.DocumentApproval)
	for rows.Next() {
		var a domain.DocumentApproval
		if err := rows.Scan(
			&a.ID, &a.DocumentID, &a.Status, &a.RejectionReason,
			&a.Comments, &a.ReviewedBy, &a.ReviewedAt,
		); err != nil {
			return nil, err
		}
		approvals[a.DocumentID] = append(approvals[a.DocumentID], &a)
	}
	return approvals, rows.Err()
}

// SavePolicy stores a catalog policy.
func (r *SQLRepository) SavePolicy(ctx context.Context, policy *domain.Policy) error {
	query := `
		INSERT INTO policies (id, name, policy_type, premium, deductible, coverage_amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, policy.Name, policy.PolicyType, policy.Premium,
		policy.Deductible, policy.CoverageAmount, policy.Description, policy.CreatedAt,
	)
	return err
}

// GetPolicy retrieves a catalog policy by ID.
func (r *SQLRepository) GetPolicy(ctx context.Context, policyID string) (*domain.Policy, error) {
	query := `
		SELECT id, name, policy_type, premium, deductible, coverage_amount, description, created_at
		FROM policies WHERE id = ?
	`

	var p domain.Policy
	err := r.db.QueryRowContext(ctx, r.rebind(query), policyID).Scan(
		&p.ID, &p.Name, &p.PolicyType, &p.Premium,
		&p.Deductible, &p.CoverageAmount, &p.Description, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveUserPolicy stores a purchased policy instance.
func (r *SQLRepository) SaveUserPolicy(ctx context.Context, up *domain.UserPolicy) error {
	active := 0
	if up.Active {
		active = 1
	}

	query := `
		INSERT INTO user_policies (id, user_id, policy_id, start_date, end_date, purchased_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		up.ID, up.UserID, up.PolicyID, up.StartDate, up.EndDate, up.PurchasedAt, active,
	)
	return err
}

// GetUserPolicy retrieves a purchased policy instance by ID.
func (r *SQLRepository) GetUserPolicy(ctx context.Context, userPolicyID string) (*domain.UserPolicy, error) {
	query := `
		SELECT id, user_id, policy_id, start_date, end_date, purchased_at, active
		FROM user_policies WHERE id = ?
	`

	var up domain.UserPolicy
	var active int
	err := r.db.QueryRowContext(ctx, r.rebind(query), userPolicyID).Scan(
		&up.ID, &up.UserID, &up.PolicyID, &up.StartDate, &up.EndDate, &up.PurchasedAt, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	up.Active = active == 1
	return &up, nil
}

// SaveFraudFlag appends a fraud flag. Flags are never updated or
// deleted by the engine.
func (r *SQLRepository) SaveFraudFlag(ctx context.Context, flag *domain.FraudFlag) error {
	query := `
		INSERT INTO fraud_flags (id, claim_id, rule_code, severity, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		flag.ID, flag.ClaimID, flag.RuleCode, flag.Severity, flag.Details, flag.CreatedAt,
	)
	return err
}

// ListFraudFlags retrieves all flags for a claim, oldest first.
func (r *SQLRepository) ListFraudFlags(ctx context.Context, claimID string) ([]*domain.FraudFlag, error) {
	query := `
		SELECT id, claim_id, rule_code, severity, details, created_at
		FROM fraud_flags
		WHERE claim_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []*domain.FraudFlag
	for rows.Next() {
		var f domain.FraudFlag
		if err := rows.Scan(&f.ID, &f.ClaimID, &f.RuleCode, &f.Severity, &f.Details, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, &f)
	}
	return flags, rows.Err()
}

// PriorFlaggedClaimCount counts a user's claims, excluding one, that
// carry at least one medium- or high-severity flag.
func (r *SQLRepository) PriorFlaggedClaimCount(ctx context.Context, userID string, excludeClaimID string) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT f.claim_id)
		FROM fraud_flags f
		JOIN claims c ON c.id = f.claim_id
		WHERE c.user_id = ? AND f.claim_id != ? AND f.severity IN (?, ?)
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		userID, excludeClaimID, domain.SeverityMedium, domain.SeverityHigh,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AppendAdminLog appends an audit record.
func (r *SQLRepository) AppendAdminLog(ctx context.Context, entry *domain.AdminLog) error {
	query := `
		INSERT INTO admin_logs (id, admin_id, action, target_type, target_id, old_value, new_value, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.AdminID, entry.Action, entry.TargetType, entry.TargetID,
		entry.OldValue, entry.NewValue, entry.Reason, entry.Timestamp,
	)
	return err
}

func (r *SQLRepository) appendAdminLogTx(ctx context.Context, tx *sql.Tx, entry *domain.AdminLog) error {
	query := `
		INSERT INTO admin_logs (id, admin_id, action, target_type, target_id, old_value, new_value, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.AdminID, entry.Action, entry.TargetType, entry.TargetID,
		entry.OldValue, entry.NewValue, entry.Reason, entry.Timestamp,
	)
	return err
}

// ListAdminLogs retrieves audit records for a target, oldest first.
func (r *SQLRepository) ListAdminLogs(ctx context.Context, targetType, targetID string) ([]*domain.AdminLog, error) {
	query := `
		SELECT id, admin_id, action, target_type, target_id, old_value, new_value, reason, timestamp
		FROM admin_logs
		WHERE target_type = ? AND target_id = ?
		ORDER BY timestamp, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AdminLog
	for rows.Next() {
		var l domain.AdminLog
		if err := rows.Scan(
			&l.ID, &l.AdminID, &l.Action, &l.TargetType, &l.TargetID,
			&l.OldValue, &l.NewValue, &l.Reason, &l.Timestamp,
		); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// SaveNotification stores a user notification.
func (r *SQLRepository) SaveNotification(ctx context.Context, n *domain.Notification) error {
	read := 0
	if n.Read {
		read = 1
	}

	query := `
		INSERT INTO notifications (id, user_id, claim_id, type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		n.ID, n.UserID, n.ClaimID, n.Type, n.Title, n.Message, read, n.CreatedAt,
	)
	return err
}

// ListNotifications retrieves a user's notifications, newest first.
func (r *SQLRepository) ListNotifications(ctx context.Context, userID string) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, claim_id, type, title, message, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.ClaimID, &n.Type, &n.Title, &n.Message, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read == 1
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// SaveRuleConfig stores or updates a custom rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (id, code, name, description, expression, severity, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Code, rule.Name, rule.Description,
		rule.Expression, rule.Severity, enabled, now, now,
	)
	return err
}

// ListRuleConfigs retrieves all enabled custom rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, code, name, description, expression, severity, enabled, created_at, updated_at
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int
		if err := rows.Scan(
			&cfg.ID, &cfg.Code, &cfg.Name, &cfg.Description,
			&cfg.Expression, &cfg.Severity, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
