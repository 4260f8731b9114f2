package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    claim_number TEXT NOT NULL UNIQUE,
    user_policy_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    claim_type TEXT NOT NULL,
    incident_date TIMESTAMP NOT NULL,
    amount_claimed REAL NOT NULL,
    status TEXT NOT NULL,
    status_origin TEXT NOT NULL DEFAULT 'system',
    status_notes TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_user ON claims(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_user_policy ON claims(user_policy_id, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
`

const schemaClaimDocuments = `
CREATE TABLE IF NOT EXISTS claim_documents (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
    file_url TEXT NOT NULL,
    file_name TEXT NOT NULL,
    file_type TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    doc_type TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    uploaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_documents_claim ON claim_documents(claim_id);
CREATE INDEX IF NOT EXISTS idx_claim_documents_file ON claim_documents(file_name, file_size);
CREATE INDEX IF NOT EXISTS idx_claim_documents_checksum ON claim_documents(checksum);
`

const schemaDocumentApprovals = `
CREATE TABLE IF NOT EXISTS document_approvals (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES claim_documents(id) ON DELETE CASCADE,
    status TEXT NOT NULL,
    rejection_reason TEXT NOT NULL DEFAULT '',
    comments TEXT NOT NULL DEFAULT '',
    reviewed_by TEXT NOT NULL,
    reviewed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_approvals_document ON document_approvals(document_id, reviewed_at);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    policy_type TEXT NOT NULL,
    premium REAL NOT NULL,
    deductible REAL NOT NULL,
    coverage_amount REAL NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_policies (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    policy_id TEXT NOT NULL REFERENCES policies(id),
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    purchased_at TIMESTAMP NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_user_policies_user ON user_policies(user_id);
`

const schemaFraudFlags = `
CREATE TABLE IF NOT EXISTS fraud_flags (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
    rule_code TEXT NOT NULL,
    severity TEXT NOT NULL,
    details TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_flags_claim ON fraud_flags(claim_id);
CREATE INDEX IF NOT EXISTS idx_fraud_flags_severity ON fraud_flags(claim_id, severity);
`

const schemaAdminLogs = `
CREATE TABLE IF NOT EXISTS admin_logs (
    id TEXT PRIMARY KEY,
    admin_id TEXT NOT NULL,
    action TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    old_value TEXT NOT NULL DEFAULT '',
    new_value TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_admin_logs_target ON admin_logs(target_type, target_id, timestamp);
`

const schemaNotifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaClaimDocuments,
		schemaDocumentApprovals,
		schemaPolicies,
		schemaFraudFlags,
		schemaAdminLogs,
		schemaNotifications,
		schemaRuleConfigs,
	}
}
