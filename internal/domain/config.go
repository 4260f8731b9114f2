package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Fraud detection thresholds
	Fraud FraudConfig `json:"fraud"`

	// AsyncEvaluation offloads fraud evaluation to the event bus. The
	// API falls back to inline evaluation when publishing fails.
	AsyncEvaluation bool `json:"asyncEvaluation" envconfig:"ASYNC_EVALUATION"`

	// AuditLogStrict makes audit-log failures fatal for the admin
	// approve/reject wrappers. The reconciler is always strict: its
	// audit row commits in the same transaction as the status change.
	AuditLogStrict bool `json:"auditLogStrict" envconfig:"AUDIT_LOG_STRICT"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" envconfig:"HOST"`
	Port         int    `json:"port" envconfig:"PORT"`
	ReadTimeout  int    `json:"readTimeout" envconfig:"READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" envconfig:"WRITE_TIMEOUT"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"LOG_FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"TRACING_ENABLED"`
	ServiceName string `json:"serviceName" envconfig:"TRACING_SERVICE_NAME"`
}

// FraudConfig carries every numeric threshold used by the built-in
// rules as a named, overridable value. The source history of these
// detectors accumulated divergent copies of "the same" threshold
// (7-day vs 15-day new-policy timing, filename+size vs checksum
// duplicate matching); each variant is kept distinct here instead of
// silently picking one.
type FraudConfig struct {
	// SUSPICIOUS_TIMING: incident within this many days (inclusive)
	// of the policy start date.
	EarlyClaimDays int `json:"earlyClaimDays" envconfig:"FRAUD_EARLY_CLAIM_DAYS"`

	// Optional extension: also flag incidents within NearExpiryDays
	// before the policy end date.
	NearExpiryEnabled bool `json:"nearExpiryEnabled" envconfig:"FRAUD_NEAR_EXPIRY_ENABLED"`
	NearExpiryDays    int  `json:"nearExpiryDays" envconfig:"FRAUD_NEAR_EXPIRY_DAYS"`

	// NEW_POLICY_CLAIM: claim filed within this many days of policy
	// purchase. Deliberately distinct from EarlyClaimDays.
	NewPolicyDays int `json:"newPolicyDays" envconfig:"FRAUD_NEW_POLICY_DAYS"`

	// HIGH_AMOUNT: absolute cutoff in currency units.
	HighAmountThreshold float64 `json:"highAmountThreshold" envconfig:"FRAUD_HIGH_AMOUNT"`

	// HIGH_AMOUNT_RELATIVE: amount exceeding DeductibleMultiple times
	// the deductible, or PremiumMultiple times the monthly premium.
	DeductibleMultiple float64 `json:"deductibleMultiple" envconfig:"FRAUD_DEDUCTIBLE_MULTIPLE"`
	PremiumMultiple    float64 `json:"premiumMultiple" envconfig:"FRAUD_PREMIUM_MULTIPLE"`

	// AMOUNT_VS_PREMIUM: amount exceeding this fraction of the
	// annual premium.
	PremiumRatio float64 `json:"premiumRatio" envconfig:"FRAUD_PREMIUM_RATIO"`

	// MULTIPLE_CLAIMS: more than ClaimWindowMax claims (including the
	// current one) within a trailing ClaimWindowDays window.
	ClaimWindowDays int `json:"claimWindowDays" envconfig:"FRAUD_CLAIM_WINDOW_DAYS"`
	ClaimWindowMax  int `json:"claimWindowMax" envconfig:"FRAUD_CLAIM_WINDOW_MAX"`

	// RAPID_SUCCESSION: another claim on the same user policy within
	// the preceding this many days.
	RapidSuccessionDays int `json:"rapidSuccessionDays" envconfig:"FRAUD_RAPID_SUCCESSION_DAYS"`

	// UNREALISTIC_DATE: incident more than this many years in the past.
	StaleIncidentYears int `json:"staleIncidentYears" envconfig:"FRAUD_STALE_INCIDENT_YEARS"`

	// DUPLICATE_DOC matching and severity variants.
	DuplicateMatchChecksum bool     `json:"duplicateMatchChecksum" envconfig:"FRAUD_DUPLICATE_MATCH_CHECKSUM"`
	DuplicateDocSeverity   Severity `json:"duplicateDocSeverity" envconfig:"FRAUD_DUPLICATE_DOC_SEVERITY"`

	// MISSING_DOCS: required document types per policy type.
	RequiredDocs map[string][]string `json:"requiredDocs" ignored:"true"`

	// MaxWorkers bounds concurrent rule execution per evaluation.
	MaxWorkers int `json:"maxWorkers" envconfig:"FRAUD_MAX_WORKERS"`
}

// DefaultFraudConfig returns the stock thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		EarlyClaimDays:         7,
		NearExpiryEnabled:      false,
		NearExpiryDays:         7,
		NewPolicyDays:          15,
		HighAmountThreshold:    10000,
		DeductibleMultiple:     10,
		PremiumMultiple:        50,
		PremiumRatio:           0.8,
		ClaimWindowDays:        30,
		ClaimWindowMax:         3,
		RapidSuccessionDays:    7,
		StaleIncidentYears:     2,
		DuplicateMatchChecksum: false,
		DuplicateDocSeverity:   SeverityHigh,
		RequiredDocs: map[string][]string{
			PolicyAuto:   {DocTypePoliceReport, DocTypePhoto},
			PolicyHealth: {DocTypeMedicalReport, DocTypePrescription},
			PolicyHome:   {DocTypePhoto, DocTypeInvoice},
		},
		MaxWorkers: 10,
	}
}

// DefaultConfig returns a default configuration: SQLite, in-memory
// LRU cache, channel bus, inline evaluation.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Fraud:           DefaultFraudConfig(),
		AsyncEvaluation: false,
		AuditLogStrict:  false,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}
