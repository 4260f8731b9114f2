package domain

import (
	"time"
)

// RuleConfig is an admin-defined custom fraud rule. The expression is
// a CEL program over claim variables that must evaluate to bool; a
// true result persists a FraudFlag with the configured severity,
// exactly like a built-in rule firing.
type RuleConfig struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
