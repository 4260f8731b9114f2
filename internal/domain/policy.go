package domain

import (
	"time"
)

// Policy types offered in the catalog.
const (
	PolicyAuto   = "auto"
	PolicyHealth = "health"
	PolicyHome   = "home"
	PolicyLife   = "life"
	PolicyTravel = "travel"
)

// Policy is a catalog product. Premium is annual.
type Policy struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PolicyType     string    `json:"policyType"`
	Premium        float64   `json:"premium"`
	Deductible     float64   `json:"deductible"`
	CoverageAmount float64   `json:"coverageAmount"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserPolicy is one user's purchased instance of a policy product.
type UserPolicy struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	PolicyID    string    `json:"policyId"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	PurchasedAt time.Time `json:"purchasedAt"`
	Active      bool      `json:"active"`
}
