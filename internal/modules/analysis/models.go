// Package analysis runs the per-tenant optimization pipeline and stores its
// snapshots: one Analysis row per run with its aggregate summary, and one
// Recommendation row per proposed license change. Completed analyses are
// immutable; only a recommendation's status moves, and only once.
package analysis

import (
	"github.com/shopspring/decimal"
)

// Analysis status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Recommendation status values. Accepted and rejected are terminal.
const (
	RecommendationPending  = "pending"
	RecommendationAccepted = "accepted"
	RecommendationRejected = "rejected"
)

// Apply actions accepted by the recommendation endpoint.
const (
	ApplyAccept = "accept"
	ApplyReject = "reject"
)

// Analysis is one optimization run over a tenant's directory. Money columns
// are decimal with two fractional digits; AnalysisDate is Unix seconds.
type Analysis struct {
	ID                   string          `json:"id"`
	TenantID             string          `json:"tenant_id"`
	AnalysisDate         int64           `json:"analysis_date"`
	Status               string          `json:"status"`
	TotalUsers           int64           `json:"total_users"`
	CurrentMonthlyCost   decimal.Decimal `json:"current_monthly_cost"`
	OptimizedMonthlyCost decimal.Decimal `json:"optimized_monthly_cost"`
	SavingsMonthly       decimal.Decimal `json:"savings_monthly"`
	SavingsAnnual        decimal.Decimal `json:"savings_annual"`
	RecommendationCount  int64           `json:"recommendation_count"`
	RemoveCount          int64           `json:"remove_count"`
	DowngradeCount       int64           `json:"downgrade_count"`
	UpgradeCount         int64           `json:"upgrade_count"`
	NoChangeCount        int64           `json:"no_change_count"`
	ActivityMean         float64         `json:"activity_mean"`
	ActivityMedian       float64         `json:"activity_median"`
	ActivityStddev       float64         `json:"activity_stddev"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	CreatedAt            int64           `json:"created_at"`
	UpdatedAt            int64           `json:"updated_at"`
}

// Recommendation is one proposed license change. CurrentSku and
// RecommendedSku are directory SKU ids; RecommendedSku is empty for
// removals. SavingsMonthly is signed, negative for upgrades.
type Recommendation struct {
	ID                string          `json:"id"`
	AnalysisID        string          `json:"analysis_id"`
	TenantID          string          `json:"tenant_id"`
	UserID            string          `json:"user_id"`
	UserPrincipalName string          `json:"user_principal_name"`
	CurrentSku        string          `json:"current_sku,omitempty"`
	RecommendedSku    string          `json:"recommended_sku,omitempty"`
	Action            string          `json:"action"`
	SavingsMonthly    decimal.Decimal `json:"savings_monthly"`
	ReasonCode        string          `json:"reason_code"`
	ReasonText        string          `json:"reason_text"`
	Status            string          `json:"status"`
	AppliedAt         *int64          `json:"applied_at,omitempty"`
	CreatedAt         int64           `json:"created_at"`
	UpdatedAt         int64           `json:"updated_at"`
}
