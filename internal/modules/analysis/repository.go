package analysis

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const analysisColumns = `id, tenant_id, analysis_date, status, total_users,
	current_monthly_cost, optimized_monthly_cost, savings_monthly, savings_annual,
	recommendation_count, remove_count, downgrade_count, upgrade_count,
	no_change_count, activity_mean, activity_median, activity_stddev,
	error_message, created_at, updated_at`

const recommendationColumns = `id, analysis_id, tenant_id, user_id,
	user_principal_name, current_sku, recommended_sku, action, savings_monthly,
	reason_code, reason_text, status, applied_at, created_at, updated_at`

// Querier is the subset of database/sql used by the repository, satisfied
// by both *sql.DB and *sql.Tx.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Repository persists analyses and their recommendations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an analysis repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "analysis").Logger(),
	}
}

// Insert writes a new analysis row, generating its id when unset.
func (r *Repository) Insert(q Querier, a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO analyses (id, tenant_id, analysis_date, status, error_message,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.AnalysisDate, a.Status, a.ErrorMessage, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis for tenant %s: %w", a.TenantID, err)
	}
	return nil
}

// UpdateCompleted writes the summary and flips the analysis to completed.
func (r *Repository) UpdateCompleted(q Querier, a *Analysis) error {
	a.Status = StatusCompleted
	a.UpdatedAt = time.Now().Unix()

	_, err := q.Exec(`
		UPDATE analyses
		SET status = ?, total_users = ?, current_monthly_cost = ?,
			optimized_monthly_cost = ?, savings_monthly = ?, savings_annual = ?,
			recommendation_count = ?, remove_count = ?, downgrade_count = ?,
			upgrade_count = ?, no_change_count = ?, activity_mean = ?,
			activity_median = ?, activity_stddev = ?, updated_at = ?
		WHERE id = ?`,
		a.Status, a.TotalUsers,
		a.CurrentMonthlyCost.StringFixed(2), a.OptimizedMonthlyCost.StringFixed(2),
		a.SavingsMonthly.StringFixed(2), a.SavingsAnnual.StringFixed(2),
		a.RecommendationCount, a.RemoveCount, a.DowngradeCount,
		a.UpgradeCount, a.NoChangeCount,
		a.ActivityMean, a.ActivityMedian, a.ActivityStddev,
		a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete analysis %s: %w", a.ID, err)
	}
	return nil
}

// MarkFailed flips the analysis to failed and records why.
func (r *Repository) MarkFailed(id, message string) error {
	_, err := r.db.Exec(
		"UPDATE analyses SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		StatusFailed, message, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark analysis %s failed: %w", id, err)
	}
	return nil
}

// GetByID returns an analysis, nil when missing.
func (r *Repository) GetByID(id string) (*Analysis, error) {
	row := r.db.QueryRow("SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", id, err)
	}
	return a, nil
}

// ListByTenant returns a page of a tenant's analyses, newest first, plus the
// total count for pagination.
func (r *Repository) ListByTenant(tenantID string, limit, offset int) ([]Analysis, int, error) {
	var total int
	err := r.db.QueryRow("SELECT COUNT(*) FROM analyses WHERE tenant_id = ?", tenantID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses for tenant %s: %w", tenantID, err)
	}

	rows, err := r.db.Query(`
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE tenant_id = ?
		ORDER BY analysis_date DESC, created_at DESC
		LIMIT ? OFFSET ?`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	return analyses, total, rows.Err()
}

// InsertRecommendation writes one recommendation row, generating its id
// when unset.
func (r *Repository) InsertRecommendation(q Querier, rec *Recommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = RecommendationPending
	}
	now := time.Now().Unix()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO recommendations (id, analysis_id, tenant_id, user_id,
			user_principal_name, current_sku, recommended_sku, action,
			savings_monthly, reason_code, reason_text, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AnalysisID, rec.TenantID, rec.UserID,
		rec.UserPrincipalName, nullIfEmpty(rec.CurrentSku), nullIfEmpty(rec.RecommendedSku),
		rec.Action, rec.SavingsMonthly.StringFixed(2), rec.ReasonCode, rec.ReasonText,
		rec.Status, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation for user %s: %w", rec.UserID, err)
	}
	return nil
}

// ListRecommendations returns an analysis' recommendations, largest savings
// first.
func (r *Repository) ListRecommendations(analysisID string) ([]Recommendation, error) {
	rows, err := r.db.Query(`
		SELECT `+recommendationColumns+`
		FROM recommendations
		WHERE analysis_id = ?
		ORDER BY CAST(savings_monthly AS REAL) DESC, user_principal_name`,
		analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations for analysis %s: %w", analysisID, err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// GetRecommendation returns one recommendation, nil when missing.
func (r *Repository) GetRecommendation(id string) (*Recommendation, error) {
	row := r.db.QueryRow("SELECT "+recommendationColumns+" FROM recommendations WHERE id = ?", id)

	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation %s: %w", id, err)
	}
	return rec, nil
}

// ApplyRecommendation moves a pending recommendation to a terminal status.
// The update is conditional on the row still being pending, so exactly one
// of any concurrent applies wins; applied reports whether this call did.
func (r *Repository) ApplyRecommendation(id, status string) (bool, error) {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		UPDATE recommendations
		SET status = ?, applied_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, now, now, id, RecommendationPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply recommendation %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read apply result for %s: %w", id, err)
	}
	return affected == 1, nil
}

// CountAnalyses returns the total number of analyses.
func (r *Repository) CountAnalyses() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// CountRecommendationsByStatus returns how many recommendations sit in the
// given status.
func (r *Repository) CountRecommendationsByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM recommendations WHERE status = ?", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recommendations: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(s scanner) (*Analysis, error) {
	var a Analysis
	var current, optimized, monthly, annual string

	err := s.Scan(
		&a.ID, &a.TenantID, &a.AnalysisDate, &a.Status, &a.TotalUsers,
		&current, &optimized, &monthly, &annual,
		&a.RecommendationCount, &a.RemoveCount, &a.DowngradeCount,
		&a.UpgradeCount, &a.NoChangeCount,
		&a.ActivityMean, &a.ActivityMedian, &a.ActivityStddev,
		&a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.CurrentMonthlyCost, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("bad current_monthly_cost %q: %w", current, err)
	}
	if a.OptimizedMonthlyCost, err = decimal.NewFromString(optimized); err != nil {
		return nil, fmt.Errorf("bad optimized_monthly_cost %q: %w", optimized, err)
	}
	if a.SavingsMonthly, err = decimal.NewFromString(monthly); err != nil {
		return nil, fmt.Errorf("bad savings_monthly %q: %w", monthly, err)
	}
	if a.SavingsAnnual, err = decimal.NewFromString(annual); err != nil {
		return nil, fmt.Errorf("bad savings_annual %q: %w", annual, err)
	}
	return &a, nil
}

func scanRecommendation(s scanner) (*Recommendation, error) {
	var rec Recommendation
	var current, recommended sql.NullString
	var savings string
	var appliedAt sql.NullInt64

	err := s.Scan(
		&rec.ID, &rec.AnalysisID, &rec.TenantID, &rec.UserID,
		&rec.UserPrincipalName, &current, &recommended, &rec.Action,
		&savings, &rec.ReasonCode, &rec.ReasonText, &rec.Status,
		&appliedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CurrentSku = current.String
	rec.RecommendedSku = recommended.String
	if appliedAt.Valid {
		rec.AppliedAt = &appliedAt.Int64
	}
	if rec.SavingsMonthly, err = decimal.NewFromString(savings); err != nil {
		return nil, fmt.Errorf("bad savings_monthly %q: %w", savings, err)
	}
	return &rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
