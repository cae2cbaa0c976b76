package directory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so sync writes can run
// inside the per-sync transaction while plain reads go to the pool.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const userColumns = `id, tenant_id, external_id, principal_name, display_name, account_enabled,
department, job_title, preferred_language, created_at, updated_at`

const assignmentColumns = `id, user_id, sku_id, assigned_at, status, source, created_at, updated_at`

const usageColumns = `id, user_id, period, report_date, emails_sent, emails_received,
mailbox_bytes, onedrive_bytes, onedrive_files_modified, teams_messages, teams_meetings,
teams_calls, sharepoint_views, sharepoint_edits, office_web_edits, has_desktop_activation,
exchange_last_activity, onedrive_last_activity, sharepoint_last_activity, teams_last_activity,
last_seen_date, inactivity_days, created_at, updated_at`

// Repository handles persistence for users, license assignments, and usage
// metrics.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a directory repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "directory").Logger(),
	}
}

// UpsertUser inserts or updates a user by external directory id and reports
// whether a new row was created. Writes go through q so the caller can scope
// them to a transaction.
func (r *Repository) UpsertUser(q Querier, u *User) (bool, error) {
	var existingID string
	err := q.QueryRow("SELECT id FROM users WHERE external_id = ?", u.ExternalID).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to look up user %s: %w", u.ExternalID, err)
	}

	now := time.Now().Unix()
	if existingID != "" {
		u.ID = existingID
		u.UpdatedAt = now
		_, err = q.Exec(`
			UPDATE users
			SET principal_name = ?, display_name = ?, account_enabled = ?, department = ?,
				job_title = ?, preferred_language = ?, updated_at = ?
			WHERE id = ?`,
			u.PrincipalName, u.DisplayName, boolToInt(u.AccountEnabled), u.Department,
			u.JobTitle, u.PreferredLanguage, u.UpdatedAt, u.ID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update user %s: %w", u.ExternalID, err)
		}
		return false, nil
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err = q.Exec(`
		INSERT INTO users (id, tenant_id, external_id, principal_name, display_name,
			account_enabled, department, job_title, preferred_language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.ExternalID, u.PrincipalName, u.DisplayName,
		boolToInt(u.AccountEnabled), u.Department, u.JobTitle, u.PreferredLanguage,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user %s: %w", u.ExternalID, err)
	}
	return true, nil
}

// GetUserByID returns a user by internal id, nil when missing.
func (r *Repository) GetUserByID(id string) (*User, error) {
	return r.getUser("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetUserByExternalID returns a user by external directory id, nil when
// missing.
func (r *Repository) GetUserByExternalID(externalID string) (*User, error) {
	return r.getUser("SELECT "+userColumns+" FROM users WHERE external_id = ?", externalID)
}

func (r *Repository) getUser(query string, arg interface{}) (*User, error) {
	u, err := scanUser(r.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// ListUsersByTenant returns all users of a tenant ordered by principal name.
func (r *Repository) ListUsersByTenant(tenantID string) ([]User, error) {
	rows, err := r.db.Query(
		"SELECT "+userColumns+" FROM users WHERE tenant_id = ? ORDER BY principal_name", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsersByTenant returns the number of synced users for a tenant.
func (r *Repository) CountUsersByTenant(tenantID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM users WHERE tenant_id = ?", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ReplaceAssignments reconciles a user's license assignments against the
// latest upstream snapshot: every listed SKU is upserted and assignments for
// SKUs no longer present are deleted. The delete is scoped to this user only.
func (r *Repository) ReplaceAssignments(q Querier, userID string, skuIDs []string) (upserted, removed int, err error) {
	now := time.Now().Unix()

	for _, skuID := range skuIDs {
		_, err = q.Exec(`
			INSERT INTO license_assignments (id, user_id, sku_id, status, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, sku_id) DO UPDATE SET updated_at = excluded.updated_at`,
			uuid.New().String(), userID, skuID, AssignmentActive, SourceManual, now, now,
		)
		if err != nil {
			return upserted, removed, fmt.Errorf("failed to upsert assignment %s for user %s: %w", skuID, userID, err)
		}
		upserted++
	}

	var res sql.Result
	if len(skuIDs) == 0 {
		res, err = q.Exec("DELETE FROM license_assignments WHERE user_id = ?", userID)
	} else {
		placeholders := strings.Repeat("?,", len(skuIDs))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, 0, len(skuIDs)+1)
		args = append(args, userID)
		for _, skuID := range skuIDs {
			args = append(args, skuID)
		}
		res, err = q.Exec(
			"DELETE FROM license_assignments WHERE user_id = ? AND sku_id NOT IN ("+placeholders+")", args...)
	}
	if err != nil {
		return upserted, removed, fmt.Errorf("failed to remove stale assignments for user %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return upserted, removed, fmt.Errorf("failed to read removed assignment count: %w", err)
	}
	return upserted, int(affected), nil
}

// ListAssignmentsByUser returns a user's assignments ordered by SKU id.
func (r *Repository) ListAssignmentsByUser(userID string) ([]LicenseAssignment, error) {
	rows, err := r.db.Query(
		"SELECT "+assignmentColumns+" FROM license_assignments WHERE user_id = ? ORDER BY sku_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// AssignmentsByTenant returns every assignment of a tenant's users grouped by
// user id, for the analysis snapshot load.
func (r *Repository) AssignmentsByTenant(tenantID string) (map[string][]LicenseAssignment, error) {
	rows, err := r.db.Query(`
		SELECT `+prefixColumns(assignmentColumns, "la")+`
		FROM license_assignments la
		JOIN users u ON u.id = la.user_id
		WHERE u.tenant_id = ?
		ORDER BY la.user_id, la.sku_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant assignments: %w", err)
	}
	defer rows.Close()

	assignments, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]LicenseAssignment)
	for _, a := range assignments {
		grouped[a.UserID] = append(grouped[a.UserID], a)
	}
	return grouped, nil
}

func collectAssignments(rows *sql.Rows) ([]LicenseAssignment, error) {
	var assignments []LicenseAssignment
	for rows.Next() {
		var a LicenseAssignment
		var assignedAt sql.NullInt64
		err := rows.Scan(&a.ID, &a.UserID, &a.SkuID, &assignedAt, &a.Status, &a.Source,
			&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if assignedAt.Valid {
			a.AssignedAt = &assignedAt.Int64
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// UpsertUsage inserts or replaces one usage snapshot keyed by
// (user, period, report_date).
func (r *Repository) UpsertUsage(q Querier, m *UsageMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO usage_metrics (id, user_id, period, report_date, emails_sent, emails_received,
			mailbox_bytes, onedrive_bytes, onedrive_files_modified, teams_messages, teams_meetings,
			teams_calls, sharepoint_views, sharepoint_edits, office_web_edits, has_desktop_activation,
			exchange_last_activity, onedrive_last_activity, sharepoint_last_activity, teams_last_activity,
			last_seen_date, inactivity_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, period, report_date) DO UPDATE SET
			emails_sent = excluded.emails_sent,
			emails_received = excluded.emails_received,
			mailbox_bytes = excluded.mailbox_bytes,
			onedrive_bytes = excluded.onedrive_bytes,
			onedrive_files_modified = excluded.onedrive_files_modified,
			teams_messages = excluded.teams_messages,
			teams_meetings = excluded.teams_meetings,
			teams_calls = excluded.teams_calls,
			sharepoint_views = excluded.sharepoint_views,
			sharepoint_edits = excluded.sharepoint_edits,
			office_web_edits = excluded.office_web_edits,
			has_desktop_activation = excluded.has_desktop_activation,
			exchange_last_activity = excluded.exchange_last_activity,
			onedrive_last_activity = excluded.onedrive_last_activity,
			sharepoint_last_activity = excluded.sharepoint_last_activity,
			teams_last_activity = excluded.teams_last_activity,
			last_seen_date = excluded.last_seen_date,
			inactivity_days = excluded.inactivity_days,
			updated_at = excluded.updated_at`,
		m.ID, m.UserID, m.Period, m.ReportDate, m.EmailsSent, m.EmailsReceived,
		m.MailboxBytes, m.OneDriveBytes, m.OneDriveFilesModified, m.TeamsMessages, m.TeamsMeetings,
		m.TeamsCalls, m.SharePointViews, m.SharePointEdits, m.OfficeWebEdits,
		boolToInt(m.HasDesktopActivation),
		nullIfEmpty(m.ExchangeLastActivity), nullIfEmpty(m.OneDriveLastActivity),
		nullIfEmpty(m.SharePointLastActivity), nullIfEmpty(m.TeamsLastActivity),
		nullIfEmpty(m.LastSeenDate), m.InactivityDays, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert usage metrics for user %s: %w", m.UserID, err)
	}
	return nil
}

// LatestUsageByUser returns the most recent usage snapshot for a user within
// a period, nil when the user has no usage rows.
func (r *Repository) LatestUsageByUser(userID, period string) (*UsageMetrics, error) {
	row := r.db.QueryRow(`
		SELECT `+usageColumns+` FROM usage_metrics
		WHERE user_id = ? AND period = ?
		ORDER BY report_date DESC LIMIT 1`, userID, period)

	m, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan usage metrics: %w", err)
	}
	return m, nil
}

// LatestUsageByTenant returns each user's most recent usage snapshot within a
// period, keyed by user id. Users without usage rows are absent from the map.
func (r *Repository) LatestUsageByTenant(tenantID, period string) (map[string]*UsageMetrics, error) {
	rows, err := r.db.Query(`
		SELECT `+prefixColumns(usageColumns, "um")+`
		FROM usage_metrics um
		JOIN (
			SELECT user_id, MAX(report_date) AS max_date
			FROM usage_metrics
			WHERE period = ?
			GROUP BY user_id
		) latest ON latest.user_id = um.user_id AND latest.max_date = um.report_date
		JOIN users u ON u.id = um.user_id
		WHERE um.period = ? AND u.tenant_id = ?`, period, period, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant usage metrics: %w", err)
	}
	defer rows.Close()

	byUser := make(map[string]*UsageMetrics)
	for rows.Next() {
		m, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage metrics: %w", err)
		}
		byUser[m.UserID] = m
	}
	return byUser, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var enabled int
	err := s.Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.PrincipalName, &u.DisplayName, &enabled,
		&u.Department, &u.JobTitle, &u.PreferredLanguage, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.AccountEnabled = enabled != 0
	return &u, nil
}

func scanUsage(s scanner) (*UsageMetrics, error) {
	var m UsageMetrics
	var activation int
	var exchange, onedrive, sharepoint, teams, lastSeen sql.NullString
	err := s.Scan(&m.ID, &m.UserID, &m.Period, &m.ReportDate, &m.EmailsSent, &m.EmailsReceived,
		&m.MailboxBytes, &m.OneDriveBytes, &m.OneDriveFilesModified, &m.TeamsMessages, &m.TeamsMeetings,
		&m.TeamsCalls, &m.SharePointViews, &m.SharePointEdits, &m.OfficeWebEdits, &activation,
		&exchange, &onedrive, &sharepoint, &teams,
		&lastSeen, &m.InactivityDays, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.HasDesktopActivation = activation != 0
	m.ExchangeLastActivity = exchange.String
	m.OneDriveLastActivity = onedrive.String
	m.SharePointLastActivity = sharepoint.String
	m.TeamsLastActivity = teams.String
	m.LastSeenDate = lastSeen.String
	return &m, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias for use in joins.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
