// Package directory stores the synced view of each tenant's user directory:
// users, their license assignments, and per-service usage telemetry. Rows are
// written only by the sync services and read by the analysis pipeline.
package directory

// User is a directory user under a tenant. ExternalID is the upstream
// directory object id and is unique across all tenants.
type User struct {
	ID                string `json:"id"`
	TenantID          string `json:"tenant_id"`
	ExternalID        string `json:"external_id"`
	PrincipalName     string `json:"principal_name"`
	DisplayName       string `json:"display_name"`
	AccountEnabled    bool   `json:"account_enabled"`
	Department        string `json:"department,omitempty"`
	JobTitle          string `json:"job_title,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Assignment status values.
const (
	AssignmentActive    = "active"
	AssignmentSuspended = "suspended"
	AssignmentDisabled  = "disabled"
	AssignmentTrial     = "trial"
)

// Assignment source values.
const (
	SourceManual      = "manual"
	SourceAuto        = "auto"
	SourceGroupPolicy = "group_policy"
)

// LicenseAssignment links a user to a directory SKU. Unique on (user, SKU).
type LicenseAssignment struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	SkuID      string `json:"sku_id"`
	AssignedAt *int64 `json:"assigned_at,omitempty"`
	Status     string `json:"status"`
	Source     string `json:"source"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// UsageMetrics is one usage snapshot for a user, unique on
// (user, period, report_date). Counters cover the four activity reports;
// LastSeenDate is the max of the per-service last-activity dates and
// InactivityDays counts days from LastSeenDate to the sync date.
// Dates are ISO yyyy-mm-dd strings, which also compare correctly as strings.
type UsageMetrics struct {
	ID                     string `json:"id"`
	UserID                 string `json:"user_id"`
	Period                 string `json:"period"`
	ReportDate             string `json:"report_date"`
	EmailsSent             int64  `json:"emails_sent"`
	EmailsReceived         int64  `json:"emails_received"`
	MailboxBytes           int64  `json:"mailbox_bytes"`
	OneDriveBytes          int64  `json:"onedrive_bytes"`
	OneDriveFilesModified  int64  `json:"onedrive_files_modified"`
	TeamsMessages          int64  `json:"teams_messages"`
	TeamsMeetings          int64  `json:"teams_meetings"`
	TeamsCalls             int64  `json:"teams_calls"`
	SharePointViews        int64  `json:"sharepoint_views"`
	SharePointEdits        int64  `json:"sharepoint_edits"`
	OfficeWebEdits         int64  `json:"office_web_edits"`
	HasDesktopActivation   bool   `json:"has_desktop_activation"`
	ExchangeLastActivity   string `json:"exchange_last_activity,omitempty"`
	OneDriveLastActivity   string `json:"onedrive_last_activity,omitempty"`
	SharePointLastActivity string `json:"sharepoint_last_activity,omitempty"`
	TeamsLastActivity      string `json:"teams_last_activity,omitempty"`
	LastSeenDate           string `json:"last_seen_date,omitempty"`
	InactivityDays         int64  `json:"inactivity_days"`
	CreatedAt              int64  `json:"created_at"`
	UpdatedAt              int64  `json:"updated_at"`
}
