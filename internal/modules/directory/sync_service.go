package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/graph"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

// Sync operation identifiers, also used as work type ids and in-flight
// fingerprint prefixes.
const (
	OpSyncUsers    = "sync:users"
	OpSyncLicenses = "sync:licenses"
	OpSyncUsage    = "sync:usage"
)

// DefaultUsagePeriod is the report period requested when none is given.
const DefaultUsagePeriod = "D28"

// DirectoryClient is the slice of the graph API client the sync services
// need. Declared here so tests can substitute a fake.
type DirectoryClient interface {
	ListUsers(ctx context.Context, tenantKey string) ([]graph.User, error)
	ListUserLicenseDetails(ctx context.Context, tenantKey, userID string) ([]graph.LicenseDetail, error)
	ListSubscribedSkus(ctx context.Context, tenantKey string) ([]graph.SubscribedSku, error)
	GetUsageReport(ctx context.Context, tenantKey string, report graph.Report, period string) ([]map[string]string, error)
}

// UserSyncStats summarizes one user sync run.
type UserSyncStats struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// LicenseSyncStats summarizes one license sync run.
type LicenseSyncStats struct {
	SubscribedSkus      int `json:"subscribed_skus"`
	UsersProcessed      int `json:"users_processed"`
	AssignmentsUpserted int `json:"assignments_upserted"`
	AssignmentsRemoved  int `json:"assignments_removed"`
}

// UsageSyncStats summarizes one usage sync run.
type UsageSyncStats struct {
	Period          string `json:"period"`
	RowsParsed      int    `json:"rows_parsed"`
	UsersMatched    int    `json:"users_matched"`
	UnknownUsers    int    `json:"unknown_users"`
	MetricsUpserted int    `json:"metrics_upserted"`
}

// SyncService pulls users, license assignments, and usage reports from the
// directory API into the local store. Each operation fetches everything it
// needs over HTTP first, then applies all writes in a single transaction, so
// a failed sync leaves the store exactly as it was.
type SyncService struct {
	repo   *Repository
	client DirectoryClient
	cache  *clientdata.Repository
	db     *database.DB
	bus    *events.Bus
	log    zerolog.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewSyncService creates a directory sync service.
func NewSyncService(
	repo *Repository,
	client DirectoryClient,
	cache *clientdata.Repository,
	db *database.DB,
	bus *events.Bus,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{
		repo:   repo,
		client: client,
		cache:  cache,
		db:     db,
		bus:    bus,
		log:    log.With().Str("service", "directory_sync").Logger(),
	}
}

// SyncUsers fetches the tenant's full user list and upserts each user by
// external directory id.
func (s *SyncService) SyncUsers(ctx context.Context, tenant *tenants.Tenant) (*UserSyncStats, error) {
	start := s.clock()()
	s.emitStarted(tenant.ID, OpSyncUsers)

	upstream, err := s.client.ListUsers(ctx, tenant.ExternalID)
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncUsers, err)
		return nil, fmt.Errorf("failed to fetch users for tenant %s: %w", tenant.ID, err)
	}

	stats := &UserSyncStats{Fetched: len(upstream)}
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		for _, gu := range upstream {
			user := &User{
				TenantID:          tenant.ID,
				ExternalID:        gu.ID,
				PrincipalName:     gu.UserPrincipalName,
				DisplayName:       gu.DisplayName,
				AccountEnabled:    gu.AccountEnabled,
				Department:        gu.Department,
				JobTitle:          gu.JobTitle,
				PreferredLanguage: gu.PreferredLanguage,
			}
			created, err := s.repo.UpsertUser(tx, user)
			if err != nil {
				return err
			}
			if created {
				stats.Created++
			} else {
				stats.Updated++
			}
		}
		return nil
	})
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncUsers, err)
		return nil, err
	}

	s.emitCompleted(tenant.ID, OpSyncUsers, stats.Fetched, start)
	s.log.Info().
		Str("tenant_id", tenant.ID).
		Int("fetched", stats.Fetched).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Msg("User sync completed")
	return stats, nil
}

// SyncLicenses fetches the tenant's subscribed SKU catalog and each local
// user's license details, then reconciles assignments. Assignments absent
// from a user's latest upstream snapshot are removed; the delete never
// touches other users.
func (s *SyncService) SyncLicenses(ctx context.Context, tenant *tenants.Tenant) (*LicenseSyncStats, error) {
	start := s.clock()()
	s.emitStarted(tenant.ID, OpSyncLicenses)

	skus, err := s.client.ListSubscribedSkus(ctx, tenant.ExternalID)
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncLicenses, err)
		return nil, fmt.Errorf("failed to fetch subscribed SKUs for tenant %s: %w", tenant.ID, err)
	}
	if err := s.cache.Store(clientdata.TableSubscribedSkus, tenant.ID, skus, clientdata.TTLSubscribedSkus); err != nil {
		// Cache trouble should not abort the sync
		s.log.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to cache subscribed SKUs")
	}

	users, err := s.repo.ListUsersByTenant(tenant.ID)
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncLicenses, err)
		return nil, err
	}

	// Fetch phase first: no transaction is held across HTTP calls, and any
	// fetch failure aborts before a single row changes.
	type userLicenses struct {
		userID string
		skuIDs []string
	}
	fetched := make([]userLicenses, 0, len(users))
	for i := range users {
		details, err := s.client.ListUserLicenseDetails(ctx, tenant.ExternalID, users[i].ExternalID)
		if err != nil {
			s.emitFailed(tenant.ID, OpSyncLicenses, err)
			return nil, fmt.Errorf("failed to fetch license details for user %s: %w", users[i].ExternalID, err)
		}
		skuIDs := make([]string, 0, len(details))
		for _, d := range details {
			skuIDs = append(skuIDs, d.SkuID)
		}
		fetched = append(fetched, userLicenses{userID: users[i].ID, skuIDs: skuIDs})
	}

	stats := &LicenseSyncStats{SubscribedSkus: len(skus)}
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		for _, ul := range fetched {
			upserted, removed, err := s.repo.ReplaceAssignments(tx, ul.userID, ul.skuIDs)
			if err != nil {
				return err
			}
			stats.UsersProcessed++
			stats.AssignmentsUpserted += upserted
			stats.AssignmentsRemoved += removed
		}
		return nil
	})
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncLicenses, err)
		return nil, err
	}

	s.emitCompleted(tenant.ID, OpSyncLicenses, stats.UsersProcessed, start)
	s.log.Info().
		Str("tenant_id", tenant.ID).
		Int("subscribed_skus", stats.SubscribedSkus).
		Int("users", stats.UsersProcessed).
		Int("upserted", stats.AssignmentsUpserted).
		Int("removed", stats.AssignmentsRemoved).
		Msg("License sync completed")
	return stats, nil
}

// SyncUsage fetches the four activity reports for the period and upserts one
// merged usage snapshot per (user, report date). Report rows for principals
// unknown locally are counted and skipped, never fabricated into users.
func (s *SyncService) SyncUsage(ctx context.Context, tenant *tenants.Tenant, period string) (*UsageSyncStats, error) {
	if period == "" {
		period = DefaultUsagePeriod
	}
	start := s.clock()()
	s.emitStarted(tenant.ID, OpSyncUsage)

	users, err := s.repo.ListUsersByTenant(tenant.ID)
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncUsage, err)
		return nil, err
	}
	// Principal names are case-insensitive upstream.
	userIDByUPN := make(map[string]string, len(users))
	for i := range users {
		userIDByUPN[strings.ToLower(users[i].PrincipalName)] = users[i].ID
	}

	stats := &UsageSyncStats{Period: period}
	today := s.clock()().UTC()

	type mergeKey struct {
		upn        string
		reportDate string
	}
	merged := make(map[mergeKey]*UsageMetrics)

	for _, report := range graph.AllReports {
		rows, err := s.client.GetUsageReport(ctx, tenant.ExternalID, report, period)
		if err != nil {
			s.emitFailed(tenant.ID, OpSyncUsage, err)
			return nil, fmt.Errorf("failed to fetch %s report for tenant %s: %w", report, tenant.ID, err)
		}
		for _, row := range rows {
			upn := strings.ToLower(strings.TrimSpace(row["User Principal Name"]))
			if upn == "" {
				continue
			}
			reportDate := strings.TrimSpace(row["Report Refresh Date"])
			if reportDate == "" {
				reportDate = today.Format("2006-01-02")
			}
			stats.RowsParsed++

			key := mergeKey{upn: upn, reportDate: reportDate}
			m, ok := merged[key]
			if !ok {
				m = &UsageMetrics{Period: period, ReportDate: reportDate}
				merged[key] = m
			}
			applyReportRow(m, report, row)
		}
	}

	matchedUsers := make(map[string]bool)
	unknownUsers := make(map[string]bool)
	snapshots := make([]*UsageMetrics, 0, len(merged))
	for key, m := range merged {
		userID, ok := userIDByUPN[key.upn]
		if !ok {
			unknownUsers[key.upn] = true
			continue
		}
		matchedUsers[userID] = true
		m.UserID = userID
		finalizeActivity(m, today)
		snapshots = append(snapshots, m)
	}

	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		for _, m := range snapshots {
			if err := s.repo.UpsertUsage(tx, m); err != nil {
				return err
			}
			stats.MetricsUpserted++
		}
		return nil
	})
	if err != nil {
		s.emitFailed(tenant.ID, OpSyncUsage, err)
		return nil, err
	}

	stats.UsersMatched = len(matchedUsers)
	stats.UnknownUsers = len(unknownUsers)

	s.emitCompleted(tenant.ID, OpSyncUsage, stats.MetricsUpserted, start)
	s.log.Info().
		Str("tenant_id", tenant.ID).
		Str("period", period).
		Int("rows", stats.RowsParsed).
		Int("matched", stats.UsersMatched).
		Int("unknown", stats.UnknownUsers).
		Int("upserted", stats.MetricsUpserted).
		Msg("Usage sync completed")
	return stats, nil
}

// applyReportRow copies one report row's counters onto the merged snapshot.
// Column names are the upstream CSV headers.
func applyReportRow(m *UsageMetrics, report graph.Report, row map[string]string) {
	switch report {
	case graph.ReportEmailActivity:
		m.EmailsSent = parseCount(row["Send Count"])
		m.EmailsReceived = parseCount(row["Receive Count"])
		m.ExchangeLastActivity = strings.TrimSpace(row["Last Activity Date"])
	case graph.ReportOneDriveActivity:
		m.OneDriveFilesModified = parseCount(row["Viewed Or Edited File Count"])
		m.OneDriveLastActivity = strings.TrimSpace(row["Last Activity Date"])
	case graph.ReportSharePointActivity:
		m.SharePointEdits = parseCount(row["Viewed Or Edited File Count"])
		m.SharePointViews = parseCount(row["Visited Page Count"])
		m.SharePointLastActivity = strings.TrimSpace(row["Last Activity Date"])
	case graph.ReportTeamsActivity:
		m.TeamsMessages = parseCount(row["Team Chat Message Count"]) + parseCount(row["Private Chat Message Count"])
		m.TeamsMeetings = parseCount(row["Meeting Count"])
		m.TeamsCalls = parseCount(row["Call Count"])
		m.TeamsLastActivity = strings.TrimSpace(row["Last Activity Date"])
	}
}

// finalizeActivity derives last_seen_date and inactivity_days from the
// per-service activity dates. ISO dates compare correctly as strings.
func finalizeActivity(m *UsageMetrics, today time.Time) {
	for _, d := range []string{m.ExchangeLastActivity, m.OneDriveLastActivity, m.SharePointLastActivity, m.TeamsLastActivity} {
		if d != "" && d > m.LastSeenDate {
			m.LastSeenDate = d
		}
	}
	if m.LastSeenDate == "" {
		return
	}
	seen, err := time.Parse("2006-01-02", m.LastSeenDate)
	if err != nil {
		return
	}
	days := int64(today.Sub(seen).Hours() / 24)
	if days < 0 {
		days = 0
	}
	m.InactivityDays = days
}

// parseCount reads a numeric CSV cell; blanks and garbage count as zero.
func parseCount(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *SyncService) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}

func (s *SyncService) emitStarted(tenantID, op string) {
	s.bus.Emit("directory", &events.SyncStartedData{TenantID: tenantID, Operation: op})
}

func (s *SyncService) emitCompleted(tenantID, op string, processed int, start time.Time) {
	s.bus.Emit("directory", &events.SyncCompletedData{
		TenantID:   tenantID,
		Operation:  op,
		Processed:  processed,
		DurationMS: s.clock()().Sub(start).Milliseconds(),
	})
}

func (s *SyncService) emitFailed(tenantID, op string, err error) {
	s.bus.Emit("directory", &events.SyncFailedData{
		TenantID:  tenantID,
		Operation: op,
		Reason:    err.Error(),
	})
}
