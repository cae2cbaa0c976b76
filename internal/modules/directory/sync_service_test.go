package directory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/graph"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/modules/tenants"
	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
)

// fakeGraph scripts the directory API for sync tests.
type fakeGraph struct {
	users       []graph.User
	usersErr    error
	licenses    map[string][]graph.LicenseDetail
	licensesErr map[string]error
	skus        []graph.SubscribedSku
	skusErr     error
	reports     map[graph.Report][]map[string]string
	reportsErr  map[graph.Report]error
}

func (f *fakeGraph) ListUsers(ctx context.Context, tenantKey string) ([]graph.User, error) {
	return f.users, f.usersErr
}

func (f *fakeGraph) ListUserLicenseDetails(ctx context.Context, tenantKey, userID string) ([]graph.LicenseDetail, error) {
	if err := f.licensesErr[userID]; err != nil {
		return nil, err
	}
	return f.licenses[userID], nil
}

func (f *fakeGraph) ListSubscribedSkus(ctx context.Context, tenantKey string) ([]graph.SubscribedSku, error) {
	return f.skus, f.skusErr
}

func (f *fakeGraph) GetUsageReport(ctx context.Context, tenantKey string, report graph.Report, period string) ([]map[string]string, error) {
	if err := f.reportsErr[report]; err != nil {
		return nil, err
	}
	return f.reports[report], nil
}

type syncFixture struct {
	service *SyncService
	repo    *Repository
	client  *fakeGraph
	bus     *events.Bus
	tenant  *tenants.Tenant
	events  *[]events.EventType
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	db, cleanup := seatwisetesting.NewTestDB(t, "directory")
	t.Cleanup(cleanup)
	cacheDB, cacheCleanup := seatwisetesting.NewTestDB(t, "cache")
	t.Cleanup(cacheCleanup)

	repo := NewRepository(db.Conn(), zerolog.Nop())
	cache := clientdata.NewRepository(cacheDB.Conn())
	bus := events.NewBus()

	seen := &[]events.EventType{}
	for _, et := range []events.EventType{events.SyncStarted, events.SyncCompleted, events.SyncFailed} {
		eventType := et
		bus.Subscribe(eventType, func(e *events.Event) {
			*seen = append(*seen, eventType)
		})
	}

	client := &fakeGraph{
		licenses:    make(map[string][]graph.LicenseDetail),
		licensesErr: make(map[string]error),
		reports:     make(map[graph.Report][]map[string]string),
		reportsErr:  make(map[graph.Report]error),
	}
	service := NewSyncService(repo, client, cache, db, bus, zerolog.Nop())
	service.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	return &syncFixture{
		service: service,
		repo:    repo,
		client:  client,
		bus:     bus,
		tenant:  &tenants.Tenant{ID: "tenant-1", ExternalID: "dir-guid-1"},
		events:  seen,
	}
}

func TestSyncUsersCreatesAndUpdates(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", DisplayName: "Alice", AccountEnabled: true, Department: "Sales"},
		{ID: "ext-2", UserPrincipalName: "bob@contoso.com", DisplayName: "Bob", AccountEnabled: true},
	}

	stats, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, &UserSyncStats{Fetched: 2, Created: 2, Updated: 0}, stats)

	// Upstream disables bob; a second run updates without duplicating.
	f.client.users[1].AccountEnabled = false
	stats, err = f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, &UserSyncStats{Fetched: 2, Created: 0, Updated: 2}, stats)

	users, err := f.repo.ListUsersByTenant("tenant-1")
	require.NoError(t, err)
	require.Len(t, users, 2)

	bob, err := f.repo.GetUserByExternalID("ext-2")
	require.NoError(t, err)
	assert.False(t, bob.AccountEnabled)

	assert.Equal(t, []events.EventType{
		events.SyncStarted, events.SyncCompleted,
		events.SyncStarted, events.SyncCompleted,
	}, *f.events)
}

func TestSyncUsersFetchFailureLeavesStoreUntouched(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", DisplayName: "Alice", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.usersErr = domain.Transient("directory", "GET /users failed after 4 attempts", nil)
	_, err = f.service.SyncUsers(context.Background(), f.tenant)
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))

	users, err := f.repo.ListUsersByTenant("tenant-1")
	require.NoError(t, err)
	assert.Len(t, users, 1, "failed sync must not change the store")
	assert.Contains(t, *f.events, events.SyncFailed)
}

func TestSyncLicensesReconcilesPerUser(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", AccountEnabled: true},
		{ID: "ext-2", UserPrincipalName: "bob@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.skus = []graph.SubscribedSku{{SkuID: "sku-e5", SkuPartNumber: "ENTERPRISEPREMIUM"}}
	f.client.licenses["ext-1"] = []graph.LicenseDetail{{SkuID: "sku-e5"}, {SkuID: "sku-addon"}}
	f.client.licenses["ext-2"] = []graph.LicenseDetail{{SkuID: "sku-e1"}}

	stats, err := f.service.SyncLicenses(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SubscribedSkus)
	assert.Equal(t, 2, stats.UsersProcessed)
	assert.Equal(t, 3, stats.AssignmentsUpserted)
	assert.Equal(t, 0, stats.AssignmentsRemoved)

	// Alice loses the add-on upstream; bob's assignment must survive the
	// reconcile untouched.
	f.client.licenses["ext-1"] = []graph.LicenseDetail{{SkuID: "sku-e5"}}
	stats, err = f.service.SyncLicenses(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AssignmentsRemoved)

	alice, err := f.repo.GetUserByExternalID("ext-1")
	require.NoError(t, err)
	aliceAssignments, err := f.repo.ListAssignmentsByUser(alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceAssignments, 1)
	assert.Equal(t, "sku-e5", aliceAssignments[0].SkuID)

	bob, err := f.repo.GetUserByExternalID("ext-2")
	require.NoError(t, err)
	bobAssignments, err := f.repo.ListAssignmentsByUser(bob.ID)
	require.NoError(t, err)
	require.Len(t, bobAssignments, 1)
	assert.Equal(t, "sku-e1", bobAssignments[0].SkuID)
}

func TestSyncLicensesFetchFailureRollsBackEverything(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", AccountEnabled: true},
		{ID: "ext-2", UserPrincipalName: "bob@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.licenses["ext-1"] = []graph.LicenseDetail{{SkuID: "sku-e5"}}
	f.client.licenses["ext-2"] = []graph.LicenseDetail{{SkuID: "sku-e1"}}
	_, err = f.service.SyncLicenses(context.Background(), f.tenant)
	require.NoError(t, err)

	// Next run: alice's new state fetches fine, bob's fetch blows up. The
	// whole sync must fail without applying alice's change.
	f.client.licenses["ext-1"] = []graph.LicenseDetail{{SkuID: "sku-e3"}}
	f.client.licensesErr["ext-2"] = domain.Transient("directory", "GET /users/ext-2/licenseDetails failed", nil)

	_, err = f.service.SyncLicenses(context.Background(), f.tenant)
	require.Error(t, err)

	alice, err := f.repo.GetUserByExternalID("ext-1")
	require.NoError(t, err)
	aliceAssignments, err := f.repo.ListAssignmentsByUser(alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceAssignments, 1)
	assert.Equal(t, "sku-e5", aliceAssignments[0].SkuID, "pre-failure state must survive")
}

func TestSyncUsageMergesFourReports(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "Alice@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.reports[graph.ReportEmailActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Send Count": "30", "Receive Count": "40", "Last Activity Date": "2025-05-20",
	}}
	f.client.reports[graph.ReportOneDriveActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Viewed Or Edited File Count": "10", "Last Activity Date": "2025-05-28",
	}}
	f.client.reports[graph.ReportSharePointActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Viewed Or Edited File Count": "7", "Visited Page Count": "20", "Last Activity Date": "2025-05-01",
	}}
	f.client.reports[graph.ReportTeamsActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Team Chat Message Count": "5", "Private Chat Message Count": "10",
		"Meeting Count": "2", "Call Count": "1", "Last Activity Date": "2025-05-15",
	}, {
		// Unknown principal: counted, never fabricated into a user.
		"Report Refresh Date": "2025-05-31", "User Principal Name": "carol@contoso.com",
		"Team Chat Message Count": "99",
	}}

	stats, err := f.service.SyncUsage(context.Background(), f.tenant, "D28")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RowsParsed)
	assert.Equal(t, 1, stats.UsersMatched)
	assert.Equal(t, 1, stats.UnknownUsers)
	assert.Equal(t, 1, stats.MetricsUpserted)

	alice, err := f.repo.GetUserByExternalID("ext-1")
	require.NoError(t, err)
	m, err := f.repo.LatestUsageByUser(alice.ID, "D28")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "2025-05-31", m.ReportDate)
	assert.Equal(t, int64(30), m.EmailsSent)
	assert.Equal(t, int64(40), m.EmailsReceived)
	assert.Equal(t, int64(10), m.OneDriveFilesModified)
	assert.Equal(t, int64(7), m.SharePointEdits)
	assert.Equal(t, int64(20), m.SharePointViews)
	assert.Equal(t, int64(15), m.TeamsMessages)
	assert.Equal(t, int64(2), m.TeamsMeetings)
	assert.Equal(t, int64(1), m.TeamsCalls)

	// Last seen is the max across services; the clock is pinned to
	// 2025-06-01, so four days since the OneDrive activity.
	assert.Equal(t, "2025-05-28", m.LastSeenDate)
	assert.Equal(t, int64(4), m.InactivityDays)
}

func TestSyncUsageIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.reports[graph.ReportEmailActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Send Count": "30", "Receive Count": "40",
	}}

	_, err = f.service.SyncUsage(context.Background(), f.tenant, "D28")
	require.NoError(t, err)
	_, err = f.service.SyncUsage(context.Background(), f.tenant, "D28")
	require.NoError(t, err)

	var count int
	err = f.repo.db.QueryRow("SELECT COUNT(*) FROM usage_metrics").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncUsageDefaultsPeriod(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.reports[graph.ReportEmailActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Send Count": "1",
	}}

	stats, err := f.service.SyncUsage(context.Background(), f.tenant, "")
	require.NoError(t, err)
	assert.Equal(t, "D28", stats.Period)

	alice, err := f.repo.GetUserByExternalID("ext-1")
	require.NoError(t, err)
	m, err := f.repo.LatestUsageByUser(alice.ID, "D28")
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestSyncUsageReportFailureAbortsBeforeWrites(t *testing.T) {
	f := newSyncFixture(t)
	f.client.users = []graph.User{
		{ID: "ext-1", UserPrincipalName: "alice@contoso.com", AccountEnabled: true},
	}
	_, err := f.service.SyncUsers(context.Background(), f.tenant)
	require.NoError(t, err)

	f.client.reports[graph.ReportEmailActivity] = []map[string]string{{
		"Report Refresh Date": "2025-05-31", "User Principal Name": "alice@contoso.com",
		"Send Count": "30",
	}}
	f.client.reportsErr[graph.ReportTeamsActivity] = domain.RateLimited("directory", 30*time.Second, nil)

	_, err = f.service.SyncUsage(context.Background(), f.tenant, "D28")
	require.Error(t, err)
	assert.Equal(t, domain.KindRateLimited, domain.KindOf(err))

	var count int
	err = f.repo.db.QueryRow("SELECT COUNT(*) FROM usage_metrics").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count, "no partial usage rows after a failed report fetch")
}
