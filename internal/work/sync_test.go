package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/modules/analysis"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

type fakeTenantSource struct {
	list    []tenants.Tenant
	listErr error
}

func (f *fakeTenantSource) ListSyncable() ([]tenants.Tenant, error) {
	return f.list, f.listErr
}

func (f *fakeTenantSource) GetByID(id string) (*tenants.Tenant, error) {
	for i := range f.list {
		if f.list[i].ID == id {
			return &f.list[i], nil
		}
	}
	return nil, nil
}

type fakeDirectorySyncer struct {
	userTenants    []string
	licenseTenants []string
	usagePeriods   []string
}

func (f *fakeDirectorySyncer) SyncUsers(ctx context.Context, tenant *tenants.Tenant) (*directory.UserSyncStats, error) {
	f.userTenants = append(f.userTenants, tenant.ID)
	return &directory.UserSyncStats{}, nil
}

func (f *fakeDirectorySyncer) SyncLicenses(ctx context.Context, tenant *tenants.Tenant) (*directory.LicenseSyncStats, error) {
	f.licenseTenants = append(f.licenseTenants, tenant.ID)
	return &directory.LicenseSyncStats{}, nil
}

func (f *fakeDirectorySyncer) SyncUsage(ctx context.Context, tenant *tenants.Tenant, period string) (*directory.UsageSyncStats, error) {
	f.usagePeriods = append(f.usagePeriods, period)
	return &directory.UsageSyncStats{}, nil
}

type fakeCommerceSyncer struct {
	fresh       bool
	products    int
	prices      int
	productsErr error
}

func (f *fakeCommerceSyncer) SyncProducts(ctx context.Context) (*commerce.ProductSyncStats, error) {
	f.products++
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return &commerce.ProductSyncStats{}, nil
}

func (f *fakeCommerceSyncer) SyncPrices(ctx context.Context) (*commerce.PriceSyncStats, error) {
	f.prices++
	return &commerce.PriceSyncStats{}, nil
}

func (f *fakeCommerceSyncer) PricesFresh() bool { return f.fresh }

func newSyncDeps() (*SyncDeps, *fakeTenantSource, *fakeDirectorySyncer, *fakeCommerceSyncer) {
	source := &fakeTenantSource{list: []tenants.Tenant{{ID: "t1"}, {ID: "t2"}}}
	dir := &fakeDirectorySyncer{}
	com := &fakeCommerceSyncer{}
	deps := &SyncDeps{Tenants: source, Directory: dir, Commerce: com, Log: zerolog.Nop()}
	return deps, source, dir, com
}

func TestRegisterSyncWorkTypes(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, _ := newSyncDeps()
	RegisterSyncWorkTypes(registry, deps)

	assert.Equal(t, []string{
		commerce.OpSyncCommerce,
		directory.OpSyncLicenses,
		directory.OpSyncUsage,
		directory.OpSyncUsers,
	}, registry.IDs())

	users := registry.Get(directory.OpSyncUsers)
	assert.Equal(t, PriorityCritical, users.Priority)
	assert.Equal(t, 6*time.Hour, users.Interval)
	assert.Empty(t, users.DependsOn)

	licenses := registry.Get(directory.OpSyncLicenses)
	assert.Equal(t, PriorityHigh, licenses.Priority)
	assert.Equal(t, []string{directory.OpSyncUsers}, licenses.DependsOn)

	usage := registry.Get(directory.OpSyncUsage)
	assert.Equal(t, 12*time.Hour, usage.Interval)
	assert.Equal(t, []string{directory.OpSyncUsers}, usage.DependsOn)

	commerceType := registry.Get(commerce.OpSyncCommerce)
	assert.Equal(t, PriorityMedium, commerceType.Priority)
	assert.Equal(t, 24*time.Hour, commerceType.Interval)
	assert.Equal(t, []string{""}, commerceType.FindSubjects())
}

func TestRegisterSyncWorkTypesCustomInterval(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, _ := newSyncDeps()
	deps.Interval = time.Hour
	RegisterSyncWorkTypes(registry, deps)

	assert.Equal(t, time.Hour, registry.Get(directory.OpSyncUsers).Interval)
	assert.Equal(t, time.Hour, registry.Get(directory.OpSyncLicenses).Interval)
	assert.Equal(t, 2*time.Hour, registry.Get(directory.OpSyncUsage).Interval)
	// The commerce refresh does not follow the directory cadence.
	assert.Equal(t, 24*time.Hour, registry.Get(commerce.OpSyncCommerce).Interval)
}

func TestRegisterSyncWorkTypesWithoutCommerce(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, _ := newSyncDeps()
	deps.Commerce = nil
	RegisterSyncWorkTypes(registry, deps)

	// No partner credentials, no commerce work type.
	assert.Nil(t, registry.Get(commerce.OpSyncCommerce))
	assert.NotNil(t, registry.Get(directory.OpSyncUsers))
}

func TestSyncSubjectsFollowSyncableTenants(t *testing.T) {
	registry := NewRegistry()
	deps, source, _, _ := newSyncDeps()
	RegisterSyncWorkTypes(registry, deps)

	users := registry.Get(directory.OpSyncUsers)
	assert.Equal(t, []string{"t1", "t2"}, users.FindSubjects())

	// A listing failure yields no subjects rather than a panic; the next
	// sweep re-lists.
	source.listErr = errors.New("db locked")
	assert.Empty(t, users.FindSubjects())
}

func TestSyncUsersExecuteResolvesTenant(t *testing.T) {
	registry := NewRegistry()
	deps, _, dir, _ := newSyncDeps()
	RegisterSyncWorkTypes(registry, deps)

	users := registry.Get(directory.OpSyncUsers)
	require.NoError(t, users.Execute(context.Background(), "t1"))
	assert.Equal(t, []string{"t1"}, dir.userTenants)

	err := users.Execute(context.Background(), "gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer exists")
}

func TestSyncUsagePeriod(t *testing.T) {
	registry := NewRegistry()
	deps, _, dir, _ := newSyncDeps()
	RegisterSyncWorkTypes(registry, deps)

	usage := registry.Get(directory.OpSyncUsage)
	require.NoError(t, usage.Execute(context.Background(), "t1"))
	assert.Equal(t, []string{directory.DefaultUsagePeriod}, dir.usagePeriods)

	// A configured period overrides the default.
	registry = NewRegistry()
	deps, _, dir, _ = newSyncDeps()
	deps.UsagePeriod = "D90"
	RegisterSyncWorkTypes(registry, deps)

	usage = registry.Get(directory.OpSyncUsage)
	require.NoError(t, usage.Execute(context.Background(), "t1"))
	assert.Equal(t, []string{"D90"}, dir.usagePeriods)
}

func TestCommerceSyncSkipsWhenFresh(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, com := newSyncDeps()
	com.fresh = true
	RegisterSyncWorkTypes(registry, deps)

	commerceType := registry.Get(commerce.OpSyncCommerce)
	require.NoError(t, commerceType.Execute(context.Background(), ""))
	assert.Equal(t, 0, com.products)
	assert.Equal(t, 0, com.prices)

	com.fresh = false
	require.NoError(t, commerceType.Execute(context.Background(), ""))
	assert.Equal(t, 1, com.products)
	assert.Equal(t, 1, com.prices)
}

func TestCommerceSyncStopsAfterProductFailure(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, com := newSyncDeps()
	com.productsErr = errors.New("partner api down")
	RegisterSyncWorkTypes(registry, deps)

	commerceType := registry.Get(commerce.OpSyncCommerce)
	err := commerceType.Execute(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 1, com.products)
	assert.Equal(t, 0, com.prices)
}

type fakeAnalysisRunner struct {
	tenants []string
	err     error
}

func (f *fakeAnalysisRunner) Run(ctx context.Context, tenantID string) (*analysis.Analysis, error) {
	f.tenants = append(f.tenants, tenantID)
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Analysis{TenantID: tenantID}, nil
}

func TestRegisterAnalysisWorkTypes(t *testing.T) {
	registry := NewRegistry()
	source := &fakeTenantSource{list: []tenants.Tenant{{ID: "t1"}}}
	runner := &fakeAnalysisRunner{}
	RegisterAnalysisWorkTypes(registry, &AnalysisDeps{Tenants: source, Analyses: runner, Log: zerolog.Nop()})

	wt := registry.Get(analysis.OpRunAnalysis)
	require.NotNil(t, wt)
	assert.Equal(t, PriorityMedium, wt.Priority)
	assert.Equal(t, 24*time.Hour, wt.Interval)
	assert.Equal(t, []string{directory.OpSyncLicenses, directory.OpSyncUsage}, wt.DependsOn)
	assert.Equal(t, []string{"t1"}, wt.FindSubjects())

	require.NoError(t, wt.Execute(context.Background(), "t1"))
	assert.Equal(t, []string{"t1"}, runner.tenants)

	runner.err = errors.New("no usage data")
	assert.Error(t, wt.Execute(context.Background(), "t1"))
}

type fakeBackup struct {
	backedUp bool
	runs     int
}

func (f *fakeBackup) RunDailyBackup() error { f.runs++; return nil }
func (f *fakeBackup) BackedUpToday() bool   { return f.backedUp }

type fakeRemoteBackup struct {
	enabled   bool
	uploads   int
	rotations int
}

func (f *fakeRemoteBackup) Enabled() bool                           { return f.enabled }
func (f *fakeRemoteBackup) UploadBackup(ctx context.Context) error  { f.uploads++; return nil }
func (f *fakeRemoteBackup) RotateBackups(ctx context.Context) error { f.rotations++; return nil }

type fakeMaintenance struct {
	checkpoints int
	vacuums     int
}

func (f *fakeMaintenance) CheckpointWAL() error   { f.checkpoints++; return nil }
func (f *fakeMaintenance) VacuumDatabases() error { f.vacuums++; return nil }

type fakeCleanup struct {
	clientData int
	jobHistory int
}

func (f *fakeCleanup) CleanupClientData() error { f.clientData++; return nil }
func (f *fakeCleanup) CleanupJobHistory() error { f.jobHistory++; return nil }

func newMaintenanceDeps() (*MaintenanceDeps, *fakeBackup, *fakeRemoteBackup, *fakeMaintenance, *fakeCleanup) {
	backup := &fakeBackup{}
	remote := &fakeRemoteBackup{}
	maint := &fakeMaintenance{}
	cleanup := &fakeCleanup{}
	deps := &MaintenanceDeps{Backup: backup, RemoteBackup: remote, Maintenance: maint, Cleanup: cleanup}
	return deps, backup, remote, maint, cleanup
}

func TestRegisterMaintenanceWorkTypes(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, _, _ := newMaintenanceDeps()
	RegisterMaintenanceWorkTypes(registry, deps)

	assert.Equal(t, []string{
		"maintenance:backup",
		"maintenance:checkpoint",
		"maintenance:cleanup:client-data",
		"maintenance:cleanup:job-history",
		"maintenance:remote-backup",
		"maintenance:remote-rotation",
		"maintenance:vacuum",
	}, registry.IDs())

	assert.Equal(t, []string{"maintenance:backup"}, registry.Get("maintenance:vacuum").DependsOn)
	assert.Equal(t, []string{"maintenance:remote-backup"}, registry.Get("maintenance:remote-rotation").DependsOn)
	assert.Equal(t, 7*24*time.Hour, registry.Get("maintenance:vacuum").Interval)
	assert.Equal(t, time.Hour, registry.Get("maintenance:checkpoint").Interval)
}

func TestBackupSubjectsGatedByDailyMarker(t *testing.T) {
	registry := NewRegistry()
	deps, backup, _, _, _ := newMaintenanceDeps()
	RegisterMaintenanceWorkTypes(registry, deps)

	wt := registry.Get("maintenance:backup")
	assert.Equal(t, []string{""}, wt.FindSubjects())

	backup.backedUp = true
	assert.Empty(t, wt.FindSubjects())

	require.NoError(t, wt.Execute(context.Background(), ""))
	assert.Equal(t, 1, backup.runs)
}

func TestRemoteBackupSubjectsGatedByEnabled(t *testing.T) {
	registry := NewRegistry()
	deps, _, remote, _, _ := newMaintenanceDeps()
	RegisterMaintenanceWorkTypes(registry, deps)

	upload := registry.Get("maintenance:remote-backup")
	rotation := registry.Get("maintenance:remote-rotation")
	assert.Empty(t, upload.FindSubjects())
	assert.Empty(t, rotation.FindSubjects())

	remote.enabled = true
	assert.Equal(t, []string{""}, upload.FindSubjects())
	assert.Equal(t, []string{""}, rotation.FindSubjects())

	require.NoError(t, upload.Execute(context.Background(), ""))
	require.NoError(t, rotation.Execute(context.Background(), ""))
	assert.Equal(t, 1, remote.uploads)
	assert.Equal(t, 1, remote.rotations)
}

func TestMaintenanceAndCleanupExecute(t *testing.T) {
	registry := NewRegistry()
	deps, _, _, maint, cleanup := newMaintenanceDeps()
	RegisterMaintenanceWorkTypes(registry, deps)

	require.NoError(t, registry.Get("maintenance:checkpoint").Execute(context.Background(), ""))
	require.NoError(t, registry.Get("maintenance:vacuum").Execute(context.Background(), ""))
	require.NoError(t, registry.Get("maintenance:cleanup:client-data").Execute(context.Background(), ""))
	require.NoError(t, registry.Get("maintenance:cleanup:job-history").Execute(context.Background(), ""))

	assert.Equal(t, 1, maint.checkpoints)
	assert.Equal(t, 1, maint.vacuums)
	assert.Equal(t, 1, cleanup.clientData)
	assert.Equal(t, 1, cleanup.jobHistory)
}
