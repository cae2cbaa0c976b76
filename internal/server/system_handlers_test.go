package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/scheduler"
	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
	"github.com/seatwise/seatwise/internal/work"
)

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     string
	}{
		{"on demand", 0, "on-demand"},
		{"minutes", 10 * time.Minute, "10m"},
		{"hours", 6 * time.Hour, "6h"},
		{"day", 24 * time.Hour, "24h"},
		{"week", 168 * time.Hour, "168h"},
		{"seconds", 30 * time.Second, "30s"},
		{"mixed", 90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatInterval(tt.interval))
		})
	}
}

func TestIsRunning(t *testing.T) {
	running := []string{"sync:users:tenant-1", "maintenance:backup"}

	assert.True(t, isRunning(running, "sync:users"))
	assert.True(t, isRunning(running, "maintenance:backup"))
	assert.False(t, isRunning(running, "sync:licenses"))
	// A type ID that is a string prefix of another must not match.
	assert.False(t, isRunning(running, "sync:user"))
}

func TestHandleJobsStatus(t *testing.T) {
	registry := work.NewRegistry()
	registry.Register(&work.WorkType{
		ID:           "sync:users",
		Priority:     work.PriorityHigh,
		Interval:     6 * time.Hour,
		FindSubjects: func() []string { return nil },
		Execute:      func(ctx context.Context, subject string) error { return nil },
	})
	registry.Register(&work.WorkType{
		ID:           "analysis:run",
		DependsOn:    []string{"sync:users"},
		Priority:     work.PriorityMedium,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return nil },
		Execute:      func(ctx context.Context, subject string) error { return nil },
	})

	cacheDB, cleanup := seatwisetesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	recorder := scheduler.NewRecorder(cacheDB, zerolog.Nop())
	recorder.Record("sync:users", "tenant-1", "completed", time.Second, "")

	inflight := work.NewInFlight()
	require.True(t, inflight.TryAcquire(work.Fingerprint("analysis:run", "")))

	h := NewSystemHandlers(SystemHandlerDeps{
		Registry: registry,
		InFlight: inflight,
		History:  recorder,
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleJobsStatus(rec, httptest.NewRequest(http.MethodGet, "/api/system/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobsStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)

	// Priority order puts the high priority sync first.
	sync := resp.WorkTypes[0]
	assert.Equal(t, "sync:users", sync.ID)
	assert.Equal(t, "High", sync.Priority)
	assert.Equal(t, "6h", sync.Interval)
	assert.False(t, sync.Running)
	require.NotNil(t, sync.LastRun)
	require.NotNil(t, sync.NextRun)

	last, err := time.Parse(time.RFC3339, *sync.LastRun)
	require.NoError(t, err)
	next, err := time.Parse(time.RFC3339, *sync.NextRun)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, next.Sub(last))

	analysis := resp.WorkTypes[1]
	assert.Equal(t, "analysis:run", analysis.ID)
	assert.Equal(t, []string{"sync:users"}, analysis.DependsOn)
	assert.True(t, analysis.Running)
	assert.Nil(t, analysis.LastRun)
	assert.Nil(t, analysis.NextRun)
}

func TestHandleSystemStatus(t *testing.T) {
	databases := make(map[string]*database.DB)
	for _, name := range []string{"tenants", "directory", "commerce", "analysis", "cache"} {
		db, cleanup := seatwisetesting.NewTestDB(t, name)
		t.Cleanup(cleanup)
		databases[name] = db
	}

	now := time.Now().Unix()

	_, err := databases["tenants"].Conn().Exec(`
		INSERT INTO tenants (id, external_id, display_name, onboarding_state, created_at, updated_at)
		VALUES ('t1', 'ext-1', 'Contoso', 'active', ?, ?),
		       ('t2', 'ext-2', 'Fabrikam', 'pending', ?, ?)`,
		now, now, now, now)
	require.NoError(t, err)

	_, err = databases["tenants"].Conn().Exec(`
		INSERT INTO tenant_credentials (id, tenant_id, client_id, client_secret_enc, created_at, updated_at)
		VALUES ('c1', 't1', 'app-1', X'00', ?, ?)`, now, now)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err = databases["directory"].Conn().Exec(`
			INSERT INTO users (id, tenant_id, external_id, principal_name, created_at, updated_at)
			VALUES (?, 't1', ?, ?, ?, ?)`,
			fmt.Sprintf("u%d", i), fmt.Sprintf("ext-u%d", i), fmt.Sprintf("user%d@contoso.com", i), now, now)
		require.NoError(t, err)
	}

	_, err = databases["analysis"].Conn().Exec(`
		INSERT INTO analyses (id, tenant_id, analysis_date, status, created_at, updated_at)
		VALUES ('a1', 't1', ?, 'completed', ?, ?)`, now, now, now)
	require.NoError(t, err)

	_, err = databases["analysis"].Conn().Exec(`
		INSERT INTO recommendations (id, analysis_id, tenant_id, user_id, action, reason_code, status, created_at, updated_at)
		VALUES ('r1', 'a1', 't1', 'u1', 'remove', 'inactive_user', 'pending', ?, ?),
		       ('r2', 'a1', 't1', 'u2', 'downgrade', 'low_service_usage', 'accepted', ?, ?)`,
		now, now, now, now)
	require.NoError(t, err)

	recorder := scheduler.NewRecorder(databases["cache"], zerolog.Nop())
	recorder.Record("sync:users", "t1", "completed", 2*time.Second, "")

	h := NewSystemHandlers(SystemHandlerDeps{
		DataDir:   t.TempDir(),
		Databases: databases,
		InFlight:  work.NewInFlight(),
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "dev", resp.Version)
	assert.Equal(t, 2, resp.Tenants)
	assert.Equal(t, 1, resp.SyncableTenants)
	assert.Equal(t, 3, resp.Users)
	assert.Equal(t, 1, resp.Analyses)
	assert.Equal(t, 1, resp.PendingRecommendations)
	assert.Len(t, resp.Databases, 5)
	assert.Empty(t, resp.RunningWork)
	assert.NotEmpty(t, resp.LastSync)
	assert.NotEmpty(t, resp.LastAnalysis)
}

func TestHandleSystemStatusEmptyDatabases(t *testing.T) {
	databases := make(map[string]*database.DB)
	for _, name := range []string{"tenants", "directory", "analysis", "cache"} {
		db, cleanup := seatwisetesting.NewTestDB(t, name)
		t.Cleanup(cleanup)
		databases[name] = db
	}

	h := NewSystemHandlers(SystemHandlerDeps{Databases: databases}, zerolog.Nop())

	resp, err := h.GetSystemStatusSnapshot()
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Tenants)
	assert.Equal(t, 0, resp.Users)
	assert.Empty(t, resp.LastSync)
	assert.Empty(t, resp.LastAnalysis)
	assert.Len(t, resp.Databases, 4)
}

func TestHandleRunJob(t *testing.T) {
	executed := make(chan string, 1)

	registry := work.NewRegistry()
	registry.Register(&work.WorkType{
		ID:           "maintenance:backup",
		Priority:     work.PriorityLow,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			executed <- "maintenance:backup"
			return nil
		},
	})

	inflight := work.NewInFlight()
	processor := work.NewProcessor(registry, work.NewCompletionTracker(), inflight, nil, 1, zerolog.Nop())

	h := NewSystemHandlers(SystemHandlerDeps{
		Registry:  registry,
		InFlight:  inflight,
		Processor: processor,
		RunCtx:    context.Background(),
	}, zerolog.Nop())

	router := chi.NewRouter()
	router.Post("/api/system/jobs/{jobID}/run", h.HandleRunJob)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/maintenance:backup/run", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "triggered", resp["status"])
	assert.Equal(t, "maintenance:backup", resp["job"])

	select {
	case got := <-executed:
		assert.Equal(t, "maintenance:backup", got)
	case <-time.After(5 * time.Second):
		t.Fatal("triggered job never executed")
	}
}

func TestHandleRunJobUnknown(t *testing.T) {
	h := NewSystemHandlers(SystemHandlerDeps{
		Registry: work.NewRegistry(),
	}, zerolog.Nop())

	router := chi.NewRouter()
	router.Post("/api/system/jobs/{jobID}/run", h.HandleRunJob)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/no:such:job/run", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleJobHistory(t *testing.T) {
	cacheDB, cleanup := seatwisetesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	recorder := scheduler.NewRecorder(cacheDB, zerolog.Nop())
	recorder.Record("sync:users", "t1", "completed", time.Second, "")
	recorder.Record("sync:licenses", "t1", "failed", time.Second, "graph unavailable")
	recorder.Record("sync:usage", "t1", "completed", time.Second, "")

	h := NewSystemHandlers(SystemHandlerDeps{History: recorder}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleJobHistory(rec, httptest.NewRequest(http.MethodGet, "/api/system/history?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs  []scheduler.Run `json:"runs"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Runs, 2)
}

func TestHandleJobHistoryBadLimit(t *testing.T) {
	h := NewSystemHandlers(SystemHandlerDeps{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleJobHistory(rec, httptest.NewRequest(http.MethodGet, "/api/system/history?limit=banana", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDatabaseStats(t *testing.T) {
	databases := make(map[string]*database.DB)
	for _, name := range []string{"tenants", "cache"} {
		db, cleanup := seatwisetesting.NewTestDB(t, name)
		t.Cleanup(cleanup)
		databases[name] = db
	}

	h := NewSystemHandlers(SystemHandlerDeps{Databases: databases}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleDatabaseStats(rec, httptest.NewRequest(http.MethodGet, "/api/system/database/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Databases, 2)

	// Names come back sorted.
	assert.Equal(t, "cache", resp.Databases[0].Name)
	assert.Equal(t, "tenants", resp.Databases[1].Name)
	assert.NotEmpty(t, resp.Databases[0].Path)
}

func TestHandleDiskUsage(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tenants.db"), make([]byte, 4096), 0o644))

	h := NewSystemHandlers(SystemHandlerDeps{DataDir: dataDir}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleDiskUsage(rec, httptest.NewRequest(http.MethodGet, "/api/system/disk", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiskUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, dataDir, resp.DataDir)
	assert.Greater(t, resp.DiskTotalMB, 0.0)
	assert.GreaterOrEqual(t, resp.DataSizeMB, 0.0)
}
