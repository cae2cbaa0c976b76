package server

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/modules/skus"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/internal/version"
	"github.com/seatwise/seatwise/internal/work"
)

// SystemHandlerDeps carries everything the operational endpoints read from.
// Fields may be nil; the handlers report what they can reach.
type SystemHandlerDeps struct {
	DataDir   string
	Databases map[string]*database.DB
	Registry  *work.Registry
	InFlight  *work.InFlight
	Processor *work.Processor
	History   *scheduler.Recorder
	Skus      *skus.Registry
	RunCtx    context.Context
}

// SystemHandlers serves the status, job control, and storage endpoints
// under /api/system.
type SystemHandlers struct {
	log       zerolog.Logger
	startedAt time.Time

	dataDir   string
	databases map[string]*database.DB
	registry  *work.Registry
	inflight  *work.InFlight
	processor *work.Processor
	history   *scheduler.Recorder
	skus      *skus.Registry
	runCtx    context.Context
}

// NewSystemHandlers creates the system endpoint handlers.
func NewSystemHandlers(deps SystemHandlerDeps, log zerolog.Logger) *SystemHandlers {
	runCtx := deps.RunCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		startedAt: time.Now(),
		dataDir:   deps.DataDir,
		databases: deps.Databases,
		registry:  deps.Registry,
		inflight:  deps.InFlight,
		processor: deps.Processor,
		history:   deps.History,
		skus:      deps.Skus,
		runCtx:    runCtx,
	}
}

// DatabaseInfo describes one database file on disk.
type DatabaseInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// SystemStatusResponse is the payload of GET /api/system/status.
type SystemStatusResponse struct {
	Status                 string         `json:"status"`
	Version                string         `json:"version"`
	UptimeSeconds          int64          `json:"uptime_seconds"`
	CPUPercent             float64        `json:"cpu_percent"`
	MemoryPercent          float64        `json:"memory_percent"`
	Tenants                int            `json:"tenants"`
	SyncableTenants        int            `json:"syncable_tenants"`
	Users                  int            `json:"users"`
	Analyses               int            `json:"analyses"`
	PendingRecommendations int            `json:"pending_recommendations"`
	SkuMappings            int            `json:"sku_mappings"`
	Databases              []DatabaseInfo `json:"databases"`
	TotalSizeMB            float64        `json:"total_size_mb"`
	RunningWork            []string       `json:"running_work"`
	LastSync               string         `json:"last_sync,omitempty"`
	LastAnalysis           string         `json:"last_analysis,omitempty"`
}

// GetSystemStatusSnapshot assembles the status response. Individual probes
// that fail leave their fields zeroed; the first failure is returned so the
// caller can log it, but the snapshot itself is always usable.
func (h *SystemHandlers) GetSystemStatusSnapshot() (SystemStatusResponse, error) {
	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Databases:     []DatabaseInfo{},
		RunningWork:   []string{},
	}

	var firstErr error
	fail := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	resp.CPUPercent, resp.MemoryPercent = getSystemStats()

	fail(h.countInto("tenants", `SELECT COUNT(*) FROM tenants`, &resp.Tenants))
	fail(h.countInto("tenants", `
		SELECT COUNT(*) FROM tenants
		WHERE onboarding_state IN ('configured', 'active')
		  AND id IN (SELECT tenant_id FROM tenant_credentials WHERE is_valid = 1)`,
		&resp.SyncableTenants))
	fail(h.countInto("directory", `SELECT COUNT(*) FROM users`, &resp.Users))
	fail(h.countInto("analysis", `SELECT COUNT(*) FROM analyses`, &resp.Analyses))
	fail(h.countInto("analysis", `SELECT COUNT(*) FROM recommendations WHERE status = 'pending'`,
		&resp.PendingRecommendations))

	if h.skus != nil {
		mappings, _, _ := h.skus.Snapshot().Size()
		resp.SkuMappings = mappings
	}

	if h.inflight != nil {
		resp.RunningWork = h.inflight.Running()
	}

	for _, name := range h.databaseNames() {
		db := h.databases[name]
		size := fileSizeMB(db.Path())
		resp.Databases = append(resp.Databases, DatabaseInfo{Name: name, Path: db.Path(), SizeMB: size})
		resp.TotalSizeMB += size
	}
	resp.TotalSizeMB = roundMB(resp.TotalSizeMB)

	lastSync, err := h.maxTimestamp("cache", `
		SELECT MAX(finished_at) FROM job_history
		WHERE job_name LIKE 'sync:%' AND status = 'completed'`)
	fail(err)
	resp.LastSync = lastSync

	lastAnalysis, err := h.maxTimestamp("analysis", `
		SELECT MAX(updated_at) FROM analyses WHERE status = 'completed'`)
	fail(err)
	resp.LastAnalysis = lastAnalysis

	return resp, firstErr
}

// HandleSystemStatus serves GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.GetSystemStatusSnapshot()
	if err != nil {
		h.log.Warn().Err(err).Msg("System status snapshot is partial")
	}
	api.WriteJSON(w, h.log, http.StatusOK, resp)
}

// WorkTypeInfo describes one registered work type and its schedule state.
type WorkTypeInfo struct {
	ID        string   `json:"id"`
	Priority  string   `json:"priority"`
	Interval  string   `json:"interval"`
	DependsOn []string `json:"depends_on,omitempty"`
	LastRun   *string  `json:"last_run,omitempty"`
	NextRun   *string  `json:"next_run,omitempty"`
	Running   bool     `json:"running"`
}

// JobsStatusResponse is the payload of GET /api/system/jobs.
type JobsStatusResponse struct {
	WorkTypes []WorkTypeInfo `json:"work_types"`
	Count     int            `json:"count"`
}

// HandleJobsStatus serves GET /api/system/jobs: every registered work type
// in priority order with last and projected next run times.
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	var lastRuns map[string]time.Time
	if h.history != nil {
		var err error
		lastRuns, err = h.history.LastCompleted()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to load job completion times")
		}
	}

	var running []string
	if h.inflight != nil {
		running = h.inflight.Running()
	}

	var types []*work.WorkType
	if h.registry != nil {
		types = h.registry.ByPriority()
	}

	infos := make([]WorkTypeInfo, 0, len(types))
	for _, wt := range types {
		info := WorkTypeInfo{
			ID:        wt.ID,
			Priority:  wt.Priority.String(),
			Interval:  formatInterval(wt.Interval),
			DependsOn: wt.DependsOn,
			Running:   isRunning(running, wt.ID),
		}
		if last, ok := lastRuns[wt.ID]; ok {
			lastStr := last.UTC().Format(time.RFC3339)
			info.LastRun = &lastStr
			if wt.Interval > 0 {
				nextStr := last.Add(wt.Interval).UTC().Format(time.RFC3339)
				info.NextRun = &nextStr
			}
		}
		infos = append(infos, info)
	}

	api.WriteJSON(w, h.log, http.StatusOK, JobsStatusResponse{WorkTypes: infos, Count: len(infos)})
}

// HandleRunJob serves POST /api/system/jobs/{jobID}/run. The job runs in the
// background; completion lands in the job history like any scheduled run.
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if h.registry == nil || !h.registry.Has(jobID) {
		api.WriteErrorMessage(w, h.log, http.StatusNotFound, fmt.Sprintf("unknown job %s", jobID))
		return
	}

	h.log.Info().Str("job", jobID).Msg("Job triggered manually")

	go func() {
		if err := h.processor.RunType(h.runCtx, jobID); err != nil {
			h.log.Error().Err(err).Str("job", jobID).Msg("Manually triggered job failed")
		}
	}()

	api.WriteJSON(w, h.log, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    jobID,
	})
}

// HandleJobHistory serves GET /api/system/history with an optional ?limit=.
func (h *SystemHandlers) HandleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.history.ListRecent(limit)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// DatabaseStatsResponse is the payload of GET /api/system/database/stats.
type DatabaseStatsResponse struct {
	Databases   []DatabaseInfo `json:"databases"`
	TotalSizeMB float64        `json:"total_size_mb"`
}

// HandleDatabaseStats serves GET /api/system/database/stats.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	resp := DatabaseStatsResponse{Databases: []DatabaseInfo{}}
	for _, name := range h.databaseNames() {
		db := h.databases[name]
		size := fileSizeMB(db.Path())
		resp.Databases = append(resp.Databases, DatabaseInfo{Name: name, Path: db.Path(), SizeMB: size})
		resp.TotalSizeMB += size
	}
	resp.TotalSizeMB = roundMB(resp.TotalSizeMB)

	api.WriteJSON(w, h.log, http.StatusOK, resp)
}

// DiskUsageResponse is the payload of GET /api/system/disk.
type DiskUsageResponse struct {
	DataDir         string  `json:"data_dir"`
	DataSizeMB      float64 `json:"data_size_mb"`
	BackupsSizeMB   float64 `json:"backups_size_mb"`
	DiskTotalMB     float64 `json:"disk_total_mb"`
	DiskFreeMB      float64 `json:"disk_free_mb"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
}

// HandleDiskUsage serves GET /api/system/disk: how much the data directory
// holds and how much room the filesystem has left.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	resp := DiskUsageResponse{DataDir: h.dataDir}
	resp.DataSizeMB = dirSizeMB(h.dataDir)
	resp.BackupsSizeMB = dirSizeMB(filepath.Join(h.dataDir, "backups"))

	if usage, err := disk.Usage(h.dataDir); err == nil {
		resp.DiskTotalMB = roundMB(float64(usage.Total) / 1024 / 1024)
		resp.DiskFreeMB = roundMB(float64(usage.Free) / 1024 / 1024)
		resp.DiskUsedPercent = roundMB(usage.UsedPercent)
	} else {
		h.log.Warn().Err(err).Msg("Failed to read filesystem usage")
	}

	api.WriteJSON(w, h.log, http.StatusOK, resp)
}

func (h *SystemHandlers) databaseNames() []string {
	names := make([]string, 0, len(h.databases))
	for name, db := range h.databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (h *SystemHandlers) countInto(dbName, query string, out *int) error {
	db, ok := h.databases[dbName]
	if !ok || db == nil {
		return nil
	}
	return db.Conn().QueryRow(query).Scan(out)
}

// maxTimestamp runs a MAX(unix seconds) query and formats the result as
// RFC3339, or returns "" when the table has no matching rows.
func (h *SystemHandlers) maxTimestamp(dbName, query string) (string, error) {
	db, ok := h.databases[dbName]
	if !ok || db == nil {
		return "", nil
	}

	var ts sql.NullInt64
	if err := db.Conn().QueryRow(query).Scan(&ts); err != nil {
		return "", err
	}
	if !ts.Valid {
		return "", nil
	}
	return time.Unix(ts.Int64, 0).UTC().Format(time.RFC3339), nil
}

func getSystemStats() (cpuPercent, memPercent float64) {
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = roundMB(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = roundMB(vm.UsedPercent)
	}
	return cpuPercent, memPercent
}

// isRunning reports whether any in-flight fingerprint belongs to the work
// type: either the bare type ID or a tenant-scoped "id:subject" form.
func isRunning(fingerprints []string, typeID string) bool {
	for _, fp := range fingerprints {
		if fp == typeID || strings.HasPrefix(fp, typeID+":") {
			return true
		}
	}
	return false
}

// formatInterval renders a work interval compactly: "6h" rather than
// "6h0m0s". Zero means the work type only runs when something asks for it.
func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "on-demand"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return roundMB(float64(info.Size()) / 1024 / 1024)
}

// dirSizeMB totals regular file sizes under dir. Unreadable entries are
// skipped rather than failing the walk.
func dirSizeMB(dir string) float64 {
	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return roundMB(float64(total) / 1024 / 1024)
}

func roundMB(v float64) float64 {
	return math.Round(v*100) / 100
}
