package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/modules/analysis"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/internal/work"
)

// RegisterWork builds the work processor, registers every work type, and
// schedules the cron entries that drive it. The context is the process
// lifetime; cancelling it stops in-progress sweeps.
func RegisterWork(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	registry := work.NewRegistry()
	completion := work.NewCompletionTracker()
	inflight := work.NewInFlight()

	processor := work.NewProcessor(registry, completion, inflight, container.JobHistory, cfg.SyncParallelism, log)

	syncDeps := &work.SyncDeps{
		Tenants:   container.TenantRepo,
		Directory: container.DirectorySync,
		Interval:  cfg.SyncInterval,
		Log:       log,
	}
	// Assign only when present: a typed nil in the interface field would
	// pass the registration guard and panic at execution.
	if container.CommerceSync != nil {
		syncDeps.Commerce = container.CommerceSync
	}
	work.RegisterSyncWorkTypes(registry, syncDeps)

	work.RegisterAnalysisWorkTypes(registry, &work.AnalysisDeps{
		Tenants:  container.TenantRepo,
		Analyses: container.AnalysisService,
		Log:      log,
	})

	work.RegisterMaintenanceWorkTypes(registry, &work.MaintenanceDeps{
		Backup:       container.BackupService,
		RemoteBackup: container.RemoteBackupService,
		Maintenance:  container.MaintenanceService,
		Cleanup:      container.CleanupService,
	})

	container.WorkRegistry = registry
	container.WorkCompletion = completion
	container.InFlight = inflight
	container.WorkProcessor = processor

	sched := scheduler.New(log)
	if err := sched.AddJob("@every 1m", scheduler.NewSweepJob(ctx, processor)); err != nil {
		return fmt.Errorf("failed to schedule work sweep: %w", err)
	}
	if err := sched.AddJob(cfg.AnalysisCron, scheduler.NewRunTypeJob(ctx, processor, analysis.OpRunAnalysis)); err != nil {
		return fmt.Errorf("failed to schedule nightly analysis: %w", err)
	}
	container.Scheduler = sched

	log.Info().
		Int("work_types", registry.Count()).
		Str("analysis_cron", cfg.AnalysisCron).
		Msg("Work processor registered")

	return nil
}
