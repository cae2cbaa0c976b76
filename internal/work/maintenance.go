package work

import (
	"context"
	"time"
)

// BackupService is the local backup service surface.
type BackupService interface {
	RunDailyBackup() error
	BackedUpToday() bool
}

// RemoteBackupService is the S3 backup service surface. Disabled deployments
// report Enabled() false and the remote work types never find subjects.
type RemoteBackupService interface {
	Enabled() bool
	UploadBackup(ctx context.Context) error
	RotateBackups(ctx context.Context) error
}

// MaintenanceService is the database maintenance surface.
type MaintenanceService interface {
	CheckpointWAL() error
	VacuumDatabases() error
}

// CleanupService is the expired-data cleanup surface.
type CleanupService interface {
	CleanupClientData() error
	CleanupJobHistory() error
}

// MaintenanceDeps contains the dependencies for maintenance work types.
type MaintenanceDeps struct {
	Backup       BackupService
	RemoteBackup RemoteBackupService
	Maintenance  MaintenanceService
	Cleanup      CleanupService
}

// RegisterMaintenanceWorkTypes registers backup, checkpoint, vacuum and
// cleanup work. All of it is process-global and low priority; the backup
// chain orders local backup before upload, rotation and vacuum.
func RegisterMaintenanceWorkTypes(registry *Registry, deps *MaintenanceDeps) {
	registry.Register(&WorkType{
		ID:       "maintenance:backup",
		Priority: PriorityLow,
		Interval: 24 * time.Hour,
		FindSubjects: func() []string {
			// The daily marker survives restarts; the in-memory completion
			// tracker does not.
			if deps.Backup.BackedUpToday() {
				return nil
			}
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string) error {
			return deps.Backup.RunDailyBackup()
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:remote-backup",
		DependsOn:    []string{"maintenance:backup"},
		Priority:     PriorityLow,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return remoteBackupSubjects(deps.RemoteBackup) },
		Execute: func(ctx context.Context, subject string) error {
			return deps.RemoteBackup.UploadBackup(ctx)
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:remote-rotation",
		DependsOn:    []string{"maintenance:remote-backup"},
		Priority:     PriorityLow,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return remoteBackupSubjects(deps.RemoteBackup) },
		Execute: func(ctx context.Context, subject string) error {
			return deps.RemoteBackup.RotateBackups(ctx)
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:checkpoint",
		Priority:     PriorityLow,
		Interval:     1 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			return deps.Maintenance.CheckpointWAL()
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:vacuum",
		DependsOn:    []string{"maintenance:backup"},
		Priority:     PriorityLow,
		Interval:     7 * 24 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			return deps.Maintenance.VacuumDatabases()
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:cleanup:client-data",
		Priority:     PriorityLow,
		Interval:     1 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			return deps.Cleanup.CleanupClientData()
		},
	})

	registry.Register(&WorkType{
		ID:           "maintenance:cleanup:job-history",
		Priority:     PriorityLow,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			return deps.Cleanup.CleanupJobHistory()
		},
	})
}

func remoteBackupSubjects(remote RemoteBackupService) []string {
	if remote == nil || !remote.Enabled() {
		return nil
	}
	return []string{""}
}
