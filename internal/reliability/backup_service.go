// Package reliability keeps the SQLite stores safe and small: tiered local
// backups, optional S3 upload, WAL checkpoints, VACUUM and expired-data
// cleanup. Everything here runs through the maintenance work types.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3" // Secondary driver, used to verify backup files in isolation
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/seatwise/seatwise/internal/database"
)

const (
	dailyRetentionDays   = 30
	weeklyRetentionWeeks = 12

	// completeMarker is written after every database in a daily set backed
	// up and verified. BackedUpToday trusts only marked sets, so a partial
	// backup is retried on the next sweep.
	completeMarker = ".complete"
)

// BackupService takes tiered local backups of the SQLite stores. Daily sets
// keep 30 days, weekly sets 12 weeks; every backup is a VACUUM INTO copy
// verified with an integrity check before it counts.
type BackupService struct {
	databases map[string]*database.DB
	backupDir string
	log       zerolog.Logger
	now       func() time.Time
}

// NewBackupService creates a backup service over the given databases, keyed
// by store name (tenants, directory, commerce, analysis, cache).
func NewBackupService(databases map[string]*database.DB, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
		now:       time.Now,
	}
}

// DatabaseNames returns the configured store names sorted, optionally
// without the rebuildable cache store.
func (s *BackupService) DatabaseNames(includeCache bool) []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		if !includeCache && name == "cache" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackedUpToday reports whether a complete daily backup set exists for the
// current date. The marker survives restarts, unlike the in-memory work
// completion tracker.
func (s *BackupService) BackedUpToday() bool {
	marker := filepath.Join(s.dailyDir(s.now()), completeMarker)
	_, err := os.Stat(marker)
	return err == nil
}

// RunDailyBackup backs up every store except the cache into today's daily
// set, refreshes the weekly set when a new ISO week starts, and rotates old
// sets out.
func (s *BackupService) RunDailyBackup() error {
	started := s.now()
	s.log.Info().Msg("Starting daily backup")

	if err := s.checkDiskSpace(); err != nil {
		return err
	}

	dailyDir := s.dailyDir(started)
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	if err := s.backupSet(dailyDir, s.DatabaseNames(false)); err != nil {
		return err
	}

	marker := filepath.Join(dailyDir, completeMarker)
	if err := os.WriteFile(marker, []byte(started.UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write backup marker: %w", err)
	}

	if err := s.ensureWeeklyBackup(started); err != nil {
		// The daily set is safe; a weekly failure waits for tomorrow.
		s.log.Error().Err(err).Msg("Weekly backup failed")
	}

	s.rotateDailyBackups(started)
	s.rotateWeeklyBackups()

	s.log.Info().
		Dur("elapsed", s.now().Sub(started)).
		Str("backup_dir", dailyDir).
		Msg("Daily backup completed")
	return nil
}

// BackupDatabase copies one store to destPath using VACUUM INTO, producing
// a compact snapshot without WAL sidecars.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %s", name)
	}

	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear stale backup %s: %w", destPath, err)
	}

	if _, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to back up %s: %w", name, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup of %s: %w", name, err)
	}
	s.log.Debug().
		Str("database", name).
		Int64("size_bytes", info.Size()).
		Msg("Backup created")
	return nil
}

// backupSet writes and verifies one backup per named store into dir. Any
// failure aborts the set; a partial set carries no completion marker and is
// retried whole.
func (s *BackupService) backupSet(dir string, names []string) error {
	for _, name := range names {
		destPath := filepath.Join(dir, name+".db")

		if err := s.BackupDatabase(name, destPath); err != nil {
			return err
		}
		if err := s.verifyBackup(destPath); err != nil {
			_ = os.Remove(destPath)
			return fmt.Errorf("backup of %s failed verification: %w", name, err)
		}
	}
	return nil
}

// verifyBackup opens the copy with the secondary driver and runs an
// integrity check, so a bad snapshot never touches the primary pool.
func (s *BackupService) verifyBackup(path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// ensureWeeklyBackup writes a full set (cache included) once per ISO week.
func (s *BackupService) ensureWeeklyBackup(now time.Time) error {
	weekDir := s.weeklyDir(now)
	if _, err := os.Stat(filepath.Join(weekDir, completeMarker)); err == nil {
		return nil
	}

	if err := os.MkdirAll(weekDir, 0o755); err != nil {
		return fmt.Errorf("failed to create weekly backup directory: %w", err)
	}
	if err := s.backupSet(weekDir, s.DatabaseNames(true)); err != nil {
		return err
	}

	marker := filepath.Join(weekDir, completeMarker)
	if err := os.WriteFile(marker, []byte(now.UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write weekly backup marker: %w", err)
	}

	s.log.Info().Str("backup_dir", weekDir).Msg("Weekly backup completed")
	return nil
}

func (s *BackupService) dailyDir(now time.Time) string {
	return filepath.Join(s.backupDir, "daily", now.Format("2006-01-02"))
}

func (s *BackupService) weeklyDir(now time.Time) string {
	year, week := now.ISOWeek()
	return filepath.Join(s.backupDir, "weekly", fmt.Sprintf("%04d-W%02d", year, week))
}

// rotateDailyBackups deletes daily sets older than the retention window.
// Rotation failures are logged, never returned; today's backup already
// succeeded.
func (s *BackupService) rotateDailyBackups(now time.Time) {
	root := filepath.Join(s.backupDir, "daily")
	cutoff := now.AddDate(0, 0, -dailyRetentionDays)

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("Failed to read daily backup directory")
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		date, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			s.removeSet(filepath.Join(root, entry.Name()))
		}
	}
}

// rotateWeeklyBackups keeps the newest sets up to the retention count. The
// YYYY-Www names sort chronologically, so name order is age order.
func (s *BackupService) rotateWeeklyBackups() {
	root := filepath.Join(s.backupDir, "weekly")

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("Failed to read weekly backup directory")
		}
		return
	}

	weeks := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			weeks = append(weeks, entry.Name())
		}
	}
	if len(weeks) <= weeklyRetentionWeeks {
		return
	}

	sort.Strings(weeks)
	for _, week := range weeks[:len(weeks)-weeklyRetentionWeeks] {
		s.removeSet(filepath.Join(root, week))
	}
}

func (s *BackupService) removeSet(path string) {
	if err := os.RemoveAll(path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("Failed to delete old backup set")
		return
	}
	s.log.Debug().Str("path", path).Msg("Deleted old backup set")
}

// checkDiskSpace refuses to back up when the disk is nearly full; VACUUM
// INTO needs room for a full copy and a failed write helps nobody.
func (s *BackupService) checkDiskSpace() error {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	usage, err := disk.Usage(s.backupDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to check disk space, continuing")
		return nil
	}

	freeGB := float64(usage.Free) / 1e9
	switch {
	case freeGB < 0.5:
		return fmt.Errorf("only %.2f GB free, refusing to back up", freeGB)
	case freeGB < 5.0:
		s.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	}
	return nil
}
