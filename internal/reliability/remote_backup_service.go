package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/version"
)

const (
	archivePrefix = "seatwise-backup-"
	archiveStamp  = "2006-01-02-150405"

	// minRemoteBackups are kept regardless of age, so rotation can never
	// strand a deployment without a restore point.
	minRemoteBackups = 3
)

// ArchiveManifest describes the contents of one uploaded backup archive.
type ArchiveManifest struct {
	CreatedAt time.Time          `json:"created_at"`
	Version   string             `json:"version"`
	Databases []DatabaseManifest `json:"databases"`
}

// DatabaseManifest describes one database file inside an archive.
type DatabaseManifest struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// RemoteBackup is one archive stored on the S3 target.
type RemoteBackup struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// RemoteBackupService ships backup archives to an S3-compatible target. A
// nil client disables the service; the maintenance work types check
// Enabled before finding subjects.
type RemoteBackupService struct {
	client        *S3Client
	backups       *BackupService
	stagingRoot   string
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

// NewRemoteBackupService creates the remote backup service. stagingRoot is
// the data directory; archives are assembled under it and removed after
// upload.
func NewRemoteBackupService(client *S3Client, backups *BackupService, stagingRoot string, retentionDays int, log zerolog.Logger) *RemoteBackupService {
	return &RemoteBackupService{
		client:        client,
		backups:       backups,
		stagingRoot:   stagingRoot,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "remote_backup").Logger(),
		now:           time.Now,
	}
}

// Enabled reports whether an upload target is configured.
func (s *RemoteBackupService) Enabled() bool {
	return s.client != nil
}

// UploadBackup snapshots every store except the rebuildable cache, bundles
// the copies with a checksum manifest into one tar.gz, and uploads it.
func (s *RemoteBackupService) UploadBackup(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	started := s.now()
	s.log.Info().Msg("Starting remote backup upload")

	stagingDir, err := os.MkdirTemp(s.stagingRoot, "backup-staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	names := s.backups.DatabaseNames(false)
	manifest := ArchiveManifest{
		CreatedAt: started.UTC(),
		Version:   version.Version,
		Databases: make([]DatabaseManifest, 0, len(names)),
	}

	files := make([]string, 0, len(names)+1)
	for _, name := range names {
		filename := name + ".db"
		dbPath := filepath.Join(stagingDir, filename)

		if err := s.backups.BackupDatabase(name, dbPath); err != nil {
			return err
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return fmt.Errorf("failed to stat staged backup of %s: %w", name, err)
		}
		checksum, err := fileChecksum(dbPath)
		if err != nil {
			return fmt.Errorf("failed to checksum staged backup of %s: %w", name, err)
		}

		manifest.Databases = append(manifest.Databases, DatabaseManifest{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	manifestPath := filepath.Join(stagingDir, "manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	files = append(files, "manifest.json")

	archiveName := archivePrefix + started.Format(archiveStamp) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	if err := s.client.Upload(ctx, archiveName, archive, info.Size()); err != nil {
		return err
	}

	s.log.Info().
		Dur("elapsed", s.now().Sub(started)).
		Str("archive", archiveName).
		Int64("size_bytes", info.Size()).
		Msg("Remote backup uploaded")
	return nil
}

// ListBackups returns the archives on the target, newest first.
func (s *RemoteBackupService) ListBackups(ctx context.Context) ([]RemoteBackup, error) {
	if !s.Enabled() {
		return nil, nil
	}

	objects, err := s.client.List(ctx, archivePrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]RemoteBackup, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key

		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveStamp, stamp)
		if err != nil {
			s.log.Warn().Str("key", filename).Msg("Skipping object with unparseable name")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, RemoteBackup{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateBackups deletes archives older than the retention window, always
// keeping the newest few. Retention zero keeps everything.
func (s *RemoteBackupService) RotateBackups(ctx context.Context) error {
	if !s.Enabled() || s.retentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minRemoteBackups {
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, backup := range backups[minRemoteBackups:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.client.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("archive", backup.Filename).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Remote backup rotation completed")
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, manifest ArchiveManifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(manifest)
}

// createArchive bundles the named files from sourceDir into a tar.gz.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archive, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archive.Close()

	gz := gzip.NewWriter(archive)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tw, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to archive %s: %w", filename, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
