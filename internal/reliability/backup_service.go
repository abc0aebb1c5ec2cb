package reliability

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/database"
)

const (
	backupPrefix = "insight-backup-"
	backupSuffix = ".db.gz"

	// minBackupsToKeep backups always survive rotation, regardless of age.
	minBackupsToKeep = 3
)

// BackupService snapshots the database and ships it to cloud storage.
type BackupService struct {
	db            *database.DB
	r2            *R2Client
	stagingDir    string
	retentionDays int
	log           zerolog.Logger
}

// BackupInfo describes one stored backup.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// NewBackupService creates a backup service. retentionDays of 0 keeps
// backups forever.
func NewBackupService(db *database.DB, r2 *R2Client, stagingDir string, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		r2:            r2,
		stagingDir:    stagingDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run produces one backup: VACUUM INTO a staging snapshot, gzip it,
// upload, rotate old uploads, then remove the staging files.
func (s *BackupService) Run(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("Starting database backup")

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02-150405")
	snapshotPath := filepath.Join(s.stagingDir, backupPrefix+timestamp+".db")
	archivePath := snapshotPath + ".gz"
	defer os.Remove(snapshotPath)
	defer os.Remove(archivePath)

	// VACUUM INTO produces a consistent, compacted snapshot without
	// blocking writers.
	if err := s.db.VacuumInto(ctx, snapshotPath); err != nil {
		return err
	}

	if err := compressFile(snapshotPath, archivePath); err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	archiveName := filepath.Base(archivePath)
	if err := s.r2.Upload(ctx, archiveName, archive); err != nil {
		return err
	}

	if err := s.RotateOldBackups(ctx); err != nil {
		// Rotation failure doesn't invalidate the backup that was
		// just uploaded.
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}

	info, _ := os.Stat(archivePath)
	var sizeBytes int64
	if info != nil {
		sizeBytes = info.Size()
	}

	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", sizeBytes).
		Dur("duration", time.Since(start)).
		Msg("Database backup completed")

	return nil
}

// ListBackups lists stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		filename := *obj.Key
		if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, backupSuffix) {
			continue
		}

		timestampStr := strings.TrimPrefix(filename, backupPrefix)
		timestampStr = strings.TrimSuffix(timestampStr, backupSuffix)

		timestamp, err := time.Parse("2006-01-02-150405", timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period,
// always keeping the newest minBackupsToKeep.
func (s *BackupService) RotateOldBackups(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep || s.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if backup.Timestamp.Before(cutoff) {
			if err := s.r2.Delete(ctx, backup.Filename); err != nil {
				s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Rotated old backups")
	}

	return nil
}

// compressFile gzips src into dst.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}

	return gz.Close()
}
