package work

import (
	"context"
	"fmt"
)

// CacheCleaner sweeps expired cache rows.
type CacheCleaner interface {
	Run(ctx context.Context) (int64, error)
}

// BackupRunner produces and uploads one database backup.
type BackupRunner interface {
	Run(ctx context.Context) error
}

// RegisterCleanupJob registers the cache eviction job. The sweep is
// idempotent, so the job carries no retry classification.
func RegisterCleanupJob(registry *Registry, cleaner CacheCleaner) {
	registry.Register(&JobType{
		Name: JobCleanupCache,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			deleted, err := cleaner.Run(ctx)
			if err != nil {
				return nil, fmt.Errorf("cache cleanup failed: %w", err)
			}
			return Counts{"deleted": int(deleted)}, nil
		},
	})
}

// RegisterBackupJob registers the nightly backup job. Upload failures
// are transient by nature (object storage), so they are retried.
func RegisterBackupJob(registry *Registry, backup BackupRunner) {
	registry.Register(&JobType{
		Name: JobBackup,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			if err := backup.Run(ctx); err != nil {
				return nil, Retryable(fmt.Errorf("backup failed: %w", err))
			}
			return Counts{"backups": 1}, nil
		},
	})
}
