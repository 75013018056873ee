package scheduler

import (
	"context"
	"time"

	"github.com/fundlens/fundlens/internal/reliability"
	"github.com/rs/zerolog"
)

// backupRetentionDays bounds how long remote backups are kept.
const backupRetentionDays = 90

// BackupJob uploads database snapshots to the configured object store.
type BackupJob struct {
	backups *reliability.CloudBackupService
	log     zerolog.Logger
}

// NewBackupJob creates a backup job.
func NewBackupJob(backups *reliability.CloudBackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job identifier.
func (j *BackupJob) Name() string {
	return "cloud_backup"
}

// Run creates and uploads a backup, then rotates old archives. Rotation
// failures are logged but do not fail the run: the upload already succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.backups.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.backups.RotateOldBackups(ctx, backupRetentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
