// Package runner orchestrates the scheduled backup workflow.
package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fgeck/stackguard/internal/config"
	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/backup"
	"github.com/fgeck/stackguard/internal/services/telegram"
	"github.com/rs/zerolog"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config) error
}

// BackupFactory builds the backup engine for a configuration.
type BackupFactory func(logger zerolog.Logger, cfg models.Config) backup.Service

// Impl implements the runner Service interface.
type Impl struct {
	newBackup   BackupFactory
	telegramSvc telegram.Service
	logger      zerolog.Logger
	hostname    func() (string, error)
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		newBackup: func(logger zerolog.Logger, cfg models.Config) backup.Service {
			return backup.New(logger, cfg)
		},
		telegramSvc: telegram.New(logger),
		logger:      logger,
		hostname:    os.Hostname,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	backupSvc backup.Service,
	telegramSvc telegram.Service,
	hostname func() (string, error),
) *Impl {
	return &Impl{
		newBackup: func(zerolog.Logger, models.Config) backup.Service {
			return backupSvc
		},
		telegramSvc: telegramSvc,
		logger:      logger,
		hostname:    hostname,
	}
}

// Run executes the scheduled backup: validate the configuration, create the
// archive (retention included) and report the outcome via Telegram when
// configured.
func (s *Impl) Run(ctx context.Context, cfg models.Config) error {
	startTime := time.Now()
	var failedStep string
	var runErr error
	var backupResult *models.BackupResult

	s.logger.Info().
		Str("source", cfg.ProjectsRoot).
		Str("destination", cfg.Backup.Destination).
		Int("retention", cfg.Backup.Retention).
		Msg("starting scheduled backup run")

	defer func() {
		if cfg.Telegram != nil {
			s.sendNotification(ctx, cfg, startTime, backupResult, failedStep, runErr)
		}
	}()

	// Step 1: Configuration
	failedStep = "config"
	if err := config.Validate(&cfg); err != nil {
		runErr = err
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Step 2: Backup
	failedStep = "backup"
	result, err := s.newBackup(s.logger, cfg).CreateBackup(ctx)
	if err != nil {
		runErr = err
		return fmt.Errorf("backup failed: %w", err)
	}
	backupResult = result
	if result.Error != nil {
		runErr = result.Error
		return fmt.Errorf("backup failed: %w", result.Error)
	}

	if result.Pruned != nil && len(result.Pruned.Failed) > 0 {
		s.logger.Warn().
			Strs("failed", result.Pruned.Failed).
			Msg("some old archives could not be removed")
	}

	failedStep = ""
	s.logger.Info().
		Str("archive", result.ArchiveName).
		Str("size", result.SizeHuman).
		Int("stacks", result.StackCount).
		Dur("duration", time.Since(startTime)).
		Msg("backup run completed successfully")

	return nil
}

func (s *Impl) sendNotification(
	ctx context.Context,
	cfg models.Config,
	startTime time.Time,
	backupResult *models.BackupResult,
	failedStep string,
	runErr error,
) {
	host, err := s.hostname()
	if err != nil {
		host = "unknown"
	}

	msg := models.TelegramMessage{
		Success:     runErr == nil,
		Host:        host,
		Destination: cfg.Backup.Destination,
		StartTime:   startTime,
		Duration:    time.Since(startTime),
	}

	if runErr != nil {
		msg.FailedStep = failedStep
		msg.ErrorMessage = runErr.Error()
	}

	if backupResult != nil && backupResult.Error == nil {
		msg.ArchiveName = backupResult.ArchiveName
		msg.SizeHuman = backupResult.SizeHuman
		msg.StackCount = backupResult.StackCount
		if backupResult.Pruned != nil {
			msg.ArchivesKept = len(backupResult.Pruned.Kept)
			msg.ArchivesRemoved = len(backupResult.Pruned.Removed)
		}
	}

	result, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
