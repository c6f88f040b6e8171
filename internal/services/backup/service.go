// Package backup snapshots every stack directory into a compressed archive.
package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/archive"
	"github.com/fgeck/stackguard/internal/services/paths"
	"github.com/fgeck/stackguard/internal/services/retention"
	"github.com/rs/zerolog"
)

// Service defines the interface for backup operations.
type Service interface {
	CreateBackup(ctx context.Context) (*models.BackupResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// PathResolver supplies the directories a backup reads from and writes to.
type PathResolver interface {
	SourceRoot() string
	DestinationRoot() string
	IsRedirected(stack string) bool
}

// Impl implements the Service interface.
type Impl struct {
	executor  CommandExecutor
	resolver  PathResolver
	retention retention.Service
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a new backup service for the given configuration.
func New(logger zerolog.Logger, cfg models.Config) *Impl {
	resolver := paths.New(cfg)
	store := archive.New(logger, resolver.DestinationRoot())

	return &Impl{
		executor:  &DefaultExecutor{},
		resolver:  resolver,
		retention: retention.New(logger, store, cfg.Backup.Retention),
		logger:    logger,
		now:       time.Now,
	}
}

// NewWithServices creates a new backup service with custom collaborators (for testing).
func NewWithServices(
	logger zerolog.Logger,
	resolver PathResolver,
	retentionSvc retention.Service,
	executor CommandExecutor,
	now func() time.Time,
) *Impl {
	return &Impl{
		executor:  executor,
		resolver:  resolver,
		retention: retentionSvc,
		logger:    logger,
		now:       now,
	}
}

// CreateBackup archives every stack directory under the source root and then
// applies retention to the destination. The snapshot is not coordinated with
// stack locks: a stack that is being modified is archived as found on disk.
func (s *Impl) CreateBackup(ctx context.Context) (*models.BackupResult, error) {
	start := s.now()
	result := &models.BackupResult{}

	source := s.resolver.SourceRoot()
	destination := s.resolver.DestinationRoot()

	s.logger.Info().
		Str("source", source).
		Str("destination", destination).
		Msg("starting stack backup")

	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return s.fail(result, start, &models.EnvironmentError{
			Path:   source,
			Reason: "source directory does not exist",
			Err:    err,
		}), nil
	}

	if err := os.MkdirAll(destination, 0o755); err != nil { //nolint:gosec // backup directory is shared with the UI
		return s.fail(result, start, &models.EnvironmentError{
			Path:   destination,
			Reason: "cannot create backup destination",
			Err:    err,
		}), nil
	}

	stacks, err := listStacks(source)
	if err != nil {
		return s.fail(result, start, &models.EnvironmentError{
			Path:   source,
			Reason: "cannot read source directory",
			Err:    err,
		}), nil
	}
	if len(stacks) == 0 {
		return s.fail(result, start, &models.EnvironmentError{
			Path:   source,
			Reason: "no stacks found",
		}), nil
	}

	for _, stack := range stacks {
		if s.resolver.IsRedirected(stack) {
			s.logger.Warn().
				Str("stack", stack).
				Msg("stack is redirected to an external directory, only the marker is archived")
		}
	}

	name, err := archive.NewArchiveName(start, destination)
	if err != nil {
		return s.fail(result, start, &models.EnvironmentError{
			Path:   destination,
			Reason: "refusing to overwrite an existing archive",
			Err:    err,
		}), nil
	}
	archivePath := filepath.Join(destination, name)

	// Member paths stay relative to the source root.
	args := []string{"-czf", archivePath, "-C", source, "--"}
	args = append(args, stacks...)

	s.logger.Debug().Strs("args", args).Msg("running tar")

	output, err := s.executor.Execute(ctx, "tar", args...)
	if err != nil {
		_ = os.Remove(archivePath)
		return s.fail(result, start, models.NewToolError("tar", output, err)), nil //nolint:nilerr // error is stored in result struct by design
	}

	result.Pruned = s.retention.Apply(destination)
	if result.Pruned == nil {
		result.Pruned = &models.PruneResult{}
	}

	result.ArchiveName = name
	result.ArchivePath = archivePath
	result.Stacks = stacks
	result.StackCount = len(stacks)
	if info, err := os.Stat(archivePath); err == nil {
		result.Size = info.Size()
	}
	result.SizeHuman = archive.FormatBytes(result.Size)
	result.Duration = s.now().Sub(start)
	result.Status = models.StatusSuccess
	result.Message = fmt.Sprintf("Backup created: %s (%s, %d stacks)", name, result.SizeHuman, result.StackCount)

	s.logger.Info().
		Str("archive", name).
		Str("size", result.SizeHuman).
		Int("stacks", result.StackCount).
		Int("pruned", len(result.Pruned.Removed)).
		Dur("duration", result.Duration).
		Msg("backup completed")

	return result, nil
}

func (s *Impl) fail(result *models.BackupResult, start time.Time, err error) *models.BackupResult {
	result.Status = models.StatusError
	result.Error = err
	result.Message = "Backup failed: " + err.Error()
	result.Duration = s.now().Sub(start)

	s.logger.Error().Err(err).Msg("backup failed")
	return result
}

// listStacks returns the visible immediate subdirectories of root, sorted.
func listStacks(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var stacks []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		stacks = append(stacks, entry.Name())
	}
	return stacks, nil
}
