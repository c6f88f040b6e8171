// Package restore extracts selected stacks from a backup archive.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/paths"
	"github.com/rs/zerolog"
)

// Service defines the interface for restore operations.
type Service interface {
	ListStacks(ctx context.Context, archivePath string) (*models.ArchiveContents, error)
	Restore(ctx context.Context, archivePath string, stacks []string) (*models.RestoreResult, error)
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

// Impl implements the Service interface.
type Impl struct {
	executor  CommandExecutor
	stackRoot string
	logger    zerolog.Logger
}

// New creates a new restore service writing into the configured projects root.
func New(logger zerolog.Logger, cfg models.Config) *Impl {
	return &Impl{
		executor:  &DefaultExecutor{},
		stackRoot: paths.New(cfg).SourceRoot(),
		logger:    logger,
	}
}

// NewWithExecutor creates a new restore service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, stackRoot string, executor CommandExecutor) *Impl {
	return &Impl{
		executor:  executor,
		stackRoot: stackRoot,
		logger:    logger,
	}
}

// ListStacks returns the sorted top-level directory names stored in an archive.
func (s *Impl) ListStacks(ctx context.Context, archivePath string) (*models.ArchiveContents, error) {
	result := &models.ArchiveContents{Path: archivePath}

	if !fileExists(archivePath) {
		return failList(result, &models.EnvironmentError{Path: archivePath, Reason: "backup archive not found"}), nil
	}

	output, err := s.executor.Execute(ctx, "tar", "-tzf", archivePath)
	if err != nil {
		return failList(result, models.NewToolError("tar", output, err)), nil //nolint:nilerr // error is stored in result struct by design
	}

	result.Stacks = topLevelNames(string(output))
	if len(result.Stacks) == 0 {
		result.Status = models.StatusWarning
		result.Message = "Archive contains no stacks"
	} else {
		result.Status = models.StatusSuccess
		result.Message = fmt.Sprintf("Archive contains %d stack(s)", len(result.Stacks))
	}

	s.logger.Debug().
		Str("archive", archivePath).
		Strs("stacks", result.Stacks).
		Msg("archive listed")

	return result, nil
}

func failList(result *models.ArchiveContents, err error) *models.ArchiveContents {
	result.Status = models.StatusError
	result.Error = err
	result.Message = "Failed to list archive: " + err.Error()
	return result
}

func topLevelNames(listing string) []string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(listing, "\n") {
		member := strings.TrimSpace(line)
		member = strings.TrimPrefix(member, "./")

		top, _, _ := strings.Cut(member, "/")
		if top == "" || top == "." {
			continue
		}
		seen[top] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restore extracts each requested stack's subtree into the stack root,
// overwriting existing files. Stacks are restored independently; the status is
// success when none failed, error when none succeeded and warning otherwise.
func (s *Impl) Restore(ctx context.Context, archivePath string, stacks []string) (*models.RestoreResult, error) {
	start := time.Now()
	result := &models.RestoreResult{}

	if len(stacks) == 0 {
		return s.fail(result, start, &models.ValidationError{Field: "stacks", Reason: "no stacks selected"}), nil
	}

	if !fileExists(archivePath) {
		return s.fail(result, start, &models.EnvironmentError{Path: archivePath, Reason: "backup archive not found"}), nil
	}

	if err := os.MkdirAll(s.stackRoot, 0o755); err != nil { //nolint:gosec // stack directories are shared with the UI
		return s.fail(result, start, &models.EnvironmentError{
			Path:   s.stackRoot,
			Reason: "cannot create stack directory",
			Err:    err,
		}), nil
	}

	s.logger.Info().
		Str("archive", archivePath).
		Strs("stacks", stacks).
		Str("target", s.stackRoot).
		Msg("starting restore")

	for _, stack := range stacks {
		if err := s.restoreStack(ctx, archivePath, stack); err != nil {
			s.logger.Error().Err(err).Str("stack", stack).Msg("failed to restore stack")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", stack, err))
			continue
		}

		s.logger.Info().Str("stack", stack).Msg("stack restored")
		result.Restored = append(result.Restored, stack)
	}

	result.Duration = time.Since(start)

	switch {
	case len(result.Errors) == 0:
		result.Status = models.StatusSuccess
		result.Message = fmt.Sprintf("Restored %d stack(s)", len(result.Restored))
	case len(result.Restored) == 0:
		result.Status = models.StatusError
		result.Message = fmt.Sprintf("Restore failed for all %d stack(s)", len(result.Errors))
		result.Error = errors.New(strings.Join(result.Errors, "; "))
	default:
		result.Status = models.StatusWarning
		result.Message = fmt.Sprintf("Restored %d of %d stack(s), %d failed",
			len(result.Restored), len(stacks), len(result.Errors))
	}

	return result, nil
}

func (s *Impl) restoreStack(ctx context.Context, archivePath, stack string) error {
	if stack == "" || stack == "." || stack == ".." || strings.ContainsAny(stack, `/\`) {
		return &models.ValidationError{Field: "stack", Reason: fmt.Sprintf("invalid stack name %q", stack)}
	}

	// The trailing slash keeps "web" from also matching "web-old".
	output, err := s.executor.Execute(ctx, "tar", "-xzf", archivePath, "-C", s.stackRoot, stack+"/")
	if err != nil {
		return models.NewToolError("tar", output, err)
	}
	return nil
}

func (s *Impl) fail(result *models.RestoreResult, start time.Time, err error) *models.RestoreResult {
	result.Status = models.StatusError
	result.Error = err
	result.Message = "Restore failed: " + err.Error()
	result.Duration = time.Since(start)

	s.logger.Error().Err(err).Msg("restore failed")
	return result
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
