// Package schedule keeps the scheduled backup entry in the user's crontab.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Marker tags the crontab line owned by stackguard.
const Marker = "# stackguard-backup"

// Service defines the interface for schedule operations.
type Service interface {
	Apply(ctx context.Context, cfg models.ScheduleConfig) (*models.ScheduleResult, error)
	Current(ctx context.Context) (string, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
	ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExecuteWithInput runs a command with input on stdin and returns its combined output.
func (e *DefaultExecutor) ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new schedule service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new schedule service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Expression converts the schedule settings into a five-field cron expression.
func Expression(cfg models.ScheduleConfig) (string, error) {
	hour, minute, err := parseTime(cfg.Time)
	if err != nil {
		return "", err
	}

	dow := "*"
	switch cfg.Frequency {
	case models.FrequencyDaily, "":
	case models.FrequencyWeekly:
		if cfg.DayOfWeek < 0 || cfg.DayOfWeek > 6 {
			return "", &models.ValidationError{
				Field:  "BACKUP_SCHEDULE_DAY",
				Reason: fmt.Sprintf("must be between 0 and 6, got %d", cfg.DayOfWeek),
			}
		}
		dow = strconv.Itoa(cfg.DayOfWeek)
	default:
		return "", &models.ValidationError{
			Field:  "BACKUP_SCHEDULE_FREQUENCY",
			Reason: fmt.Sprintf("unsupported frequency %q", cfg.Frequency),
		}
	}

	expr := fmt.Sprintf("%d %d * * %s", minute, hour, dow)
	if _, err := parseCronSchedule(expr); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return expr, nil
}

// NextRun returns the first scheduled run strictly after from.
func NextRun(cfg models.ScheduleConfig, from time.Time) (time.Time, error) {
	expr, err := Expression(cfg)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := parseCronSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Entry returns the full crontab line for the given settings.
func Entry(cfg models.ScheduleConfig) (string, error) {
	expr, err := Expression(cfg)
	if err != nil {
		return "", err
	}
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return "", &models.ValidationError{Field: "BACKUP_SCHEDULE_COMMAND", Reason: "is required"}
	}
	return fmt.Sprintf("%s %s %s", expr, command, Marker), nil
}

// Apply rewrites the crontab so it holds exactly one stackguard line when the
// schedule is enabled and none when it is disabled. Lines owned by other tools
// are kept in order.
func (s *Impl) Apply(ctx context.Context, cfg models.ScheduleConfig) (*models.ScheduleResult, error) {
	result := &models.ScheduleResult{Enabled: cfg.Enabled}

	var entry string
	if cfg.Enabled {
		var err error
		entry, err = Entry(cfg)
		if err != nil {
			return s.fail(result, err), nil
		}
	}

	current, err := s.readTable(ctx)
	if err != nil {
		return s.fail(result, err), nil
	}

	lines := stripMarker(current)
	if entry != "" {
		lines = append(lines, entry)
	}

	table := strings.Join(lines, "\n")
	if table != "" {
		table += "\n"
	}

	output, err := s.executor.ExecuteWithInput(ctx, []byte(table), "crontab", "-")
	if err != nil {
		return s.fail(result, models.NewToolError("crontab", output, err)), nil //nolint:nilerr // error is stored in result struct by design
	}

	result.Status = models.StatusSuccess
	result.Entry = entry
	if cfg.Enabled {
		result.Message = "Backup schedule installed: " + entry
	} else {
		result.Message = "Backup schedule disabled"
	}

	if err := s.removeLegacyFile(cfg.LegacyFile); err != nil {
		result.Status = models.StatusWarning
		result.Message += " (legacy schedule file not removed: " + err.Error() + ")"
	}

	s.logger.Info().
		Bool("enabled", cfg.Enabled).
		Str("entry", entry).
		Msg("backup schedule applied")

	return result, nil
}

// Current returns the installed stackguard line, or an empty string if none.
func (s *Impl) Current(ctx context.Context) (string, error) {
	current, err := s.readTable(ctx)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(current, "\n") {
		if strings.Contains(line, Marker) {
			return strings.TrimSpace(line), nil
		}
	}
	return "", nil
}

func (s *Impl) readTable(ctx context.Context) (string, error) {
	output, err := s.executor.Execute(ctx, "crontab", "-l")
	if err != nil {
		// crontab exits non-zero for a user without a table yet.
		if strings.Contains(strings.ToLower(string(output)), "no crontab") {
			return "", nil
		}
		return "", models.NewToolError("crontab", output, err)
	}
	return string(output), nil
}

// removeLegacyFile deletes the schedule file older releases wrote. A missing
// file is not an error.
func (s *Impl) removeLegacyFile(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		s.logger.Info().Str("file", path).Msg("removed legacy schedule file")
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		s.logger.Warn().Err(err).Str("file", path).Msg("failed to remove legacy schedule file")
		return err
	}
	return nil
}

func (s *Impl) fail(result *models.ScheduleResult, err error) *models.ScheduleResult {
	result.Status = models.StatusError
	result.Error = err
	result.Message = "Failed to apply backup schedule: " + err.Error()
	s.logger.Error().Err(err).Msg("failed to apply backup schedule")
	return result
}

func stripMarker(table string) []string {
	var kept []string
	for _, line := range strings.Split(strings.TrimRight(table, "\n"), "\n") {
		if line == "" && len(kept) == 0 {
			continue
		}
		if strings.Contains(line, Marker) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

func parseTime(value string) (hour, minute int, err error) {
	invalid := &models.ValidationError{
		Field:  "BACKUP_SCHEDULE_TIME",
		Reason: fmt.Sprintf("must be HH:MM, got %q", value),
	}

	h, m, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(m) != 2 {
		return 0, 0, invalid
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, invalid
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, invalid
	}
	return hour, minute, nil
}

func parseCronSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(strings.TrimSpace(expr))
}
