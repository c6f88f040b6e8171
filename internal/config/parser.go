// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/spf13/viper"
)

// Defaults used when a key is absent from the plugin configuration.
const (
	DefaultPluginRoot      = "/boot/config/plugins/stackguard"
	DefaultLockDir         = "/var/run/stackguard/locks"
	DefaultRetention       = 5
	DefaultScheduleTime    = "03:00"
	DefaultScheduleCommand = "/usr/local/bin/stackguard backup run"
)

var scheduleTimePattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
// Plugin configuration files are KEY="value" lines, read with viper's env format.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("env")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		PluginRoot:   p.path("plugin_root"),
		ProjectsRoot: p.path("projects_folder"),
		LockDir:      p.path("lock_dir"),
	}

	if cfg.PluginRoot == "" {
		cfg.PluginRoot = DefaultPluginRoot
	}
	if cfg.ProjectsRoot == "" {
		cfg.ProjectsRoot = filepath.Join(cfg.PluginRoot, "projects")
	}
	if cfg.LockDir == "" {
		cfg.LockDir = DefaultLockDir
	}

	// Parse backup settings.
	cfg.Backup = models.BackupSettings{
		Destination: p.path("backup_destination"),
		Retention:   DefaultRetention,
	}
	if cfg.Backup.Destination == "" {
		cfg.Backup.Destination = filepath.Join(cfg.PluginRoot, "backups")
	}
	// 0 is meaningful (keep everything), so only an absent key gets the default.
	retention, ok, err := p.integer("backup_retention")
	if err != nil {
		return nil, invalid("BACKUP_RETENTION must be a non-negative integer, got %q", p.v.GetString("backup_retention"))
	}
	if ok {
		cfg.Backup.Retention = retention
	}
	if cfg.Backup.Retention < 0 {
		return nil, invalid("BACKUP_RETENTION must not be negative")
	}

	day, _, err := p.integer("backup_schedule_day")
	if err != nil {
		return nil, invalid("BACKUP_SCHEDULE_DAY must be between 0 and 6, got %q", p.v.GetString("backup_schedule_day"))
	}

	// Parse schedule settings.
	cfg.Schedule = models.ScheduleConfig{
		Enabled:    p.v.GetBool("backup_schedule_enabled"),
		Frequency:  models.Frequency(strings.ToLower(p.v.GetString("backup_schedule_frequency"))),
		Time:       strings.TrimSpace(p.v.GetString("backup_schedule_time")),
		DayOfWeek:  day,
		Command:    p.expandEnv(p.v.GetString("backup_schedule_command")),
		LegacyFile: p.path("legacy_schedule_file"),
	}

	if cfg.Schedule.Frequency == "" {
		cfg.Schedule.Frequency = models.FrequencyDaily
	}
	if cfg.Schedule.Frequency != models.FrequencyDaily && cfg.Schedule.Frequency != models.FrequencyWeekly {
		return nil, invalid("BACKUP_SCHEDULE_FREQUENCY must be one of: daily, weekly")
	}
	if cfg.Schedule.Time == "" {
		cfg.Schedule.Time = DefaultScheduleTime
	}
	if !scheduleTimePattern.MatchString(cfg.Schedule.Time) {
		return nil, invalid("BACKUP_SCHEDULE_TIME must be HH:MM, got %q", cfg.Schedule.Time)
	}
	if cfg.Schedule.DayOfWeek < 0 || cfg.Schedule.DayOfWeek > 6 {
		return nil, invalid("BACKUP_SCHEDULE_DAY must be between 0 and 6")
	}
	if cfg.Schedule.Command == "" {
		cfg.Schedule.Command = DefaultScheduleCommand
	}
	if cfg.Schedule.LegacyFile == "" {
		cfg.Schedule.LegacyFile = filepath.Join(cfg.PluginRoot, "backup.cron")
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram_bot_token") || p.v.IsSet("telegram_chat_id") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram_bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram_chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, invalid("TELEGRAM_BOT_TOKEN is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, invalid("TELEGRAM_CHAT_ID is required when telegram is configured")
		}
	}

	return cfg, nil
}

// integer reads an integer setting. ok is false when the key is absent or blank.
func (p *Parser) integer(key string) (n int, ok bool, err error) {
	raw := strings.TrimSpace(p.v.GetString(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func invalid(format string, args ...any) error {
	return &models.ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// path reads a directory setting and strips trailing separators.
func (p *Parser) path(key string) string {
	return TrimTrailingSeparators(p.expandEnv(strings.TrimSpace(p.v.GetString(key))))
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// TrimTrailingSeparators removes trailing path separators, keeping a bare root intact.
func TrimTrailingSeparators(path string) string {
	trimmed := strings.TrimRight(path, string(filepath.Separator))
	if trimmed == "" && path != "" {
		return string(filepath.Separator)
	}
	return trimmed
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return invalid("configuration is nil")
	}

	if cfg.ProjectsRoot == "" {
		return invalid("PROJECTS_FOLDER is required")
	}

	if cfg.Backup.Destination == "" {
		return invalid("BACKUP_DESTINATION is required")
	}

	if cfg.LockDir == "" {
		return invalid("LOCK_DIR is required")
	}

	if cfg.Backup.Retention < 0 {
		return invalid("BACKUP_RETENTION must not be negative")
	}

	return nil
}
