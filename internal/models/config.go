// Package models contains the data structures used throughout stackguard.
package models

// Config holds the complete stackguard configuration.
type Config struct {
	PluginRoot   string
	ProjectsRoot string // directory holding one subdirectory per stack
	LockDir      string
	Backup       BackupSettings
	Schedule     ScheduleConfig
	Telegram     *TelegramConfig // nil if not configured
}

// BackupSettings holds archive destination and retention settings.
type BackupSettings struct {
	Destination string
	Retention   int // 0 keeps every archive
}

// Status is the three-way outcome reported by every entry point.
type Status string

// Status values.
const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)
