package models

// Frequency of the scheduled backup.
type Frequency string

// Supported frequencies.
const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ScheduleConfig holds the scheduled backup settings.
type ScheduleConfig struct {
	Enabled    bool
	Frequency  Frequency
	Time       string // HH:MM, host local time
	DayOfWeek  int    // 0 = Sunday, only used for weekly
	Command    string // command line the scheduler runs
	LegacyFile string // schedule file written by older releases, removed on apply
}

// ScheduleResult holds the result of installing the scheduler entry.
type ScheduleResult struct {
	Status  Status
	Enabled bool
	Entry   string // installed line, empty when disabled
	Message string
	Error   error
}
