package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/stackguard/internal/models"
	"github.com/fgeck/stackguard/internal/services/schedule"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the scheduled backup crontab entry",
}

var scheduleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install or remove the crontab entry to match the configuration",
	Long: `Rewrite the crontab so it holds exactly one stackguard backup line when
BACKUP_SCHEDULE_ENABLED is true and none otherwise. Other crontab lines are
left untouched. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: applySchedule,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured and installed schedule",
	Args:  cobra.NoArgs,
	RunE:  showSchedule,
}

func init() {
	scheduleCmd.AddCommand(scheduleApplyCmd)
	scheduleCmd.AddCommand(scheduleShowCmd)
}

func applySchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := schedule.New(log.Logger).Apply(ctx, cfg.Schedule)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return result.Error
	}

	fmt.Println(result.Message)
	printNextRun(cfg.Schedule)
	return nil
}

func showSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := cfg.Schedule
	fmt.Println("Configured:")
	fmt.Printf("  Enabled: %v\n", s.Enabled)
	fmt.Printf("  Frequency: %s\n", s.Frequency)
	fmt.Printf("  Time: %s\n", s.Time)
	if s.Frequency == models.FrequencyWeekly {
		fmt.Printf("  Day: %s\n", time.Weekday(s.DayOfWeek))
	}
	fmt.Printf("  Command: %s\n", s.Command)
	if expr, err := schedule.Expression(s); err == nil {
		fmt.Printf("  Expression: %s\n", expr)
	}

	fmt.Println()
	entry, err := schedule.New(log.Logger).Current(ctx)
	if err != nil {
		return err
	}
	if entry == "" {
		fmt.Println("Installed: (none)")
	} else {
		fmt.Printf("Installed: %s\n", entry)
	}

	printNextRun(s)
	return nil
}

func printNextRun(s models.ScheduleConfig) {
	if !s.Enabled {
		return
	}
	next, err := schedule.NextRun(s, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("cannot compute next run")
		return
	}
	fmt.Printf("Next run: %s (%s)\n", next.Format("2006-01-02 15:04"), humanize.Time(next))
}
