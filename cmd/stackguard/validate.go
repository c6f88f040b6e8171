package main

import (
	"fmt"
	"os"

	"github.com/fgeck/stackguard/internal/config"
	"github.com/fgeck/stackguard/internal/services/schedule"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without touching any stack, archive or crontab.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	if cfg.Schedule.Enabled {
		if _, err := schedule.Entry(cfg.Schedule); err != nil {
			log.Error().Err(err).Msg("schedule validation failed")
			return err
		}
	}

	retention := fmt.Sprintf("%d", cfg.Backup.Retention)
	if cfg.Backup.Retention == 0 {
		retention = "unlimited"
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Plugin root: %s\n", cfg.PluginRoot)
	fmt.Printf("  Stacks: %s\n", cfg.ProjectsRoot)
	fmt.Printf("  Locks: %s\n", cfg.LockDir)
	fmt.Println()
	fmt.Println("Backup:")
	fmt.Printf("  Destination: %s\n", cfg.Backup.Destination)
	fmt.Printf("  Retention: %s\n", retention)
	fmt.Println()
	fmt.Println("Schedule:")
	fmt.Printf("  Enabled: %v\n", cfg.Schedule.Enabled)
	if cfg.Schedule.Enabled {
		fmt.Printf("  Frequency: %s\n", cfg.Schedule.Frequency)
		fmt.Printf("  Time: %s\n", cfg.Schedule.Time)
		fmt.Printf("  Command: %s\n", cfg.Schedule.Command)
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
